package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	envelopesRouted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lexgraph_router_envelopes_routed_total",
		Help: "Envelopes dispatched to a registered handler.",
	})
	envelopesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lexgraph_router_envelopes_dropped_total",
		Help: "Envelopes dropped because their TTL had expired on arrival.",
	})
	errorsSynthesized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lexgraph_router_errors_synthesized_total",
		Help: "Error envelopes synthesized for unexpected handler failures.",
	})
	traceAppendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lexgraph_router_trace_append_failures_total",
		Help: "Trace appends that failed; routing proceeds regardless.",
	})
)
