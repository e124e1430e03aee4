// Package agent wraps one retrieval strategy behind the uniform handler
// contract the router dispatches to. The three production agents (local,
// global, drift) differ only in the strategy they wrap; the coordination
// core treats them as opaque.
//
// Failure discipline: a strategy error becomes a success=false result
// payload, not a returned error. The router's error-envelope synthesis is
// reserved for panics and other unexpected conditions.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lexgraph/lexgraph/internal/envelope"
	"github.com/lexgraph/lexgraph/internal/retrieval"
	"github.com/lexgraph/lexgraph/internal/simcache"
)

// Well-known agent ids.
const (
	LocalID  = "local_agent"
	GlobalID = "global_agent"
	DriftID  = "drift_agent"
)

// Agent serves retrieve tasks for a single strategy.
type Agent struct {
	id       string
	strategy string
	retrieve retrieval.Strategy
	cache    *simcache.Cache
	log      *logrus.Entry
}

// New creates an agent. cache may be nil to disable caching.
func New(id, strategyName string, s retrieval.Strategy, cache *simcache.Cache) *Agent {
	return &Agent{
		id:       id,
		strategy: strategyName,
		retrieve: s,
		cache:    cache,
		log:      logrus.WithFields(logrus.Fields{"component": "agent", "agent_id": id}),
	}
}

// ID returns the agent's registry id.
func (a *Agent) ID() string { return a.id }

// Handle implements the router handler contract.
func (a *Agent) Handle(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	switch env.MessageType {
	case envelope.MessageHeartbeat:
		return envelope.NewReply(env, a.id, envelope.MessageResult,
			envelope.HeartbeatPayload{Status: "alive", AgentID: a.id})
	case envelope.MessageTask:
		return a.handleTask(ctx, env)
	default:
		// Results and errors addressed to an agent carry no work.
		return nil, nil
	}
}

func (a *Agent) handleTask(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	var task envelope.TaskPayload
	if err := env.UnmarshalPayload(&task); err != nil {
		return a.failure(env, task.TaskType, fmt.Sprintf("malformed task payload: %v", err))
	}
	if task.TaskType != envelope.TaskRetrieve {
		return a.failure(env, task.TaskType, fmt.Sprintf("unsupported task type: %s", task.TaskType))
	}
	if task.Query == "" {
		return a.failure(env, task.TaskType, "query must not be empty")
	}
	if task.MaxResults < 1 {
		return a.failure(env, task.TaskType, "max_results must be at least 1")
	}

	record, cached, err := a.lookup(ctx, env, task)
	if err != nil {
		a.log.WithField("query", task.Query).WithError(err).Warn("strategy failed")
		return a.failure(env, task.TaskType, err.Error())
	}

	record.AgentID = a.id
	record.Strategy = a.strategy
	record.Query = task.Query
	clampScores(record)

	payload, err := envelope.NewResult(a.id, envelope.TaskRetrieve, record)
	if err != nil {
		return nil, err
	}
	reply, err := envelope.NewReply(env, a.id, envelope.MessageResult, payload)
	if err != nil {
		return nil, err
	}
	if cached {
		reply.SetMetadata("cache", "hit")
	} else {
		reply.SetMetadata("cache", "miss")
	}
	return reply, nil
}

// lookup consults the similarity cache before invoking the strategy. The
// strategy call runs under the envelope's remaining TTL.
func (a *Agent) lookup(ctx context.Context, env *envelope.Envelope, task envelope.TaskPayload) (*retrieval.Record, bool, error) {
	if a.cache != nil {
		if rec, ok := a.cache.Get(a.strategy, task.Query); ok {
			return &rec, true, nil
		}
	}

	if remaining := env.RemainingTTL(time.Now()); remaining > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, remaining)
		defer cancel()
	}

	record, err := a.retrieve.Retrieve(ctx, retrieval.Request{
		Query:      task.Query,
		MaxResults: task.MaxResults,
	})
	if err != nil {
		return nil, false, err
	}
	if record == nil {
		return nil, false, fmt.Errorf("strategy returned no record")
	}

	if a.cache != nil {
		a.cache.Put(a.strategy, task.Query, *record)
	}
	return record, false, nil
}

func (a *Agent) failure(env *envelope.Envelope, taskType, msg string) (*envelope.Envelope, error) {
	return envelope.NewReply(env, a.id, envelope.MessageResult,
		envelope.NewFailure(a.id, taskType, msg))
}

func clampScores(rec *retrieval.Record) {
	rec.Coverage = clamp01(rec.Coverage)
	rec.Confidence = clamp01(rec.Confidence)
	for i := range rec.Nodes {
		if rec.Nodes[i].Score < 0 {
			rec.Nodes[i].Score = 0
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
