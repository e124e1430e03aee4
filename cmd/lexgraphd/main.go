// Package main runs the lexgraph coordination daemon: the envelope router,
// the three retrieval agents, the orchestrator, and the HTTP boundary, all
// in one process.
//
// Startup order matters: stores first, then agents and orchestrator, then
// handler registration, then the HTTP listener. Registration finishes before
// the first request can arrive, so the router's registry is effectively
// read-only on the hot path.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/lexgraph/lexgraph/internal/agent"
	"github.com/lexgraph/lexgraph/internal/api"
	"github.com/lexgraph/lexgraph/internal/config"
	"github.com/lexgraph/lexgraph/internal/conversation"
	"github.com/lexgraph/lexgraph/internal/graph"
	"github.com/lexgraph/lexgraph/internal/orchestrator"
	"github.com/lexgraph/lexgraph/internal/router"
	"github.com/lexgraph/lexgraph/internal/simcache"
	"github.com/lexgraph/lexgraph/internal/strategy"
	"github.com/lexgraph/lexgraph/internal/synthesis"
	"github.com/lexgraph/lexgraph/internal/trace"
)

type options struct {
	Config string `short:"c" long:"config" description:"Path to YAML config file"`
	Listen string `short:"l" long:"listen" description:"Listen address override"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		logrus.WithError(err).Fatal("failed to parse flags")
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	if opts.Listen != "" {
		cfg.ListenAddr = opts.Listen
	}
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	log := logrus.WithField("component", "main")

	traceStore, err := trace.Open(filepath.Join(cfg.DataDir, "trace"))
	if err != nil {
		log.WithError(err).Fatal("failed to open trace store")
	}
	defer traceStore.Close()

	graphStore, err := graph.Open(filepath.Join(cfg.DataDir, "graph"))
	if err != nil {
		log.WithError(err).Fatal("failed to open graph store")
	}
	defer graphStore.Close()

	cache, err := simcache.New(cfg.CacheSize, cfg.SimilarityThreshold)
	if err != nil {
		log.WithError(err).Fatal("failed to create similarity cache")
	}

	bus := router.New(traceStore)
	conversations := conversation.NewManager()

	agents := []*agent.Agent{
		agent.New(agent.LocalID, "local", strategy.NewGraphSearch(graphStore, strategy.ModeLocal), cache),
		agent.New(agent.GlobalID, "global", strategy.NewGraphSearch(graphStore, strategy.ModeGlobal), cache),
		agent.New(agent.DriftID, "drift", strategy.NewGraphSearch(graphStore, strategy.ModeDrift), cache),
	}
	for _, a := range agents {
		bus.Register(a.ID(), a)
	}

	orch := orchestrator.New(bus, newSynthesizer(cfg), graphStore, conversations, orchestrator.Config{
		DefaultTTL: time.Duration(cfg.A2ATimeoutSeconds) * time.Second,
		MaxResults: cfg.MaxRetrievalResults,
		Agents: orchestrator.FanoutAgents{
			Local:  agent.LocalID,
			Global: agent.GlobalID,
			Drift:  agent.DriftID,
		},
	})
	bus.Register(orchestrator.ID, orch)

	server, err := api.NewServer(bus, traceStore, conversations, api.Options{
		TaskTTLSeconds:    int64(cfg.A2ATimeoutSeconds),
		DefaultMaxResults: cfg.MaxRetrievalResults,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to create API server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go conversations.Run(ctx, time.Duration(cfg.SweepIntervalSeconds)*time.Second)
	go traceJanitor(ctx, traceStore, time.Duration(cfg.TraceRetentionHours)*time.Hour)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", cfg.ListenAddr).Info("lexgraphd listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("http server failed")
	}
	log.Info("shutdown complete")
}

// newSynthesizer selects the synthesis collaborator from config.
func newSynthesizer(cfg *config.Config) synthesis.Synthesizer {
	if cfg.LLM.Provider == "claude" {
		return synthesis.NewClaudeClient(synthesis.ClaudeConfig{
			APIKey: cfg.APIKey(),
			Model:  cfg.LLM.Model,
		})
	}
	return synthesis.Echo{}
}

// traceJanitor enforces trace retention on a daily cadence.
func traceJanitor(ctx context.Context, store *trace.Store, retention time.Duration) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	log := logrus.WithField("component", "janitor")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := store.Cleanup(time.Now().Add(-retention))
			if err != nil {
				log.WithError(err).Warn("trace cleanup failed")
				continue
			}
			if deleted > 0 {
				log.WithField("deleted", deleted).Info("trace cleanup")
			}
		}
	}
}
