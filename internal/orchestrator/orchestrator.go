// Package orchestrator runs the multi-agent workflows. It receives task
// envelopes from the router, fans retrieve sub-tasks out to the selected
// agents, merges the surviving records, invokes synthesis, and replies with
// a result envelope. It is itself a router handler, registered under its
// agent id like any other agent.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lexgraph/lexgraph/internal/conversation"
	"github.com/lexgraph/lexgraph/internal/envelope"
	"github.com/lexgraph/lexgraph/internal/graph"
	"github.com/lexgraph/lexgraph/internal/merge"
	"github.com/lexgraph/lexgraph/internal/retrieval"
	"github.com/lexgraph/lexgraph/internal/synthesis"
)

// ID is the orchestrator's registry id.
const ID = "orchestrator"

// topCitations is how many citations the synthesis prompt receives.
const topCitations = 5

// Dispatcher routes one envelope and returns the optional reply. Satisfied
// by *router.Router.
type Dispatcher interface {
	Route(ctx context.Context, env *envelope.Envelope) *envelope.Envelope
}

// ContradictionSource answers typed-edge queries over the legal corpus
// graph. Satisfied by *graph.Store.
type ContradictionSource interface {
	EdgesAmong(ctx context.Context, edgeType string, nodeIDs []string) ([]graph.Edge, error)
}

// Config carries the orchestrator's operating parameters.
type Config struct {
	// DefaultTTL bounds sub-request lifetimes when the parent envelope has
	// no usable remaining TTL.
	DefaultTTL time.Duration
	// MaxResults caps retrieval fan-out budgets.
	MaxResults int
	// Agents lists the fan-out agent ids in dispatch order: local, global,
	// drift.
	Agents FanoutAgents
}

// FanoutAgents names the three retrieval agents.
type FanoutAgents struct {
	Local  string
	Global string
	Drift  string
}

// Orchestrator implements the workflow state machine.
type Orchestrator struct {
	dispatch      Dispatcher
	synth         synthesis.Synthesizer
	graph         ContradictionSource
	conversations *conversation.Manager
	config        Config
	log           *logrus.Entry
	now           func() time.Time
}

// New creates an orchestrator. graph may be nil when analysis workflows are
// disabled.
func New(dispatch Dispatcher, synth synthesis.Synthesizer, graph ContradictionSource, conversations *conversation.Manager, config Config) *Orchestrator {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 30 * time.Second
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 10
	}
	if config.Agents == (FanoutAgents{}) {
		config.Agents = FanoutAgents{Local: "local_agent", Global: "global_agent", Drift: "drift_agent"}
	}
	return &Orchestrator{
		dispatch:      dispatch,
		synth:         synth,
		graph:         graph,
		conversations: conversations,
		config:        config,
		log:           logrus.WithField("component", "orchestrator"),
		now:           time.Now,
	}
}

// Handle implements the router handler contract.
func (o *Orchestrator) Handle(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	if env.MessageType == envelope.MessageHeartbeat {
		return envelope.NewReply(env, ID, envelope.MessageResult,
			envelope.HeartbeatPayload{Status: "alive", AgentID: ID})
	}
	if env.MessageType != envelope.MessageTask {
		return nil, nil
	}

	if o.conversations != nil {
		o.conversations.Touch(env.ConversationID, time.Duration(env.TTL)*time.Second)
	}

	var task envelope.TaskPayload
	if err := env.UnmarshalPayload(&task); err != nil {
		return o.failure(env, "", fmt.Sprintf("malformed task payload: %v", err))
	}

	switch task.TaskType {
	case envelope.TaskAssistantWorkflow:
		return o.runAssistant(ctx, env, task)
	case envelope.TaskAnalysisWorkflow:
		return o.runAnalysis(ctx, env, task)
	default:
		return o.failure(env, task.TaskType, fmt.Sprintf("Unknown task type: %s", task.TaskType))
	}
}

// runAssistant executes the assistant workflow: select agents, fan out,
// merge, synthesize, reply.
func (o *Orchestrator) runAssistant(ctx context.Context, env *envelope.Envelope, task envelope.TaskPayload) (*envelope.Envelope, error) {
	agents := o.selectAgents(task.Strategy)
	strategy := task.Strategy
	if strategy == "" {
		strategy = retrieval.StrategyHybrid
	}

	maxResults := task.MaxResults
	if maxResults < 1 || maxResults > o.config.MaxResults {
		maxResults = o.config.MaxResults
	}

	records := o.fanOut(ctx, env, agents, task.Query, perAgentBudget(maxResults, len(agents)))
	if len(records) == 0 {
		return o.failure(env, task.TaskType, "all agents failed")
	}

	merged := merge.Records(records)

	text, fallback := o.synthesize(ctx, task.Query, strategy, merged.Record.Citations)

	result := AssistantResult{
		ResponseText:   text,
		ConversationID: env.ConversationID,
		Citations:      merged.Record.Citations,
		Nodes:          merged.Record.Nodes,
		Edges:          merged.Record.Edges,
		Metadata: AssistantMetadata{
			Strategy:   strategy,
			Coverage:   merged.Record.Coverage,
			Confidence: merged.Record.Confidence,
			AgentsUsed: merged.AgentsUsed,
		},
	}
	if fallback {
		result.Metadata.Synthesis = "fallback"
	} else {
		result.Metadata.Synthesis = "llm"
	}

	return o.success(env, task.TaskType, result)
}

// selectAgents maps a strategy to the fan-out agent set. Anything that is
// not a single known strategy fans out to all three.
func (o *Orchestrator) selectAgents(strategy string) []string {
	a := o.config.Agents
	switch strategy {
	case retrieval.StrategyLocal:
		return []string{a.Local}
	case retrieval.StrategyGlobal:
		return []string{a.Global}
	case retrieval.StrategyDrift:
		return []string{a.Drift}
	default:
		return []string{a.Local, a.Global, a.Drift}
	}
}

// perAgentBudget splits max_results across agents, never below one.
func perAgentBudget(maxResults, agentCount int) int {
	if agentCount <= 1 {
		return maxResults
	}
	budget := maxResults / agentCount
	if budget < 1 {
		budget = 1
	}
	return budget
}

// fanOut dispatches a retrieve sub-task to each agent concurrently and
// collects the surviving records in agent order. A sub-reply that is
// missing, malformed, success=false, or later than the parent deadline is
// discarded silently. The returned slice preserves the requested agent
// ordering so the merge stays deterministic.
func (o *Orchestrator) fanOut(parent context.Context, env *envelope.Envelope, agents []string, query string, budget int) []retrieval.Record {
	deadline := env.RemainingTTL(o.now())
	if deadline <= 0 {
		deadline = o.config.DefaultTTL
	}
	ctx, cancel := context.WithTimeout(parent, deadline)
	defer cancel()

	ttlSeconds := int64(deadline / time.Second)
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	slots := make([]*retrieval.Record, len(agents))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, agentID := range agents {
		wg.Add(1)
		go func(i int, agentID string) {
			defer wg.Done()

			sub, err := envelope.New(env.ConversationID, ID, agentID, envelope.MessageTask, ttlSeconds,
				envelope.TaskPayload{TaskType: envelope.TaskRetrieve, Query: query, MaxResults: budget})
			if err != nil {
				o.log.WithError(err).Error("failed to build sub-task")
				return
			}
			sub.SetMetadata("parent_message_id", env.MessageID)

			reply := o.dispatch.Route(ctx, sub)
			record := o.parseRetrieveReply(agentID, reply)

			mu.Lock()
			slots[i] = record
			mu.Unlock()
		}(i, agentID)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Laggards keep running until the router returns; their slots stay
		// empty here and their eventual replies land only in the trace.
	}

	mu.Lock()
	defer mu.Unlock()
	var records []retrieval.Record
	for _, slot := range slots {
		if slot != nil {
			records = append(records, *slot)
		}
	}
	return records
}

// parseRetrieveReply extracts a retrieval record from an agent reply, or nil
// for every failure mode.
func (o *Orchestrator) parseRetrieveReply(agentID string, reply *envelope.Envelope) *retrieval.Record {
	if reply == nil {
		o.log.WithField("agent_id", agentID).Warn("agent returned no reply")
		return nil
	}
	if reply.MessageType == envelope.MessageError {
		var errPayload envelope.ErrorPayload
		_ = reply.UnmarshalPayload(&errPayload)
		o.log.WithFields(logrus.Fields{"agent_id": agentID, "error": errPayload.Error}).
			Warn("agent failed unexpectedly")
		return nil
	}

	var payload envelope.ResultPayload
	if err := reply.UnmarshalPayload(&payload); err != nil {
		o.log.WithField("agent_id", agentID).WithError(err).Warn("malformed agent reply")
		return nil
	}
	if !payload.Success {
		o.log.WithFields(logrus.Fields{"agent_id": agentID, "error": payload.Error}).
			Info("agent reported failure")
		return nil
	}

	var record retrieval.Record
	if err := payload.UnmarshalResult(&record); err != nil {
		o.log.WithField("agent_id", agentID).WithError(err).Warn("malformed retrieval record")
		return nil
	}
	return &record
}

// synthesize produces the answer text from the top citations. On failure it
// returns an apologetic substitute and reports fallback=true; the workflow
// still succeeds.
func (o *Orchestrator) synthesize(ctx context.Context, query, strategy string, citations []retrieval.Citation) (string, bool) {
	top := topCitationsByScore(citations, topCitations)

	prompt := fmt.Sprintf("Question: %s\n\nSources (%s retrieval):\n", query, strategy)
	for i, c := range top {
		prompt += fmt.Sprintf("[%d] %s\n", i+1, c.Content)
	}

	text, err := o.synth.Synthesize(ctx, synthesis.Request{
		Messages: []synthesis.Message{
			{Role: "system", Content: "You are a legal research assistant. Answer strictly from the provided sources and cite them by number."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		o.log.WithError(err).Warn("synthesis failed, using fallback text")
		return fmt.Sprintf("I'm sorry, I could not generate an answer for %q (%v). Please consult the attached citations.", query, err), true
	}
	return text, false
}

// topCitationsByScore returns the k highest-scoring citations without
// mutating the input.
func topCitationsByScore(citations []retrieval.Citation, k int) []retrieval.Citation {
	sorted := make([]retrieval.Citation, len(citations))
	copy(sorted, citations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

func (o *Orchestrator) success(env *envelope.Envelope, taskType string, result any) (*envelope.Envelope, error) {
	payload, err := envelope.NewResult(ID, taskType, result)
	if err != nil {
		return nil, err
	}
	return envelope.NewReply(env, ID, envelope.MessageResult, payload)
}

func (o *Orchestrator) failure(env *envelope.Envelope, taskType, msg string) (*envelope.Envelope, error) {
	return envelope.NewReply(env, ID, envelope.MessageResult,
		envelope.NewFailure(ID, taskType, msg))
}
