// Package retrieval defines the value types exchanged with the retrieval
// strategies and the strategy contract itself. The coordination core never
// looks inside a strategy; it only requires well-formed records back.
package retrieval

import "context"

// Strategy names understood by the orchestrator.
const (
	StrategyLocal  = "local"
	StrategyGlobal = "global"
	StrategyDrift  = "drift"
	StrategyHybrid = "hybrid"
)

// Node is one retrieved graph node.
type Node struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// Edge is one retrieved relation between nodes.
type Edge struct {
	Source   string         `json:"source"`
	Target   string         `json:"target"`
	Type     string         `json:"type"`
	Weight   float64        `json:"weight"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Citation points at a source node backing part of an answer.
type Citation struct {
	NodeID  string  `json:"node_id"`
	Type    string  `json:"type"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Record is the result of one strategy invocation. Coverage and Confidence
// are both in [0,1].
type Record struct {
	AgentID    string     `json:"agent_id"`
	Strategy   string     `json:"strategy"`
	Query      string     `json:"query"`
	Nodes      []Node     `json:"nodes"`
	Edges      []Edge     `json:"edges"`
	Citations  []Citation `json:"citations"`
	Coverage   float64    `json:"coverage"`
	Confidence float64    `json:"confidence"`
}

// Request is what a strategy receives.
type Request struct {
	Query      string
	MaxResults int
}

// Strategy produces a retrieval record for a query. Implementations live
// outside the core (graph traversal, community search, drift expansion);
// timing out is permitted and surfaces as a context error.
type Strategy interface {
	Retrieve(ctx context.Context, req Request) (*Record, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(ctx context.Context, req Request) (*Record, error)

func (f StrategyFunc) Retrieve(ctx context.Context, req Request) (*Record, error) {
	return f(ctx, req)
}
