package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexgraph/lexgraph/internal/retrieval"
)

func record(agentID string, coverage, confidence float64, nodes ...retrieval.Node) retrieval.Record {
	citations := make([]retrieval.Citation, 0, len(nodes))
	for _, n := range nodes {
		citations = append(citations, retrieval.Citation{NodeID: n.ID, Content: n.Content, Score: n.Score})
	}
	return retrieval.Record{
		AgentID:    agentID,
		Strategy:   "local",
		Query:      "q",
		Nodes:      nodes,
		Citations:  citations,
		Coverage:   coverage,
		Confidence: confidence,
	}
}

func node(id string, score float64) retrieval.Node {
	return retrieval.Node{ID: id, Type: "provision", Content: "text " + id, Score: score}
}

func TestEmptyInputYieldsZeroes(t *testing.T) {
	merged := Records(nil)

	assert.Empty(t, merged.Record.Nodes)
	assert.Empty(t, merged.Record.Edges)
	assert.Empty(t, merged.Record.Citations)
	assert.Empty(t, merged.AgentsUsed)
	assert.Zero(t, merged.Record.Coverage)
	assert.Zero(t, merged.Record.Confidence)
}

func TestUnionWithoutCollisions(t *testing.T) {
	merged := Records([]retrieval.Record{
		record("local_agent", 0.8, 0.9, node("n1", 0.5), node("n2", 0.6)),
		record("global_agent", 0.4, 0.5, node("n3", 0.7), node("n4", 0.8), node("n5", 0.9)),
		record("drift_agent", 0.6, 0.7, node("n6", 0.1), node("n7", 0.2), node("n8", 0.3), node("n9", 0.4)),
	})

	require.Len(t, merged.Record.Nodes, 9)
	assert.Equal(t, []string{"local_agent", "global_agent", "drift_agent"}, merged.AgentsUsed)
	assert.InDelta(t, 0.6, merged.Record.Coverage, 1e-9)
	assert.InDelta(t, 0.7, merged.Record.Confidence, 1e-9)
}

func TestNodeCollisionHigherScoreWins(t *testing.T) {
	low := node("N1", 0.6)
	low.Content = "low"
	high := node("N1", 0.9)
	high.Content = "high"

	merged := Records([]retrieval.Record{
		record("local_agent", 1, 1, low),
		record("global_agent", 1, 1, high),
	})

	require.Len(t, merged.Record.Nodes, 1)
	assert.Equal(t, "high", merged.Record.Nodes[0].Content)
	assert.Equal(t, 0.9, merged.Record.Nodes[0].Score)
}

func TestNodeCollisionTieKeepsFirstSeen(t *testing.T) {
	first := node("N1", 0.7)
	first.Content = "first"
	second := node("N1", 0.7)
	second.Content = "second"

	merged := Records([]retrieval.Record{
		record("local_agent", 1, 1, first),
		record("global_agent", 1, 1, second),
	})

	require.Len(t, merged.Record.Nodes, 1)
	assert.Equal(t, "first", merged.Record.Nodes[0].Content)
}

func TestEdgeAndCitationDedup(t *testing.T) {
	a := record("local_agent", 1, 1, node("a", 0.5), node("b", 0.5))
	a.Edges = []retrieval.Edge{
		{Source: "a", Target: "b", Type: "RELATES_TO", Weight: 0.3},
	}
	b := record("global_agent", 1, 1, node("a", 0.4))
	b.Edges = []retrieval.Edge{
		{Source: "a", Target: "b", Type: "RELATES_TO", Weight: 0.9}, // same key, dropped
		{Source: "b", Target: "a", Type: "RELATES_TO", Weight: 0.2}, // reversed, kept
	}

	merged := Records([]retrieval.Record{a, b})

	require.Len(t, merged.Record.Edges, 2)
	assert.Equal(t, 0.3, merged.Record.Edges[0].Weight, "first-seen edge must win on collision")
	require.Len(t, merged.Record.Citations, 2)
}

func TestDeterministicForFixedOrdering(t *testing.T) {
	records := []retrieval.Record{
		record("local_agent", 0.2, 0.3, node("x", 0.1), node("y", 0.2)),
		record("global_agent", 0.4, 0.5, node("y", 0.9), node("z", 0.3)),
		record("drift_agent", 0.6, 0.7, node("z", 0.3)),
	}

	first := Records(records)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Records(records))
	}
}

func TestIdentityUnionCoversAllInputIDs(t *testing.T) {
	records := []retrieval.Record{
		record("local_agent", 1, 1, node("a", 0.1), node("b", 0.2)),
		record("global_agent", 1, 1, node("b", 0.3), node("c", 0.4)),
	}

	merged := Records(records)

	ids := make(map[string]bool)
	for _, n := range merged.Record.Nodes {
		ids[n.ID] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, ids)
}

func TestAgentsUsedDeduplicated(t *testing.T) {
	merged := Records([]retrieval.Record{
		record("local_agent", 1, 1, node("a", 0.1)),
		record("local_agent", 1, 1, node("b", 0.2)),
	})
	assert.Equal(t, []string{"local_agent"}, merged.AgentsUsed)
}
