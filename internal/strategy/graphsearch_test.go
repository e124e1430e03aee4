package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexgraph/lexgraph/internal/graph"
	"github.com/lexgraph/lexgraph/internal/retrieval"
)

func seededStore(t *testing.T) *graph.Store {
	t.Helper()
	store, err := graph.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	vertex := func(id, vertexType, content string) *graph.Vertex {
		v := graph.NewVertex(id, vertexType)
		v.Properties["content"] = content
		return v
	}
	require.NoError(t, store.BatchAddVertices([]*graph.Vertex{
		vertex("prov-1", "provision", "notice periods for termination of employment"),
		vertex("prov-2", "provision", "vacation carryover expires in march"),
		vertex("sum-1", "summary", "overview of notice periods"),
		vertex("prov-3", "provision", "maritime salvage liability rules"),
	}))
	require.NoError(t, store.BatchAddEdges([]*graph.Edge{
		graph.NewEdge("prov-1", "sum-1", graph.RelatesTo),
	}))
	return store
}

func TestLocalRetrievalScoresByOverlap(t *testing.T) {
	g := NewGraphSearch(seededStore(t), ModeLocal)

	rec, err := g.Retrieve(context.Background(), retrieval.Request{Query: "notice periods", MaxResults: 10})
	require.NoError(t, err)

	require.Len(t, rec.Nodes, 2, "only the two notice-period vertices match")
	ids := []string{rec.Nodes[0].ID, rec.Nodes[1].ID}
	assert.ElementsMatch(t, []string{"prov-1", "sum-1"}, ids)
	assert.Empty(t, rec.Edges, "local answers carry no relations")
	assert.Len(t, rec.Citations, 2)
	assert.Greater(t, rec.Confidence, 0.0)
}

func TestMaxResultsTruncatesRanked(t *testing.T) {
	g := NewGraphSearch(seededStore(t), ModeLocal)

	rec, err := g.Retrieve(context.Background(), retrieval.Request{Query: "notice periods", MaxResults: 1})
	require.NoError(t, err)
	assert.Len(t, rec.Nodes, 1)
	assert.InDelta(t, 1.0, rec.Coverage, 1e-9, "a full page means full coverage")
}

func TestGlobalPrefersSummaries(t *testing.T) {
	g := NewGraphSearch(seededStore(t), ModeGlobal)

	rec, err := g.Retrieve(context.Background(), retrieval.Request{Query: "notice periods", MaxResults: 10})
	require.NoError(t, err)

	require.NotEmpty(t, rec.Nodes)
	assert.Equal(t, "sum-1", rec.Nodes[0].ID, "the boosted summary must rank first")
	assert.LessOrEqual(t, rec.Nodes[0].Score, 1.0, "boosted scores stay clamped")
}

func TestDriftIncludesRelationsAmongHits(t *testing.T) {
	g := NewGraphSearch(seededStore(t), ModeDrift)

	rec, err := g.Retrieve(context.Background(), retrieval.Request{Query: "notice periods", MaxResults: 10})
	require.NoError(t, err)

	require.Len(t, rec.Edges, 1)
	assert.Equal(t, "prov-1", rec.Edges[0].Source)
	assert.Equal(t, "sum-1", rec.Edges[0].Target)
	assert.Equal(t, graph.RelatesTo, rec.Edges[0].Type)
}

func TestNoMatchesYieldsEmptyRecord(t *testing.T) {
	g := NewGraphSearch(seededStore(t), ModeLocal)

	rec, err := g.Retrieve(context.Background(), retrieval.Request{Query: "zoning easements", MaxResults: 10})
	require.NoError(t, err)
	assert.Empty(t, rec.Nodes)
	assert.Zero(t, rec.Coverage)
	assert.Zero(t, rec.Confidence)
}

func TestTokenizeStripsPunctuationAndCase(t *testing.T) {
	tokens := tokenize("Notice, periods! (employment)")
	assert.Equal(t, map[string]bool{"notice": true, "periods": true, "employment": true}, tokens)
}
