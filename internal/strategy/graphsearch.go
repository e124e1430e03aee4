// Package strategy provides the built-in graph-backed retrieval strategies.
// The coordination core treats strategies as opaque collaborators; these
// implementations exist so the daemon answers queries against the local
// corpus graph without any external retrieval service.
package strategy

import (
	"context"
	"sort"
	"strings"

	"github.com/lexgraph/lexgraph/internal/graph"
	"github.com/lexgraph/lexgraph/internal/retrieval"
)

// Mode selects the retrieval flavor.
type Mode string

const (
	// ModeLocal scores vertices by direct token overlap with the query.
	ModeLocal Mode = "local"
	// ModeGlobal prefers summary-level vertices over provisions.
	ModeGlobal Mode = "global"
	// ModeDrift widens a local match with relations among the hits.
	ModeDrift Mode = "drift"
)

// GraphSearch retrieves from the corpus graph.
type GraphSearch struct {
	store *graph.Store
	mode  Mode
}

// NewGraphSearch creates a strategy over the given store.
func NewGraphSearch(store *graph.Store, mode Mode) *GraphSearch {
	return &GraphSearch{store: store, mode: mode}
}

// scanCap bounds how many vertices one retrieval inspects.
const scanCap = 2048

// Retrieve implements retrieval.Strategy.
func (g *GraphSearch) Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Record, error) {
	vertices, err := g.store.AllVertices(ctx, scanCap)
	if err != nil {
		return nil, err
	}

	queryTokens := tokenize(req.Query)

	type scored struct {
		vertex graph.Vertex
		score  float64
	}
	var hits []scored
	for _, v := range vertices {
		score := overlap(queryTokens, tokenize(content(v)))
		if g.mode == ModeGlobal && v.Type == "summary" {
			score *= 1.5
		}
		if score > 0 {
			hits = append(hits, scored{vertex: v, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > req.MaxResults {
		hits = hits[:req.MaxResults]
	}

	record := &retrieval.Record{
		Nodes:     make([]retrieval.Node, 0, len(hits)),
		Edges:     []retrieval.Edge{},
		Citations: make([]retrieval.Citation, 0, len(hits)),
	}

	var scoreSum float64
	nodeIDs := make([]string, 0, len(hits))
	for _, h := range hits {
		score := clamp01(h.score)
		record.Nodes = append(record.Nodes, retrieval.Node{
			ID:       h.vertex.ID,
			Type:     h.vertex.Type,
			Content:  content(h.vertex),
			Metadata: h.vertex.Properties,
			Score:    score,
		})
		record.Citations = append(record.Citations, retrieval.Citation{
			NodeID:  h.vertex.ID,
			Type:    h.vertex.Type,
			Content: content(h.vertex),
			Score:   score,
		})
		nodeIDs = append(nodeIDs, h.vertex.ID)
		scoreSum += score
	}

	// Local answers stay node-only; global and drift also report relations
	// among the hits.
	if g.mode != ModeLocal && len(nodeIDs) > 1 {
		edges, err := g.store.EdgesAmong(ctx, graph.RelatesTo, nodeIDs)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			record.Edges = append(record.Edges, retrieval.Edge{
				Source:   e.Source,
				Target:   e.Target,
				Type:     e.Type,
				Weight:   e.Weight,
				Metadata: e.Properties,
			})
		}
	}

	if len(hits) > 0 {
		record.Confidence = scoreSum / float64(len(hits))
		record.Coverage = clamp01(float64(len(hits)) / float64(req.MaxResults))
	}
	return record, nil
}

func content(v graph.Vertex) string {
	if v.Properties == nil {
		return ""
	}
	if s, ok := v.Properties["content"].(string); ok {
		return s
	}
	return ""
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(s)) {
		tokens[strings.Trim(f, ".,;:?!\"'()")] = true
	}
	delete(tokens, "")
	return tokens
}

func overlap(query, doc map[string]bool) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	matched := 0
	for t := range query {
		if doc[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
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
