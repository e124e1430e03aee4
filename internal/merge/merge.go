// Package merge implements the deterministic union of retrieval records
// collected from a fan-out. The merge is a pure function: for a fixed input
// ordering it always produces an equal result, and the orchestrator supplies
// records ordered by agent id to make the output stable.
package merge

import "github.com/lexgraph/lexgraph/internal/retrieval"

// edgeKey identifies an edge for deduplication.
type edgeKey struct {
	source string
	target string
	kind   string
}

// Merged is the outcome of merging fan-out records.
type Merged struct {
	Record     retrieval.Record
	AgentsUsed []string
}

// Records merges retrieval records into one:
//
//   - nodes union by id, higher score wins, first-seen on ties
//   - edges union by (source, target, type), first-seen wins
//   - citations union by node id, first-seen wins
//   - coverage and confidence are arithmetic means over the inputs
//   - agents_used lists contributing agent ids, deduplicated, input order
//
// An empty input yields a zero record.
func Records(records []retrieval.Record) Merged {
	var out Merged
	if len(records) == 0 {
		out.Record.Nodes = []retrieval.Node{}
		out.Record.Edges = []retrieval.Edge{}
		out.Record.Citations = []retrieval.Citation{}
		out.AgentsUsed = []string{}
		return out
	}

	nodeIndex := make(map[string]int)
	edgeSeen := make(map[edgeKey]bool)
	citationSeen := make(map[string]bool)
	agentSeen := make(map[string]bool)

	nodes := []retrieval.Node{}
	edges := []retrieval.Edge{}
	citations := []retrieval.Citation{}
	agents := []string{}

	var coverageSum, confidenceSum float64

	for _, rec := range records {
		for _, n := range rec.Nodes {
			if i, ok := nodeIndex[n.ID]; ok {
				if n.Score > nodes[i].Score {
					nodes[i] = n
				}
				continue
			}
			nodeIndex[n.ID] = len(nodes)
			nodes = append(nodes, n)
		}
		for _, e := range rec.Edges {
			key := edgeKey{source: e.Source, target: e.Target, kind: e.Type}
			if edgeSeen[key] {
				continue
			}
			edgeSeen[key] = true
			edges = append(edges, e)
		}
		for _, c := range rec.Citations {
			if citationSeen[c.NodeID] {
				continue
			}
			citationSeen[c.NodeID] = true
			citations = append(citations, c)
		}
		if rec.AgentID != "" && !agentSeen[rec.AgentID] {
			agentSeen[rec.AgentID] = true
			agents = append(agents, rec.AgentID)
		}
		coverageSum += rec.Coverage
		confidenceSum += rec.Confidence
	}

	n := float64(len(records))
	out.Record = retrieval.Record{
		Query:      records[0].Query,
		Nodes:      nodes,
		Edges:      edges,
		Citations:  citations,
		Coverage:   coverageSum / n,
		Confidence: confidenceSum / n,
	}
	out.AgentsUsed = agents
	return out
}
