package orchestrator

import (
	"context"
	"fmt"

	"github.com/lexgraph/lexgraph/internal/envelope"
	"github.com/lexgraph/lexgraph/internal/graph"
	"github.com/lexgraph/lexgraph/internal/merge"
)

// analysisMaxResults is the fixed retrieval budget of the analysis fan-out.
const analysisMaxResults = 15

// contradictsRelation marks a RELATES_TO edge as a contradiction.
const contradictsRelation = "CONTRADICTS"

// runAnalysis executes the analysis workflow: hybrid fan-out, contradiction
// lookup over the merged node set, then derived harmonizations,
// recommendations, stats, and summary.
func (o *Orchestrator) runAnalysis(ctx context.Context, env *envelope.Envelope, task envelope.TaskPayload) (*envelope.Envelope, error) {
	if o.graph == nil {
		return o.failure(env, task.TaskType, "analysis is not configured")
	}

	agents := o.selectAgents("") // analysis always fans out hybrid
	records := o.fanOut(ctx, env, agents, task.Query, perAgentBudget(analysisMaxResults, len(agents)))
	if len(records) == 0 {
		return o.failure(env, task.TaskType, "all agents failed")
	}

	merged := merge.Records(records)

	nodeIDs := make([]string, 0, len(merged.Record.Nodes))
	for _, n := range merged.Record.Nodes {
		nodeIDs = append(nodeIDs, n.ID)
	}

	edges, err := o.graph.EdgesAmong(ctx, graph.RelatesTo, nodeIDs)
	if err != nil {
		o.log.WithError(err).Warn("contradiction query failed")
		return o.failure(env, task.TaskType, fmt.Sprintf("graph query failed: %v", err))
	}

	var contradictions []Contradiction
	for _, e := range edges {
		if e.Property("type") != contradictsRelation {
			continue
		}
		contradictions = append(contradictions, contradictionFromEdge(e, len(contradictions)+1))
	}

	result := AnalysisResult{
		Query:           task.Query,
		Contradictions:  contradictions,
		Recommendations: deriveRecommendations(contradictions),
		Summary:         summarize(task.Query, contradictions),
		Confidence:      merged.Record.Confidence,
		Stats:           countBySeverity(contradictions),
		Harmonizations:  deriveHarmonizations(contradictions),
		Citations:       merged.Record.Citations,
	}

	return o.success(env, task.TaskType, result)
}

// contradictionFromEdge builds a contradiction record from a CONTRADICTS
// edge. When the edge carries no explicit severity it is derived from the
// priority attribute.
func contradictionFromEdge(e graph.Edge, ordinal int) Contradiction {
	severity := e.Property("severity")
	if severity == "" {
		severity = severityFromPriority(e.Property("priority"))
	}

	description := e.Property("description")
	if description == "" {
		description = fmt.Sprintf("%s contradicts %s", e.Source, e.Target)
	}

	return Contradiction{
		ID:             fmt.Sprintf("contradiction_%d", ordinal),
		Title:          fmt.Sprintf("Contradiction between %s and %s", e.Source, e.Target),
		Description:    description,
		Severity:       severity,
		Priority:       e.Property("priority"),
		Category:       e.Property("category"),
		Sources:        []string{e.Source, e.Target},
		Impact:         impactFor(severity),
		Recommendation: recommendationTextFor(severity),
	}
}

// severityFromPriority maps a priority attribute to a severity when the edge
// carries no severity of its own.
func severityFromPriority(priority string) string {
	switch priority {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// deriveHarmonizations proposes one harmonization per contradiction.
func deriveHarmonizations(contradictions []Contradiction) []Harmonization {
	harmonizations := make([]Harmonization, 0, len(contradictions))
	for _, c := range contradictions {
		harmonizations = append(harmonizations, Harmonization{
			ContradictionID: c.ID,
			Approach:        "hierarchical interpretation",
			Description: fmt.Sprintf("Reconcile %s and %s by applying the higher-ranking norm and reading the subordinate provision narrowly.",
				c.Sources[0], c.Sources[1]),
			Steps: []string{
				"Identify the normative hierarchy of both sources",
				"Determine the scope of the conflict",
				"Apply the prevailing norm and document the narrowed reading",
			},
		})
	}
	return harmonizations
}

// deriveRecommendations maps each contradiction's severity to a prioritized
// action with timeline and cost impact.
func deriveRecommendations(contradictions []Contradiction) []Recommendation {
	recommendations := make([]Recommendation, 0, len(contradictions))
	for _, c := range contradictions {
		rec := Recommendation{
			ContradictionID: c.ID,
			Action:          recommendationTextFor(c.Severity),
		}
		switch c.Severity {
		case SeverityCritical:
			rec.Priority = "high"
			rec.Timeline = "Immediate (7 days)"
			rec.CostImpact = "Critical – immediate compliance costs"
		case SeverityHigh:
			rec.Priority = "high"
			rec.Timeline = "Short-term (30 days)"
			rec.CostImpact = "High – compliance and harmonization costs"
		case SeverityMedium:
			rec.Priority = "medium"
			rec.Timeline = "Medium-term (90 days)"
			rec.CostImpact = "Medium – review and alignment costs"
		default:
			rec.Priority = "low"
			rec.Timeline = "Long-term (180 days)"
			rec.CostImpact = "Low – monitoring and review costs"
		}
		recommendations = append(recommendations, rec)
	}
	return recommendations
}

func recommendationTextFor(severity string) string {
	switch severity {
	case SeverityCritical:
		return "Resolve immediately: the conflicting provisions expose ongoing compliance risk."
	case SeverityHigh:
		return "Schedule harmonization of the conflicting provisions within the current review cycle."
	case SeverityMedium:
		return "Review both provisions and align interpretive guidance."
	default:
		return "Monitor the provisions for divergence during routine review."
	}
}

func impactFor(severity string) string {
	switch severity {
	case SeverityCritical:
		return "Blocks compliant application of both sources"
	case SeverityHigh:
		return "Creates materially conflicting obligations"
	case SeverityMedium:
		return "Produces interpretive uncertainty"
	default:
		return "Minor divergence with limited practical effect"
	}
}

// countBySeverity tallies contradictions per severity class.
func countBySeverity(contradictions []Contradiction) AnalysisStats {
	stats := AnalysisStats{Total: len(contradictions)}
	for _, c := range contradictions {
		switch c.Severity {
		case SeverityCritical:
			stats.CriticalPriority++
		case SeverityHigh:
			stats.HighPriority++
		case SeverityMedium:
			stats.MediumPriority++
		default:
			stats.LowPriority++
		}
	}
	return stats
}

// summarize produces the one-line analysis summary.
func summarize(query string, contradictions []Contradiction) string {
	if len(contradictions) == 0 {
		return fmt.Sprintf("No contradictions found for %q; consider broadening the query.", query)
	}
	stats := countBySeverity(contradictions)
	return fmt.Sprintf("Found %d contradiction(s) for %q: %d critical, %d high, %d medium, %d low.",
		stats.Total, query, stats.CriticalPriority, stats.HighPriority, stats.MediumPriority, stats.LowPriority)
}
