package orchestrator

import "github.com/lexgraph/lexgraph/internal/retrieval"

// AssistantMetadata describes how an assistant answer was produced.
// Synthesis is "llm" normally and "fallback" when the synthesizer failed and
// the apologetic substitute text was used.
type AssistantMetadata struct {
	Strategy   string   `json:"strategy"`
	Coverage   float64  `json:"coverage"`
	Confidence float64  `json:"confidence"`
	AgentsUsed []string `json:"agents_used"`
	Synthesis  string   `json:"synthesis,omitempty"`
}

// AssistantResult is the payload of a successful assistant_workflow reply.
type AssistantResult struct {
	ResponseText   string               `json:"response_text"`
	ConversationID string               `json:"conversation_id"`
	Citations      []retrieval.Citation `json:"citations"`
	Nodes          []retrieval.Node     `json:"nodes"`
	Edges          []retrieval.Edge     `json:"edges"`
	Metadata       AssistantMetadata    `json:"metadata"`
}

// Contradiction severities, ordered from most to least urgent.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Contradiction is one conflicting pair of legal sources.
type Contradiction struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Severity       string   `json:"severity"`
	Priority       string   `json:"priority"`
	Category       string   `json:"category"`
	Sources        []string `json:"sources"`
	Impact         string   `json:"impact"`
	Recommendation string   `json:"recommendation"`
}

// Harmonization proposes how to reconcile one contradiction.
type Harmonization struct {
	ContradictionID string   `json:"contradiction_id"`
	Approach        string   `json:"approach"`
	Description     string   `json:"description"`
	Steps           []string `json:"steps"`
}

// Recommendation is one prioritized action derived from a contradiction.
type Recommendation struct {
	ContradictionID string `json:"contradiction_id"`
	Priority        string `json:"priority"`
	Timeline        string `json:"timeline"`
	CostImpact      string `json:"cost_impact"`
	Action          string `json:"action"`
}

// AnalysisStats counts contradictions by severity.
type AnalysisStats struct {
	Total            int `json:"total"`
	CriticalPriority int `json:"critical_priority"`
	HighPriority     int `json:"high_priority"`
	MediumPriority   int `json:"medium_priority"`
	LowPriority      int `json:"low_priority"`
}

// AnalysisResult is the payload of a successful analysis_workflow reply.
type AnalysisResult struct {
	Query           string               `json:"query"`
	Contradictions  []Contradiction      `json:"contradictions"`
	Recommendations []Recommendation     `json:"recommendations"`
	Summary         string               `json:"summary"`
	Confidence      float64              `json:"confidence"`
	Stats           AnalysisStats        `json:"stats"`
	Harmonizations  []Harmonization      `json:"harmonizations"`
	Citations       []retrieval.Citation `json:"citations"`
}
