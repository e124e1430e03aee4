package envelope

import "encoding/json"

// TaskPayload is the payload of a task envelope. TaskType selects which of
// the optional fields are meaningful:
//
//	retrieve:           Query, MaxResults
//	assistant_workflow: Query, Strategy, MaxResults
//	analysis_workflow:  Query, AnalysisType, MaxDepth
type TaskPayload struct {
	TaskType     string `json:"task_type"`
	Query        string `json:"query"`
	MaxResults   int    `json:"max_results,omitempty"`
	Strategy     string `json:"strategy,omitempty"`
	AnalysisType string `json:"analysis_type,omitempty"`
	MaxDepth     int    `json:"max_depth,omitempty"`
}

// ResultPayload is the payload of a result envelope. Modelled failures set
// Success=false and Error; they are ordinary results, not router errors.
type ResultPayload struct {
	Success      bool            `json:"success"`
	Error        string          `json:"error,omitempty"`
	OriginalTask string          `json:"original_task,omitempty"`
	AgentID      string          `json:"agent_id,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
}

// UnmarshalResult decodes the typed result value carried by a successful
// payload.
func (p *ResultPayload) UnmarshalResult(v any) error {
	return json.Unmarshal(p.Result, v)
}

// ErrorPayload is the payload of a router-synthesized error envelope,
// produced only for unexpected handler failures.
type ErrorPayload struct {
	Error             string `json:"error"`
	OriginalMessageID string `json:"original_message_id"`
}

// HeartbeatPayload is the reply to a heartbeat envelope.
type HeartbeatPayload struct {
	Status  string `json:"status"`
	AgentID string `json:"agent_id"`
}

// NewResult builds a successful result payload around an already-typed
// result value.
func NewResult(agentID, originalTask string, result any) (*ResultPayload, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &ResultPayload{
		Success:      true,
		OriginalTask: originalTask,
		AgentID:      agentID,
		Result:       resultBytes,
	}, nil
}

// NewFailure builds a modelled-failure result payload.
func NewFailure(agentID, originalTask, errMsg string) *ResultPayload {
	return &ResultPayload{
		Success:      false,
		Error:        errMsg,
		OriginalTask: originalTask,
		AgentID:      agentID,
	}
}
