// Package api is the HTTP boundary adapter. It translates external requests
// into task envelopes addressed to the orchestrator, routes them, and
// unwraps the reply. No business logic lives here: bodies are validated
// against JSON schemas, defaults are filled, and everything else is the
// orchestrator's problem.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/lexgraph/lexgraph/internal/conversation"
	"github.com/lexgraph/lexgraph/internal/envelope"
	"github.com/lexgraph/lexgraph/internal/orchestrator"
	"github.com/lexgraph/lexgraph/internal/retrieval"
)

// Dispatcher routes a task envelope; satisfied by *router.Router.
type Dispatcher interface {
	Route(ctx context.Context, env *envelope.Envelope) *envelope.Envelope
}

// TraceReader replays a conversation; satisfied by *trace.Store.
type TraceReader interface {
	ByConversation(conversationID string) ([]*envelope.Envelope, error)
}

// Options configures the adapter.
type Options struct {
	// TaskTTLSeconds is the TTL stamped on synthesized task envelopes.
	TaskTTLSeconds int64
	// DefaultMaxResults fills absent max_results on assistant requests.
	DefaultMaxResults int
}

// Server adapts HTTP to the envelope bus.
type Server struct {
	dispatch      Dispatcher
	traces        TraceReader
	conversations *conversation.Manager
	opts          Options
	log           *logrus.Entry

	assistantSchema *gojsonschema.Schema
	analysisSchema  *gojsonschema.Schema
}

// NewServer builds the adapter. Compiling the request schemas is the only
// way this can fail.
func NewServer(dispatch Dispatcher, traces TraceReader, conversations *conversation.Manager, opts Options) (*Server, error) {
	if opts.TaskTTLSeconds <= 0 {
		opts.TaskTTLSeconds = 30
	}
	if opts.DefaultMaxResults <= 0 {
		opts.DefaultMaxResults = 10
	}

	assistantSchema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(assistantRequestSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile assistant schema: %w", err)
	}
	analysisSchema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(analysisRequestSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile analysis schema: %w", err)
	}

	return &Server{
		dispatch:        dispatch,
		traces:          traces,
		conversations:   conversations,
		opts:            opts,
		log:             logrus.WithField("component", "api"),
		assistantSchema: assistantSchema,
		analysisSchema:  analysisSchema,
	}, nil
}

// Handler returns the HTTP mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/assistant", s.handleAssistant)
	mux.HandleFunc("POST /v1/analysis", s.handleAnalysis)
	mux.HandleFunc("GET /v1/conversation/{id}", s.handleConversation)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// assistantRequest mirrors the external assistant dispatch input.
type assistantRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	MaxResults     int    `json:"max_results"`
	Strategy       string `json:"strategy"`
}

// analysisRequest mirrors the external analysis dispatch input.
type analysisRequest struct {
	Query        string `json:"query"`
	AnalysisType string `json:"analysis_type"`
	MaxDepth     int    `json:"max_depth"`
}

// taskResponse is the uniform reply body: a well-formed JSON object in every
// failure mode, with a displayable error string when success is false.
type taskResponse struct {
	ConversationID string          `json:"conversation_id"`
	Success        bool            `json:"success"`
	Error          string          `json:"error,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	body, ok := s.validate(w, r, s.assistantSchema)
	if !ok {
		return
	}

	var req assistantRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.MaxResults == 0 {
		req.MaxResults = s.opts.DefaultMaxResults
	}
	if req.Strategy == "" {
		req.Strategy = retrieval.StrategyHybrid
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = s.conversations.NewConversationID()
	}

	s.dispatchTask(r.Context(), w, conversationID, envelope.TaskPayload{
		TaskType:   envelope.TaskAssistantWorkflow,
		Query:      req.Message,
		Strategy:   req.Strategy,
		MaxResults: req.MaxResults,
	})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	body, ok := s.validate(w, r, s.analysisSchema)
	if !ok {
		return
	}

	var req analysisRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.AnalysisType == "" {
		req.AnalysisType = "contradiction"
	}
	if req.MaxDepth == 0 {
		req.MaxDepth = 3
	}

	s.dispatchTask(r.Context(), w, s.conversations.NewConversationID(), envelope.TaskPayload{
		TaskType:     envelope.TaskAnalysisWorkflow,
		Query:        req.Query,
		AnalysisType: req.AnalysisType,
		MaxDepth:     req.MaxDepth,
	})
}

// dispatchTask wraps the task in an envelope, routes it, and unwraps the
// reply into the uniform response body.
func (s *Server) dispatchTask(ctx context.Context, w http.ResponseWriter, conversationID string, task envelope.TaskPayload) {
	env, err := envelope.New(conversationID, "api", orchestrator.ID, envelope.MessageTask, s.opts.TaskTTLSeconds, task)
	if err != nil {
		s.log.WithError(err).Error("failed to build task envelope")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	reply := s.dispatch.Route(ctx, env)
	if reply == nil {
		writeJSON(w, http.StatusOK, taskResponse{
			ConversationID: conversationID,
			Success:        false,
			Error:          "no reply from orchestrator",
		})
		return
	}

	var payload envelope.ResultPayload
	if err := reply.UnmarshalPayload(&payload); err != nil {
		s.log.WithError(err).Error("malformed orchestrator reply")
		writeJSON(w, http.StatusOK, taskResponse{
			ConversationID: conversationID,
			Success:        false,
			Error:          "malformed reply",
		})
		return
	}

	writeJSON(w, http.StatusOK, taskResponse{
		ConversationID: conversationID,
		Success:        payload.Success,
		Error:          payload.Error,
		Result:         payload.Result,
	})
}

// conversationResponse is the trace retrieval body.
type conversationResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []json.RawMessage `json:"messages"`
	Metadata       struct {
		TotalMessages int `json:"total_messages"`
	} `json:"metadata"`
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	envelopes, err := s.traces.ByConversation(conversationID)
	if err != nil {
		s.log.WithError(err).Error("trace read failed")
		writeError(w, http.StatusInternalServerError, "trace read failed")
		return
	}

	resp := conversationResponse{
		ConversationID: conversationID,
		Messages:       make([]json.RawMessage, 0, len(envelopes)),
	}
	for _, env := range envelopes {
		encoded, err := envelope.Encode(env)
		if err != nil {
			s.log.WithError(err).Warn("skipping unencodable trace entry")
			continue
		}
		resp.Messages = append(resp.Messages, encoded)
	}
	resp.Metadata.TotalMessages = len(resp.Messages)

	writeJSON(w, http.StatusOK, resp)
}

// validate reads the body and checks it against the schema, writing a 400
// with the validation errors on failure.
func (s *Server) validate(w http.ResponseWriter, r *http.Request, schema *gojsonschema.Schema) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return nil, false
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "invalid request",
			"details": errs,
		})
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
