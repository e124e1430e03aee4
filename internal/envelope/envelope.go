// Package envelope provides the message structure for agent coordination.
//
// Every exchange between the API boundary, the orchestrator, and the
// retrieval agents travels as an Envelope: a conversation-scoped, typed
// message with a TTL and a schema-less payload. Envelopes are immutable
// once constructed; reply construction copies the fields a reply needs
// instead of mutating the original.
//
// Key properties:
// - Unique message identification (UUID) and conversation grouping
// - Closed message-type set: task, result, error, heartbeat
// - TTL-based expiry measured from the creation timestamp
// - JSON payloads whose shape depends on message type and task type
package envelope

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType is the closed set of envelope kinds.
type MessageType string

const (
	MessageTask      MessageType = "task"
	MessageResult    MessageType = "result"
	MessageError     MessageType = "error"
	MessageHeartbeat MessageType = "heartbeat"
)

// Task types carried in TaskPayload.TaskType.
const (
	TaskRetrieve          = "retrieve"
	TaskAssistantWorkflow = "assistant_workflow"
	TaskAnalysisWorkflow  = "analysis_workflow"
)

// SystemSender identifies envelopes synthesized by the router itself.
const SystemSender = "system"

// Envelope wraps one message between agents. Value semantics: components
// receive their own copy and never share mutable envelope state.
type Envelope struct {
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	MessageType    MessageType     `json:"message_type"`
	Sender         string          `json:"sender"`
	Recipient      string          `json:"recipient"`
	Timestamp      time.Time       `json:"timestamp"`
	TTL            int64           `json:"ttl"`
	Payload        json.RawMessage `json:"payload"`
	Metadata       map[string]any  `json:"metadata"`
}

// New creates an envelope with a fresh message id and UTC timestamp.
// The payload is marshaled to JSON at construction so later readers see
// a fixed byte image.
func New(conversationID, sender, recipient string, messageType MessageType, ttlSeconds int64, payload any) (*Envelope, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		MessageID:      uuid.New().String(),
		ConversationID: conversationID,
		MessageType:    messageType,
		Sender:         sender,
		Recipient:      recipient,
		Timestamp:      time.Now().UTC(),
		TTL:            ttlSeconds,
		Payload:        payloadBytes,
		Metadata:       make(map[string]any),
	}, nil
}

// NewReply creates a reply addressed back to the original sender. The reply
// joins the same conversation, inherits the original TTL, and records the
// message it answers in metadata.
func NewReply(original *Envelope, sender string, messageType MessageType, payload any) (*Envelope, error) {
	reply, err := New(original.ConversationID, sender, original.Sender, messageType, original.TTL, payload)
	if err != nil {
		return nil, err
	}
	reply.Metadata["in_reply_to"] = original.MessageID
	return reply, nil
}

// ExpiresAt returns the instant after which the envelope must not be routed.
func (e *Envelope) ExpiresAt() time.Time {
	return e.Timestamp.Add(time.Duration(e.TTL) * time.Second)
}

// IsExpiredAt reports whether the envelope's TTL has elapsed at the given
// instant. A non-positive TTL never expires.
func (e *Envelope) IsExpiredAt(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.ExpiresAt())
}

// IsExpired reports expiry against the wall clock.
func (e *Envelope) IsExpired() bool {
	return e.IsExpiredAt(time.Now())
}

// RemainingTTL returns how long the envelope may still be in flight at the
// given instant, clamped at zero.
func (e *Envelope) RemainingTTL(now time.Time) time.Duration {
	if e.TTL <= 0 {
		return 0
	}
	remaining := e.ExpiresAt().Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// UnmarshalPayload decodes the payload into the provided struct.
func (e *Envelope) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// SetMetadata sets one tracing metadata entry.
func (e *Envelope) SetMetadata(key string, value any) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
}

// Clone creates a deep copy of the envelope.
func (e *Envelope) Clone() *Envelope {
	clone := *e

	if e.Metadata != nil {
		clone.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	if e.Payload != nil {
		clone.Payload = make(json.RawMessage, len(e.Payload))
		copy(clone.Payload, e.Payload)
	}

	return &clone
}

// Validate checks that the envelope carries all required fields.
func (e *Envelope) Validate() error {
	if e.MessageID == "" {
		return &ValidationError{Field: "message_id", Message: "message id is required"}
	}
	if e.ConversationID == "" {
		return &ValidationError{Field: "conversation_id", Message: "conversation id is required"}
	}
	switch e.MessageType {
	case MessageTask, MessageResult, MessageError, MessageHeartbeat:
	default:
		return &ValidationError{Field: "message_type", Message: "unknown message type"}
	}
	if e.Sender == "" {
		return &ValidationError{Field: "sender", Message: "sender agent id is required"}
	}
	if e.Payload == nil {
		return &ValidationError{Field: "payload", Message: "payload is required"}
	}
	return nil
}

// ValidationError reports a missing or malformed envelope field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
