package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireEnvelope is the persisted form. Field order is fixed by struct order,
// the timestamp is normalized to UTC, and an absent recipient serializes as
// null rather than the empty string.
type wireEnvelope struct {
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	MessageType    MessageType     `json:"message_type"`
	Sender         string          `json:"sender"`
	Recipient      *string         `json:"recipient"`
	Timestamp      time.Time       `json:"timestamp"`
	TTL            int64           `json:"ttl"`
	Payload        json.RawMessage `json:"payload"`
	Metadata       map[string]any  `json:"metadata"`
}

// Encode serializes the envelope to its stable wire form. Encoding the same
// envelope twice yields identical bytes, which is what makes trace replay and
// idempotent appends byte-exact.
func Encode(e *Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	w := wireEnvelope{
		MessageID:      e.MessageID,
		ConversationID: e.ConversationID,
		MessageType:    e.MessageType,
		Sender:         e.Sender,
		Timestamp:      e.Timestamp.UTC(),
		TTL:            e.TTL,
		Payload:        e.Payload,
		Metadata:       e.Metadata,
	}
	if e.Recipient != "" {
		recipient := e.Recipient
		w.Recipient = &recipient
	}

	return json.Marshal(w)
}

// Decode deserializes an envelope from its wire form.
func Decode(data []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}

	e := &Envelope{
		MessageID:      w.MessageID,
		ConversationID: w.ConversationID,
		MessageType:    w.MessageType,
		Sender:         w.Sender,
		Timestamp:      w.Timestamp.UTC(),
		TTL:            w.TTL,
		Payload:        w.Payload,
		Metadata:       w.Metadata,
	}
	if w.Recipient != nil {
		e.Recipient = *w.Recipient
	}

	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	return e, nil
}
