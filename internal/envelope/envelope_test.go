package envelope

import (
	"bytes"
	"testing"
	"time"
)

func TestNewFillsDefaults(t *testing.T) {
	env, err := New("conv-1", "api", "orchestrator", MessageTask, 30, map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if env.MessageID == "" {
		t.Error("expected generated message id")
	}
	if env.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if env.Timestamp.Location() != time.UTC {
		t.Errorf("expected UTC timestamp, got %v", env.Timestamp.Location())
	}
	if env.Metadata == nil {
		t.Error("expected metadata map to be initialized")
	}
	if err := env.Validate(); err != nil {
		t.Errorf("fresh envelope should validate: %v", err)
	}
}

func TestNewReplyAddressesOriginalSender(t *testing.T) {
	original, _ := New("conv-1", "api", "orchestrator", MessageTask, 30, nil)

	reply, err := NewReply(original, "orchestrator", MessageResult, map[string]bool{"success": true})
	if err != nil {
		t.Fatalf("NewReply failed: %v", err)
	}

	if reply.Recipient != "api" {
		t.Errorf("expected reply recipient api, got %s", reply.Recipient)
	}
	if reply.ConversationID != original.ConversationID {
		t.Error("reply must join the original conversation")
	}
	if reply.MessageID == original.MessageID {
		t.Error("reply must carry a fresh message id")
	}
	if reply.Metadata["in_reply_to"] != original.MessageID {
		t.Error("reply must reference the original message id")
	}
}

func TestExpiryIsStrict(t *testing.T) {
	env, _ := New("conv-1", "api", "orchestrator", MessageTask, 1, nil)

	if env.IsExpiredAt(env.Timestamp) {
		t.Error("envelope must not be expired at creation")
	}
	if env.IsExpiredAt(env.Timestamp.Add(time.Second)) {
		t.Error("envelope must not be expired exactly at the expiry instant")
	}
	if !env.IsExpiredAt(env.Timestamp.Add(2 * time.Second)) {
		t.Error("envelope must be expired after ttl elapsed")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	env, _ := New("conv-1", "api", "orchestrator", MessageHeartbeat, 0, nil)
	if env.IsExpiredAt(env.Timestamp.Add(24 * time.Hour)) {
		t.Error("zero ttl must never expire")
	}
}

func TestRemainingTTLClampsAtZero(t *testing.T) {
	env, _ := New("conv-1", "api", "orchestrator", MessageTask, 10, nil)

	if got := env.RemainingTTL(env.Timestamp.Add(4 * time.Second)); got != 6*time.Second {
		t.Errorf("expected 6s remaining, got %v", got)
	}
	if got := env.RemainingTTL(env.Timestamp.Add(time.Minute)); got != 0 {
		t.Errorf("expected clamped zero, got %v", got)
	}
}

func TestValidateRejectsUnknownMessageType(t *testing.T) {
	env, _ := New("conv-1", "api", "orchestrator", MessageType("broadcast"), 30, nil)
	if err := env.Validate(); err == nil {
		t.Error("expected validation failure for unknown message type")
	}
}

func TestCloneIsDeep(t *testing.T) {
	env, _ := New("conv-1", "api", "orchestrator", MessageTask, 30, map[string]string{"k": "v"})
	env.SetMetadata("trace", "abc")

	clone := env.Clone()
	clone.SetMetadata("trace", "mutated")
	clone.Payload[0] = '['

	if env.Metadata["trace"] != "abc" {
		t.Error("clone metadata mutation leaked into original")
	}
	if env.Payload[0] == '[' {
		t.Error("clone payload mutation leaked into original")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env, err := New("conv-7", "api", "orchestrator", MessageTask, 45,
		TaskPayload{TaskType: TaskAssistantWorkflow, Query: "notice periods", Strategy: "hybrid", MaxResults: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	env.SetMetadata("origin", "test")

	encoded, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.MessageID != env.MessageID ||
		decoded.ConversationID != env.ConversationID ||
		decoded.MessageType != env.MessageType ||
		decoded.Sender != env.Sender ||
		decoded.Recipient != env.Recipient ||
		decoded.TTL != env.TTL {
		t.Errorf("decoded envelope differs: %+v vs %+v", decoded, env)
	}
	if !decoded.Timestamp.Equal(env.Timestamp) {
		t.Errorf("timestamp not preserved: %v vs %v", decoded.Timestamp, env.Timestamp)
	}
	if !bytes.Equal(decoded.Payload, env.Payload) {
		t.Error("payload bytes not preserved")
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	env, _ := New("conv-1", "api", "orchestrator", MessageTask, 30,
		TaskPayload{TaskType: TaskRetrieve, Query: "q", MaxResults: 3})

	first, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	second, _ := Encode(env)
	if !bytes.Equal(first, second) {
		t.Error("encoding the same envelope twice must yield identical bytes")
	}
}

func TestEncodeEmptyRecipientAsNull(t *testing.T) {
	env, _ := New("conv-1", "api", "", MessageHeartbeat, 30, nil)

	encoded, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Contains(encoded, []byte(`"recipient":null`)) {
		t.Errorf("expected null recipient in wire form, got %s", encoded)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Recipient != "" {
		t.Errorf("expected empty recipient after decode, got %q", decoded.Recipient)
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed bytes")
	}
	if _, err := Decode([]byte(`{"message_id":""}`)); err == nil {
		t.Error("expected error for envelope missing required fields")
	}
}

func TestResultPayloadRoundTrip(t *testing.T) {
	payload, err := NewResult("local_agent", TaskRetrieve, map[string]int{"nodes": 3})
	if err != nil {
		t.Fatalf("NewResult failed: %v", err)
	}
	if !payload.Success {
		t.Error("NewResult must mark success")
	}

	var result map[string]int
	if err := payload.UnmarshalResult(&result); err != nil {
		t.Fatalf("UnmarshalResult failed: %v", err)
	}
	if result["nodes"] != 3 {
		t.Errorf("expected nodes=3, got %d", result["nodes"])
	}

	failure := NewFailure("local_agent", TaskRetrieve, "boom")
	if failure.Success || failure.Error != "boom" {
		t.Errorf("unexpected failure payload: %+v", failure)
	}
}
