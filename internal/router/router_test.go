package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexgraph/lexgraph/internal/envelope"
)

// memTrace records appended envelopes in memory; failing lets tests exercise
// the best-effort append path.
type memTrace struct {
	mu   sync.Mutex
	envs []*envelope.Envelope
	fail bool
}

func (m *memTrace) Append(env *envelope.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.envs = append(m.envs, env)
	return nil
}

func (m *memTrace) contains(messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, env := range m.envs {
		if env.MessageID == messageID {
			return true
		}
	}
	return false
}

func retrieveTask(t *testing.T, recipient string) *envelope.Envelope {
	t.Helper()
	env, err := envelope.New("conv-1", "orchestrator", recipient, envelope.MessageTask, 30,
		envelope.TaskPayload{TaskType: envelope.TaskRetrieve, Query: "q", MaxResults: 5})
	require.NoError(t, err)
	return env
}

func TestExpiredEnvelopeDroppedWithoutHandlerCall(t *testing.T) {
	tr := &memTrace{}
	r := New(tr)

	invoked := false
	r.Register("local_agent", HandlerFunc(func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
		invoked = true
		return nil, nil
	}))

	env := retrieveTask(t, "local_agent")
	env.TTL = 1
	env.Timestamp = time.Now().UTC().Add(-2 * time.Second)

	reply := r.Route(context.Background(), env)

	assert.Nil(t, reply, "expired envelope must produce no reply")
	assert.False(t, invoked, "handler must not run for an expired envelope")
	assert.True(t, tr.contains(env.MessageID), "the trace must still contain the dropped envelope")
}

func TestUnknownRecipientReturnsNothing(t *testing.T) {
	tr := &memTrace{}
	r := New(tr)

	env := retrieveTask(t, "nobody")
	reply := r.Route(context.Background(), env)

	assert.Nil(t, reply)
	assert.True(t, tr.contains(env.MessageID), "envelope is traced before the registry lookup")
}

func TestHandlerReplyIsAppendedAndReturned(t *testing.T) {
	tr := &memTrace{}
	r := New(tr)

	r.Register("local_agent", HandlerFunc(func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
		return envelope.NewReply(env, "local_agent", envelope.MessageResult,
			envelope.NewFailure("local_agent", envelope.TaskRetrieve, "nothing found"))
	}))

	env := retrieveTask(t, "local_agent")
	reply := r.Route(context.Background(), env)

	require.NotNil(t, reply)
	assert.Equal(t, envelope.MessageResult, reply.MessageType)
	assert.True(t, tr.contains(reply.MessageID))

	// Modelled failure passes through untouched, no error synthesis.
	var payload envelope.ResultPayload
	require.NoError(t, reply.UnmarshalPayload(&payload))
	assert.False(t, payload.Success)
	assert.Equal(t, "nothing found", payload.Error)
}

func TestHandlerErrorSynthesizesErrorEnvelope(t *testing.T) {
	tr := &memTrace{}
	r := New(tr)

	r.Register("local_agent", HandlerFunc(func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
		return nil, errors.New("database unreachable")
	}))

	env := retrieveTask(t, "local_agent")
	reply := r.Route(context.Background(), env)

	require.NotNil(t, reply)
	assert.Equal(t, envelope.MessageError, reply.MessageType)
	assert.Equal(t, envelope.SystemSender, reply.Sender)
	assert.Equal(t, env.Sender, reply.Recipient)
	assert.Equal(t, env.ConversationID, reply.ConversationID)
	assert.NotEqual(t, env.MessageID, reply.MessageID)

	var payload envelope.ErrorPayload
	require.NoError(t, reply.UnmarshalPayload(&payload))
	assert.Equal(t, "database unreachable", payload.Error)
	assert.Equal(t, env.MessageID, payload.OriginalMessageID)

	assert.True(t, tr.contains(reply.MessageID), "error envelope must be traced")
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	r := New(&memTrace{})

	r.Register("local_agent", HandlerFunc(func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
		panic("index out of range")
	}))

	env := retrieveTask(t, "local_agent")
	reply := r.Route(context.Background(), env)

	require.NotNil(t, reply)
	assert.Equal(t, envelope.MessageError, reply.MessageType)

	var payload envelope.ErrorPayload
	require.NoError(t, reply.UnmarshalPayload(&payload))
	assert.Contains(t, payload.Error, "index out of range")
}

func TestTraceAppendFailureDoesNotAbortRouting(t *testing.T) {
	tr := &memTrace{fail: true}
	r := New(tr)

	r.Register("local_agent", HandlerFunc(func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
		payload, err := envelope.NewResult("local_agent", envelope.TaskRetrieve, map[string]int{"n": 1})
		if err != nil {
			return nil, err
		}
		return envelope.NewReply(env, "local_agent", envelope.MessageResult, payload)
	}))

	reply := r.Route(context.Background(), retrieveTask(t, "local_agent"))

	require.NotNil(t, reply, "routing must proceed even when the trace append fails")
}

func TestRegisterOverwrites(t *testing.T) {
	r := New(&memTrace{})

	r.Register("local_agent", HandlerFunc(func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
		return nil, errors.New("old handler")
	}))
	r.Register("local_agent", HandlerFunc(func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
		return nil, nil
	}))

	reply := r.Route(context.Background(), retrieveTask(t, "local_agent"))
	assert.Nil(t, reply, "second registration must win")
	assert.True(t, r.Registered("local_agent"))
}

func TestConcurrentRouting(t *testing.T) {
	tr := &memTrace{}
	r := New(tr)

	r.Register("local_agent", HandlerFunc(func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
		payload, err := envelope.NewResult("local_agent", envelope.TaskRetrieve, nil)
		if err != nil {
			return nil, err
		}
		return envelope.NewReply(env, "local_agent", envelope.MessageResult, payload)
	}))

	envs := make([]*envelope.Envelope, 32)
	for i := range envs {
		envs[i] = retrieveTask(t, "local_agent")
	}

	var wg sync.WaitGroup
	for _, env := range envs {
		wg.Add(1)
		go func(env *envelope.Envelope) {
			defer wg.Done()
			assert.NotNil(t, r.Route(context.Background(), env))
		}(env)
	}
	wg.Wait()
}
