// Package router dispatches envelopes to registered agent handlers.
//
// The router is the single dispatch point of the coordination core. It
// enforces TTL expiry, appends every observed envelope to the conversation
// trace, and converts unexpected handler failures into error envelopes.
// Modelled failures (success=false result payloads) pass through untouched;
// the error-envelope path is reserved for returned errors and panics.
package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lexgraph/lexgraph/internal/envelope"
)

// Handler processes one envelope and optionally replies. Handlers must be
// safe for concurrent invocation; the router holds no lock while calling.
type Handler interface {
	Handle(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error)

func (f HandlerFunc) Handle(ctx context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	return f(ctx, env)
}

// Trace is the append-only log the router writes to. Append failures are
// logged and never abort routing.
type Trace interface {
	Append(env *envelope.Envelope) error
}

// Router holds the recipient registry. Registration happens during startup
// wiring; dispatch takes only a read lock to fetch the handler and invokes
// it with no lock held.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	trace Trace
	log   *logrus.Entry
	now   func() time.Time
}

// New creates a router writing to the given trace.
func New(tr Trace) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		trace:    tr,
		log:      logrus.WithField("component", "router"),
		now:      time.Now,
	}
}

// Register installs a handler for an agent id. A second registration for the
// same id overwrites the first.
func (r *Router) Register(agentID string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[agentID] = h
}

// Registered reports whether an agent id has a handler.
func (r *Router) Registered(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[agentID]
	return ok
}

// Route dispatches one envelope and returns the reply, if any. A nil return
// means the envelope expired, the recipient is unknown, or the handler chose
// not to reply; callers treat a missing reply as failure.
func (r *Router) Route(ctx context.Context, env *envelope.Envelope) *envelope.Envelope {
	if env.IsExpiredAt(r.now()) {
		envelopesDropped.Inc()
		r.log.WithFields(logrus.Fields{
			"message_id":   env.MessageID,
			"conversation": env.ConversationID,
			"recipient":    env.Recipient,
		}).Debug("dropping expired envelope")
		r.append(env)
		return nil
	}

	r.append(env)

	r.mu.RLock()
	handler, ok := r.handlers[env.Recipient]
	r.mu.RUnlock()
	if !ok {
		r.log.WithFields(logrus.Fields{
			"message_id": env.MessageID,
			"recipient":  env.Recipient,
		}).Warn("no handler for recipient")
		return nil
	}

	envelopesRouted.Inc()

	reply, err := r.invoke(ctx, handler, env)
	if err != nil {
		return r.errorReply(env, err)
	}
	if reply != nil {
		r.append(reply)
	}
	return reply
}

// invoke calls the handler, converting a panic into an error so one
// misbehaving agent cannot take down the router.
func (r *Router) invoke(ctx context.Context, h Handler, env *envelope.Envelope) (reply *envelope.Envelope, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithFields(logrus.Fields{
				"recipient": env.Recipient,
				"panic":     rec,
			}).Errorf("handler panic:\n%s", debug.Stack())
			reply = nil
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h.Handle(ctx, env)
}

// errorReply synthesizes an error envelope addressed to the failed
// envelope's sender and appends it to the trace.
func (r *Router) errorReply(env *envelope.Envelope, cause error) *envelope.Envelope {
	errorsSynthesized.Inc()
	r.log.WithFields(logrus.Fields{
		"message_id": env.MessageID,
		"recipient":  env.Recipient,
	}).WithError(cause).Error("handler failed")

	payload := envelope.ErrorPayload{
		Error:             cause.Error(),
		OriginalMessageID: env.MessageID,
	}
	reply, err := envelope.New(env.ConversationID, envelope.SystemSender, env.Sender,
		envelope.MessageError, env.TTL, payload)
	if err != nil {
		// Marshaling a flat string payload cannot fail; guard anyway.
		r.log.WithError(err).Error("failed to build error envelope")
		return nil
	}
	reply.SetMetadata("in_reply_to", env.MessageID)
	r.append(reply)
	return reply
}

// append writes to the trace best-effort. Trace durability is operational,
// not a routing correctness concern.
func (r *Router) append(env *envelope.Envelope) {
	if r.trace == nil {
		return
	}
	if err := r.trace.Append(env); err != nil {
		traceAppendFailures.Inc()
		r.log.WithFields(logrus.Fields{
			"message_id":   env.MessageID,
			"conversation": env.ConversationID,
		}).WithError(err).Warn("trace append failed")
	}
}
