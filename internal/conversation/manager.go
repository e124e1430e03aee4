// Package conversation tracks the lifetime of logical exchanges. A
// conversation exists from the first task envelope that names it until its
// TTL lapses and the sweeper reaps it.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Manager maps conversation ids to expiry instants. Touch and Sweep share
// one mutex; both are off the routing hot path.
type Manager struct {
	mu       sync.Mutex
	expiries map[string]time.Time

	log *logrus.Entry
	now func() time.Time
}

// NewManager creates an empty conversation manager.
func NewManager() *Manager {
	return &Manager{
		expiries: make(map[string]time.Time),
		log:      logrus.WithField("component", "conversation"),
		now:      time.Now,
	}
}

// NewConversationID generates a fresh opaque conversation id.
func (m *Manager) NewConversationID() string {
	return "conv_" + uuid.New().String()
}

// Touch extends a conversation to now + ttl. An unknown id is created; a
// known one is only extended, never shortened.
func (m *Manager) Touch(id string, ttl time.Duration) {
	expiry := m.now().Add(ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.expiries[id]; ok && current.After(expiry) {
		return
	}
	m.expiries[id] = expiry
}

// ExpiresAt returns a conversation's expiry instant.
func (m *Manager) ExpiresAt(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, ok := m.expiries[id]
	return expiry, ok
}

// Active returns the number of live conversations.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.expiries)
}

// Sweep removes every conversation whose expiry has passed and returns the
// reaped ids.
func (m *Manager) Sweep() []string {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var reaped []string
	for id, expiry := range m.expiries {
		if now.After(expiry) {
			delete(m.expiries, id)
			reaped = append(reaped, id)
		}
	}
	return reaped
}

// Run sweeps periodically until the context is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reaped := m.Sweep(); len(reaped) > 0 {
				m.log.WithField("count", len(reaped)).Info("reaped expired conversations")
			}
		}
	}
}
