package speech

import (
	"sync"
	"time"
)

// Status of a provider connection handle.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusActive
	StatusClosing
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusActive:
		return "active"
	case StatusClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

// Handle tracks per-session connection state to the recognition provider.
type Handle struct {
	mu                sync.RWMutex
	status            Status
	providerSessionID string
	expiresAt         time.Time
	lastActivity      time.Time
}

// SetStatus transitions the handle.
func (h *Handle) SetStatus(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = s
}

// Status returns the current connection status.
func (h *Handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// SetConnection records the provider-assigned session and its expiry.
func (h *Handle) SetConnection(c Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.providerSessionID = c.ProviderSessionID
	h.expiresAt = c.ExpiresAt
	h.status = StatusConnected
}

// Touch records activity, resetting the inactivity clock.
func (h *Handle) Touch() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActivity = time.Now()
}

// LastActivity returns the time of the most recent send or receive.
func (h *Handle) LastActivity() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastActivity
}

// Expired reports whether the provider-declared session has expired.
func (h *Handle) Expired() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.expiresAt.IsZero() && time.Now().After(h.expiresAt)
}

// Table maps session ids to speech sessions so inactive ones can be
// evicted by their owner.
type Table struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewTable creates an empty handle table.
func NewTable() *Table {
	return &Table{sessions: make(map[string]*Session)}
}

// Put registers a speech session under its owning session id.
func (t *Table) Put(id string, s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[id] = s
}

// Get returns the speech session for a session id.
func (t *Table) Get(id string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	return s, ok
}

// Evict removes a session from the table. Idempotent.
func (t *Table) Evict(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

// Len returns the number of registered speech sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
