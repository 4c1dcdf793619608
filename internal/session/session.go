// Package session holds the per-connection conversation state: the ordered
// item list, the in-progress response, session configuration, and the
// interaction queue that serializes detected turns.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/realtime-gateway/internal/protocol"
)

// Item status values.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusIncomplete = "incomplete"
)

// Response status values.
const (
	ResponseInProgress = "in_progress"
	ResponseCompleted  = "completed"
	ResponseCancelled  = "cancelled"
	ResponseFailed     = "failed"
)

// Cancellation reasons carried on response.done.
const (
	ReasonTurnDetected    = "turn_detected"
	ReasonClientCancelled = "client_cancelled"
	ReasonContinuous      = "handled by continuous processing"
)

// ErrResponseActive is returned when a response is created while another is
// still in progress.
var ErrResponseActive = fmt.Errorf("a response is already in progress")

// ErrNotFound is returned for operations on unknown item ids.
var ErrNotFound = fmt.Errorf("item not found")

// Item is one conversation entry: a message, a function call, or a
// function-call output. Content is append-only once the item completes.
type Item struct {
	ID        string
	Type      string // "message", "function_call", "function_call_output"
	Role      string // "user", "assistant", "system"
	Status    string
	Content   []protocol.ContentPart
	CallID    string
	Name      string
	Arguments string
	Output    string
}

// Wire converts the item to its protocol form.
func (it *Item) Wire() protocol.Item {
	content := make([]protocol.ContentPart, len(it.Content))
	copy(content, it.Content)
	return protocol.Item{
		ID:        it.ID,
		Type:      it.Type,
		Role:      it.Role,
		Status:    it.Status,
		Content:   content,
		CallID:    it.CallID,
		Name:      it.Name,
		Arguments: it.Arguments,
		Output:    it.Output,
	}
}

// Response is the at-most-one in-progress response of a session.
type Response struct {
	ID           string
	Status       string
	StatusReason string
	Modalities   []string
	Output       []*Item

	cancel    context.CancelFunc
	cancelled bool
}

// Wire converts the response to its protocol form.
func (r *Response) Wire() protocol.Response {
	output := make([]protocol.Item, 0, len(r.Output))
	for _, it := range r.Output {
		output = append(output, it.Wire())
	}
	return protocol.Response{
		ID:           r.ID,
		Status:       r.Status,
		StatusReason: r.StatusReason,
		Output:       output,
		Modalities:   r.Modalities,
	}
}

// Session owns one conversation for the lifetime of its connection.
type Session struct {
	ID     string
	Config protocol.SessionConfig

	mu       sync.RWMutex
	items    []*Item
	active   *Response
	queue    *InteractionQueue
	logger   zerolog.Logger
	cancelFn context.CancelFunc
}

// New creates a session with the given defaults.
func New(cfg protocol.SessionConfig, logger zerolog.Logger) *Session {
	id := "sess_" + uuid.New().String()
	if len(cfg.Modalities) == 0 {
		cfg.Modalities = []string{"text", "audio"}
	}
	return &Session{
		ID:     id,
		Config: cfg,
		queue:  NewInteractionQueue(id),
		logger: logger.With().Str("session_id", id).Logger(),
	}
}

// Logger returns the session-scoped logger.
func (s *Session) Logger() zerolog.Logger { return s.logger }

// Queue returns the session's interaction queue.
func (s *Session) Queue() *InteractionQueue { return s.queue }

// UpdateConfig applies a client session.update. Zero-valued fields leave
// the existing configuration untouched.
func (s *Session) UpdateConfig(cfg protocol.SessionConfig) protocol.SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(cfg.Modalities) > 0 {
		s.Config.Modalities = cfg.Modalities
	}
	if cfg.Voice != "" {
		s.Config.Voice = cfg.Voice
	}
	if cfg.Model != "" {
		s.Config.Model = cfg.Model
	}
	if cfg.Eagerness != "" {
		s.Config.Eagerness = cfg.Eagerness
	}
	if cfg.TurnDetection != "" {
		s.Config.TurnDetection = cfg.TurnDetection
	}
	if cfg.Instructions != "" {
		s.Config.Instructions = cfg.Instructions
	}
	if cfg.Tools != nil {
		s.Config.Tools = cfg.Tools
	}
	return s.Config
}

// Snapshot returns the current configuration.
func (s *Session) Snapshot() protocol.SessionConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Config
}

// AudioOutput reports whether the output modality set includes audio.
func (s *Session) AudioOutput() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.Config.Modalities {
		if m == "audio" {
			return true
		}
	}
	return false
}

// AddItem appends an item to the conversation, assigning an id when absent.
func (s *Session) AddItem(it *Item) *Item {
	if it.ID == "" {
		it.ID = "item_" + uuid.New().String()
	}
	if it.Status == "" {
		it.Status = StatusCompleted
	}

	s.mu.Lock()
	s.items = append(s.items, it)
	s.mu.Unlock()
	return it
}

// Item returns the item with the given id.
func (s *Session) Item(id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.ID == id {
			return it, nil
		}
	}
	return nil, ErrNotFound
}

// Items returns the conversation in order.
func (s *Session) Items() []*Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Item, len(s.items))
	copy(out, s.items)
	return out
}

// TruncateItem drops content parts at and after the given index. Truncation
// is an explicit client request and so is allowed on completed items.
func (s *Session) TruncateItem(id string, contentIndex int) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID != id {
			continue
		}
		if contentIndex < 0 || contentIndex > len(it.Content) {
			return nil, fmt.Errorf("content index %d out of range", contentIndex)
		}
		it.Content = it.Content[:contentIndex]
		it.Status = StatusIncomplete
		return it, nil
	}
	return nil, ErrNotFound
}

// DeleteItem removes the item with the given id.
func (s *Session) DeleteItem(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.items {
		if it.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// LastUserText returns the text of the most recent completed user message,
// or an empty string when none exists.
func (s *Session) LastUserText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.items) - 1; i >= 0; i-- {
		it := s.items[i]
		if it.Type != "message" || it.Role != "user" {
			continue
		}
		for _, part := range it.Content {
			if part.Text != "" {
				return part.Text
			}
			if part.Transcript != "" {
				return part.Transcript
			}
		}
	}
	return ""
}

// CreateResponse installs a new in-progress response. Exactly one response
// may be in progress per session; a second create fails with
// ErrResponseActive until the first is completed or cancelled.
func (s *Session) CreateResponse(modalities []string, cancel context.CancelFunc) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, ErrResponseActive
	}

	r := &Response{
		ID:         "resp_" + uuid.New().String(),
		Status:     ResponseInProgress,
		Modalities: modalities,
		cancel:     cancel,
	}
	s.active = r
	return r, nil
}

// ActiveResponse returns the in-progress response, if any.
func (s *Session) ActiveResponse() *Response {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// FinishResponse marks the active response with a terminal status and
// clears the active pointer.
func (s *Session) FinishResponse(status, reason string) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.active
	if r == nil {
		return nil
	}
	r.Status = status
	r.StatusReason = reason
	s.active = nil
	return r
}

// CancelActive cancels the in-progress response exactly once, aborting its
// streaming context. Returns the response, or nil when there was nothing to
// cancel (a no-op per the protocol contract).
func (s *Session) CancelActive(reason string) *Response {
	s.mu.Lock()
	r := s.active
	if r == nil || r.cancelled {
		s.mu.Unlock()
		return nil
	}
	r.cancelled = true
	r.StatusReason = reason
	cancel := r.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return r
}
