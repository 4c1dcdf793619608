package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lexiqai/realtime-gateway/internal/protocol"
)

func newTestSession() *Session {
	return New(protocol.SessionConfig{
		Modalities: []string{"text"},
		Voice:      "test-voice",
	}, zerolog.Nop())
}

func TestNew_AssignsIDAndDefaults(t *testing.T) {
	s := New(protocol.SessionConfig{}, zerolog.Nop())
	if !strings.HasPrefix(s.ID, "sess_") {
		t.Errorf("Expected sess_ prefix, got %s", s.ID)
	}
	if len(s.Snapshot().Modalities) == 0 {
		t.Error("Expected default modalities")
	}
}

func TestUpdateConfig_PartialUpdate(t *testing.T) {
	s := newTestSession()

	cfg := s.UpdateConfig(protocol.SessionConfig{Instructions: "be brief"})
	if cfg.Instructions != "be brief" {
		t.Errorf("Expected instructions updated, got %q", cfg.Instructions)
	}
	if cfg.Voice != "test-voice" {
		t.Errorf("Zero-valued fields must not clobber config, voice=%q", cfg.Voice)
	}
}

func TestAudioOutput(t *testing.T) {
	s := newTestSession()
	if s.AudioOutput() {
		t.Error("Text-only session should not report audio output")
	}
	s.UpdateConfig(protocol.SessionConfig{Modalities: []string{"text", "audio"}})
	if !s.AudioOutput() {
		t.Error("Expected audio output after modality update")
	}
}

func TestItemLifecycle(t *testing.T) {
	s := newTestSession()

	it := s.AddItem(&Item{
		Type:    "message",
		Role:    "user",
		Content: []protocol.ContentPart{{Type: "input_text", Text: "hello"}},
	})
	if !strings.HasPrefix(it.ID, "item_") {
		t.Errorf("Expected item_ prefix, got %s", it.ID)
	}
	if it.Status != StatusCompleted {
		t.Errorf("Expected default status completed, got %s", it.Status)
	}

	got, err := s.Item(it.ID)
	if err != nil || got.ID != it.ID {
		t.Fatalf("Item lookup failed: %v", err)
	}

	if _, err := s.TruncateItem(it.ID, 0); err != nil {
		t.Fatalf("TruncateItem failed: %v", err)
	}
	got, _ = s.Item(it.ID)
	if len(got.Content) != 0 || got.Status != StatusIncomplete {
		t.Errorf("Expected truncated incomplete item, got %d parts status %s", len(got.Content), got.Status)
	}

	if err := s.DeleteItem(it.ID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	if _, err := s.Item(it.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestTruncateItem_IndexOutOfRange(t *testing.T) {
	s := newTestSession()
	it := s.AddItem(&Item{Type: "message", Role: "user"})
	if _, err := s.TruncateItem(it.ID, 5); err == nil {
		t.Error("Expected error for out-of-range content index")
	}
}

func TestLastUserText(t *testing.T) {
	s := newTestSession()
	if s.LastUserText() != "" {
		t.Error("Expected empty text for empty conversation")
	}

	s.AddItem(&Item{Type: "message", Role: "user",
		Content: []protocol.ContentPart{{Type: "input_text", Text: "first"}}})
	s.AddItem(&Item{Type: "message", Role: "assistant",
		Content: []protocol.ContentPart{{Type: "text", Text: "reply"}}})
	s.AddItem(&Item{Type: "message", Role: "user",
		Content: []protocol.ContentPart{{Type: "input_audio", Transcript: "second"}}})

	if got := s.LastUserText(); got != "second" {
		t.Errorf("Expected transcript of latest user message, got %q", got)
	}
}

func TestCreateResponse_SingleActive(t *testing.T) {
	s := newTestSession()

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	r1, err := s.CreateResponse([]string{"text"}, cancel)
	if err != nil {
		t.Fatalf("CreateResponse failed: %v", err)
	}
	if !strings.HasPrefix(r1.ID, "resp_") {
		t.Errorf("Expected resp_ prefix, got %s", r1.ID)
	}

	if _, err := s.CreateResponse([]string{"text"}, cancel); !errors.Is(err, ErrResponseActive) {
		t.Errorf("Expected ErrResponseActive, got %v", err)
	}

	done := s.FinishResponse(ResponseCompleted, "")
	if done == nil || done.Status != ResponseCompleted {
		t.Fatalf("FinishResponse returned %v", done)
	}

	if _, err := s.CreateResponse([]string{"text"}, cancel); err != nil {
		t.Errorf("Expected create to succeed after finish, got %v", err)
	}
}

func TestCancelActive(t *testing.T) {
	s := newTestSession()

	// Cancel with nothing active is a no-op.
	if r := s.CancelActive(ReasonClientCancelled); r != nil {
		t.Errorf("Expected nil for idle cancel, got %v", r)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r, err := s.CreateResponse([]string{"text"}, cancel)
	if err != nil {
		t.Fatalf("CreateResponse failed: %v", err)
	}

	got := s.CancelActive(ReasonTurnDetected)
	if got == nil || got.ID != r.ID {
		t.Fatalf("Expected active response cancelled, got %v", got)
	}
	if got.StatusReason != ReasonTurnDetected {
		t.Errorf("Expected reason %q, got %q", ReasonTurnDetected, got.StatusReason)
	}
	if ctx.Err() == nil {
		t.Error("Expected streaming context cancelled")
	}

	// Second cancel of the same response is a no-op.
	if r2 := s.CancelActive(ReasonClientCancelled); r2 != nil {
		t.Errorf("Expected second cancel to be a no-op, got %v", r2)
	}
}

func TestResponseWire(t *testing.T) {
	s := newTestSession()
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, _ := s.CreateResponse([]string{"text"}, cancel)
	r.Output = append(r.Output, &Item{ID: "item_x", Type: "message", Role: "assistant"})

	wire := r.Wire()
	if wire.ID != r.ID || len(wire.Output) != 1 || wire.Output[0].ID != "item_x" {
		t.Errorf("Wire conversion lost data: %+v", wire)
	}
}
