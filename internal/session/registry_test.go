package session

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/lexiqai/realtime-gateway/internal/protocol"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	s := New(protocol.SessionConfig{}, zerolog.Nop())

	r.Add(s)
	if got, ok := r.Get(s.ID); !ok || got != s {
		t.Fatal("Expected registered session back")
	}
	if r.Len() != 1 {
		t.Errorf("Expected len 1, got %d", r.Len())
	}

	if !r.Remove(s.ID) {
		t.Error("Expected first remove to report true")
	}
	if r.Remove(s.ID) {
		t.Error("Expected second remove to report false")
	}
	if _, ok := r.Get(s.ID); ok {
		t.Error("Expected session gone after remove")
	}
}
