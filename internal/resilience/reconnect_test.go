package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastReconnectConfig(attempts int) *ReconnectConfig {
	return &ReconnectConfig{
		MaxAttempts: attempts,
		Backoff:     time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestReconnectSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Reconnect(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("websocket: close 1006 (abnormal closure)")
		}
		return nil
	}, fastReconnectConfig(5))

	if err != nil {
		t.Fatalf("Reconnect() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestReconnectGivesUpWithLastError(t *testing.T) {
	connErr := errors.New("dial tcp: connection refused")
	calls := 0
	err := Reconnect(context.Background(), func() error {
		calls++
		return connErr
	}, fastReconnectConfig(3))

	if !errors.Is(err, connErr) {
		t.Fatalf("Reconnect() = %v, want wrapped %v", err, connErr)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestReconnectStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &ReconnectConfig{
		MaxAttempts: 10,
		Backoff:     time.Hour,
		Multiplier:  2.0,
		MaxBackoff:  time.Hour,
	}

	done := make(chan error, 1)
	go func() {
		done <- Reconnect(ctx, func() error {
			return errors.New("dial tcp: connection refused")
		}, cfg)
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Reconnect() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Reconnect did not return after context cancel")
	}
}
