package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		return nil
	}, fastRetryConfig(3), nil)

	if err != nil {
		t.Fatalf("Retry() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryRecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		if calls < 3 {
			return errors.New("read tcp: connection reset by peer")
		}
		return nil
	}, fastRetryConfig(5), IsRetryableNetworkError)

	if err != nil {
		t.Fatalf("Retry() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	wantErr := errors.New("completion service returned status 400")
	calls := 0
	err := Retry(func() error {
		calls++
		return wantErr
	}, fastRetryConfig(5), IsRetryableNetworkError)

	if !errors.Is(err, wantErr) {
		t.Fatalf("Retry() = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (non-retryable must not be retried)", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	wantErr := errors.New("dial tcp 127.0.0.1:9000: connection refused")
	calls := 0
	err := Retry(func() error {
		calls++
		return wantErr
	}, fastRetryConfig(3), IsRetryableNetworkError)

	if !errors.Is(err, wantErr) {
		t.Fatalf("Retry() = %v, want last error %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestBackoffForGrowsAndCaps(t *testing.T) {
	cfg := &RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        500 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}
	for i, w := range want {
		if got := backoffFor(i+1, cfg); got != w {
			t.Errorf("backoffFor(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoffForJitterStaysBounded(t *testing.T) {
	cfg := &RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}

	for i := 0; i < 50; i++ {
		got := backoffFor(1, cfg)
		if got < 100*time.Millisecond || got >= 125*time.Millisecond {
			t.Fatalf("backoffFor(1) = %v, want in [100ms, 125ms)", got)
		}
	}
}

func TestIsRetryableNetworkError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{
			"connection refused wrapped",
			fmt.Errorf("completion call failed: %w", errors.New("dial tcp 127.0.0.1:8081: connect: connection refused")),
			true,
		},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"deadline exceeded", errors.New("context deadline exceeded"), true},
		{"client timeout", errors.New("Client.Timeout exceeded while awaiting headers"), true},
		{"service unavailable", errors.New("synthesis service returned status 503: Service Unavailable"), true},
		{"rate limited", errors.New("rate limit exceeded, slow down"), true},
		{"bad request", errors.New("completion service returned status 400"), false},
		{"unauthorized", errors.New("invalid credentials"), false},
		{"malformed payload", errors.New("invalid character '}' looking for beginning of value"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableNetworkError(tt.err); got != tt.want {
				t.Errorf("IsRetryableNetworkError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
