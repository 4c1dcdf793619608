// Package resilience wraps the gateway's downstream calls (completion,
// synthesis, speech recognition) with retry, circuit-breaker, and
// reconnect policies. All three are plain synchronous helpers; the callers
// own their goroutines and contexts.
package resilience

import (
	"math/rand"
	"strings"
	"time"
)

// RetryConfig bounds the retry loop wrapped around one downstream call.
type RetryConfig struct {
	MaxAttempts       int           // total attempts, the first included
	InitialBackoff    time.Duration // sleep after the first failure
	MaxBackoff        time.Duration // ceiling for the grown backoff
	BackoffMultiplier float64       // growth factor per attempt
	Jitter            bool          // spread concurrent retries by up to 25%
}

// DefaultRetryConfig suits the short control-plane round trips to the
// completion and synthesis services.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Retry runs fn up to cfg.MaxAttempts times, sleeping between attempts.
// A nil retryable predicate retries every failure; otherwise the first
// error the predicate rejects is returned unchanged. The last error is
// returned when all attempts fail.
func Retry(fn func() error, cfg *RetryConfig, retryable func(error) bool) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt < cfg.MaxAttempts {
			time.Sleep(backoffFor(attempt, cfg))
		}
	}
	return err
}

// backoffFor returns the sleep after the given failed attempt, 1-based.
func backoffFor(attempt int, cfg *RetryConfig) time.Duration {
	d := cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * cfg.BackoffMultiplier)
		if d >= cfg.MaxBackoff {
			d = cfg.MaxBackoff
			break
		}
	}
	if cfg.Jitter {
		if quarter := int64(d) / 4; quarter > 0 {
			d += time.Duration(rand.Int63n(quarter))
		}
	}
	if d > cfg.MaxBackoff {
		d = cfg.MaxBackoff
	}
	return d
}

// retryableFragments are substrings of transient transport failures. The
// matching is textual because the errors cross the HTTP and websocket
// client boundaries without typed causes.
var retryableFragments = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"network is unreachable",
	"no route to host",
	"deadline exceeded",
	"timeout",
	"unavailable",
	"too many connections",
	"rate limit",
}

// IsRetryableNetworkError reports whether err looks like a transient
// network failure worth another attempt.
func IsRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range retryableFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
