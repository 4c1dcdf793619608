package resilience

import (
	"context"
	"fmt"
	"time"
)

// ReconnectConfig bounds re-establishment of a dropped provider
// connection.
type ReconnectConfig struct {
	MaxAttempts int           // attempts before giving up
	Backoff     time.Duration // initial wait between attempts
	Multiplier  float64       // backoff growth factor
	MaxBackoff  time.Duration // ceiling for the grown backoff
}

// DefaultReconnectConfig suits the streaming recognition connection, whose
// provider sessions drop and expire routinely.
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// Reconnect runs connect until it succeeds or the attempt budget is spent,
// backing off between attempts. The context aborts the waits, not an
// in-flight connect.
func Reconnect(ctx context.Context, connect func() error, cfg *ReconnectConfig) error {
	if cfg == nil {
		cfg = DefaultReconnectConfig()
	}

	wait := cfg.Backoff
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err = connect(); err == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = time.Duration(float64(wait) * cfg.Multiplier)
		if wait > cfg.MaxBackoff {
			wait = cfg.MaxBackoff
		}
	}
	return fmt.Errorf("gave up reconnecting after %d attempts: %w", cfg.MaxAttempts, err)
}
