package completion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/realtime-gateway/internal/observability"
	"github.com/lexiqai/realtime-gateway/internal/resilience"
)

// HTTPClient streams completions from an HTTP endpoint that emits one JSON
// chunk per line (SSE "data:" prefixes are tolerated and stripped).
type HTTPClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	retry      *resilience.RetryConfig
	logger     zerolog.Logger
}

// HTTPOptions configures the streaming client.
type HTTPOptions struct {
	URL                 string
	APIKey              string
	RequestTimeout      time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
	Retry               *resilience.RetryConfig
}

// NewHTTPClient creates a completion client over HTTP.
func NewHTTPClient(opts HTTPOptions, logger zerolog.Logger) *HTTPClient {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 120 * time.Second
	}
	if opts.BreakerMaxFailures == 0 {
		opts.BreakerMaxFailures = 5
	}
	if opts.BreakerResetTimeout == 0 {
		opts.BreakerResetTimeout = 30 * time.Second
	}
	return &HTTPClient{
		url:        opts.URL,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: opts.RequestTimeout},
		breaker:    resilience.NewCircuitBreaker("completion", opts.BreakerMaxFailures, opts.BreakerResetTimeout),
		retry:      opts.Retry,
		logger:     logger.With().Str("component", "completion").Logger(),
	}
}

// Stream starts a completion call and returns the chunk channel. The HTTP
// round trip is protected by the circuit breaker and retried on transient
// network errors.
func (c *HTTPClient) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	var resp *http.Response
	err = c.breaker.Call(func() error {
		return resilience.Retry(func() error {
			httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
			if reqErr != nil {
				return reqErr
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Accept", "text/event-stream")
			if c.apiKey != "" {
				httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
			}

			var doErr error
			resp, doErr = c.httpClient.Do(httpReq) //nolint:bodyclose // closed by the reader goroutine
			if doErr != nil {
				return doErr
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return fmt.Errorf("completion service returned status %d", resp.StatusCode)
			}
			return nil
		}, c.retry, resilience.IsRetryableNetworkError)
	})
	observability.UpdateCircuitBreakerState("completion", int(c.breaker.State()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("completion")
		return nil, fmt.Errorf("completion call failed: %w", err)
	}

	chunks := make(chan Chunk, 64)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			line = strings.TrimPrefix(line, "data:")
			line = strings.TrimSpace(line)
			if line == "" || line == "[DONE]" {
				continue
			}

			var chunk Chunk
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				c.logger.Warn().Err(err).Msg("skipping malformed completion chunk")
				continue
			}

			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case chunks <- Chunk{Err: fmt.Errorf("completion stream read failed: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, nil
}

// Close releases client resources.
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
