package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/realtime-gateway/internal/audio"
	"github.com/lexiqai/realtime-gateway/internal/observability"
	"github.com/lexiqai/realtime-gateway/internal/resilience"
)

// HTTPClient synthesizes speech through an HTTP endpoint returning raw
// PCM16 audio. Text segments are synthesized as they arrive so playback
// can begin before the full response text is known.
type HTTPClient struct {
	url          string
	apiKey       string
	providerRate int
	outputRate   int
	httpClient   *http.Client
	breaker      *resilience.CircuitBreaker
	logger       zerolog.Logger
}

// HTTPOptions configures the synthesis client.
type HTTPOptions struct {
	URL                 string
	APIKey              string
	ProviderSampleRate  int // rate of the PCM the provider returns
	OutputSampleRate    int // fixed wire output rate
	RequestTimeout      time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

type synthesisRequest struct {
	Text       string `json:"text"`
	VoiceID    string `json:"voice_id"`
	ModelID    string `json:"model_id,omitempty"`
	Format     string `json:"output_format"`
	SampleRate int    `json:"sample_rate"`
}

// NewHTTPClient creates a synthesis client.
func NewHTTPClient(opts HTTPOptions, logger zerolog.Logger) *HTTPClient {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.BreakerMaxFailures == 0 {
		opts.BreakerMaxFailures = 5
	}
	if opts.BreakerResetTimeout == 0 {
		opts.BreakerResetTimeout = 30 * time.Second
	}
	return &HTTPClient{
		url:          opts.URL,
		apiKey:       opts.APIKey,
		providerRate: opts.ProviderSampleRate,
		outputRate:   opts.OutputSampleRate,
		httpClient:   &http.Client{Timeout: opts.RequestTimeout},
		breaker:      resilience.NewCircuitBreaker("synthesis", opts.BreakerMaxFailures, opts.BreakerResetTimeout),
		logger:       logger.With().Str("component", "synthesis").Logger(),
	}
}

// Synthesize streams audio for each arriving text segment in order.
func (c *HTTPClient) Synthesize(ctx context.Context, text <-chan string, voice, model string) (<-chan Chunk, error) {
	chunks := make(chan Chunk, 16)

	go func() {
		defer close(chunks)
		for {
			select {
			case segment, ok := <-text:
				if !ok {
					return
				}
				if segment == "" {
					continue
				}
				samples, err := c.synthesizeSegment(ctx, segment, voice, model)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					c.deliver(ctx, chunks, Chunk{Err: err})
					return
				}
				c.deliver(ctx, chunks, Chunk{
					Samples:    samples,
					SampleRate: c.outputRate,
					Transcript: segment,
				})
			case <-ctx.Done():
				return
			}
		}
	}()

	return chunks, nil
}

// synthesizeSegment runs one provider round trip and converts the returned
// PCM to the wire rate.
func (c *HTTPClient) synthesizeSegment(ctx context.Context, text, voice, model string) ([]float64, error) {
	body, err := json.Marshal(synthesisRequest{
		Text:       text,
		VoiceID:    voice,
		ModelID:    model,
		Format:     "pcm",
		SampleRate: c.providerRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	var pcm []byte
	err = c.breaker.Call(func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("synthesis service returned status %d", resp.StatusCode)
		}

		pcm, doErr = io.ReadAll(resp.Body)
		return doErr
	})
	observability.UpdateCircuitBreakerState("synthesis", int(c.breaker.State()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("synthesis")
		return nil, fmt.Errorf("synthesis call failed: %w", err)
	}

	samples, err := audio.PCM16ToFloat(pcm)
	if err != nil {
		return nil, fmt.Errorf("invalid synthesis audio: %w", err)
	}
	if c.providerRate != c.outputRate {
		samples = audio.Resample(samples, c.providerRate, c.outputRate)
	}
	return samples, nil
}

func (c *HTTPClient) deliver(ctx context.Context, out chan<- Chunk, chunk Chunk) {
	select {
	case out <- chunk:
	case <-ctx.Done():
	}
}

// Close releases client resources.
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
