package speech

import (
	"context"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/realtime-gateway/internal/resilience"
)

// DeepgramOptions configures the Deepgram-backed recognizer.
type DeepgramOptions struct {
	APIKey         string
	Model          string
	Language       string
	SampleRate     int
	UtteranceEndMs string        // silence that closes an utterance, e.g. "1000"
	SessionTTL     time.Duration // provider session lifetime before reconnect
	Reconnect      *resilience.ReconnectConfig
}

// deepgramCallback implements the SDK's LiveMessageCallback by embedding
// the default handler and overriding only the methods we route.
type deepgramCallback struct {
	*websocketv1api.DefaultCallbackHandler
	onMessage func(*msginterfaces.MessageResponse)
	onError   func(*msginterfaces.ErrorResponse) error
}

func (c *deepgramCallback) Message(msg *msginterfaces.MessageResponse) error {
	c.onMessage(msg)
	return nil
}

func (c *deepgramCallback) Error(errResp *msginterfaces.ErrorResponse) error {
	if c.onError != nil {
		return c.onError(errResp)
	}
	return c.DefaultCallbackHandler.Error(errResp)
}

// DeepgramRecognizer implements Recognizer over Deepgram's streaming API.
type DeepgramRecognizer struct {
	opts   DeepgramOptions
	logger zerolog.Logger
	events chan Event

	mu     sync.RWMutex
	client *listenClient.WSCallback
	open   bool
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDeepgramRecognizer creates a recognizer; the connection itself is
// opened lazily by Connect.
func NewDeepgramRecognizer(opts DeepgramOptions, logger zerolog.Logger) *DeepgramRecognizer {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.UtteranceEndMs == "" {
		opts.UtteranceEndMs = "1000"
	}
	if opts.SessionTTL == 0 {
		opts.SessionTTL = 10 * time.Minute
	}
	return &DeepgramRecognizer{
		opts:   opts,
		logger: logger.With().Str("component", "deepgram").Logger(),
		events: make(chan Event, 100),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect opens a streaming transcription connection, retrying transient
// failures with backoff.
func (d *DeepgramRecognizer) Connect(ctx context.Context) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open && d.client != nil {
		d.client.Finish()
		d.open = false
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.opts.Model,
		Language:       d.opts.Language,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: d.opts.UtteranceEndMs,
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     d.opts.SampleRate,
	}

	callback := &deepgramCallback{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		onMessage:              d.handleMessage,
		onError: func(errResp *msginterfaces.ErrorResponse) error {
			d.logger.Warn().Str("error", fmt.Sprintf("%+v", errResp)).Msg("provider error")
			d.mu.Lock()
			d.open = false
			d.mu.Unlock()
			d.emit(Event{Type: EventClosed})
			return nil
		},
	}

	var client *listenClient.WSCallback
	err := resilience.Reconnect(ctx, func() error {
		var connectErr error
		client, connectErr = listenClient.NewWSUsingCallback(
			d.ctx, d.opts.APIKey, nil, tOptions, callback)
		return connectErr
	}, d.opts.Reconnect)
	if err != nil {
		return Connection{}, fmt.Errorf("failed to connect to deepgram: %w", err)
	}

	d.client = client
	d.open = true

	conn := Connection{
		ProviderSessionID: "dg_" + uuid.New().String(),
		ExpiresAt:         time.Now().Add(d.opts.SessionTTL),
	}
	d.logger.Debug().
		Str("model", d.opts.Model).
		Int("sample_rate", d.opts.SampleRate).
		Msg("deepgram streaming connection opened")
	return conn, nil
}

// handleMessage translates SDK messages into recognizer events.
func (d *DeepgramRecognizer) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "SpeechStarted":
		d.emit(Event{Type: EventSpeechStarted})

	case "UtteranceEnd":
		// Utterance boundary without a trailing transcript; the last
		// Results message already carried the final text.

	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			return
		}
		if msg.IsFinal {
			d.emit(Event{Type: EventFinal, Transcript: alt.Transcript})
		} else {
			d.emit(Event{Type: EventPartial, Transcript: alt.Transcript})
		}

	case "Metadata":
		d.logger.Debug().Msg("deepgram metadata received")

	default:
		d.logger.Debug().Str("type", msg.Type).Msg("unhandled deepgram message type")
	}
}

// WriteAudio forwards PCM16 audio to the provider.
func (d *DeepgramRecognizer) WriteAudio(pcm []byte) error {
	d.mu.RLock()
	open := d.open
	client := d.client
	d.mu.RUnlock()

	if !open || client == nil {
		return fmt.Errorf("deepgram connection is not open")
	}

	if _, err := client.Write(pcm); err != nil {
		d.mu.Lock()
		d.open = false
		d.mu.Unlock()
		return fmt.Errorf("failed to send audio to deepgram: %w", err)
	}
	return nil
}

// Events returns the provider message stream.
func (d *DeepgramRecognizer) Events() <-chan Event { return d.events }

// Open reports whether the connection is usable.
func (d *DeepgramRecognizer) Open() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.open
}

// Close tears down the connection and stops event delivery.
func (d *DeepgramRecognizer) Close() error {
	d.cancel()

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}
	d.client.Finish()
	d.open = false
	return nil
}

func (d *DeepgramRecognizer) emit(ev Event) {
	select {
	case d.events <- ev:
	default:
		d.logger.Warn().Msg("recognizer event channel full, dropping event")
	}
}
