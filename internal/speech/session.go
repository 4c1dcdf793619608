package speech

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/realtime-gateway/internal/audio"
	"github.com/lexiqai/realtime-gateway/internal/bridge"
)

// Config holds the timers governing a speech session.
type Config struct {
	SampleRate        int           // provider input rate
	InactivityTimeout time.Duration // self-close after this much silence on the wire
	FinalGrace        time.Duration // wait for a final transcript after upstream exhaustion
	TurnCeiling       time.Duration // hard bound on total processing per turn
	KeepAliveInterval time.Duration // synthetic silence injection cadence
}

// DefaultConfig returns the production timer set.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:        sampleRate,
		InactivityTimeout: 60 * time.Second,
		FinalGrace:        2 * time.Second,
		TurnCeiling:       40 * time.Second,
		KeepAliveInterval: 100 * time.Millisecond,
	}
}

// NoteKind identifies an asynchronous session note.
type NoteKind int

const (
	// NoteDelta carries a partial transcript forwarded to the client.
	NoteDelta NoteKind = iota
	// NoteSpeechStarted signals provider-side speech detection.
	NoteSpeechStarted
	// NoteClosed signals the session self-closed on inactivity and should
	// be evicted from the handle table.
	NoteClosed
)

// Note is an out-of-band event scoped to the session, delivered on an
// explicit channel so ownership and teardown stay unambiguous.
type Note struct {
	Kind       NoteKind
	Transcript string
}

// Result is the structured outcome of one processed turn.
type Result struct {
	Transcript   string
	TurnDetected bool
	AudioUnits   int
	Samples      int
	Exhausted    bool
}

// Session drives one recognition connection across the turns of a
// conversation session. Created lazily on first audio/text arrival and
// reused until closed by inactivity or explicit teardown.
type Session struct {
	id     string
	cfg    Config
	rec    Recognizer
	handle *Handle
	logger zerolog.Logger
	notes  chan Note

	mu     sync.Mutex
	closed bool
	idle   *time.Timer
	done   chan struct{}
}

// NewSession creates a speech session over the given recognizer.
func NewSession(id string, rec Recognizer, cfg Config, logger zerolog.Logger) *Session {
	s := &Session{
		id:     id,
		cfg:    cfg,
		rec:    rec,
		handle: &Handle{},
		logger: logger.With().Str("speech_session", id).Logger(),
		notes:  make(chan Note, 32),
		idle:   time.NewTimer(cfg.InactivityTimeout),
		done:   make(chan struct{}),
	}
	go s.watchIdle()
	return s
}

// Notes returns the session's out-of-band event channel.
func (s *Session) Notes() <-chan Note { return s.notes }

// Handle returns the connection handle for observability.
func (s *Session) Handle() *Handle { return s.handle }

// ProcessTurn consumes units from the bridge until a turn is detected.
// Partial transcripts are emitted as delta notes; a text unit bypasses
// recognition and is treated as an immediately final transcript. When the
// upstream stream is exhausted before a final transcript arrives, synthetic
// silence keeps the provider stream alive for up to the grace window; past
// it the turn is abandoned with an error rather than silently dropped.
//
// The per-turn ceiling starts when the first unit arrives, so a session
// idling between turns is not charged against it.
func (s *Session) ProcessTurn(ctx context.Context, units <-chan bridge.Unit) (*Result, error) {
	res := &Result{}
	var finals strings.Builder

	var ceiling *time.Timer
	var ceilingC <-chan time.Time
	startCeiling := func() {
		if ceiling == nil {
			ceiling = time.NewTimer(s.cfg.TurnCeiling)
			ceilingC = ceiling.C
		}
	}
	defer func() {
		if ceiling != nil {
			ceiling.Stop()
		}
	}()

	for {
		select {
		case u, ok := <-units:
			if !ok {
				res.Exhausted = true
				if res.Samples == 0 && finals.Len() == 0 {
					return res, ErrNoSpeech
				}
				startCeiling()
				return s.awaitFinal(ctx, ceilingC, res, &finals)
			}
			startCeiling()

			if u.IsText {
				// Text shortcut: short-circuits the audio path entirely.
				res.Transcript = u.Text
				res.TurnDetected = true
				return res, nil
			}

			if err := s.forwardAudio(ctx, u); err != nil {
				return res, err
			}
			res.AudioUnits++
			res.Samples += len(u.Samples)

		case ev := <-s.rec.Events():
			final, err := s.handleEvent(ev, &finals)
			if err != nil {
				return res, err
			}
			if final {
				res.Transcript = strings.TrimSpace(finals.String())
				res.TurnDetected = true
				if res.Transcript == "" {
					return res, ErrNoSpeech
				}
				return res, nil
			}

		case <-ceilingC:
			return res, fmt.Errorf("turn processing exceeded ceiling: %w", context.DeadlineExceeded)

		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

// awaitFinal runs the turn-completion race after upstream exhaustion:
// silence frames at the keep-alive cadence versus the grace deadline.
func (s *Session) awaitFinal(ctx context.Context, ceilingC <-chan time.Time, res *Result, finals *strings.Builder) (*Result, error) {
	grace := time.NewTimer(s.cfg.FinalGrace)
	defer grace.Stop()
	keepAlive := time.NewTicker(s.cfg.KeepAliveInterval)
	defer keepAlive.Stop()

	silence := audio.FloatToPCM16(audio.Silence(
		int(s.cfg.KeepAliveInterval/time.Millisecond), s.cfg.SampleRate))

	for {
		select {
		case ev := <-s.rec.Events():
			final, err := s.handleEvent(ev, finals)
			if err != nil {
				return res, err
			}
			if final {
				res.Transcript = strings.TrimSpace(finals.String())
				res.TurnDetected = true
				if res.Transcript == "" {
					return res, ErrNoSpeech
				}
				return res, nil
			}

		case <-keepAlive.C:
			if s.rec.Open() {
				if err := s.rec.WriteAudio(silence); err != nil {
					s.logger.Warn().Err(err).Msg("keep-alive silence write failed")
				}
				s.touch()
			}

		case <-grace.C:
			return res, ErrTurnAbandoned

		case <-ceilingC:
			return res, fmt.Errorf("turn processing exceeded ceiling: %w", context.DeadlineExceeded)

		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

// handleEvent processes one provider event. Returns true when the event
// marks end of turn.
func (s *Session) handleEvent(ev Event, finals *strings.Builder) (bool, error) {
	s.touch()

	switch ev.Type {
	case EventPartial:
		s.note(Note{Kind: NoteDelta, Transcript: ev.Transcript})
	case EventSpeechStarted:
		s.handle.SetStatus(StatusActive)
		s.note(Note{Kind: NoteSpeechStarted})
	case EventFinal:
		if ev.Transcript != "" {
			if finals.Len() > 0 {
				finals.WriteByte(' ')
			}
			finals.WriteString(ev.Transcript)
		}
		return true, nil
	case EventClosed:
		s.handle.SetStatus(StatusDisconnected)
	case EventError:
		return false, fmt.Errorf("recognition provider error: %w", ev.Err)
	}
	return false, nil
}

// forwardAudio resamples a unit to the provider rate and writes it,
// connecting first when the connection is absent, closed, or expired.
func (s *Session) forwardAudio(ctx context.Context, u bridge.Unit) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}

	samples := u.Samples
	if u.SampleRate != s.cfg.SampleRate && u.SampleRate > 0 {
		samples = audio.Resample(samples, u.SampleRate, s.cfg.SampleRate)
	}

	if err := s.rec.WriteAudio(audio.FloatToPCM16(samples)); err != nil {
		return fmt.Errorf("failed to forward audio to recognizer: %w", err)
	}
	s.handle.SetStatus(StatusActive)
	s.touch()
	return nil
}

// ensureConnected transitions the handle through connecting → connected
// before any audio is forwarded.
func (s *Session) ensureConnected(ctx context.Context) error {
	if s.rec.Open() && !s.handle.Expired() {
		return nil
	}

	s.handle.SetStatus(StatusConnecting)
	conn, err := s.rec.Connect(ctx)
	if err != nil {
		s.handle.SetStatus(StatusDisconnected)
		return fmt.Errorf("failed to connect recognizer: %w", err)
	}
	s.handle.SetConnection(conn)
	s.logger.Debug().
		Str("provider_session", conn.ProviderSessionID).
		Time("expires_at", conn.ExpiresAt).
		Msg("recognizer connected")
	return nil
}

// touch resets the inactivity clock on every successful send or receive.
func (s *Session) touch() {
	s.handle.Touch()
	s.mu.Lock()
	if !s.closed {
		if !s.idle.Stop() {
			select {
			case <-s.idle.C:
			default:
			}
		}
		s.idle.Reset(s.cfg.InactivityTimeout)
	}
	s.mu.Unlock()
}

// watchIdle self-closes the session after the inactivity timeout and
// notifies the owner so it can be evicted from the handle table.
func (s *Session) watchIdle() {
	select {
	case <-s.idle.C:
		s.logger.Info().Msg("speech session idle, self-closing")
		s.shutdown(true)
	case <-s.done:
	}
}

// Close tears the session down. Idempotent.
func (s *Session) Close() error {
	s.shutdown(false)
	return nil
}

func (s *Session) shutdown(notify bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.idle.Stop()
	close(s.done)
	s.mu.Unlock()

	s.handle.SetStatus(StatusClosing)
	if err := s.rec.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("error closing recognizer")
	}
	s.handle.SetStatus(StatusDisconnected)

	if notify {
		s.note(Note{Kind: NoteClosed})
	}
}

func (s *Session) note(n Note) {
	select {
	case s.notes <- n:
	default:
		s.logger.Warn().Int("kind", int(n.Kind)).Msg("note channel full, dropping")
	}
}
