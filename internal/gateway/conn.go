package gateway

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/realtime-gateway/internal/audio"
	"github.com/lexiqai/realtime-gateway/internal/bridge"
	"github.com/lexiqai/realtime-gateway/internal/observability"
	"github.com/lexiqai/realtime-gateway/internal/protocol"
	"github.com/lexiqai/realtime-gateway/internal/responder"
	"github.com/lexiqai/realtime-gateway/internal/session"
	"github.com/lexiqai/realtime-gateway/internal/speech"
)

// conn is the per-connection state machine. Inbound events travel one of
// two lanes: audio appends and response.cancel are handled on the read
// loop immediately, everything else is queued FIFO and drained by a single
// worker so conversation mutations stay ordered.
type conn struct {
	g      *Gateway
	ws     *websocket.Conn
	sess   *session.Session
	logger zerolog.Logger
	met    *observability.Metrics

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	writeMu sync.Mutex
	events  chan interface{}

	mu         sync.Mutex
	speech     *speech.Session
	br         *bridge.Bridge
	gate       *audio.SpeechGate
	commitBuf  *audio.SampleBuffer
	commitRate int
	audioMs    int64
	turnLoopOn bool
}

func newConn(g *Gateway, ws *websocket.Conn) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	sess := session.New(g.opts.Defaults, g.logger)
	return &conn{
		g:          g,
		ws:         ws,
		sess:       sess,
		logger:     sess.Logger().With().Str("component", "gateway").Logger(),
		met:        sessionMetrics(sess.ID),
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan interface{}, 256),
		gate:       audio.NewSpeechGate(audio.GateConfigForEagerness(g.opts.Defaults.Eagerness)),
		commitBuf:  audio.NewSampleBuffer(g.opts.InputSampleRate * 30),
		commitRate: g.opts.InputSampleRate,
	}
}

// run services the connection until the client disconnects or a hard
// failure closes it.
func (c *conn) run() {
	c.g.registry.Add(c.sess)
	c.met.RecordSessionStart()
	c.logger.Info().Msg("session established")

	c.Emit(protocol.SessionCreatedEvent{
		Type:      protocol.TypeSessionCreated,
		SessionID: c.sess.ID,
		Session:   c.sess.Snapshot(),
	})

	go c.worker()
	c.readLoop()
	c.shutdown()
}

// Emit writes one event frame. Serialized by writeMu so responder output,
// worker output, and immediate-lane output interleave at frame granularity.
func (c *conn) Emit(event interface{}) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(event); err != nil {
		c.logger.Debug().Err(err).Msg("event write failed")
	}
}

func (c *conn) emitError(code, message string) {
	c.Emit(protocol.ErrorEvent{
		Type:  protocol.TypeError,
		Error: protocol.ErrorDetail{Code: code, Message: message},
	})
}

// readLoop parses inbound frames and routes them to the two lanes.
func (c *conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		ev, err := protocol.ParseClientEvent(data)
		if err != nil {
			c.emitError("invalid_event", err.Error())
			continue
		}

		switch e := ev.(type) {
		case *protocol.InputAudioAppendEvent:
			c.handleAudioAppend(e)
		case *protocol.ResponseCancelEvent:
			c.handleResponseCancel()
		default:
			select {
			case c.events <- ev:
			default:
				c.emitError("event_queue_full", "client events arriving faster than they can be processed")
			}
		}
	}
}

// worker drains the FIFO lane.
func (c *conn) worker() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			c.handleQueued(ev)
		}
	}
}

// handleQueued dispatches one ordered event. Panics in a handler are
// confined to the event that caused them.
func (c *conn) handleQueued(ev interface{}) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("event handler panicked")
			c.met.RecordError("handler_panic", "gateway")
			c.emitError("internal_error", "event handling failed")
		}
	}()

	switch e := ev.(type) {
	case *protocol.SessionUpdateEvent:
		c.handleSessionUpdate(e)
	case *protocol.ItemCreateEvent:
		c.handleItemCreate(e)
	case *protocol.ItemTruncateEvent:
		c.handleItemTruncate(e)
	case *protocol.ItemDeleteEvent:
		c.handleItemDelete(e)
	case *protocol.ItemRetrieveEvent:
		c.handleItemRetrieve(e)
	case *protocol.InputAudioCommitEvent:
		c.handleCommit()
	case *protocol.InputAudioClearEvent:
		c.handleClear()
	case *protocol.ResponseCreateEvent:
		c.handleResponseCreate(e)
	default:
		c.emitError("unsupported_event", fmt.Sprintf("unhandled event %T", ev))
	}
}

// --- immediate lane ---

// handleAudioAppend decodes and routes one audio chunk without waiting on
// the FIFO lane, so queued work never delays the media stream.
func (c *conn) handleAudioAppend(e *protocol.InputAudioAppendEvent) {
	samples, err := audio.DecodeBase64PCM(e.Audio)
	if err != nil {
		c.emitError("invalid_audio", err.Error())
		return
	}
	rate := e.SampleRate
	if rate <= 0 {
		rate = c.g.opts.InputSampleRate
	}

	c.met.RecordAudioBytes("in", int64(len(samples)*2))

	c.mu.Lock()
	c.audioMs += int64(len(samples)) * 1000 / int64(rate)
	audioMs := c.audioMs
	_, started, ended := c.gate.Process(samples)
	c.mu.Unlock()
	if started {
		c.Emit(protocol.SpeechStartedEvent{Type: protocol.TypeSpeechStarted, AudioMs: audioMs})
		c.bargeIn()
	}
	if ended {
		c.Emit(protocol.SpeechStoppedEvent{Type: protocol.TypeSpeechStopped, AudioMs: audioMs})
	}

	if c.sess.Snapshot().TurnDetection == "none" {
		c.mu.Lock()
		c.commitBuf.Write(samples)
		c.commitRate = rate
		c.mu.Unlock()
		return
	}

	br := c.ensureSpeech(true)
	br.Push(bridge.AudioUnit(samples, rate))
}

// handleResponseCancel aborts the in-progress response. Cancelling with no
// active response is a no-op per the protocol contract.
func (c *conn) handleResponseCancel() {
	if r := c.sess.CancelActive(session.ReasonClientCancelled); r != nil {
		c.logger.Info().Str("response_id", r.ID).Msg("response cancelled by client")
	}
}

// bargeIn cancels the active response when user speech interrupts it.
func (c *conn) bargeIn() {
	if r := c.sess.CancelActive(session.ReasonTurnDetected); r != nil {
		c.met.RecordBargeIn()
		c.logger.Info().Str("response_id", r.ID).Msg("response interrupted by user speech")
	}
}

// --- FIFO lane handlers ---

func (c *conn) handleSessionUpdate(e *protocol.SessionUpdateEvent) {
	cfg := c.sess.UpdateConfig(e.Session)
	if e.Session.Eagerness != "" {
		c.mu.Lock()
		c.gate = audio.NewSpeechGate(audio.GateConfigForEagerness(cfg.Eagerness))
		c.mu.Unlock()
	}
	if e.Session.TurnDetection == "none" {
		// Manual commits own the recognizer now; stop the continuous loop
		// so it cannot consume a committed turn's transcript.
		c.mu.Lock()
		if c.br != nil {
			c.br.End()
			c.br = nil
		}
		c.turnLoopOn = false
		c.mu.Unlock()
	}
	c.Emit(protocol.SessionUpdatedEvent{Type: protocol.TypeSessionUpdated, Session: cfg})
}

func (c *conn) handleItemCreate(e *protocol.ItemCreateEvent) {
	it := itemFromWire(e.Item)
	c.sess.AddItem(it)
	c.Emit(protocol.ItemEvent{Type: protocol.TypeItemAdded, Item: it.Wire()})
}

func (c *conn) handleItemTruncate(e *protocol.ItemTruncateEvent) {
	if _, err := c.sess.TruncateItem(e.ItemID, e.ContentIndex); err != nil {
		c.emitError("item_truncate_failed", err.Error())
		return
	}
	c.Emit(protocol.ItemTruncatedEvent{
		Type:         protocol.TypeItemTruncated,
		ItemID:       e.ItemID,
		ContentIndex: e.ContentIndex,
	})
}

func (c *conn) handleItemDelete(e *protocol.ItemDeleteEvent) {
	if err := c.sess.DeleteItem(e.ItemID); err != nil {
		c.emitError("item_delete_failed", err.Error())
		return
	}
	c.Emit(protocol.ItemDeletedEvent{Type: protocol.TypeItemDeleted, ItemID: e.ItemID})
}

func (c *conn) handleItemRetrieve(e *protocol.ItemRetrieveEvent) {
	it, err := c.sess.Item(e.ItemID)
	if err != nil {
		c.emitError("item_not_found", err.Error())
		return
	}
	c.Emit(protocol.ItemEvent{Type: protocol.TypeItemRetrieved, Item: it.Wire()})
}

// handleClear discards buffered uncommitted audio.
func (c *conn) handleClear() {
	c.mu.Lock()
	c.commitBuf.Clear()
	c.gate.Reset()
	c.mu.Unlock()
	c.Emit(protocol.InputAudioClearedEvent{Type: protocol.TypeInputAudioCleared})
}

// handleCommit runs one manual-mode turn over the buffered audio.
func (c *conn) handleCommit() {
	c.mu.Lock()
	samples := c.commitBuf.Drain()
	rate := c.commitRate
	c.mu.Unlock()

	if len(samples) == 0 {
		c.emitError("input_audio_buffer_empty", "commit with no buffered audio")
		return
	}

	c.Emit(protocol.InputAudioCommittedEvent{Type: protocol.TypeInputAudioCommitted})

	c.ensureSpeech(false)
	c.mu.Lock()
	sp := c.speech
	c.mu.Unlock()

	turn := bridge.New()
	turn.Push(bridge.AudioUnit(samples, rate))
	turn.End()

	c.met.RecordRecognitionStart()
	res, err := sp.ProcessTurn(c.ctx, turn.Consume())
	c.onTurnResult(res, err)
}

// handleResponseCreate serves an explicit client request for a response. A
// request arriving while a response is already streaming resolves
// immediately as cancelled; continuous turn processing supersedes it.
func (c *conn) handleResponseCreate(e *protocol.ResponseCreateEvent) {
	if c.sess.ActiveResponse() != nil {
		c.Emit(protocol.ResponseDoneEvent{
			Type: protocol.TypeResponseDone,
			Response: protocol.Response{
				ID:           "resp_" + uuid.New().String(),
				Status:       session.ResponseCancelled,
				StatusReason: session.ReasonContinuous,
				Output:       []protocol.Item{},
			},
		})
		return
	}

	text := c.sess.LastUserText()
	if text == "" {
		c.emitError("no_user_message", "no user message to respond to")
		c.met.RecordResponse(session.ResponseFailed)
		c.Emit(protocol.ResponseDoneEvent{
			Type: protocol.TypeResponseDone,
			Response: protocol.Response{
				ID:           "resp_" + uuid.New().String(),
				Status:       session.ResponseFailed,
				StatusReason: "no user message to respond to",
				Output:       []protocol.Item{},
			},
		})
		return
	}

	c.sess.Queue().Enqueue(text)

	modalities := c.sess.Snapshot().Modalities
	if e.Response != nil && len(e.Response.Modalities) > 0 {
		modalities = e.Response.Modalities
	}
	c.serveClaimed(modalities)
}

// --- speech plumbing ---

// ensureSpeech lazily creates the recognition session on first audio. The
// continuous turn loop is started only for server-side turn detection.
func (c *conn) ensureSpeech(continuous bool) *bridge.Bridge {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.speech == nil {
		rec := c.g.newRecognizer()
		c.speech = speech.NewSession(c.sess.ID, rec, c.g.opts.Speech, c.sess.Logger())
		c.g.table.Put(c.sess.ID, c.speech)
		go c.notesLoop(c.speech)
	}
	if continuous && !c.turnLoopOn {
		c.br = bridge.New()
		c.turnLoopOn = true
		go c.turnLoop(c.speech, c.br.Consume())
	}
	return c.br
}

// notesLoop forwards out-of-band speech session events to the client.
func (c *conn) notesLoop(sp *speech.Session) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case n := <-sp.Notes():
			switch n.Kind {
			case speech.NoteDelta:
				c.Emit(protocol.TranscriptionDeltaEvent{
					Type:  protocol.TypeTranscriptionDelta,
					Delta: n.Transcript,
				})
			case speech.NoteSpeechStarted:
				c.mu.Lock()
				audioMs := c.audioMs
				c.mu.Unlock()
				c.Emit(protocol.SpeechStartedEvent{Type: protocol.TypeSpeechStarted, AudioMs: audioMs})
				c.bargeIn()
			case speech.NoteClosed:
				c.logger.Info().Msg("speech session self-closed, evicting")
				c.g.table.Evict(c.sess.ID)
				c.mu.Lock()
				c.speech = nil
				c.turnLoopOn = false
				if c.br != nil {
					c.br.End()
					c.br = nil
				}
				c.mu.Unlock()
				return
			}
		}
	}
}

// turnLoop processes detected turns for the lifetime of the connection.
func (c *conn) turnLoop(sp *speech.Session, units <-chan bridge.Unit) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("turn loop panicked")
			c.met.RecordError("turn_loop_panic", "gateway")
			c.emitError("internal_error", "turn processing failed")
		}
	}()

	for {
		if c.ctx.Err() != nil {
			return
		}
		c.met.RecordRecognitionStart()
		res, err := sp.ProcessTurn(c.ctx, units)
		if c.ctx.Err() != nil {
			return
		}
		if res != nil && res.Exhausted && errors.Is(err, speech.ErrNoSpeech) {
			// Stream drained at teardown; nothing left to process.
			return
		}
		c.onTurnResult(res, err)
	}
}

// onTurnResult converts one turn outcome into conversation state, client
// events, and a response.
func (c *conn) onTurnResult(res *speech.Result, err error) {
	if err != nil {
		c.met.RecordRecognitionEnd(false)
		switch {
		case errors.Is(err, speech.ErrNoSpeech):
			// Empty turns are suppressed, not surfaced.
			c.met.RecordTurn("no_speech")
		case errors.Is(err, speech.ErrTurnAbandoned):
			c.met.RecordTurn("abandoned")
			c.emitError("turn_abandoned", "no final transcript arrived within the grace window")
		case errors.Is(err, context.DeadlineExceeded):
			c.emitError("turn_timeout", "turn processing exceeded the hard ceiling")
			c.close(websocket.CloseInternalServerErr, "turn processing timeout")
		case c.ctx.Err() != nil:
			// Connection teardown raced the turn; nothing to report.
		default:
			c.met.RecordError("recognition_error", "speech")
			c.emitError("recognition_failed", err.Error())
		}
		return
	}

	c.met.RecordRecognitionEnd(true)
	c.met.RecordTurn("completed")

	part := protocol.ContentPart{Type: "input_audio", Transcript: res.Transcript}
	if res.AudioUnits == 0 {
		part = protocol.ContentPart{Type: "input_text", Text: res.Transcript}
	}
	it := c.sess.AddItem(&session.Item{
		Type:    "message",
		Role:    "user",
		Content: []protocol.ContentPart{part},
	})
	c.Emit(protocol.ItemEvent{Type: protocol.TypeItemAdded, Item: it.Wire()})
	c.Emit(protocol.TranscriptionCompletedEvent{
		Type:       protocol.TypeTranscriptionCompleted,
		ItemID:     it.ID,
		Transcript: res.Transcript,
	})

	c.sess.Queue().Enqueue(res.Transcript)
	c.serveClaimed(c.sess.Snapshot().Modalities)
}

// serveClaimed answers every interaction that can be claimed, in order.
// Looping after each completion picks up interactions enqueued while a
// claim was held, so none is dropped when Claim races a holder.
func (c *conn) serveClaimed(modalities []string) {
	q := c.sess.Queue()
	observability.SetQueueDepth(q.Pending())
	drainInteractions(q, func(*session.Interaction) {
		c.bargeIn()
		c.runResponse(modalities)
	})
	observability.SetQueueDepth(q.Pending())
}

// drainInteractions claims, serves, and completes interactions until
// nothing is claimable.
func drainInteractions(q *session.InteractionQueue, serve func(*session.Interaction)) {
	for {
		in, ok := q.Claim()
		if !ok {
			return
		}
		serve(in)
		q.Complete(in.ID)
	}
}

// runResponse drives one response to a terminal state. If a just-cancelled
// response is still unwinding, creation is retried briefly rather than
// failed.
func (c *conn) runResponse(modalities []string) {
	rctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	var resp *session.Response
	var err error
	for {
		resp, err = c.sess.CreateResponse(modalities, cancel)
		if !errors.Is(err, session.ErrResponseActive) {
			break
		}
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	if err != nil {
		c.emitError("response_create_failed", err.Error())
		return
	}

	c.met.RecordCompletionStart()
	runErr := c.g.orchestrator.Run(rctx, c.sess, resp, c)
	c.met.RecordCompletionEnd(runErr == nil)
	c.met.RecordResponse(resp.Status)

	if runErr != nil {
		if errors.Is(runErr, responder.ErrDownstreamTimeout) {
			c.close(websocket.CloseInternalServerErr, "downstream service timeout")
		}
		return
	}

	c.Emit(protocol.RateLimitsUpdatedEvent{
		Type: protocol.TypeRateLimitsUpdated,
		RateLimits: []protocol.RateLimit{
			{Name: "requests", Limit: 5000, Remaining: 4999, ResetSeconds: 60},
			{Name: "tokens", Limit: 4000000, Remaining: 3995000, ResetSeconds: 60},
		},
	})
}

// --- teardown ---

// close sends a close frame and triggers teardown.
func (c *conn) close(code int, reason string) {
	c.g.closeWith(c.ws, code, reason)
	c.shutdown()
}

// shutdown releases everything owned by the connection. Idempotent: the
// registry removal reports whether cleanup already ran.
func (c *conn) shutdown() {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		if c.br != nil {
			c.br.End()
		}
		sp := c.speech
		c.speech = nil
		c.mu.Unlock()

		if sp != nil {
			sp.Close()
		}
		c.g.table.Evict(c.sess.ID)

		if c.g.registry.Remove(c.sess.ID) {
			c.met.RecordSessionEnd()
			c.logger.Info().Msg("session closed")
		}
		c.ws.Close()
	})
}

// itemFromWire converts a client-supplied item into conversation state.
func itemFromWire(w protocol.Item) *session.Item {
	it := &session.Item{
		ID:        w.ID,
		Type:      w.Type,
		Role:      w.Role,
		Status:    w.Status,
		Content:   w.Content,
		CallID:    w.CallID,
		Name:      w.Name,
		Arguments: w.Arguments,
		Output:    w.Output,
	}
	if it.Type == "" {
		it.Type = "message"
	}
	if it.Type == "message" && it.Role == "" {
		it.Role = "user"
	}
	return it
}

var _ responder.Emitter = (*conn)(nil)
