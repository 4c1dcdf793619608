// Package responder drives a Response to completion: it consumes the
// completion and synthesis output streams, materializes conversation items
// and response objects incrementally, emits ordered protocol events, and
// implements cancellation.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/realtime-gateway/internal/audio"
	"github.com/lexiqai/realtime-gateway/internal/completion"
	"github.com/lexiqai/realtime-gateway/internal/observability"
	"github.com/lexiqai/realtime-gateway/internal/protocol"
	"github.com/lexiqai/realtime-gateway/internal/session"
	"github.com/lexiqai/realtime-gateway/internal/synthesis"
)

// Emitter serializes outbound protocol events in construction order.
// Implemented by the gateway connection.
type Emitter interface {
	Emit(event interface{})
}

// ErrDownstreamTimeout wraps hard completion-service timeouts; the gateway
// closes the connection with a server-error code when it sees one.
var ErrDownstreamTimeout = errors.New("downstream service timeout")

// Orchestrator turns completion/synthesis output into protocol events.
type Orchestrator struct {
	completion completion.Client
	synthesis  synthesis.Client
	logger     zerolog.Logger
}

// New creates an orchestrator over the two downstream collaborators.
func New(c completion.Client, s synthesis.Client, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		completion: c,
		synthesis:  s,
		logger:     logger.With().Str("component", "responder").Logger(),
	}
}

// state tracks the lazily-materialized output of one response.
type state struct {
	resp *session.Response
	sess *session.Session
	emit Emitter

	item         *session.Item // assistant message item, created on first content
	contentIndex int
	outputIndex  int
	textAcc      strings.Builder
	transcript   strings.Builder

	toolItems map[string]*session.Item
	toolOrder []string
}

// Run drives the session's active response to a terminal status. The
// response object must already be installed via session.CreateResponse;
// its first output item is created lazily on the first content unit.
func (o *Orchestrator) Run(ctx context.Context, sess *session.Session, resp *session.Response, emit Emitter) error {
	st := &state{
		resp:      resp,
		sess:      sess,
		emit:      emit,
		toolItems: make(map[string]*session.Item),
	}

	emit.Emit(protocol.ResponseCreatedEvent{
		Type:     protocol.TypeResponseCreated,
		Response: resp.Wire(),
	})

	req := o.buildRequest(sess)
	chunks, err := o.completion.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return o.finishCancelled(st)
		}
		o.finishFailed(st, err)
		return o.classify(err)
	}

	met := observability.NewSessionMetrics(sess.ID)
	synthEnded := true
	endSynthesis := func(ok bool) {
		if synthEnded {
			return
		}
		synthEnded = true
		met.RecordSynthesisEnd(ok)
	}

	audioOut := sess.AudioOutput()
	var textSeg chan string
	var synthChunks <-chan synthesis.Chunk
	if audioOut {
		textSeg = make(chan string, 16)
		met.RecordSynthesisStart()
		synthChunks, err = o.synthesis.Synthesize(ctx, textSeg, sess.Snapshot().Voice, sess.Snapshot().Model)
		if err != nil {
			met.RecordSynthesisEnd(false)
			o.finishFailed(st, err)
			return o.classify(err)
		}
		synthEnded = false
		defer endSynthesis(false)
	}

	var segBuf strings.Builder
	completionDone := false
	synthesisDone := !audioOut

	// sendSegment hands one text segment to the synthesizer while draining
	// its output, so a full segment channel never deadlocks against a full
	// chunk channel.
	sendSegment := func(segment string) error {
		if segment == "" || textSeg == nil {
			return nil
		}
		for {
			if synthChunks == nil {
				// Synthesis already finished; nothing will read the segment.
				return nil
			}
			select {
			case textSeg <- segment:
				return nil
			case sc, ok := <-synthChunks:
				if !ok {
					synthesisDone = true
					synthChunks = nil
					endSynthesis(true)
					continue
				}
				if sc.Err != nil {
					return sc.Err
				}
				o.emitSynthChunk(st, sc)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	for !completionDone || !synthesisDone {
		select {
		case <-ctx.Done():
			return o.finishCancelled(st)

		case chunk, ok := <-chunks:
			if !ok {
				completionDone = true
				chunks = nil
				if audioOut {
					if err := sendSegment(cutSegment(&segBuf, true)); err != nil {
						if ctx.Err() != nil {
							return o.finishCancelled(st)
						}
						o.finishFailed(st, err)
						return o.classify(err)
					}
					if textSeg != nil {
						close(textSeg)
						textSeg = nil
					}
				}
				continue
			}
			if chunk.Err != nil {
				o.finishFailed(st, chunk.Err)
				return o.classify(chunk.Err)
			}
			if chunk.Done {
				continue
			}

			if chunk.ToolCall != nil {
				o.onToolFragment(st, chunk.ToolCall)
				continue
			}
			if chunk.Text != "" {
				o.ensureMessageItem(st, audioOut)
				if audioOut {
					segBuf.WriteString(chunk.Text)
					if err := sendSegment(cutSegment(&segBuf, false)); err != nil {
						if ctx.Err() != nil {
							return o.finishCancelled(st)
						}
						o.finishFailed(st, err)
						return o.classify(err)
					}
				} else {
					st.textAcc.WriteString(chunk.Text)
					st.emit.Emit(protocol.DeltaEvent{
						Type:         protocol.TypeOutputTextDelta,
						ResponseID:   st.resp.ID,
						ItemID:       st.item.ID,
						OutputIndex:  st.outputIndex,
						ContentIndex: st.contentIndex,
						Delta:        chunk.Text,
					})
				}
			}

		case sc, ok := <-synthChunks:
			if !ok {
				synthesisDone = true
				synthChunks = nil
				endSynthesis(true)
				continue
			}
			if sc.Err != nil {
				o.finishFailed(st, sc.Err)
				return o.classify(sc.Err)
			}
			o.emitSynthChunk(st, sc)
		}
	}

	if ctx.Err() != nil {
		return o.finishCancelled(st)
	}
	o.finishCompleted(st, audioOut)
	return nil
}

// emitSynthChunk forwards one synthesizer chunk as audio and transcript
// deltas, materializing the message item on the first one.
func (o *Orchestrator) emitSynthChunk(st *state, sc synthesis.Chunk) {
	o.ensureMessageItem(st, true)
	if len(sc.Samples) > 0 {
		st.emit.Emit(protocol.DeltaEvent{
			Type:         protocol.TypeOutputAudioDelta,
			ResponseID:   st.resp.ID,
			ItemID:       st.item.ID,
			OutputIndex:  st.outputIndex,
			ContentIndex: st.contentIndex,
			Delta:        audio.EncodeBase64PCM(sc.Samples),
		})
	}
	if sc.Transcript != "" {
		st.transcript.WriteString(sc.Transcript)
		st.emit.Emit(protocol.DeltaEvent{
			Type:         protocol.TypeOutputTranscriptDelta,
			ResponseID:   st.resp.ID,
			ItemID:       st.item.ID,
			OutputIndex:  st.outputIndex,
			ContentIndex: st.contentIndex,
			Delta:        sc.Transcript,
		})
	}
}

// buildRequest assembles the message list from the conversation, skipping
// the reserved continuation marker so a post-tool-result response proceeds
// without a synthetic user message.
func (o *Orchestrator) buildRequest(sess *session.Session) completion.Request {
	cfg := sess.Snapshot()
	req := completion.Request{
		Model:        cfg.Model,
		Instructions: cfg.Instructions,
		Tools:        cfg.Tools,
	}

	for _, it := range sess.Items() {
		switch it.Type {
		case "message":
			text := itemText(it)
			if text == completion.ContinuationMarker {
				continue
			}
			req.Messages = append(req.Messages, completion.Message{
				Role:    it.Role,
				Content: text,
			})
		case "function_call":
			req.Messages = append(req.Messages, completion.Message{
				Role:      "assistant",
				CallID:    it.CallID,
				Name:      it.Name,
				Arguments: it.Arguments,
			})
		case "function_call_output":
			req.Messages = append(req.Messages, completion.Message{
				Role:   "tool",
				CallID: it.CallID,
				Output: it.Output,
			})
		}
	}
	return req
}

func itemText(it *session.Item) string {
	for _, part := range it.Content {
		if part.Text != "" {
			return part.Text
		}
		if part.Transcript != "" {
			return part.Transcript
		}
	}
	return ""
}

// ensureMessageItem lazily creates the response's assistant message item
// and its content part, emitting output_item.added and content_part.added
// exactly once, on the first content unit received.
func (o *Orchestrator) ensureMessageItem(st *state, audioOut bool) {
	if st.item != nil {
		return
	}

	partType := "text"
	if audioOut {
		partType = "audio"
	}

	st.item = &session.Item{
		Type:    "message",
		Role:    "assistant",
		Status:  session.StatusInProgress,
		Content: []protocol.ContentPart{{Type: partType}},
	}
	st.sess.AddItem(st.item)
	st.resp.Output = append(st.resp.Output, st.item)
	st.outputIndex = len(st.resp.Output) - 1

	st.emit.Emit(protocol.OutputItemEvent{
		Type:        protocol.TypeOutputItemAdded,
		ResponseID:  st.resp.ID,
		OutputIndex: st.outputIndex,
		Item:        st.item.Wire(),
	})
	st.emit.Emit(protocol.ContentPartEvent{
		Type:         protocol.TypeContentPartAdded,
		ResponseID:   st.resp.ID,
		ItemID:       st.item.ID,
		OutputIndex:  st.outputIndex,
		ContentIndex: st.contentIndex,
		Part:         protocol.ContentPart{Type: partType},
	})
}

// onToolFragment accumulates tool-call fragments per call id into a
// function-call output item, forwarding argument deltas as they arrive.
func (o *Orchestrator) onToolFragment(st *state, frag *completion.ToolCallFragment) {
	it, ok := st.toolItems[frag.CallID]
	if !ok {
		it = &session.Item{
			Type:   "function_call",
			Status: session.StatusInProgress,
			CallID: frag.CallID,
			Name:   frag.Name,
		}
		st.sess.AddItem(it)
		st.toolItems[frag.CallID] = it
		st.toolOrder = append(st.toolOrder, frag.CallID)
		st.resp.Output = append(st.resp.Output, it)

		st.emit.Emit(protocol.OutputItemEvent{
			Type:        protocol.TypeOutputItemAdded,
			ResponseID:  st.resp.ID,
			OutputIndex: len(st.resp.Output) - 1,
			Item:        it.Wire(),
		})
	}
	if frag.Name != "" && it.Name == "" {
		it.Name = frag.Name
	}
	if frag.ArgsDelta != "" {
		it.Arguments += frag.ArgsDelta
		st.emit.Emit(protocol.DeltaEvent{
			Type:       protocol.TypeFunctionArgsDelta,
			ResponseID: st.resp.ID,
			ItemID:     it.ID,
			CallID:     frag.CallID,
			Delta:      frag.ArgsDelta,
		})
	}
}

// cutSegment takes the synthesizable prefix out of the buffer: up to the
// last sentence boundary, or everything when final. Returns "" when no
// segment is ready.
func cutSegment(buf *strings.Builder, final bool) string {
	if buf.Len() == 0 {
		return ""
	}
	text := buf.String()
	if final {
		buf.Reset()
		return text
	}
	idx := lastBoundary(text)
	if idx < 0 {
		return ""
	}
	segment := text[:idx+1]
	rest := text[idx+1:]
	buf.Reset()
	buf.WriteString(rest)
	return segment
}

// lastBoundary returns the index of the last sentence-ending rune, or -1.
func lastBoundary(s string) int {
	return strings.LastIndexAny(s, ".!?\n")
}

// finishCompleted finalizes all open items and emits the terminal events
// in construction order.
func (o *Orchestrator) finishCompleted(st *state, audioOut bool) {
	if st.item != nil {
		o.closeMessageItem(st, audioOut, session.StatusCompleted)
	}
	o.closeToolItems(st, session.StatusCompleted)

	if len(st.toolOrder) > 0 {
		// Placeholder assistant message so a post-tool-result
		// response.create can proceed without a new user message.
		st.sess.AddItem(&session.Item{
			Type:    "message",
			Role:    "assistant",
			Status:  session.StatusCompleted,
			Content: []protocol.ContentPart{{Type: "text", Text: completion.ContinuationMarker}},
		})
	}

	done := st.sess.FinishResponse(session.ResponseCompleted, "")
	if done == nil {
		done = st.resp
	}
	st.emit.Emit(protocol.ResponseDoneEvent{
		Type:     protocol.TypeResponseDone,
		Response: done.Wire(),
	})
}

// finishCancelled marks the partially-built output incomplete and emits a
// final response.done with status cancelled.
func (o *Orchestrator) finishCancelled(st *state) error {
	if st.item != nil {
		o.closeMessageItem(st, st.sess.AudioOutput(), session.StatusIncomplete)
	}
	o.closeToolItems(st, session.StatusIncomplete)

	reason := st.resp.StatusReason
	if reason == "" {
		reason = session.ReasonClientCancelled
	}
	done := st.sess.FinishResponse(session.ResponseCancelled, reason)
	if done == nil {
		done = st.resp
	}
	st.emit.Emit(protocol.ResponseDoneEvent{
		Type:     protocol.TypeResponseDone,
		Response: done.Wire(),
	})
	return nil
}

// finishFailed reports the failure as an error event plus a failed
// response.done; the session remains usable.
func (o *Orchestrator) finishFailed(st *state, cause error) {
	o.logger.Error().Err(cause).Str("response_id", st.resp.ID).Msg("response failed")

	if st.item != nil {
		o.closeMessageItem(st, st.sess.AudioOutput(), session.StatusIncomplete)
	}
	o.closeToolItems(st, session.StatusIncomplete)

	st.emit.Emit(protocol.ErrorEvent{
		Type: protocol.TypeError,
		Error: protocol.ErrorDetail{
			Code:    "downstream_error",
			Message: cause.Error(),
		},
	})

	done := st.sess.FinishResponse(session.ResponseFailed, cause.Error())
	if done == nil {
		done = st.resp
	}
	st.emit.Emit(protocol.ResponseDoneEvent{
		Type:     protocol.TypeResponseDone,
		Response: done.Wire(),
	})
}

// closeMessageItem finalizes the assistant message item: content_part.done,
// conversation.item.done, output_item.done.
func (o *Orchestrator) closeMessageItem(st *state, audioOut bool, status string) {
	it := st.item
	finalText := st.textAcc.String()
	finalTranscript := st.transcript.String()

	if audioOut {
		it.Content[st.contentIndex].Transcript = finalTranscript
		st.emit.Emit(protocol.DoneEvent{
			Type:         protocol.TypeOutputAudioDone,
			ResponseID:   st.resp.ID,
			ItemID:       it.ID,
			OutputIndex:  st.outputIndex,
			ContentIndex: st.contentIndex,
		})
		st.emit.Emit(protocol.DoneEvent{
			Type:         protocol.TypeOutputTranscriptDone,
			ResponseID:   st.resp.ID,
			ItemID:       it.ID,
			OutputIndex:  st.outputIndex,
			ContentIndex: st.contentIndex,
			Transcript:   finalTranscript,
		})
	} else {
		it.Content[st.contentIndex].Text = finalText
		st.emit.Emit(protocol.DoneEvent{
			Type:         protocol.TypeOutputTextDone,
			ResponseID:   st.resp.ID,
			ItemID:       it.ID,
			OutputIndex:  st.outputIndex,
			ContentIndex: st.contentIndex,
			Text:         finalText,
		})
	}

	it.Status = status
	st.emit.Emit(protocol.ContentPartEvent{
		Type:         protocol.TypeContentPartDone,
		ResponseID:   st.resp.ID,
		ItemID:       it.ID,
		OutputIndex:  st.outputIndex,
		ContentIndex: st.contentIndex,
		Part:         it.Content[st.contentIndex],
	})
	st.emit.Emit(protocol.ItemEvent{
		Type: protocol.TypeItemDone,
		Item: it.Wire(),
	})
	st.emit.Emit(protocol.OutputItemEvent{
		Type:        protocol.TypeOutputItemDone,
		ResponseID:  st.resp.ID,
		OutputIndex: st.outputIndex,
		Item:        it.Wire(),
	})
	st.item = nil
}

// closeToolItems finalizes accumulated function-call items in arrival order.
func (o *Orchestrator) closeToolItems(st *state, status string) {
	for _, callID := range st.toolOrder {
		it := st.toolItems[callID]
		it.Status = status
		st.emit.Emit(protocol.DoneEvent{
			Type:       protocol.TypeFunctionArgsDone,
			ResponseID: st.resp.ID,
			ItemID:     it.ID,
			CallID:     callID,
			Arguments:  it.Arguments,
		})
		st.emit.Emit(protocol.ItemEvent{
			Type: protocol.TypeItemDone,
			Item: it.Wire(),
		})
		st.emit.Emit(protocol.OutputItemEvent{
			Type:       protocol.TypeOutputItemDone,
			ResponseID: st.resp.ID,
			Item:       it.Wire(),
		})
	}
	st.toolOrder = nil
}

// classify maps downstream failures to the gateway's close policy.
func (o *Orchestrator) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return fmt.Errorf("%w: %v", ErrDownstreamTimeout, err)
	}
	// Non-timeout downstream failures were already surfaced as an error
	// event; the session stays usable.
	return nil
}
