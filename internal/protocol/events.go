// Package protocol defines the wire-level events exchanged with clients
// over the realtime WebSocket connection. Inbound events are parsed via a
// small envelope carrying only the type field, then unmarshaled into the
// matching struct.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client → server event types.
const (
	TypeSessionUpdate          = "session.update"
	TypeInputAudioAppend       = "input_audio_buffer.append"
	TypeInputAudioCommit       = "input_audio_buffer.commit"
	TypeInputAudioClear        = "input_audio_buffer.clear"
	TypeConversationItemCreate = "conversation.item.create"
	TypeConversationItemTrunc  = "conversation.item.truncate"
	TypeConversationItemDelete = "conversation.item.delete"
	TypeConversationItemGet    = "conversation.item.retrieve"
	TypeResponseCreate         = "response.create"
	TypeResponseCancel         = "response.cancel"
)

// Server → client event types.
const (
	TypeSessionCreated         = "session.created"
	TypeSessionUpdated         = "session.updated"
	TypeItemAdded              = "conversation.item.added"
	TypeItemDone               = "conversation.item.done"
	TypeItemRetrieved          = "conversation.item.retrieved"
	TypeItemTruncated          = "conversation.item.truncated"
	TypeItemDeleted            = "conversation.item.deleted"
	TypeSpeechStarted          = "input_audio_buffer.speech_started"
	TypeSpeechStopped          = "input_audio_buffer.speech_stopped"
	TypeInputAudioCommitted    = "input_audio_buffer.committed"
	TypeInputAudioCleared      = "input_audio_buffer.cleared"
	TypeTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	TypeTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeResponseCreated        = "response.created"
	TypeResponseDone           = "response.done"
	TypeOutputItemAdded        = "response.output_item.added"
	TypeOutputItemDone         = "response.output_item.done"
	TypeContentPartAdded       = "response.content_part.added"
	TypeContentPartDone        = "response.content_part.done"
	TypeOutputAudioDelta       = "response.output_audio.delta"
	TypeOutputAudioDone        = "response.output_audio.done"
	TypeOutputTranscriptDelta  = "response.output_audio_transcript.delta"
	TypeOutputTranscriptDone   = "response.output_audio_transcript.done"
	TypeFunctionArgsDelta      = "response.function_call_arguments.delta"
	TypeFunctionArgsDone       = "response.function_call_arguments.done"
	TypeOutputTextDelta        = "response.output_text.delta"
	TypeOutputTextDone         = "response.output_text.done"
	TypeError                  = "error"
	TypeRateLimitsUpdated      = "rate_limits.updated"
)

// envelope is used for initial parsing to determine the event type before
// unmarshaling into the specific event struct.
type envelope struct {
	Type string `json:"type"`
}

// SessionConfig is the client-settable portion of a session.
type SessionConfig struct {
	Modalities []string `json:"modalities,omitempty"` // subset of {"text","audio"}
	Voice      string   `json:"voice,omitempty"`
	Model      string   `json:"model,omitempty"`
	Eagerness  string   `json:"eagerness,omitempty"` // "low", "auto", "high"
	// TurnDetection selects server ("server_vad") or manual ("none") commits.
	TurnDetection string `json:"turn_detection,omitempty"`
	Instructions  string `json:"instructions,omitempty"`
	Tools         []Tool `json:"tools,omitempty"`
}

// Tool is a function schema forwarded to the completion service.
type Tool struct {
	Type        string          `json:"type"` // always "function"
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ContentPart is one piece of a conversation item's payload.
type ContentPart struct {
	Type       string `json:"type"` // "input_text", "text", "audio", "input_audio"
	Text       string `json:"text,omitempty"`
	Audio      string `json:"audio,omitempty"` // base64 PCM16
	Transcript string `json:"transcript,omitempty"`
}

// Item is the wire form of a conversation item.
type Item struct {
	ID        string        `json:"id,omitempty"`
	Type      string        `json:"type"` // "message", "function_call", "function_call_output"
	Role      string        `json:"role,omitempty"`
	Status    string        `json:"status,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Name      string        `json:"name,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output    string        `json:"output,omitempty"`
}

// Response is the wire form of a response object.
type Response struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	StatusReason  string   `json:"status_reason,omitempty"`
	Output        []Item   `json:"output"`
	Modalities    []string `json:"modalities,omitempty"`
	CancelledBy   string   `json:"cancelled_by,omitempty"`
	InterruptedAt int64    `json:"interrupted_at,omitempty"`
}

// --- Client → server events ---

type SessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type InputAudioAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64 little-endian PCM16 mono
	// SampleRate is the client-native capture rate; resampled internally.
	SampleRate int `json:"sample_rate,omitempty"`
}

type InputAudioCommitEvent struct {
	Type string `json:"type"`
}

type InputAudioClearEvent struct {
	Type string `json:"type"`
}

type ItemCreateEvent struct {
	Type string `json:"type"`
	Item Item   `json:"item"`
}

type ItemTruncateEvent struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int    `json:"audio_end_ms,omitempty"`
}

type ItemDeleteEvent struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
}

type ItemRetrieveEvent struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
}

type ResponseCreateEvent struct {
	Type     string         `json:"type"`
	Response *SessionConfig `json:"response,omitempty"` // per-response overrides
}

type ResponseCancelEvent struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id,omitempty"`
}

// --- Server → client events ---

type SessionCreatedEvent struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id"`
	Session   SessionConfig `json:"session"`
}

type SessionUpdatedEvent struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type ItemEvent struct {
	Type string `json:"type"`
	Item Item   `json:"item"`
}

type ItemTruncatedEvent struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
}

type ItemDeletedEvent struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
}

type SpeechStartedEvent struct {
	Type    string `json:"type"`
	AudioMs int64  `json:"audio_start_ms"`
}

type SpeechStoppedEvent struct {
	Type    string `json:"type"`
	AudioMs int64  `json:"audio_end_ms"`
}

type InputAudioCommittedEvent struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id,omitempty"`
}

type InputAudioClearedEvent struct {
	Type string `json:"type"`
}

type TranscriptionDeltaEvent struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id,omitempty"`
	Delta  string `json:"delta"`
}

type TranscriptionCompletedEvent struct {
	Type       string `json:"type"`
	ItemID     string `json:"item_id,omitempty"`
	Transcript string `json:"transcript"`
}

type ResponseCreatedEvent struct {
	Type     string   `json:"type"`
	Response Response `json:"response"`
}

type ResponseDoneEvent struct {
	Type     string   `json:"type"`
	Response Response `json:"response"`
}

type OutputItemEvent struct {
	Type        string `json:"type"`
	ResponseID  string `json:"response_id"`
	OutputIndex int    `json:"output_index"`
	Item        Item   `json:"item"`
}

type ContentPartEvent struct {
	Type         string      `json:"type"`
	ResponseID   string      `json:"response_id"`
	ItemID       string      `json:"item_id"`
	OutputIndex  int         `json:"output_index"`
	ContentIndex int         `json:"content_index"`
	Part         ContentPart `json:"part"`
}

// DeltaEvent carries one streamed fragment of text, transcript, audio or
// function-call arguments, depending on Type.
type DeltaEvent struct {
	Type         string `json:"type"`
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	CallID       string `json:"call_id,omitempty"`
	Delta        string `json:"delta"`
}

// DoneEvent finalizes a delta stream with the accumulated value.
type DoneEvent struct {
	Type         string `json:"type"`
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	CallID       string `json:"call_id,omitempty"`
	Text         string `json:"text,omitempty"`
	Transcript   string `json:"transcript,omitempty"`
	Arguments    string `json:"arguments,omitempty"`
}

type ErrorEvent struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RateLimit struct {
	Name         string  `json:"name"`
	Limit        int     `json:"limit"`
	Remaining    int     `json:"remaining"`
	ResetSeconds float64 `json:"reset_seconds"`
}

type RateLimitsUpdatedEvent struct {
	Type       string      `json:"type"`
	RateLimits []RateLimit `json:"rate_limits"`
}

// ParseClientEvent decodes an inbound frame into one of the client event
// structs. Unknown types are reported as an error so the gateway can reply
// with a protocol error event instead of dropping the frame silently.
func ParseClientEvent(data []byte) (interface{}, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}

	var ev interface{}
	switch env.Type {
	case TypeSessionUpdate:
		ev = &SessionUpdateEvent{}
	case TypeInputAudioAppend:
		ev = &InputAudioAppendEvent{}
	case TypeInputAudioCommit:
		ev = &InputAudioCommitEvent{}
	case TypeInputAudioClear:
		ev = &InputAudioClearEvent{}
	case TypeConversationItemCreate:
		ev = &ItemCreateEvent{}
	case TypeConversationItemTrunc:
		ev = &ItemTruncateEvent{}
	case TypeConversationItemDelete:
		ev = &ItemDeleteEvent{}
	case TypeConversationItemGet:
		ev = &ItemRetrieveEvent{}
	case TypeResponseCreate:
		ev = &ResponseCreateEvent{}
	case TypeResponseCancel:
		ev = &ResponseCancelEvent{}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("malformed %s event: %w", env.Type, err)
	}
	return ev, nil
}
