package protocol

import (
	"strings"
	"testing"
)

func TestParseClientEvent_SessionUpdate(t *testing.T) {
	raw := `{"type":"session.update","session":{"voice":"alloy","modalities":["text","audio"]}}`
	ev, err := ParseClientEvent([]byte(raw))
	if err != nil {
		t.Fatalf("ParseClientEvent failed: %v", err)
	}
	upd, ok := ev.(*SessionUpdateEvent)
	if !ok {
		t.Fatalf("Expected *SessionUpdateEvent, got %T", ev)
	}
	if upd.Session.Voice != "alloy" || len(upd.Session.Modalities) != 2 {
		t.Errorf("Unexpected session config: %+v", upd.Session)
	}
}

func TestParseClientEvent_AudioAppend(t *testing.T) {
	raw := `{"type":"input_audio_buffer.append","audio":"AAAA","sample_rate":16000}`
	ev, err := ParseClientEvent([]byte(raw))
	if err != nil {
		t.Fatalf("ParseClientEvent failed: %v", err)
	}
	app, ok := ev.(*InputAudioAppendEvent)
	if !ok {
		t.Fatalf("Expected *InputAudioAppendEvent, got %T", ev)
	}
	if app.Audio != "AAAA" || app.SampleRate != 16000 {
		t.Errorf("Unexpected append event: %+v", app)
	}
}

func TestParseClientEvent_Dispatch(t *testing.T) {
	cases := []struct {
		raw  string
		want interface{}
	}{
		{`{"type":"input_audio_buffer.commit"}`, &InputAudioCommitEvent{}},
		{`{"type":"input_audio_buffer.clear"}`, &InputAudioClearEvent{}},
		{`{"type":"conversation.item.create","item":{"type":"message"}}`, &ItemCreateEvent{}},
		{`{"type":"conversation.item.truncate","item_id":"item_1","content_index":0}`, &ItemTruncateEvent{}},
		{`{"type":"conversation.item.delete","item_id":"item_1"}`, &ItemDeleteEvent{}},
		{`{"type":"conversation.item.retrieve","item_id":"item_1"}`, &ItemRetrieveEvent{}},
		{`{"type":"response.create"}`, &ResponseCreateEvent{}},
		{`{"type":"response.cancel","response_id":"resp_1"}`, &ResponseCancelEvent{}},
	}

	for _, tc := range cases {
		ev, err := ParseClientEvent([]byte(tc.raw))
		if err != nil {
			t.Errorf("ParseClientEvent(%s) failed: %v", tc.raw, err)
			continue
		}
		got, want := typeName(ev), typeName(tc.want)
		if got != want {
			t.Errorf("ParseClientEvent(%s): expected %s, got %s", tc.raw, want, got)
		}
	}
}

func typeName(v interface{}) string {
	switch v.(type) {
	case *SessionUpdateEvent:
		return "SessionUpdateEvent"
	case *InputAudioAppendEvent:
		return "InputAudioAppendEvent"
	case *InputAudioCommitEvent:
		return "InputAudioCommitEvent"
	case *InputAudioClearEvent:
		return "InputAudioClearEvent"
	case *ItemCreateEvent:
		return "ItemCreateEvent"
	case *ItemTruncateEvent:
		return "ItemTruncateEvent"
	case *ItemDeleteEvent:
		return "ItemDeleteEvent"
	case *ItemRetrieveEvent:
		return "ItemRetrieveEvent"
	case *ResponseCreateEvent:
		return "ResponseCreateEvent"
	case *ResponseCancelEvent:
		return "ResponseCancelEvent"
	default:
		return "unknown"
	}
}

func TestParseClientEvent_ResponseCreateOverrides(t *testing.T) {
	raw := `{"type":"response.create","response":{"modalities":["text"]}}`
	ev, err := ParseClientEvent([]byte(raw))
	if err != nil {
		t.Fatalf("ParseClientEvent failed: %v", err)
	}
	rc := ev.(*ResponseCreateEvent)
	if rc.Response == nil || len(rc.Response.Modalities) != 1 || rc.Response.Modalities[0] != "text" {
		t.Errorf("Expected per-response override parsed, got %+v", rc.Response)
	}
}

func TestParseClientEvent_UnknownType(t *testing.T) {
	_, err := ParseClientEvent([]byte(`{"type":"nonsense.event"}`))
	if err == nil || !strings.Contains(err.Error(), "unknown event type") {
		t.Errorf("Expected unknown-type error, got %v", err)
	}
}

func TestParseClientEvent_MalformedJSON(t *testing.T) {
	_, err := ParseClientEvent([]byte(`{"type":`))
	if err == nil || !strings.Contains(err.Error(), "malformed") {
		t.Errorf("Expected malformed-event error, got %v", err)
	}
}
