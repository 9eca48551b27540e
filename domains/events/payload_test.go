package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseMessageEventFlat(t *testing.T) {
	raw := []byte(`{"key":{"remoteJid":"972500000001@s.whatsapp.net","id":"ABC"},"pushName":"Dana","message":{"conversation":"hi"},"messageTimestamp":1714000000}`)

	ev, err := ParseMessageEvent(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if ev.Key.RemoteJID != "972500000001@s.whatsapp.net" {
		t.Fatalf("wrong remoteJid: %q", ev.Key.RemoteJID)
	}
	if ev.Message.Body() != "hi" {
		t.Fatalf("wrong body: %q", ev.Message.Body())
	}
	if ev.PushName != "Dana" {
		t.Fatalf("wrong pushName: %q", ev.PushName)
	}
}

func TestParseMessageEventNested(t *testing.T) {
	raw := []byte(`{"event":"messages.upsert","instance":"main","data":{"key":{"remoteJid":"972500000001@s.whatsapp.net","id":"XYZ"},"message":{"conversation":"nested"}}}`)

	ev, err := ParseMessageEvent(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if ev.Key.ID != "XYZ" || ev.Message.Body() != "nested" {
		t.Fatalf("nested payload not unwrapped: %+v", ev)
	}
}

func TestParseMessageEventRejectsNonJSON(t *testing.T) {
	if _, err := ParseMessageEvent([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestUnwrapViewOnceV2Image(t *testing.T) {
	raw := []byte(`{"key":{"remoteJid":"972500000001@s.whatsapp.net","id":"V1"},"message":{"viewOnceMessageV2":{"message":{"imageMessage":{"caption":"secret","mimetype":"image/jpeg"}}}}}`)

	ev, err := ParseMessageEvent(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	inner := ev.Message.Unwrap()
	if inner.Kind() != "image" {
		t.Fatalf("kind = %q, want image", inner.Kind())
	}
	if inner.Body() != "secret" {
		t.Fatalf("body = %q, want caption", inner.Body())
	}
	if !inner.HasMedia() || inner.MediaMime() != "image/jpeg" {
		t.Fatalf("media not surfaced: %+v", inner)
	}
}

func TestUnwrapEphemeralThenViewOnce(t *testing.T) {
	raw := []byte(`{"key":{"remoteJid":"x@s.whatsapp.net","id":"N1"},"message":{"ephemeralMessage":{"message":{"viewOnceMessage":{"message":{"conversation":"deep"}}}}}}`)

	ev, err := ParseMessageEvent(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := ev.Message.Unwrap().Body(); got != "deep" {
		t.Fatalf("double wrapper not unwrapped, body = %q", got)
	}
}

func TestUnwrapIsBounded(t *testing.T) {
	// Five nested ephemeral layers; the loop stops after four passes and
	// must not hang or panic.
	inner := &MessageContent{Conversation: "core"}
	m := inner
	for i := 0; i < 5; i++ {
		m = &MessageContent{EphemeralMessage: &WrappedMessage{Message: m}}
	}

	done := make(chan *MessageContent, 1)
	go func() { done <- m.Unwrap() }()
	select {
	case got := <-done:
		if got == nil {
			t.Fatal("unwrap returned nil")
		}
	case <-time.After(time.Second):
		t.Fatal("unwrap did not terminate")
	}
}

func TestHasUserContent(t *testing.T) {
	protoOnly := &MessageContent{ProtocolMessage: json.RawMessage(`{"type":3}`)}
	if protoOnly.HasUserContent() {
		t.Fatal("protocol-only message must not count as user content")
	}

	var nilContent *MessageContent
	if nilContent.HasUserContent() {
		t.Fatal("nil content must not count as user content")
	}

	text := &MessageContent{Conversation: "hello"}
	if !text.HasUserContent() {
		t.Fatal("plain text is user content")
	}
}

func TestMentionsAndQuote(t *testing.T) {
	raw := []byte(`{"key":{"remoteJid":"g@g.us","id":"M1","participant":"972500000002@s.whatsapp.net"},"message":{"extendedTextMessage":{"text":"@david look","contextInfo":{"mentionedJid":["972500000001@s.whatsapp.net"],"stanzaId":"OWN123","quotedMessage":{"conversation":"original"}}}}}`)

	ev, err := ParseMessageEvent(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	m := ev.Message.Unwrap()
	if got := m.Mentions(); len(got) != 1 || got[0] != "972500000001@s.whatsapp.net" {
		t.Fatalf("mentions = %v", got)
	}
	if m.QuotedStanzaID() != "OWN123" {
		t.Fatalf("stanzaId = %q", m.QuotedStanzaID())
	}
	if m.QuotedBody() != "original" {
		t.Fatalf("quoted body = %q", m.QuotedBody())
	}
}

func TestTimestampDecoding(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"number", `1714000000`, 1714000000},
		{"string", `"1714000000"`, 1714000000},
		{"millis", `1714000000123`, 1714000000123},
		{"garbage", `{"low":1}`, 0},
		{"null", `null`, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tc.in), &ts); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if int64(ts) != tc.want {
				t.Fatalf("decoded %d, want %d", int64(ts), tc.want)
			}
		})
	}

	if got := Timestamp(1714000000).Time(); got.Unix() != 1714000000 {
		t.Fatalf("seconds interpretation wrong: %v", got)
	}
	if got := Timestamp(1714000000123).Time(); got.UnixMilli() != 1714000000123 {
		t.Fatalf("millis interpretation wrong: %v", got)
	}
}

func TestByteBlobDecoding(t *testing.T) {
	var b ByteBlob
	if err := json.Unmarshal([]byte(`"aGVsbG8="`), &b); err != nil || string(b) != "hello" {
		t.Fatalf("base64 decode: %v %q", err, b)
	}
	if err := json.Unmarshal([]byte(`{"type":"Buffer","data":[104,105]}`), &b); err != nil || string(b) != "hi" {
		t.Fatalf("buffer object decode: %v %q", err, b)
	}
	if err := json.Unmarshal([]byte(`[104,105]`), &b); err != nil || string(b) != "hi" {
		t.Fatalf("array decode: %v %q", err, b)
	}
	if err := json.Unmarshal([]byte(`"not base64!!"`), &b); err != nil || b != nil {
		t.Fatalf("invalid base64 should decode to nil, got %v %q", err, b)
	}
}
