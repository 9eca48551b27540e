package events

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// The types below mirror the message payload shape used by WhatsApp gateway
// webhooks. Only the fields the pipeline reads are declared; everything else
// survives untouched inside the envelope's raw bytes.

type MessageKey struct {
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	ID          string `json:"id"`
	Participant string `json:"participant,omitempty"`
	SenderPn    string `json:"senderPn,omitempty"`
}

type ContextInfo struct {
	StanzaID      string          `json:"stanzaId,omitempty"`
	Participant   string          `json:"participant,omitempty"`
	MentionedJID  []string        `json:"mentionedJid,omitempty"`
	QuotedMessage *MessageContent `json:"quotedMessage,omitempty"`
}

type ExtendedTextMessage struct {
	Text        string       `json:"text"`
	ContextInfo *ContextInfo `json:"contextInfo,omitempty"`
}

type MediaMessage struct {
	Caption       string       `json:"caption,omitempty"`
	Mimetype      string       `json:"mimetype,omitempty"`
	URL           string       `json:"url,omitempty"`
	FileName      string       `json:"fileName,omitempty"`
	FileLength    Timestamp    `json:"fileLength,omitempty"`
	Seconds       int          `json:"seconds,omitempty"`
	JPEGThumbnail ByteBlob     `json:"jpegThumbnail,omitempty"`
	ContextInfo   *ContextInfo `json:"contextInfo,omitempty"`
}

type LocationMessage struct {
	DegreesLatitude  float64 `json:"degreesLatitude"`
	DegreesLongitude float64 `json:"degreesLongitude"`
	Name             string  `json:"name,omitempty"`
}

type ContactMessage struct {
	DisplayName string `json:"displayName,omitempty"`
	Vcard       string `json:"vcard,omitempty"`
}

type PollCreationMessage struct {
	Name string `json:"name,omitempty"`
}

type ReactionMessage struct {
	Key  *MessageKey `json:"key,omitempty"`
	Text string      `json:"text,omitempty"`
}

// WrappedMessage is the envelope used by ephemeral, view-once and
// document-with-caption wrappers.
type WrappedMessage struct {
	Message *MessageContent `json:"message,omitempty"`
}

type MessageContent struct {
	Conversation        string               `json:"conversation,omitempty"`
	ExtendedTextMessage *ExtendedTextMessage `json:"extendedTextMessage,omitempty"`

	ImageMessage    *MediaMessage        `json:"imageMessage,omitempty"`
	VideoMessage    *MediaMessage        `json:"videoMessage,omitempty"`
	AudioMessage    *MediaMessage        `json:"audioMessage,omitempty"`
	DocumentMessage *MediaMessage        `json:"documentMessage,omitempty"`
	StickerMessage  *MediaMessage        `json:"stickerMessage,omitempty"`
	LocationMessage *LocationMessage     `json:"locationMessage,omitempty"`
	ContactMessage  *ContactMessage      `json:"contactMessage,omitempty"`
	PollCreation    *PollCreationMessage `json:"pollCreationMessage,omitempty"`
	PollCreationV3  *PollCreationMessage `json:"pollCreationMessageV3,omitempty"`
	ReactionMessage *ReactionMessage     `json:"reactionMessage,omitempty"`

	EphemeralMessage           *WrappedMessage `json:"ephemeralMessage,omitempty"`
	ViewOnceMessage            *WrappedMessage `json:"viewOnceMessage,omitempty"`
	ViewOnceMessageV2          *WrappedMessage `json:"viewOnceMessageV2,omitempty"`
	DocumentWithCaptionMessage *WrappedMessage `json:"documentWithCaptionMessage,omitempty"`

	ProtocolMessage              json.RawMessage `json:"protocolMessage,omitempty"`
	SenderKeyDistributionMessage json.RawMessage `json:"senderKeyDistributionMessage,omitempty"`
}

// MessageEvent is the parsed view of a message-class payload.
type MessageEvent struct {
	Key              MessageKey      `json:"key"`
	PushName         string          `json:"pushName,omitempty"`
	Message          *MessageContent `json:"message,omitempty"`
	MessageTimestamp Timestamp       `json:"messageTimestamp,omitempty"`
}

// ParseMessageEvent decodes a message payload, unwrapping one level of
// `data` nesting when the gateway wrapped the event.
func ParseMessageEvent(raw []byte) (*MessageEvent, error) {
	var probe struct {
		Data json.RawMessage `json:"data"`
		Key  *MessageKey     `json:"key"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	body := raw
	if probe.Key == nil && len(probe.Data) > 0 && probe.Data[0] == '{' {
		body = probe.Data
	}

	var ev MessageEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Unwrap peels wrapper layers until user content is reached. The pass count
// is bounded so a malicious nesting chain cannot loop forever.
func (m *MessageContent) Unwrap() *MessageContent {
	if m == nil {
		return nil
	}
	inner := m
	for i := 0; i < 4; i++ {
		next := inner.unwrapOnce()
		if next == nil {
			break
		}
		inner = next
	}
	return inner
}

func (m *MessageContent) unwrapOnce() *MessageContent {
	if m.EphemeralMessage != nil && m.EphemeralMessage.Message != nil {
		return m.EphemeralMessage.Message
	}
	if m.ViewOnceMessage != nil && m.ViewOnceMessage.Message != nil {
		return m.ViewOnceMessage.Message
	}
	if m.ViewOnceMessageV2 != nil && m.ViewOnceMessageV2.Message != nil {
		return m.ViewOnceMessageV2.Message
	}
	if m.DocumentWithCaptionMessage != nil && m.DocumentWithCaptionMessage.Message != nil {
		return m.DocumentWithCaptionMessage.Message
	}
	return nil
}

// HasUserContent reports whether the message carries anything a human sent.
// Pure protocol traffic (key distribution, history sync notices) does not.
func (m *MessageContent) HasUserContent() bool {
	if m == nil {
		return false
	}
	return m.Conversation != "" || m.ExtendedTextMessage != nil ||
		m.ImageMessage != nil || m.VideoMessage != nil || m.AudioMessage != nil ||
		m.DocumentMessage != nil || m.StickerMessage != nil ||
		m.LocationMessage != nil || m.ContactMessage != nil ||
		m.PollCreation != nil || m.PollCreationV3 != nil ||
		m.ReactionMessage != nil ||
		m.EphemeralMessage != nil || m.ViewOnceMessage != nil ||
		m.ViewOnceMessageV2 != nil || m.DocumentWithCaptionMessage != nil
}

// Kind classifies the (already unwrapped) content.
func (m *MessageContent) Kind() string {
	switch {
	case m == nil:
		return "unknown"
	case m.Conversation != "" || m.ExtendedTextMessage != nil:
		return "text"
	case m.ImageMessage != nil:
		return "image"
	case m.VideoMessage != nil:
		return "video"
	case m.AudioMessage != nil:
		return "audio"
	case m.DocumentMessage != nil:
		return "document"
	case m.StickerMessage != nil:
		return "sticker"
	case m.LocationMessage != nil:
		return "location"
	case m.ContactMessage != nil:
		return "contact"
	case m.PollCreation != nil || m.PollCreationV3 != nil:
		return "poll"
	case m.ReactionMessage != nil:
		return "reaction"
	default:
		return "unknown"
	}
}

// Body extracts the human-readable text: plain text, extended text or the
// media caption, whichever the content carries.
func (m *MessageContent) Body() string {
	switch {
	case m == nil:
		return ""
	case m.Conversation != "":
		return m.Conversation
	case m.ExtendedTextMessage != nil:
		return m.ExtendedTextMessage.Text
	case m.ImageMessage != nil:
		return m.ImageMessage.Caption
	case m.VideoMessage != nil:
		return m.VideoMessage.Caption
	case m.DocumentMessage != nil:
		if m.DocumentMessage.Caption != "" {
			return m.DocumentMessage.Caption
		}
		return m.DocumentMessage.FileName
	case m.LocationMessage != nil:
		return m.LocationMessage.Name
	case m.ContactMessage != nil:
		return m.ContactMessage.DisplayName
	case m.PollCreation != nil:
		return m.PollCreation.Name
	case m.PollCreationV3 != nil:
		return m.PollCreationV3.Name
	case m.ReactionMessage != nil:
		return m.ReactionMessage.Text
	default:
		return ""
	}
}

func (m *MessageContent) media() *MediaMessage {
	switch {
	case m == nil:
		return nil
	case m.ImageMessage != nil:
		return m.ImageMessage
	case m.VideoMessage != nil:
		return m.VideoMessage
	case m.AudioMessage != nil:
		return m.AudioMessage
	case m.DocumentMessage != nil:
		return m.DocumentMessage
	case m.StickerMessage != nil:
		return m.StickerMessage
	default:
		return nil
	}
}

func (m *MessageContent) HasMedia() bool {
	return m.media() != nil
}

func (m *MessageContent) MediaMime() string {
	if md := m.media(); md != nil {
		return md.Mimetype
	}
	return ""
}

// InlineThumbnail returns the embedded preview bytes, if any.
func (m *MessageContent) InlineThumbnail() []byte {
	if md := m.media(); md != nil {
		return md.JPEGThumbnail
	}
	return nil
}

func (m *MessageContent) contextInfo() *ContextInfo {
	switch {
	case m == nil:
		return nil
	case m.ExtendedTextMessage != nil && m.ExtendedTextMessage.ContextInfo != nil:
		return m.ExtendedTextMessage.ContextInfo
	}
	if md := m.media(); md != nil && md.ContextInfo != nil {
		return md.ContextInfo
	}
	return nil
}

// Mentions returns the raw JIDs tagged in the message.
func (m *MessageContent) Mentions() []string {
	if ci := m.contextInfo(); ci != nil {
		return ci.MentionedJID
	}
	return nil
}

// QuotedStanzaID returns the ID of the message this one replies to.
func (m *MessageContent) QuotedStanzaID() string {
	if ci := m.contextInfo(); ci != nil {
		return ci.StanzaID
	}
	return ""
}

// QuotedBody returns the text of the quoted message, when present.
func (m *MessageContent) QuotedBody() string {
	if ci := m.contextInfo(); ci != nil && ci.QuotedMessage != nil {
		return ci.QuotedMessage.Unwrap().Body()
	}
	return ""
}

// Timestamp tolerates the numeric and string encodings gateways emit for
// epoch values. Unparseable values decode to zero instead of failing the
// whole event.
type Timestamp int64

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*t = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*t = 0
		return nil
	}
	*t = Timestamp(int64(f))
	return nil
}

// Time interprets the value as epoch seconds, or epoch milliseconds for
// values too large to be seconds.
func (t Timestamp) Time() time.Time {
	v := int64(t)
	if v <= 0 {
		return time.Time{}
	}
	if v > 1_000_000_000_000 {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}

// ByteBlob decodes the two buffer encodings seen in webhook payloads:
// base64 strings and node Buffer objects ({"type":"Buffer","data":[...]}).
type ByteBlob []byte

func (b *ByteBlob) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*b = nil
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			*b = nil
			return nil
		}
		*b = raw
	case '{':
		var buf struct {
			Data []int `json:"data"`
		}
		if err := json.Unmarshal(data, &buf); err != nil {
			return err
		}
		out := make([]byte, len(buf.Data))
		for i, v := range buf.Data {
			out[i] = byte(v)
		}
		*b = out
	case '[':
		var arr []int
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		out := make([]byte, len(arr))
		for i, v := range arr {
			out[i] = byte(v)
		}
		*b = out
	default:
		*b = nil
	}
	return nil
}
