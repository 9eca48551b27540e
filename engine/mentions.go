package engine

import (
	"strings"

	"github.com/wafilter/wafilter/pkg/waid"
)

// Mention detection methods.
const (
	MentionMethodTag     = "tag"
	MentionMethodKeyword = "keyword"
	MentionMethodReply   = "reply"
)

type MentionInput struct {
	Body           string
	MentionedJIDs  []string
	QuotedStanzaID string
	SelfPhone      string
}

type Mention struct {
	Method   string   `json:"method"`
	Keywords []string `json:"keywords,omitempty"`
}

// MentionDetector finds the three mention signals in a group message: a
// direct tag of the own number, a configured keyword in the body, or a reply
// to one of our own messages.
type MentionDetector struct {
	keywords []string
	own      HistorySink
}

func NewMentionDetector(keywords []string, own HistorySink) *MentionDetector {
	cleaned := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			cleaned = append(cleaned, kw)
		}
	}
	return &MentionDetector{keywords: cleaned, own: own}
}

// Detect checks the signals in order; the first hit wins.
func (d *MentionDetector) Detect(in MentionInput) (Mention, bool) {
	if in.Body == "" && len(in.MentionedJIDs) == 0 && in.QuotedStanzaID == "" {
		return Mention{}, false
	}

	if self := waid.NormalizePhone(in.SelfPhone); self != "" {
		for _, jid := range in.MentionedJIDs {
			p := waid.NormalizePhone(jid)
			if p != "" && (p == self || strings.HasSuffix(p, self)) {
				return Mention{Method: MentionMethodTag}, true
			}
		}
	}

	if in.Body != "" && len(d.keywords) > 0 {
		lower := strings.ToLower(in.Body)
		var matched []string
		for _, kw := range d.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > 0 {
			return Mention{Method: MentionMethodKeyword, Keywords: matched}, true
		}
	}

	if in.QuotedStanzaID != "" && d.own != nil && d.own.IsOwnMessage(in.QuotedStanzaID) {
		return Mention{Method: MentionMethodReply}, true
	}
	return Mention{}, false
}
