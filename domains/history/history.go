package history

import "context"

// Message is the normalized record kept per source.
type Message struct {
	ID          string `json:"id"`
	ChatID      string `json:"chatId"`
	Sender      string `json:"sender,omitempty"`
	SenderName  string `json:"senderName,omitempty"`
	Body        string `json:"body,omitempty"`
	Type        string `json:"type"`
	HasMedia    bool   `json:"hasMedia,omitempty"`
	MediaType   string `json:"mediaType,omitempty"`
	MediaHandle string `json:"mediaHandle,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	FromSelf    bool   `json:"fromSelf,omitempty"`
	QuotedBody  string `json:"quotedBody,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// SourceSummary describes one chat that has stored history.
type SourceSummary struct {
	ID            string `json:"id"`
	Count         int    `json:"count"`
	LastTimestamp string `json:"lastTimestamp"`
}

type MessagesPage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

type MediaFile struct {
	Path string `json:"path"`
	Mime string `json:"mime"`
	Size int64  `json:"size"`
}

type IHistoryUsecase interface {
	Sources(ctx context.Context) ([]SourceSummary, error)
	Messages(ctx context.Context, sourceID string, limit, offset int) (MessagesPage, error)
	DeleteSource(ctx context.Context, sourceID string) (removed int, err error)
	Media(ctx context.Context, handle string) (MediaFile, error)
}
