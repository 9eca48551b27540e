package usecase

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	domainHistory "github.com/wafilter/wafilter/domains/history"
	"github.com/wafilter/wafilter/infrastructure/storage"
	pkgError "github.com/wafilter/wafilter/pkg/error"
	"github.com/wafilter/wafilter/pkg/waid"
)

const defaultMessagesLimit = 50

type serviceHistory struct {
	messages *storage.MessageStore
	media    *storage.MediaStore
}

func NewHistoryService(messages *storage.MessageStore, media *storage.MediaStore) domainHistory.IHistoryUsecase {
	return &serviceHistory{messages: messages, media: media}
}

func (service serviceHistory) Sources(_ context.Context) ([]domainHistory.SourceSummary, error) {
	return service.messages.Sources(), nil
}

func (service serviceHistory) Messages(_ context.Context, sourceID string, limit, offset int) (domainHistory.MessagesPage, error) {
	id := normalizeSourceID(sourceID)
	if id == "" {
		return domainHistory.MessagesPage{}, pkgError.ValidationError("source id is required")
	}
	if limit <= 0 {
		limit = defaultMessagesLimit
	}
	if offset < 0 {
		offset = 0
	}

	msgs, hasMore := service.messages.Get(id, limit, offset)
	return domainHistory.MessagesPage{Messages: msgs, HasMore: hasMore}, nil
}

func (service serviceHistory) DeleteSource(_ context.Context, sourceID string) (int, error) {
	id := normalizeSourceID(sourceID)
	if id == "" {
		return 0, pkgError.ValidationError("source id is required")
	}

	removed := service.messages.Delete(id)
	if removed > 0 {
		logrus.Infof("[HISTORY] dropped %d message(s) for %s", removed, id)
	}
	return removed, nil
}

func (service serviceHistory) Media(_ context.Context, handle string) (domainHistory.MediaFile, error) {
	if strings.TrimSpace(handle) == "" {
		return domainHistory.MediaFile{}, pkgError.ValidationError("media handle is required")
	}

	rec, ok := service.media.Get(handle)
	if !ok {
		return domainHistory.MediaFile{}, pkgError.NotFoundError("media not found or evicted")
	}
	return domainHistory.MediaFile{
		Path: service.media.Path(rec),
		Mime: rec.Mime,
		Size: rec.Size,
	}, nil
}

// normalizeSourceID accepts both bare IDs and full JIDs so API callers can
// paste either form.
func normalizeSourceID(sourceID string) string {
	src := waid.ParseSource(strings.TrimSpace(sourceID))
	if src.Type == waid.SourceStatus {
		return waid.StatusBroadcast
	}
	return src.ID
}
