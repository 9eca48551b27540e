package usecase

import (
	"context"
	"strings"
	"time"

	domainStats "github.com/wafilter/wafilter/domains/stats"
	"github.com/wafilter/wafilter/infrastructure/storage"
)

const defaultRecentLimit = 50

type serviceStats struct {
	store *storage.StatsStore
}

func NewStatsService(store *storage.StatsStore) domainStats.IStatsUsecase {
	return &serviceStats{store: store}
}

func (service serviceStats) Snapshot(_ context.Context) (domainStats.Snapshot, error) {
	snapshot := service.store.Snapshot()
	if started, err := time.Parse(time.RFC3339, snapshot.Session.StartedAt); err == nil {
		snapshot.Uptime = time.Since(started).Round(time.Second).String()
	}
	return snapshot, nil
}

func (service serviceStats) Recent(_ context.Context, limit, offset int, kind string) (domainStats.RecentPage, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if offset < 0 {
		offset = 0
	}

	events, hasMore := service.store.Recent(limit, offset, strings.ToUpper(strings.TrimSpace(kind)))
	return domainStats.RecentPage{Events: events, HasMore: hasMore}, nil
}
