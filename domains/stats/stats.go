package stats

import (
	"context"

	"github.com/wafilter/wafilter/domains/events"
)

// EventCounters is the per-kind tally.
type EventCounters struct {
	Total        int    `json:"total"`
	Filtered     int    `json:"filtered"`
	Forwarded    int    `json:"forwarded"`
	Failed       int    `json:"failed"`
	LastReceived string `json:"lastReceived,omitempty"`
}

type AlertCounters struct {
	Sent    int            `json:"sent"`
	Failed  int            `json:"failed"`
	ByLevel map[string]int `json:"byLevel"`
}

type Session struct {
	StartedAt string `json:"startedAt"`
	LastSaved string `json:"lastSaved,omitempty"`
}

// Snapshot is the full persisted and reported state. The three flat counters
// at the bottom predate the per-kind map and are kept for dashboards that
// still read them.
type Snapshot struct {
	Events       map[string]EventCounters `json:"events"`
	Alerts       AlertCounters            `json:"alerts"`
	RecentEvents []events.StoredEvent     `json:"recentEvents"`
	Session      Session                  `json:"session"`

	TotalMessages    int `json:"totalMessages"`
	FilteredMessages int `json:"filteredMessages"`
	AllowedMessages  int `json:"allowedMessages"`

	Uptime string `json:"uptime,omitempty"`
}

type RecentPage struct {
	Events  []events.StoredEvent `json:"events"`
	HasMore bool                 `json:"hasMore"`
}

type IStatsUsecase interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	Recent(ctx context.Context, limit, offset int, kind string) (RecentPage, error)
}
