package storage

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wafilter/wafilter/domains/events"
	"github.com/wafilter/wafilter/domains/stats"
)

// StatsStore owns stats.json: per-kind counters, alert counters and the ring
// buffer of recent events.
type StatsStore struct {
	mu        sync.Mutex
	path      string
	ringLimit int
	startedAt time.Time

	events  map[string]stats.EventCounters
	alerts  stats.AlertCounters
	recent  []events.StoredEvent
	session stats.Session

	totalMessages    int
	filteredMessages int
	allowedMessages  int
}

func NewStatsStore(path string, ringLimit int) *StatsStore {
	if ringLimit <= 0 {
		ringLimit = 100
	}
	now := time.Now().UTC()
	return &StatsStore{
		path:      path,
		ringLimit: ringLimit,
		startedAt: now,
		events:    make(map[string]stats.EventCounters),
		alerts:    stats.AlertCounters{ByLevel: make(map[string]int)},
		session:   stats.Session{StartedAt: now.Format(time.RFC3339)},
	}
}

// Load merges the persisted state over the zero defaults. The session start
// always resets to the current boot.
func (s *StatsStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap stats.Snapshot
	if err := readJSON(s.path, &snap); err != nil {
		if !os.IsNotExist(err) {
			logrus.Errorf("[STORE] stats file %s unreadable, starting fresh: %v", s.path, err)
		}
		return nil
	}

	if snap.Events != nil {
		s.events = snap.Events
	}
	if snap.Alerts.ByLevel != nil {
		s.alerts = snap.Alerts
	} else {
		s.alerts.Sent = snap.Alerts.Sent
		s.alerts.Failed = snap.Alerts.Failed
	}
	if len(snap.RecentEvents) > s.ringLimit {
		snap.RecentEvents = snap.RecentEvents[:s.ringLimit]
	}
	s.recent = snap.RecentEvents
	s.totalMessages = snap.TotalMessages
	s.filteredMessages = snap.FilteredMessages
	s.allowedMessages = snap.AllowedMessages
	return nil
}

func (s *StatsStore) Save() error {
	s.mu.Lock()
	s.session.LastSaved = nowRFC3339()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return writeJSONAtomic(s.path, snap)
}

// isMessageKind reports whether the kind feeds the flat message counters.
func isMessageKind(kind string) bool {
	return kind == events.MessagesUpsert || kind == events.SendMessage
}

// RecordEvent bumps the per-kind counters. outcome is one of the filtered,
// forwarded or failed actions.
func (s *StatsStore) RecordEvent(kind, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.events[kind]
	c.Total++
	c.LastReceived = nowRFC3339()
	switch outcome {
	case events.ActionFiltered:
		c.Filtered++
	case events.ActionForwarded:
		c.Forwarded++
	case events.ActionFailed:
		c.Failed++
	}
	s.events[kind] = c

	if isMessageKind(kind) {
		s.totalMessages++
		switch outcome {
		case events.ActionFiltered:
			s.filteredMessages++
		case events.ActionForwarded:
			s.allowedMessages++
		}
	}
}

// PushRecent prepends ev to the ring buffer, assigning ID and timestamp when
// the caller left them empty. Overflow drops the oldest entry.
func (s *StatsStore) PushRecent(ev events.StoredEvent) events.StoredEvent {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp == "" {
		ev.Timestamp = nowRFC3339()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append([]events.StoredEvent{ev}, s.recent...)
	if len(s.recent) > s.ringLimit {
		s.recent = s.recent[:s.ringLimit]
	}
	return ev
}

// Recent pages through the buffer newest first, optionally keeping only one
// event kind.
func (s *StatsStore) Recent(limit, offset int, kind string) ([]events.StoredEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := s.recent
	if kind != "" {
		filtered = make([]events.StoredEvent, 0, len(s.recent))
		for _, ev := range s.recent {
			if ev.Event == kind {
				filtered = append(filtered, ev)
			}
		}
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(filtered) {
		return []events.StoredEvent{}, false
	}

	end := offset + limit
	hasMore := end < len(filtered)
	if end > len(filtered) {
		end = len(filtered)
	}
	out := make([]events.StoredEvent, end-offset)
	copy(out, filtered[offset:end])
	return out, hasMore
}

func (s *StatsStore) RecordAlert(level string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ok {
		s.alerts.Sent++
	} else {
		s.alerts.Failed++
	}
	if s.alerts.ByLevel == nil {
		s.alerts.ByLevel = make(map[string]int)
	}
	s.alerts.ByLevel[level]++
}

// Snapshot returns a deep copy for reporting.
func (s *StatsStore) Snapshot() stats.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	snap.Uptime = time.Since(s.startedAt).Round(time.Second).String()
	return snap
}

func (s *StatsStore) snapshotLocked() stats.Snapshot {
	eventsCopy := make(map[string]stats.EventCounters, len(s.events))
	for k, v := range s.events {
		eventsCopy[k] = v
	}
	byLevel := make(map[string]int, len(s.alerts.ByLevel))
	for k, v := range s.alerts.ByLevel {
		byLevel[k] = v
	}
	recentCopy := make([]events.StoredEvent, len(s.recent))
	copy(recentCopy, s.recent)

	return stats.Snapshot{
		Events:           eventsCopy,
		Alerts:           stats.AlertCounters{Sent: s.alerts.Sent, Failed: s.alerts.Failed, ByLevel: byLevel},
		RecentEvents:     recentCopy,
		Session:          s.session,
		TotalMessages:    s.totalMessages,
		FilteredMessages: s.filteredMessages,
		AllowedMessages:  s.allowedMessages,
	}
}

// RunAutosave persists the snapshot on every tick until the context ends.
// The shutdown path performs the final save explicitly.
func (s *StatsStore) RunAutosave(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Save(); err != nil {
				logrus.Errorf("[STORE] stats autosave failed: %v", err)
			}
		}
	}
}
