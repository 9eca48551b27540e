package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/wafilter/wafilter/domains/events"
)

func newTestStatsStore(t *testing.T, ringLimit int) (*StatsStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stats.json")
	s := NewStatsStore(path, ringLimit)
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s, path
}

func TestStatsRecordEvent(t *testing.T) {
	s, _ := newTestStatsStore(t, 10)

	s.RecordEvent(events.MessagesUpsert, events.ActionForwarded)
	s.RecordEvent(events.MessagesUpsert, events.ActionForwarded)
	s.RecordEvent(events.MessagesUpsert, events.ActionFiltered)
	s.RecordEvent(events.MessagesUpsert, events.ActionFailed)
	s.RecordEvent(events.ContactsUpsert, events.ActionForwarded)

	snap := s.Snapshot()
	c := snap.Events[events.MessagesUpsert]
	if c.Total != 4 || c.Forwarded != 2 || c.Filtered != 1 || c.Failed != 1 {
		t.Fatalf("upsert counters = %+v", c)
	}
	if c.LastReceived == "" {
		t.Fatal("lastReceived not stamped")
	}

	// Only message kinds feed the flat legacy counters.
	if snap.TotalMessages != 4 || snap.AllowedMessages != 2 || snap.FilteredMessages != 1 {
		t.Fatalf("legacy counters = %d/%d/%d",
			snap.TotalMessages, snap.AllowedMessages, snap.FilteredMessages)
	}
}

func TestStatsRingBounded(t *testing.T) {
	s, _ := newTestStatsStore(t, 5)

	for i := 0; i < 8; i++ {
		s.PushRecent(events.StoredEvent{
			Event:  events.MessagesUpsert,
			Action: events.ActionForwarded,
			Source: fmt.Sprintf("97250000000%d", i),
		})
	}

	recent, hasMore := s.Recent(10, 0, "")
	if len(recent) != 5 {
		t.Fatalf("ring holds %d entries, want 5", len(recent))
	}
	if hasMore {
		t.Fatal("nothing beyond the ring")
	}
	if recent[0].Source != "972500000007" {
		t.Fatalf("newest first violated: %s", recent[0].Source)
	}
	if recent[4].Source != "972500000003" {
		t.Fatalf("oldest surviving entry = %s, want 972500000003", recent[4].Source)
	}
}

func TestStatsPushRecentFillsIdentity(t *testing.T) {
	s, _ := newTestStatsStore(t, 10)
	ev := s.PushRecent(events.StoredEvent{Event: events.Call, Action: events.ActionLogged})
	if ev.ID == "" || ev.Timestamp == "" {
		t.Fatalf("id/timestamp not filled: %+v", ev)
	}

	kept := events.StoredEvent{ID: "fixed", Timestamp: "2026-01-02T03:04:05Z", Event: events.Call, Action: events.ActionLogged}
	if got := s.PushRecent(kept); got.ID != "fixed" || got.Timestamp != "2026-01-02T03:04:05Z" {
		t.Fatalf("caller identity overwritten: %+v", got)
	}
}

func TestStatsRecentFilterAndPaging(t *testing.T) {
	s, _ := newTestStatsStore(t, 20)
	for i := 0; i < 6; i++ {
		kind := events.MessagesUpsert
		if i%2 == 1 {
			kind = events.ConnectionUpdate
		}
		s.PushRecent(events.StoredEvent{Event: kind, Action: events.ActionLogged, Source: fmt.Sprint(i)})
	}

	only, _ := s.Recent(10, 0, events.ConnectionUpdate)
	if len(only) != 3 {
		t.Fatalf("kind filter kept %d, want 3", len(only))
	}
	for _, ev := range only {
		if ev.Event != events.ConnectionUpdate {
			t.Fatalf("wrong kind slipped through: %s", ev.Event)
		}
	}

	page, hasMore := s.Recent(2, 0, "")
	if len(page) != 2 || !hasMore {
		t.Fatalf("first page len=%d hasMore=%v", len(page), hasMore)
	}
	page, hasMore = s.Recent(2, 4, "")
	if len(page) != 2 || hasMore {
		t.Fatalf("last page len=%d hasMore=%v", len(page), hasMore)
	}
	if page, hasMore = s.Recent(2, 99, ""); len(page) != 0 || hasMore {
		t.Fatal("past-the-end offset should return an empty page")
	}
}

func TestStatsRecordAlert(t *testing.T) {
	s, _ := newTestStatsStore(t, 10)
	s.RecordAlert("critical", true)
	s.RecordAlert("warning", true)
	s.RecordAlert("critical", false)

	snap := s.Snapshot()
	if snap.Alerts.Sent != 2 || snap.Alerts.Failed != 1 {
		t.Fatalf("alert counters = %+v", snap.Alerts)
	}
	if snap.Alerts.ByLevel["critical"] != 2 || snap.Alerts.ByLevel["warning"] != 1 {
		t.Fatalf("by-level counters = %+v", snap.Alerts.ByLevel)
	}
}

func TestStatsPersistence(t *testing.T) {
	s, path := newTestStatsStore(t, 3)
	s.RecordEvent(events.MessagesUpsert, events.ActionForwarded)
	s.RecordAlert("info", true)
	for i := 0; i < 5; i++ {
		s.PushRecent(events.StoredEvent{Event: events.MessagesUpsert, Action: events.ActionForwarded})
	}
	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := NewStatsStore(path, 3)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	snap := reloaded.Snapshot()
	if snap.Events[events.MessagesUpsert].Forwarded != 1 {
		t.Fatalf("counters lost: %+v", snap.Events)
	}
	if snap.Alerts.Sent != 1 {
		t.Fatalf("alerts lost: %+v", snap.Alerts)
	}
	if len(snap.RecentEvents) != 3 {
		t.Fatalf("ring reloaded with %d entries, want 3", len(snap.RecentEvents))
	}
	if snap.Session.StartedAt == "" {
		t.Fatal("session start missing after reload")
	}
}
