package storage

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wafilter/wafilter/domains/history"
)

const ownIDCap = 500

// MessageStore owns messages.json: normalized history per source plus the
// bounded set of our own outgoing message IDs used for reply detection.
type MessageStore struct {
	mu        sync.Mutex
	path      string
	perSource int
	maxTotal  int
	dirty     bool

	sources map[string][]history.Message // newest first
	count   int

	ownIDs []string // FIFO, oldest first
	ownSet map[string]struct{}
}

type messagesFile struct {
	Sources map[string][]history.Message `json:"sources"`
	OwnIDs  []string                     `json:"ownIds,omitempty"`
}

func NewMessageStore(path string, perSource, maxTotal int) *MessageStore {
	if perSource <= 0 {
		perSource = 100
	}
	if maxTotal <= 0 {
		maxTotal = 5000
	}
	return &MessageStore{
		path:      path,
		perSource: perSource,
		maxTotal:  maxTotal,
		sources:   make(map[string][]history.Message),
		ownSet:    make(map[string]struct{}),
	}
}

func (s *MessageStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc messagesFile
	if err := readJSON(s.path, &doc); err != nil {
		if !os.IsNotExist(err) {
			logrus.Errorf("[STORE] messages file %s unreadable, starting empty: %v", s.path, err)
		}
		return nil
	}

	if doc.Sources != nil {
		s.sources = doc.Sources
	}
	s.count = 0
	for _, msgs := range s.sources {
		s.count += len(msgs)
	}
	for _, id := range doc.OwnIDs {
		s.ownIDs = append(s.ownIDs, id)
		s.ownSet[id] = struct{}{}
	}
	return nil
}

func (s *MessageStore) Save() error {
	s.mu.Lock()
	doc := messagesFile{
		Sources: make(map[string][]history.Message, len(s.sources)),
		OwnIDs:  append([]string(nil), s.ownIDs...),
	}
	for k, v := range s.sources {
		doc.Sources[k] = append([]history.Message(nil), v...)
	}
	s.dirty = false
	s.mu.Unlock()
	return writeJSONAtomic(s.path, doc)
}

// Add prepends m to its source, enforcing the per-source cap and then the
// global one. Own outgoing messages additionally feed the reply-detection
// set.
func (s *MessageStore) Add(sourceID string, m history.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append([]history.Message{m}, s.sources[sourceID]...)
	dropped := 0
	if len(msgs) > s.perSource {
		dropped = len(msgs) - s.perSource
		msgs = msgs[:s.perSource]
	}
	s.sources[sourceID] = msgs
	s.count += 1 - dropped

	for s.count > s.maxTotal {
		if !s.evictOldestLocked() {
			break
		}
	}

	if m.FromSelf && m.ID != "" {
		s.rememberOwnLocked(m.ID)
	}
	s.dirty = true
}

// evictOldestLocked removes the globally oldest message. Sources emptied by
// the eviction disappear entirely.
func (s *MessageStore) evictOldestLocked() bool {
	oldestSource := ""
	oldestTS := ""
	for id, msgs := range s.sources {
		if len(msgs) == 0 {
			delete(s.sources, id)
			continue
		}
		// Slices are newest first, so the candidate is the tail.
		ts := msgs[len(msgs)-1].Timestamp
		if oldestSource == "" || ts < oldestTS {
			oldestSource, oldestTS = id, ts
		}
	}
	if oldestSource == "" {
		return false
	}

	msgs := s.sources[oldestSource]
	msgs = msgs[:len(msgs)-1]
	if len(msgs) == 0 {
		delete(s.sources, oldestSource)
	} else {
		s.sources[oldestSource] = msgs
	}
	s.count--
	return true
}

func (s *MessageStore) rememberOwnLocked(id string) {
	if _, ok := s.ownSet[id]; ok {
		return
	}
	s.ownIDs = append(s.ownIDs, id)
	s.ownSet[id] = struct{}{}
	for len(s.ownIDs) > ownIDCap {
		evicted := s.ownIDs[0]
		s.ownIDs = s.ownIDs[1:]
		delete(s.ownSet, evicted)
	}
}

// AttachMedia sets the media handle on an already stored message, once its
// download finished. Returns false when the message is gone (evicted or
// never stored).
func (s *MessageStore) AttachMedia(sourceID, messageID, handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.sources[sourceID] {
		if m.ID == messageID {
			s.sources[sourceID][i].MediaHandle = handle
			s.dirty = true
			return true
		}
	}
	return false
}

// SetThumbnail fills in a thumbnail data URI on an already stored message.
// Used by the media downloader when it generates one from the full bytes.
func (s *MessageStore) SetThumbnail(sourceID, messageID, dataURI string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.sources[sourceID] {
		if m.ID == messageID {
			if s.sources[sourceID][i].Thumbnail == "" {
				s.sources[sourceID][i].Thumbnail = dataURI
				s.dirty = true
			}
			return true
		}
	}
	return false
}

// IsOwnMessage reports whether id is one of our own recent outgoing
// messages.
func (s *MessageStore) IsOwnMessage(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ownSet[id]
	return ok
}

// Get pages through one source newest first.
func (s *MessageStore) Get(sourceID string, limit, offset int) ([]history.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.sources[sourceID]
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(msgs) {
		return []history.Message{}, false
	}
	end := offset + limit
	hasMore := end < len(msgs)
	if end > len(msgs) {
		end = len(msgs)
	}
	out := make([]history.Message, end-offset)
	copy(out, msgs[offset:end])
	return out, hasMore
}

// Sources lists every chat with stored history, most recently active first.
func (s *MessageStore) Sources() []history.SourceSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]history.SourceSummary, 0, len(s.sources))
	for id, msgs := range s.sources {
		if len(msgs) == 0 {
			continue
		}
		out = append(out, history.SourceSummary{
			ID:            id,
			Count:         len(msgs),
			LastTimestamp: msgs[0].Timestamp,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastTimestamp > out[j].LastTimestamp })
	return out
}

// Delete drops a whole source and returns how many messages went with it.
func (s *MessageStore) Delete(sourceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, ok := s.sources[sourceID]
	if !ok {
		return 0
	}
	delete(s.sources, sourceID)
	s.count -= len(msgs)
	s.dirty = true
	return len(msgs)
}

// Count returns the total number of stored messages.
func (s *MessageStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// RunFlush writes the file on every tick while there are unsaved changes.
// The shutdown path performs the final flush explicitly.
func (s *MessageStore) RunFlush(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			dirty := s.dirty
			s.mu.Unlock()
			if !dirty {
				continue
			}
			if err := s.Save(); err != nil {
				logrus.Errorf("[STORE] message flush failed: %v", err)
			}
		}
	}
}
