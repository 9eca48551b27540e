package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/wafilter/wafilter/pkg/utils"
)

// MediaRecord is one indexed blob on disk.
type MediaRecord struct {
	File      string `json:"file"`
	Mime      string `json:"mime"`
	Size      int64  `json:"size"`
	SavedAt   string `json:"savedAt"`
	Seq       int64  `json:"seq"`
	MessageID string `json:"messageId,omitempty"`
}

// MediaStore owns the media blob directory and its index file. Blobs beyond
// the configured count are evicted oldest first.
type MediaStore struct {
	mu        sync.Mutex
	indexPath string
	dir       string
	maxBytes  int64
	maxFiles  int
	seq       int64

	index map[string]MediaRecord // handle -> record
}

var mimeExtensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
	"image/gif":       "gif",
	"video/mp4":       "mp4",
	"audio/ogg":       "ogg",
	"audio/mpeg":      "mp3",
	"application/pdf": "pdf",
	"text/plain":      "txt",
}

func extensionForMime(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	if ext, ok := mimeExtensions[strings.TrimSpace(strings.ToLower(mime))]; ok {
		return ext
	}
	return "bin"
}

func NewMediaStore(dir, indexPath string, maxBytes int64, maxFiles int) *MediaStore {
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	if maxFiles <= 0 {
		maxFiles = 500
	}
	return &MediaStore{
		indexPath: indexPath,
		dir:       dir,
		maxBytes:  maxBytes,
		maxFiles:  maxFiles,
		index:     make(map[string]MediaRecord),
	}
}

type mediaIndexFile struct {
	Files map[string]MediaRecord `json:"files"`
}

// Load reads the index and drops entries whose blob vanished from disk.
func (s *MediaStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}

	var doc mediaIndexFile
	if err := readJSON(s.indexPath, &doc); err != nil {
		if !os.IsNotExist(err) {
			logrus.Errorf("[STORE] media index %s unreadable, starting empty: %v", s.indexPath, err)
		}
		return nil
	}

	for handle, rec := range doc.Files {
		if rec.Seq > s.seq {
			s.seq = rec.Seq
		}
		if _, err := os.Stat(filepath.Join(s.dir, rec.File)); err != nil {
			continue
		}
		s.index[handle] = rec
	}
	return nil
}

func (s *MediaStore) saveIndexLocked() error {
	doc := mediaIndexFile{Files: make(map[string]MediaRecord, len(s.index))}
	for k, v := range s.index {
		doc.Files[k] = v
	}
	return writeJSONAtomic(s.indexPath, doc)
}

// Save stores the blob and returns its handle. Empty and oversized payloads
// are rejected with an empty handle; the rejection is logged, not an error
// the pipeline would trip over.
func (s *MediaStore) Save(messageID string, data []byte, mime string) string {
	if len(data) == 0 {
		return ""
	}
	if int64(len(data)) > s.maxBytes {
		logrus.Warnf("[STORE] media for %s rejected: %s exceeds the %s limit",
			messageID, humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(s.maxBytes)))
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	name := fmt.Sprintf("%s_%d.%s", utils.SanitizeFilename(messageID), s.seq, extensionForMime(mime))
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0644); err != nil {
		logrus.Errorf("[STORE] media write for %s failed: %v", messageID, err)
		return ""
	}

	s.index[name] = MediaRecord{
		File:      name,
		Mime:      mime,
		Size:      int64(len(data)),
		SavedAt:   nowRFC3339(),
		Seq:       s.seq,
		MessageID: messageID,
	}
	s.evictLocked()

	if err := s.saveIndexLocked(); err != nil {
		logrus.Errorf("[STORE] media index save failed: %v", err)
	}
	return name
}

// evictLocked removes the oldest blobs until the count fits the bound.
func (s *MediaStore) evictLocked() {
	if len(s.index) <= s.maxFiles {
		return
	}

	handles := make([]string, 0, len(s.index))
	for h := range s.index {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		return s.index[handles[i]].Seq < s.index[handles[j]].Seq
	})

	for _, h := range handles[:len(s.index)-s.maxFiles] {
		rec := s.index[h]
		if err := os.Remove(filepath.Join(s.dir, rec.File)); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("[STORE] media eviction could not remove %s: %v", rec.File, err)
		}
		delete(s.index, h)
	}
}

// Get resolves a handle to its on-disk record.
func (s *MediaStore) Get(handle string) (MediaRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.index[handle]
	return rec, ok
}

// Path returns the absolute blob location for a record.
func (s *MediaStore) Path(rec MediaRecord) string {
	return filepath.Join(s.dir, rec.File)
}

// Count returns the number of indexed blobs.
func (s *MediaStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}
