// Package state persists the last extracted snapshot per watch as one JSON
// file under the state directory.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/pagewatch/pagewatch/errors"
)

// Record is the persisted per-watch state. Data always reflects the most
// recent successful run; failed runs only annotate the error side-channel so
// change detection keeps a baseline to diff against.
type Record struct {
	Data        map[string]any `json:"data"`
	Timestamp   string         `json:"timestamp"`
	LastError   string         `json:"lastError,omitempty"`
	LastErrorAt string         `json:"lastErrorAt,omitempty"`
}

// Store is a file-per-watch JSON store. The scheduler guarantees a single
// writer per watch, so no locking beyond write-then-rename is needed.
type Store struct {
	dir    string
	logger *zap.SugaredLogger
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string, logger *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create state directory %s", dir)
	}
	return &Store{dir: dir, logger: logger}, nil
}

func (s *Store) path(watchID string) string {
	return filepath.Join(s.dir, watchID+".json")
}

// Load returns the persisted record for a watch, or nil when the file is
// missing or malformed.
func (s *Store) Load(watchID string) *Record {
	data, err := os.ReadFile(s.path(watchID))
	if err != nil {
		return nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warnw("Malformed state file, treating as absent",
			"watch_id", watchID,
			"error", err)
		return nil
	}
	return &rec
}

// SaveSnapshot persists a successful run's snapshot, clearing any recorded
// error.
func (s *Store) SaveSnapshot(watchID string, snapshot map[string]any) error {
	rec := Record{
		Data:      snapshot,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	return s.write(watchID, &rec)
}

// RecordError annotates the stored record with a failure while preserving
// the last successful snapshot.
func (s *Store) RecordError(watchID string, message string) error {
	rec := s.Load(watchID)
	if rec == nil {
		rec = &Record{}
	}
	rec.LastError = message
	rec.LastErrorAt = time.Now().UTC().Format(time.RFC3339)
	return s.write(watchID, rec)
}

// write serializes with write-then-rename so readers never observe a torn
// file.
func (s *Store) write(watchID string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal state record")
	}

	tmp := s.path(watchID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write state file for %s", watchID)
	}
	if err := os.Rename(tmp, s.path(watchID)); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "failed to replace state file for %s", watchID)
	}
	return nil
}

// ErrorScreenshotPath names an error screenshot for a watch at an instant.
func ErrorScreenshotPath(screenshotDir, watchID string, at time.Time) string {
	return filepath.Join(screenshotDir, fmt.Sprintf("error-%s-%d.png", watchID, at.UnixMilli()))
}

// SessionStatePath names the persisted browser storage state for a watch.
func SessionStatePath(sessionDir, watchID string) string {
	return filepath.Join(sessionDir, watchID, "state.json")
}
