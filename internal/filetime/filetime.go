// Package filetime tracks when each session last read each file, so
// mutating tools can refuse to clobber content the model has not seen.
package filetime

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	// ErrNotRead reports a mutation attempt on an existing file the
	// session never read.
	ErrNotRead = errors.New("file has not been read in this session")
	// ErrStale reports that the file changed on disk after the
	// session's last read.
	ErrStale = errors.New("file was modified since it was last read")
)

// Tracker is the process-wide read-time table, keyed by session and
// absolute path.
type Tracker struct {
	mu   sync.Mutex
	read map[string]map[string]time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{read: make(map[string]map[string]time.Time)}
}

// NoteRead records that the session read path now.
func (t *Tracker) NoteRead(sessionID, path string) {
	abs := absolute(path)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.read[sessionID] == nil {
		t.read[sessionID] = make(map[string]time.Time)
	}
	t.read[sessionID][abs] = time.Now()
}

// ReadTime returns when the session last read path.
func (t *Tracker) ReadTime(sessionID, path string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.read[sessionID][absolute(path)]
	return at, ok
}

// AssertFresh fails unless the session read path and the file has not
// changed on disk since. A path that does not exist yet passes, so a
// write can create new files freely.
func (t *Tracker) AssertFresh(sessionID, path string) error {
	abs := absolute(path)

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", abs, err)
	}

	readAt, ok := t.ReadTime(sessionID, abs)
	if !ok {
		return fmt.Errorf("%s: %w", abs, ErrNotRead)
	}
	if info.ModTime().After(readAt) {
		return fmt.Errorf("%s: %w", abs, ErrStale)
	}
	return nil
}

// Prune drops every record for the session.
func (t *Tracker) Prune(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.read, sessionID)
}

func absolute(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
