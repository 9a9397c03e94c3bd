// Package session holds the conversation store and the chat engine
// that drives streaming turns against a provider.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tandemcode/tandem/internal/bus"
	"github.com/tandemcode/tandem/internal/filetime"
	"github.com/tandemcode/tandem/internal/id"
	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/internal/permission"
	"github.com/tandemcode/tandem/internal/storage"
	"github.com/tandemcode/tandem/pkg/types"
)

const defaultTitle = "New Session"

// Store is the session and message cache over storage. All mutations
// go through the store so the cache, the files on disk and the event
// stream stay consistent.
type Store struct {
	storage *storage.Storage
	bus     *bus.Bus
	gate    *permission.Gate
	files   *filetime.Tracker

	mu       sync.RWMutex
	sessions map[string]*types.Session
	messages map[string][]*types.Message
	loaded   map[string]bool
}

// NewStore creates a store over st. Lifecycle events are published on
// b; gate and files are pruned when a session is removed.
func NewStore(st *storage.Storage, b *bus.Bus, gate *permission.Gate, files *filetime.Tracker) *Store {
	return &Store{
		storage:  st,
		bus:      b,
		gate:     gate,
		files:    files,
		sessions: make(map[string]*types.Session),
		messages: make(map[string][]*types.Message),
		loaded:   make(map[string]bool),
	}
}

func sessionKey(sessionID string) []string {
	return []string{"session", "info", sessionID}
}

func messageKey(sessionID, messageID string) []string {
	return []string{"session", "message", sessionID, messageID}
}

// Create allocates a new session. Session IDs descend, so the newest
// session sorts first in a plain key listing.
func (s *Store) Create(ctx context.Context, directory string) (*types.Session, error) {
	now := time.Now().UnixMilli()
	sess := &types.Session{
		ID:        id.New(id.Session),
		Title:     defaultTitle,
		Directory: directory,
		Time:      types.SessionTime{Created: now, Updated: now},
	}
	if err := s.storage.Put(ctx, sessionKey(sess.ID), sess); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.bus.Publish(bus.Event{Type: bus.SessionUpdated, Data: bus.SessionUpdatedData{Info: sess}})
	return sess, nil
}

// Get returns the session, loading it from storage on a cache miss.
func (s *Store) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}

	sess = &types.Session{}
	if err := s.storage.Get(ctx, sessionKey(sessionID), sess); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()
	return sess, nil
}

// Update applies fn to the session under the store lock, stamps the
// updated time, persists and announces the change.
func (s *Store) Update(ctx context.Context, sessionID string, fn func(*types.Session)) (*types.Session, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	fn(sess)
	sess.Time.Updated = time.Now().UnixMilli()
	// Persist a snapshot so a concurrent Update cannot race the encode.
	snapshot := *sess
	s.mu.Unlock()

	if err := s.storage.Put(ctx, sessionKey(sessionID), &snapshot); err != nil {
		return nil, err
	}
	s.bus.Publish(bus.Event{Type: bus.SessionUpdated, Data: bus.SessionUpdatedData{Info: &snapshot}})
	return sess, nil
}

// List returns every session, newest first. Descending IDs make the
// storage listing come back already ordered; the sort below only
// defends against sessions imported from elsewhere.
func (s *Store) List(ctx context.Context) ([]*types.Session, error) {
	var sessions []*types.Session
	err := s.storage.Scan(ctx, []string{"session", "info"}, func(key string, data json.RawMessage) error {
		sess := &types.Session{}
		if err := json.Unmarshal(data, sess); err != nil {
			logging.Warn().Str("session", key).Err(err).Msg("skipping unreadable session record")
			return nil
		}
		s.mu.Lock()
		if cached, ok := s.sessions[sess.ID]; ok {
			sess = cached
		} else {
			s.sessions[sess.ID] = sess
		}
		s.mu.Unlock()
		sessions = append(sessions, sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions, nil
}

// Remove deletes the session, its messages and its share record, and
// prunes per-session tool state. Removal wins over a live share: the
// token record is deleted and any copied link goes dangling.
func (s *Store) Remove(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	messageIDs, err := s.storage.List(ctx, []string{"session", "message", sessionID})
	if err != nil {
		return err
	}
	for _, messageID := range messageIDs {
		if err := s.storage.Delete(ctx, messageKey(sessionID, messageID)); err != nil {
			return err
		}
	}
	if sess.Shared() {
		if err := s.storage.Delete(ctx, []string{"share", sess.Share.Token}); err != nil {
			return err
		}
	}
	if err := s.storage.Delete(ctx, []string{"todo", sessionID}); err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, sessionKey(sessionID)); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	delete(s.loaded, sessionID)
	s.mu.Unlock()

	if s.files != nil {
		s.files.Prune(sessionID)
	}
	if s.gate != nil {
		s.gate.ClearSession(sessionID)
	}

	s.bus.Publish(bus.Event{Type: bus.SessionRemoved, Data: bus.SessionRemovedData{SessionID: sessionID}})
	return nil
}

// Messages returns the session's messages in turn order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	s.mu.RLock()
	if s.loaded[sessionID] {
		out := make([]*types.Message, len(s.messages[sessionID]))
		copy(out, s.messages[sessionID])
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	var msgs []*types.Message
	err := s.storage.Scan(ctx, []string{"session", "message", sessionID}, func(key string, data json.RawMessage) error {
		msg := &types.Message{}
		if err := json.Unmarshal(data, msg); err != nil {
			logging.Warn().Str("message", key).Err(err).Msg("skipping unreadable message record")
			return nil
		}
		msgs = append(msgs, msg)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Ascending message IDs keep the scan in turn order already.
	s.mu.Lock()
	s.messages[sessionID] = msgs
	s.loaded[sessionID] = true
	out := make([]*types.Message, len(msgs))
	copy(out, msgs)
	s.mu.Unlock()
	return out, nil
}

// SaveMessage persists the message and refreshes the cache entry.
func (s *Store) SaveMessage(ctx context.Context, msg *types.Message) error {
	if msg.SessionID == "" {
		return fmt.Errorf("message %s has no session", msg.ID)
	}
	if err := s.storage.Put(ctx, messageKey(msg.SessionID, msg.ID), msg); err != nil {
		return err
	}

	s.mu.Lock()
	if s.loaded[msg.SessionID] {
		replaced := false
		for i, existing := range s.messages[msg.SessionID] {
			if existing.ID == msg.ID {
				s.messages[msg.SessionID][i] = msg
				replaced = true
				break
			}
		}
		if !replaced {
			s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
		}
	}
	s.mu.Unlock()
	return nil
}

// shareRecord maps a share token back to its session.
type shareRecord struct {
	SessionID string `json:"sessionID"`
	Created   int64  `json:"created"`
}

// Share allocates a share token for the session. Sharing an already
// shared session returns the existing share untouched.
func (s *Store) Share(ctx context.Context, sessionID string) (*types.SessionShare, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Shared() {
		return sess.Share, nil
	}

	token := id.New(id.Share)
	record := shareRecord{SessionID: sessionID, Created: time.Now().UnixMilli()}
	if err := s.storage.Put(ctx, []string{"share", token}, record); err != nil {
		return nil, err
	}

	sess, err = s.Update(ctx, sessionID, func(sess *types.Session) {
		sess.Share = &types.SessionShare{Token: token}
	})
	if err != nil {
		return nil, err
	}
	return sess.Share, nil
}

// Unshare revokes the session's share token. Unsharing an unshared
// session is a no-op.
func (s *Store) Unshare(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.Shared() {
		return nil
	}

	if err := s.storage.Delete(ctx, []string{"share", sess.Share.Token}); err != nil {
		return err
	}
	_, err = s.Update(ctx, sessionID, func(sess *types.Session) {
		sess.Share = nil
	})
	return err
}

// ResolveShare returns the session behind a share token.
func (s *Store) ResolveShare(ctx context.Context, token string) (*types.Session, error) {
	var record shareRecord
	if err := s.storage.Get(ctx, []string{"share", token}, &record); err != nil {
		return nil, err
	}
	return s.Get(ctx, record.SessionID)
}
