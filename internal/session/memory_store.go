package session

import (
	"context"
	"sync"
	"time"

	"github.com/ShreyashF130/copit-backend/internal/domain"
)

// MemoryStore implements Store with an in-process map. Session state does not
// survive a restart; use RedisStore when cross-restart recovery is required.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session

	nowFunc func() time.Time
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]domain.Session),
		nowFunc:  time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, shopperID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[shopperID]; ok {
		return sess, nil
	}
	return domain.Session{State: domain.StateIdle}, nil
}

func (s *MemoryStore) Set(_ context.Context, shopperID string, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.LastUpdated = s.nowFunc()
	s.sessions[shopperID] = sess
	return nil
}

func (s *MemoryStore) Update(_ context.Context, shopperID string, fn func(*domain.Session)) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[shopperID]
	if !ok {
		sess = domain.Session{State: domain.StateIdle}
	}
	fn(&sess)
	sess.LastUpdated = s.nowFunc()
	s.sessions[shopperID] = sess
	return sess, nil
}

func (s *MemoryStore) Clear(_ context.Context, shopperID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, shopperID)
	return nil
}

func (s *MemoryStore) ScanStale(_ context.Context, minAge, maxAge time.Duration, pred func(domain.Session) bool) ([]Entry, error) {
	now := s.nowFunc()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for id, sess := range s.sessions {
		silence := now.Sub(sess.LastUpdated)
		if silence <= minAge || silence >= maxAge {
			continue
		}
		if pred != nil && !pred(sess) {
			continue
		}
		out = append(out, Entry{ShopperID: id, Session: sess})
	}
	return out, nil
}
