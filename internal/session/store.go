// Package session puts a short-lived bounded cache in front of durable
// chat-session storage so the dialogue handler does not hit the
// database on every inbound message.
package session

import (
	"context"
	"time"

	"sync"

	"github.com/pimedia/leadbot/internal/models"
	"github.com/pimedia/leadbot/internal/storage"
)

const (
	defaultTTL = 30 * time.Second
	defaultCap = 100
)

type cacheEntry struct {
	session models.ChatSession
	ts      time.Time
}

// Store is a read-through session store. Entries expire after ttl and
// the cache is capped; eviction picks an arbitrary entry, so callers
// must not depend on eviction order.
type Store struct {
	backend storage.SessionStorage
	ttl     time.Duration
	cap     int

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

func NewStore(backend storage.SessionStorage) *Store {
	return &Store{
		backend: backend,
		ttl:     defaultTTL,
		cap:     defaultCap,
		cache:   make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached session when fresh, otherwise reads through
// to the backend (which creates an idle session for unseen keys).
func (s *Store) Get(ctx context.Context, chatKey string) (*models.ChatSession, error) {
	s.mu.Lock()
	if e, ok := s.cache[chatKey]; ok {
		if s.now().Sub(e.ts) < s.ttl {
			cp := e.session
			s.mu.Unlock()
			return &cp, nil
		}
		delete(s.cache, chatKey)
	}
	s.mu.Unlock()

	session, err := s.backend.GetSession(ctx, chatKey)
	if err != nil {
		return nil, err
	}
	s.set(chatKey, session)
	return session, nil
}

// Put writes through to the backend and refreshes the cache entry.
func (s *Store) Put(ctx context.Context, session *models.ChatSession) error {
	if err := s.backend.SaveSession(ctx, session); err != nil {
		return err
	}
	s.set(session.ChatKey, session)
	return nil
}

// Invalidate drops the cache entry; the next Get re-reads the backend.
func (s *Store) Invalidate(chatKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, chatKey)
}

func (s *Store) set(chatKey string, session *models.ChatSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache[chatKey]; !ok && len(s.cache) >= s.cap {
		for k := range s.cache {
			delete(s.cache, k)
			break
		}
	}
	s.cache[chatKey] = cacheEntry{session: *session, ts: s.now()}
}
