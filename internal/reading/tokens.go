package reading

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// tokenStore keeps picked card ids behind an opaque id so a callback
// button can ask for recommendations later without carrying the ids.
type tokenStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]tokenEntry
}

type tokenEntry struct {
	ids     []int
	expires time.Time
}

func newTokenStore(ttl time.Duration) *tokenStore {
	return &tokenStore{ttl: ttl, items: make(map[string]tokenEntry)}
}

func (s *tokenStore) issue(ids []int, now time.Time) string {
	token := uuid.NewString()
	cp := append([]int(nil), ids...)

	s.mu.Lock()
	s.items[token] = tokenEntry{ids: cp, expires: now.Add(s.ttl)}
	s.mu.Unlock()
	return token
}

func (s *tokenStore) lookup(token string, now time.Time) ([]int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[token]
	if !ok {
		return nil, false
	}
	if !now.Before(e.expires) {
		delete(s.items, token)
		return nil, false
	}
	return append([]int(nil), e.ids...), true
}

func (s *tokenStore) prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, e := range s.items {
		if !now.Before(e.expires) {
			delete(s.items, token)
			removed++
		}
	}
	return removed
}

func (s *tokenStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
