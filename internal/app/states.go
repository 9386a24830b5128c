package app

import (
	"sync"
	"time"
)

// Admin dialogue steps waiting for a text answer.
type stateKind int

const (
	stateNone stateKind = iota
	stateTariffDays
	stateTariffAmount
	stateMessageText
)

const stateTTL = time.Hour

type userState struct {
	kind    stateKind
	days    int
	tag     string
	updated time.Time
}

type stateStore struct {
	mu     sync.Mutex
	states map[int64]userState
}

func newStateStore() *stateStore {
	return &stateStore{states: make(map[int64]userState)}
}

func (s *stateStore) get(id int64) userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[id]
}

func (s *stateStore) set(id int64, st userState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = st
}

func (s *stateStore) clear(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, id)
}

func (s *stateStore) prune(now time.Time, maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.states {
		if now.Sub(st.updated) > maxAge {
			delete(s.states, id)
		}
	}
}
