// Package session is a per-user ephemeral key-value store with a TTL per
// key. It replaces ambient web-session state: the applied-coupon record
// lives here between "apply" and checkout commit. Expiry is lazy, checked on
// the next access.
package session

import (
	"sync"
	"time"
)

const DefaultTTL = 10 * time.Minute

type entry struct {
	value     interface{}
	expiresAt time.Time
}

type Store struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[uint]map[string]entry

	now func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl: ttl,
		m:   make(map[uint]map[string]entry),
		now: time.Now,
	}
}

func (s *Store) Put(userID uint, key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.m[userID] == nil {
		s.m[userID] = make(map[string]entry)
	}
	s.m[userID][key] = entry{value: value, expiresAt: s.now().Add(s.ttl)}
}

func (s *Store) Get(userID uint, key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[userID][key]
	if !ok {
		return nil, false
	}
	if s.now().After(e.expiresAt) {
		delete(s.m[userID], key)
		return nil, false
	}
	return e.value, true
}

func (s *Store) Delete(userID uint, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m[userID], key)
}
