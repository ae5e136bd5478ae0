package storage

import (
	"fmt"
	"sync"
)

// InMemoryStore is a Store implementation powered by a map, to be used for
// testing, caches, or throwaway deployments.
type InMemoryStore struct {
	sync.RWMutex
	m map[string][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		m: make(map[string][]byte),
	}
}

func (s *InMemoryStore) Put(key, value []byte) (err error) {
	s.Lock()
	s.m[string(key)] = dup(value)
	s.Unlock()
	return nil
}

func (s *InMemoryStore) Get(key []byte) (value []byte, err error) {
	s.RLock()
	value, ok := s.m[string(key)]
	s.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%.40q: %w", key, ErrNotFound)
	}
	return dup(value), nil
}

// Len reports how many keys are stored.
func (s *InMemoryStore) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.m)
}
