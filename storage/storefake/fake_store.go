// Package storefake provides an in-memory Store for tests.
package storefake

import "sync"

type FakeStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewFakeStore() *FakeStore {
	return &FakeStore{values: map[string]string{}}
}

func (s *FakeStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *FakeStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *FakeStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
