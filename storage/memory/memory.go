// Package memory provides a thread-safe in-memory implementation of storage.Store.
package memory

import (
	"sync"

	"github.com/mknotes/mkvault/storage"
)

// Store is a thread-safe in-memory implementation of storage.Store.
// Suitable for testing and single-process use cases.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a new empty in-memory Store.
func NewStore() *Store {
	return &Store{data: make(map[string]map[string]string)}
}

func (s *Store) Get(namespace, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.data[namespace]
	if !ok {
		return "", storage.ErrNotFound
	}
	v, ok := ns[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *Store) Put(namespace, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(namespace, key, value)
	return nil
}

func (s *Store) putLocked(namespace, key, value string) {
	if _, ok := s.data[namespace]; !ok {
		s.data[namespace] = make(map[string]string)
	}
	s.data[namespace][key] = value
}

func (s *Store) PutAll(namespace string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.putLocked(namespace, k, v)
	}
	return nil
}

func (s *Store) Delete(namespace string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[namespace]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(ns, k)
	}
	return nil
}
