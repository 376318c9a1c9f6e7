package remote

import (
	"context"
	"sync"
)

// MemoryMirror is a thread-safe in-memory Mirror for tests and offline use.
type MemoryMirror struct {
	mu   sync.RWMutex
	docs map[string]Document
}

var _ Mirror = (*MemoryMirror)(nil)

// NewMemoryMirror creates an empty in-memory mirror.
func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{docs: make(map[string]Document)}
}

func (m *MemoryMirror) Push(_ context.Context, principal string, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[principal] = *doc
	return nil
}

func (m *MemoryMirror) Fetch(_ context.Context, principal string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[principal]
	if !ok {
		return nil, ErrNoDocument
	}
	cp := doc
	return &cp, nil
}
