// Package storage provides the namespaced key-value store backing vault
// metadata and session state.
package storage

import "errors"

// ErrNotFound is returned when a key is not present in a namespace.
var ErrNotFound = errors.New("key not found")

// Store defines the interface for namespaced key-value storage. Values are
// opaque strings; callers persist hex-encoded or encrypted material, never
// raw key bytes.
type Store interface {
	Get(namespace string, key string) (string, error)
	Put(namespace string, key string, value string) error
	// PutAll writes every entry in values atomically: either all entries
	// land or none do.
	PutAll(namespace string, values map[string]string) error
	// Delete removes the given keys. Absent keys are not an error.
	Delete(namespace string, keys ...string) error
}
