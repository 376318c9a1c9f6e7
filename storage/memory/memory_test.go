package memory

import (
	"errors"
	"sync"
	"testing"

	"github.com/mknotes/mkvault/storage"
)

func TestMemoryStore(t *testing.T) {
	s := NewStore()

	t.Run("PutGet", func(t *testing.T) {
		if err := s.Put("vault", "vault_salt", "abcd"); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get("vault", "vault_salt")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != "abcd" {
			t.Errorf("expected %q, got %q", "abcd", got)
		}
	})

	t.Run("Get Errors", func(t *testing.T) {
		if _, err := s.Get("missing", "k"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing namespace, got %v", err)
		}
		if _, err := s.Get("vault", "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing key, got %v", err)
		}
	})

	t.Run("NamespaceIsolation", func(t *testing.T) {
		s.Put("security", "vault_salt", "other")
		got, _ := s.Get("vault", "vault_salt")
		if got != "abcd" {
			t.Errorf("write to one namespace leaked into another: %q", got)
		}
	})

	t.Run("PutAll", func(t *testing.T) {
		values := map[string]string{"a": "1", "b": "2"}
		if err := s.PutAll("batch", values); err != nil {
			t.Fatalf("PutAll failed: %v", err)
		}
		for k, want := range values {
			got, err := s.Get("batch", k)
			if err != nil {
				t.Fatalf("Get %q failed: %v", k, err)
			}
			if got != want {
				t.Errorf("key %q: expected %q, got %q", k, want, got)
			}
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s.Put("vault", "gone", "x")
		if err := s.Delete("vault", "gone", "never-existed"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Get("vault", "gone"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := s.Delete("no-such-namespace", "k"); err != nil {
			t.Errorf("expected no error deleting from missing namespace, got %v", err)
		}
	})
}

func TestMemoryStoreConcurrency(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Put("ns", "k", "v")
				s.Get("ns", "k")
				s.PutAll("ns", map[string]string{"a": "1"})
				s.Delete("ns", "a")
			}
		}()
	}
	wg.Wait()

	got, err := s.Get("ns", "k")
	if err != nil {
		t.Fatalf("Get after concurrent access failed: %v", err)
	}
	if got != "v" {
		t.Errorf("expected %q, got %q", "v", got)
	}
}
