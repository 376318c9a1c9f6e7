package bbolt

import (
	"errors"
	"os"
	"testing"

	"github.com/mknotes/mkvault/storage"
	"go.etcd.io/bbolt"
)

func newTestDB(t *testing.T) (*bbolt.DB, func()) {
	t.Helper()
	f, err := os.CreateTemp("", "mkvault-test-*.db")
	if err != nil {
		t.Fatalf("could not create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		os.Remove(path)
		t.Fatalf("could not open db: %v", err)
	}
	return db, func() {
		db.Close()
		os.Remove(path)
	}
}

func TestBBoltStore(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()

	s := NewStore(db)

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

	t.Run("Overwrite", func(t *testing.T) {
		s.Put("vault", "vault_iterations", "15000")
		if err := s.Put("vault", "vault_iterations", "150000"); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, _ := s.Get("vault", "vault_iterations")
		if got != "150000" {
			t.Errorf("expected overwritten value, got %q", got)
		}
	})

	t.Run("Get Errors", func(t *testing.T) {
		_, err := s.Get("nonexistent-namespace", "k")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound for nonexistent namespace, got %v", err)
		}

		_, err = s.Get("vault", "nonexistent-key")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound for nonexistent key, got %v", err)
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
		values := map[string]string{
			"vault_encrypted_dek": "001122:334455",
			"vault_verify_tag":    "deadbeef",
			"vault_key_version":   "1",
		}
		if err := s.PutAll("vault", values); err != nil {
			t.Fatalf("PutAll failed: %v", err)
		}
		for k, want := range values {
			got, err := s.Get("vault", k)
			if err != nil {
				t.Fatalf("Get %q failed: %v", k, err)
			}
			if got != want {
				t.Errorf("key %q: expected %q, got %q", k, want, got)
			}
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s.Put("vault", "to-delete", "x")
		if err := s.Delete("vault", "to-delete", "never-existed"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Get("vault", "to-delete"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("Delete Nonexistent Namespace", func(t *testing.T) {
		if err := s.Delete("no-such-namespace", "k"); err != nil {
			t.Errorf("expected no error deleting from missing namespace, got %v", err)
		}
	})
}

func TestNewStoreFromFile(t *testing.T) {
	f, err := os.CreateTemp("", "bbolt-file-test-*.db")
	if err != nil {
		t.Fatalf("could not create temp file: %v", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	s, err := NewStoreFromFile(path, nil)
	if err != nil {
		t.Fatalf("NewStoreFromFile failed: %v", err)
	}

	if err := s.Put("vault", "vault_version", "2"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Values must survive a close and reopen.
	s2, err := NewStoreFromFile(path, nil)
	if err != nil {
		t.Fatalf("NewStoreFromFile (reopen) failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get("vault", "vault_version")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got != "2" {
		t.Errorf("expected %q, got %q", "2", got)
	}

	// Test failure (invalid path)
	_, err = NewStoreFromFile("/nonexistent/path/to/db", nil)
	if err == nil {
		t.Error("expected error for invalid path")
	}
}
