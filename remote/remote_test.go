package remote

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMemoryMirror(t *testing.T) {
	ctx := t.Context()
	m := NewMemoryMirror()

	t.Run("FetchMissing", func(t *testing.T) {
		_, err := m.Fetch(ctx, "nobody")
		if !errors.Is(err, ErrNoDocument) {
			t.Errorf("expected ErrNoDocument, got %v", err)
		}
	})

	t.Run("PushFetch", func(t *testing.T) {
		doc := &Document{
			Salt:         "00112233445566778899aabbccddeeff",
			EncryptedDEK: "0123456789abcdef01234567:feed",
			VerifyTag:    "cafe",
			Iterations:   150000,
			KeyVersion:   1,
			VaultVersion: 2,
			UpdatedAt:    1700000000000,
		}
		if err := m.Push(ctx, "alice", doc); err != nil {
			t.Fatalf("Push failed: %v", err)
		}

		got, err := m.Fetch(ctx, "alice")
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if *got != *doc {
			t.Errorf("fetched document differs: %+v", got)
		}

		// Mutating the fetched copy must not affect the stored document.
		got.KeyVersion = 99
		again, _ := m.Fetch(ctx, "alice")
		if again.KeyVersion != 1 {
			t.Error("stored document was mutated through a fetched copy")
		}
	})

	t.Run("PrincipalIsolation", func(t *testing.T) {
		if _, err := m.Fetch(ctx, "bob"); !errors.Is(err, ErrNoDocument) {
			t.Errorf("expected ErrNoDocument for other principal, got %v", err)
		}
	})
}

// Documents written by older builds must keep parsing, so the JSON field
// names are pinned here.
func TestDocumentWireFormat(t *testing.T) {
	doc := Document{Salt: "s", EncryptedDEK: "d", VerifyTag: "t", Iterations: 1, KeyVersion: 2, VaultVersion: 3, UpdatedAt: 4}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, name := range []string{"salt", "encryptedDEK", "verifyTag", "iterations", "keyVersion", "vaultVersion", "updatedAt"} {
		if _, ok := fields[name]; !ok {
			t.Errorf("missing field %q in wire document", name)
		}
	}
}

func TestObjectName(t *testing.T) {
	got := objectName("uid-123")
	want := "users/uid-123/vault/crypto_metadata.json"
	if got != want {
		t.Errorf("objectName = %q, want %q", got, want)
	}
}
