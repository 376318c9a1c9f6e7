package util

import (
	"bytes"
	"testing"
)

func TestBytes(t *testing.T) {
	t.Run("CopyBytes", func(t *testing.T) {
		a := []byte{0x01, 0x02, 0x03}
		copied := CopyBytes(a)
		if !bytes.Equal(copied, a) {
			t.Error("CopyBytes should preserve contents")
		}
		copied[0] = 0xFF
		if a[0] == 0xFF {
			t.Error("CopyBytes should return a new slice")
		}
	})

	t.Run("CopyBytesNil", func(t *testing.T) {
		copied := CopyBytes(nil)
		if copied == nil {
			t.Error("CopyBytes(nil) should return an empty non-nil slice")
		}
		if len(copied) != 0 {
			t.Errorf("expected empty slice, got %d bytes", len(copied))
		}
	})

	t.Run("WipeBytes", func(t *testing.T) {
		b := []byte{0xDE, 0xAD, 0xBE, 0xEF}
		WipeBytes(b)
		for i, v := range b {
			if v != 0 {
				t.Fatalf("byte %d not zeroed", i)
			}
		}
		WipeBytes(nil) // must not panic
	})
}

func TestEncoding(t *testing.T) {
	t.Run("HexRoundTrip", func(t *testing.T) {
		s := "test string"
		encoded := HexEncode([]byte(s))
		decoded, err := HexDecode(encoded)
		if err != nil {
			t.Fatalf("HexDecode failed: %v", err)
		}
		if string(decoded) != s {
			t.Errorf("expected %s, got %s", s, string(decoded))
		}
	})

	t.Run("HexDecodeInvalid", func(t *testing.T) {
		if _, err := HexDecode("zz"); err == nil {
			t.Error("expected error for non-hex input")
		}
	})

	t.Run("Normalize", func(t *testing.T) {
		// NFKD keeps combining sequences decomposed, so a precomposed é and
		// its decomposed form normalize to the same bytes.
		composed := Normalize("café")
		decomposed := Normalize("café")
		if composed != decomposed {
			t.Errorf("composed and decomposed forms should normalize identically: %q vs %q", composed, decomposed)
		}
	})

	t.Run("NormalizeASCII", func(t *testing.T) {
		if got := Normalize("plain ascii"); got != "plain ascii" {
			t.Errorf("ASCII input should be unchanged, got %q", got)
		}
	})
}

func TestRandom(t *testing.T) {
	b1, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	b2, err := RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	if len(b1) != 32 {
		t.Errorf("expected 32 bytes, got %d", len(b1))
	}
	if bytes.Equal(b1, b2) {
		t.Error("RandomBytes should produce different outputs")
	}
}
