package shared

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestSealer(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	s, err := NewSealer(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("round trip", func(t *testing.T) {
		sealed, err := s.Seal(sampleCookies)
		if err != nil {
			t.Fatalf("seal failed: %v", err)
		}
		if strings.Contains(sealed, "jane.doe") {
			t.Error("ciphertext leaks plaintext")
		}

		plain, err := s.Open(sealed)
		if err != nil {
			t.Fatalf("open failed: %v", err)
		}
		if plain != sampleCookies {
			t.Error("plaintext mismatch after round trip")
		}
	})

	t.Run("nonces differ", func(t *testing.T) {
		a, _ := s.Seal("same")
		b, _ := s.Seal("same")
		if a == b {
			t.Error("expected distinct ciphertexts for the same plaintext")
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		sealed, _ := s.Seal("secret")
		other, _ := NewSealer(bytes.Repeat([]byte{8}, 32))
		if _, err := other.Open(sealed); err == nil {
			t.Error("expected decryption failure with a different key")
		}
	})

	t.Run("empty ciphertext", func(t *testing.T) {
		plain, err := s.Open("")
		if err != nil || plain != "" {
			t.Errorf("Open(\"\") = %q, %v", plain, err)
		}
	})

	t.Run("bad key size", func(t *testing.T) {
		if _, err := NewSealer([]byte("short")); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "session.key")

	first, err := LoadOrCreateKey("", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 32 {
		t.Fatalf("expected 32 byte key, got %d", len(first))
	}

	second, err := LoadOrCreateKey("", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("expected the stored key to be reused")
	}

	configured, err := LoadOrCreateKey(strings.Repeat("ab", 32), path)
	if err != nil || configured[0] != 0xab {
		t.Errorf("configured key not used: %v", err)
	}
}
