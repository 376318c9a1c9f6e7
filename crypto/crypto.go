// Package crypto implements the stateless primitives of the MKNotes vault
// engine: PBKDF2 key derivation, AES-256-GCM field and key-wrap encryption,
// HMAC-SHA256 password verification, and the hex blob codec shared with the
// mobile client. All functions are safe for concurrent use.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/mknotes/mkvault/internal/util"
)

const (
	// SaltLength is the size of a vault salt in bytes.
	SaltLength = 16
	// KeyLength is the size of every KEK and DEK in bytes (256-bit AES).
	KeyLength = 32
	// DefaultIterations is the PBKDF2 iteration count for brand-new vaults
	// only. Existing vaults always derive with their stored count.
	DefaultIterations = 150_000

	gcmIVLength = 12

	// verifyConstant is the fixed message for HMAC password verification.
	// It is part of the persisted format and must never change.
	verifyConstant = "MKNOTES_VAULT_VERIFY"
)

var (
	// ErrDerivation indicates malformed input to key derivation.
	ErrDerivation = errors.New("key derivation failed")
	// ErrAuthFailed indicates an authentication-tag mismatch during
	// authenticated decryption, i.e. a wrong key or tampered ciphertext.
	ErrAuthFailed = errors.New("authentication failed")
)

// DeriveKey derives a 256-bit key from the password via PBKDF2-HMAC-SHA256.
// The iteration count is always an explicit parameter so legacy vaults with
// smaller historical counts keep working; callers read it from stored
// metadata, never from a constant.
func DeriveKey(password string, salt []byte, iterations int) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: empty password", ErrDerivation)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty salt", ErrDerivation)
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: non-positive iterations %d", ErrDerivation, iterations)
	}
	return pbkdf2.Key([]byte(password), salt, iterations, KeyLength, sha256.New), nil
}

// GenerateSalt returns a fresh random 16-byte salt.
func GenerateSalt() ([]byte, error) {
	return util.RandomBytes(SaltLength)
}

// GenerateDEK returns a fresh random 256-bit data-encryption key.
func GenerateDEK() ([]byte, error) {
	return util.RandomBytes(KeyLength)
}

// EncryptDEK wraps a DEK under the KEK with AES-256-GCM and returns the
// "ivHex:cipherHex" blob. This is the only place key material crosses the
// storage boundary, and it crosses encrypted.
func EncryptDEK(dek, kek []byte) (string, error) {
	if len(dek) != KeyLength {
		return "", fmt.Errorf("invalid DEK size: got %d, want %d", len(dek), KeyLength)
	}
	return seal(dek, kek)
}

// DecryptDEK unwraps a DEK blob produced by EncryptDEK. A wrong KEK or a
// tampered blob fails with ErrAuthFailed; this is the wrong-key detection
// mechanism for the wrapped key.
func DecryptDEK(blob string, kek []byte) ([]byte, error) {
	iv, ciphertext, err := splitBlob(blob)
	if err != nil {
		return nil, err
	}
	return open(iv, ciphertext, kek)
}

// Encrypt encrypts a text field under the given key and returns the
// "ivHex:cipherHex" blob. Empty input maps to empty output, not an error.
func Encrypt(plaintext string, key []byte) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return seal([]byte(plaintext), key)
}

// Decrypt is the legacy-compatible boundary around DecryptField: it returns
// the decrypted text on success and the input unchanged otherwise, so
// plaintext fields written before migration pass through untouched. A
// returned string is therefore no proof of a correct key; only the HMAC
// verification tag is authoritative for password correctness.
func Decrypt(blob string, key []byte) string {
	return DecryptField(blob, key).Text
}

// ComputeVerifyTag returns the hex HMAC-SHA256 tag over the fixed
// verification constant, keyed by the candidate KEK. It lets the engine
// confirm a password without decrypting any user data.
func ComputeVerifyTag(kek []byte) (string, error) {
	if len(kek) == 0 {
		return "", errors.New("empty key")
	}
	mac := hmac.New(sha256.New, kek)
	mac.Write([]byte(verifyConstant))
	return util.HexEncode(mac.Sum(nil)), nil
}

// VerifyTag reports whether the candidate KEK reproduces the stored tag.
// The comparison is constant-time so repeated password guesses gain no
// timing signal.
func VerifyTag(kek []byte, storedHex string) bool {
	if len(kek) == 0 || storedHex == "" {
		return false
	}
	computed, err := ComputeVerifyTag(kek)
	if err != nil {
		return false
	}
	computedBytes, err := util.HexDecode(computed)
	if err != nil {
		return false
	}
	storedBytes, err := util.HexDecode(storedHex)
	if err != nil {
		return false
	}
	return hmac.Equal(computedBytes, storedBytes)
}

// IsEncrypted reports whether a stored value has the encrypted blob shape:
// a colon at exactly the IV-hex position with a lowercase-hex prefix.
func IsEncrypted(data string) bool {
	if len(data) == 0 {
		return false
	}
	colonIdx := strings.IndexByte(data, ':')
	if colonIdx != gcmIVLength*2 {
		return false
	}
	for _, c := range data[:colonIdx] {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// Wipe zeroes key material in place. Safe to call with nil. Callers that
// receive key copies (for example from KeyManager.DEK) should defer a Wipe.
func Wipe(b []byte) {
	util.WipeBytes(b)
}

func seal(plaintext, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	iv, err := util.RandomBytes(gcmIVLength)
	if err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nil, iv, plaintext, nil)
	return util.HexEncode(iv) + ":" + util.HexEncode(ciphertext), nil
}

func open(iv, ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), KeyLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// splitBlob parses an "ivHex:cipherHex" blob into its raw parts.
func splitBlob(blob string) (iv, ciphertext []byte, err error) {
	colonIdx := strings.IndexByte(blob, ':')
	if colonIdx <= 0 {
		return nil, nil, errors.New("malformed encrypted blob: missing separator")
	}
	ivHex, cipherHex := blob[:colonIdx], blob[colonIdx+1:]
	if len(ivHex) != gcmIVLength*2 {
		return nil, nil, fmt.Errorf("malformed encrypted blob: IV length %d", len(ivHex))
	}
	iv, err = util.HexDecode(ivHex)
	if err != nil {
		return nil, nil, fmt.Errorf("malformed encrypted blob: %w", err)
	}
	ciphertext, err = util.HexDecode(cipherHex)
	if err != nil {
		return nil, nil, fmt.Errorf("malformed encrypted blob: %w", err)
	}
	return iv, ciphertext, nil
}
