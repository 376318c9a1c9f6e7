package vault

import (
	"fmt"
	"strconv"

	"github.com/mknotes/mkvault/storage"
)

// LegacyDefaultIterations is the PBKDF2 cost the single-layer scheme used
// before per-vault iteration counts were stored.
const LegacyDefaultIterations = 15_000

const (
	keyLegacyPasswordSet = "is_master_password_set"
	keyLegacySalt        = "master_password_salt"
	keyLegacyVerifyToken = "master_password_verify_token"
	keyLegacyIterations  = "pbkdf2_iterations"
	keyLegacyMigrated    = "encryption_migrated"
)

// Legacy reads and writes the credential records of the single-layer scheme
// that predates the wrapped-DEK vault. Migration consumes these to derive
// the old key; nothing else should.
type Legacy struct {
	store storage.Store
}

// NewLegacy returns accessors for the legacy credential namespace.
func NewLegacy(store storage.Store) *Legacy {
	return &Legacy{store: store}
}

// PasswordSet reports whether a master password was ever set up.
func (l *Legacy) PasswordSet() bool {
	v, err := l.store.Get(nsSecurity, keyLegacyPasswordSet)
	return err == nil && v == "true"
}

// MarkPasswordSet records that a master password exists.
func (l *Legacy) MarkPasswordSet() error {
	if err := l.store.Put(nsSecurity, keyLegacyPasswordSet, "true"); err != nil {
		return fmt.Errorf("marking password set: %w", err)
	}
	return nil
}

// Salt returns the hex-encoded legacy salt, if one is stored.
func (l *Legacy) Salt() (string, bool) {
	v, err := l.store.Get(nsSecurity, keyLegacySalt)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

// VerifyToken returns the legacy password verification token, if stored.
func (l *Legacy) VerifyToken() (string, bool) {
	v, err := l.store.Get(nsSecurity, keyLegacyVerifyToken)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

// Iterations returns the legacy PBKDF2 cost, falling back to the historical
// default when nothing usable is stored.
func (l *Legacy) Iterations() int {
	v, err := l.store.Get(nsSecurity, keyLegacyIterations)
	if err != nil {
		return LegacyDefaultIterations
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return LegacyDefaultIterations
	}
	return n
}

// Migrated reports whether note content was already re-encrypted away from
// the plaintext era. Old backups carry this as true.
func (l *Legacy) Migrated() bool {
	v, err := l.store.Get(nsSecurity, keyLegacyMigrated)
	return err == nil && v == "true"
}

// SetMigrated records whether the plaintext-to-encrypted sweep ran.
func (l *Legacy) SetMigrated(done bool) error {
	if err := l.store.Put(nsSecurity, keyLegacyMigrated, strconv.FormatBool(done)); err != nil {
		return fmt.Errorf("recording migration flag: %w", err)
	}
	return nil
}

// RestoreBackup re-seeds the legacy credentials from a backup made under the
// single-layer scheme. Backups of that era always hold encrypted content,
// so the migrated flag is set alongside.
func (l *Legacy) RestoreBackup(saltHex, verifyToken string) error {
	if saltHex == "" || verifyToken == "" {
		return fmt.Errorf("restoring legacy credentials: salt and verify token required")
	}
	err := l.store.PutAll(nsSecurity, map[string]string{
		keyLegacySalt:        saltHex,
		keyLegacyVerifyToken: verifyToken,
		keyLegacyPasswordSet: "true",
		keyLegacyMigrated:    "true",
	})
	if err != nil {
		return fmt.Errorf("restoring legacy credentials: %w", err)
	}
	return nil
}
