package vault

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/mknotes/mkvault/crypto"
	"github.com/mknotes/mkvault/storage"
)

// Store namespaces carried over from the mobile app's preference files, so a
// data directory written by one build stays readable by the next.
const (
	nsVault    = "mknotes_vault"
	nsSecurity = "mknotes_security"
)

const (
	keySalt         = "vault_salt"
	keyEncryptedDEK = "vault_encrypted_dek"
	keyVerifyTag    = "vault_verify_tag"
	keyIterations   = "vault_iterations"
	keyKeyVersion   = "vault_key_version"
	keyVaultVersion = "vault_version"
)

// Vault format versions.
const (
	// VersionLegacy marks a vault still on the single-layer scheme, where the
	// password-derived key encrypts note fields directly.
	VersionLegacy = 1
	// VersionDEK marks a vault on the two-layer scheme: the password-derived
	// KEK wraps a random DEK, and the DEK encrypts note fields.
	VersionDEK = 2
)

// Metadata describes a vault's key hierarchy. Every field is safe to persist
// and mirror: the DEK appears only wrapped by the KEK, and the KEK itself is
// never stored.
type Metadata struct {
	Salt         string // hex-encoded KDF salt
	WrappedDEK   string // DEK encrypted under the KEK, iv:ciphertext form
	VerifyTag    string // hex-encoded HMAC password check value
	Iterations   int
	KeyVersion   int
	VaultVersion int
}

func loadMetadata(store storage.Store) (Metadata, error) {
	salt, errSalt := store.Get(nsVault, keySalt)
	wrapped, errWrapped := store.Get(nsVault, keyEncryptedDEK)
	tag, errTag := store.Get(nsVault, keyVerifyTag)

	missing := 0
	for _, err := range []error{errSalt, errWrapped, errTag} {
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return Metadata{}, fmt.Errorf("reading vault metadata: %w", err)
		}
		missing++
	}
	if missing == 3 {
		return Metadata{}, ErrNoVault
	}
	if missing > 0 || salt == "" || wrapped == "" || tag == "" {
		return Metadata{}, fmt.Errorf("%w: incomplete key material", ErrCorruptMetadata)
	}

	m := Metadata{Salt: salt, WrappedDEK: wrapped, VerifyTag: tag}

	var err error
	if m.Iterations, err = getIntDefault(store, keyIterations, crypto.DefaultIterations); err != nil {
		return Metadata{}, err
	}
	if m.KeyVersion, err = getIntDefault(store, keyKeyVersion, 1); err != nil {
		return Metadata{}, err
	}
	if m.VaultVersion, err = getIntDefault(store, keyVaultVersion, 0); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// saveMetadata persists all six fields in one atomic batch. A crash must not
// leave a new salt next to an old wrapped DEK.
func saveMetadata(store storage.Store, m Metadata) error {
	return store.PutAll(nsVault, map[string]string{
		keySalt:         m.Salt,
		keyEncryptedDEK: m.WrappedDEK,
		keyVerifyTag:    m.VerifyTag,
		keyIterations:   strconv.Itoa(m.Iterations),
		keyKeyVersion:   strconv.Itoa(m.KeyVersion),
		keyVaultVersion: strconv.Itoa(m.VaultVersion),
	})
}

func getIntDefault(store storage.Store, key string, def int) (int, error) {
	raw, err := store.Get(nsVault, key)
	if errors.Is(err, storage.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", key, err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s value %q", ErrCorruptMetadata, key, raw)
	}
	return n, nil
}
