// Package vault implements the key hierarchy of the MKNotes vault engine.
//
// A master password never encrypts anything directly. It derives a key
// encryption key (KEK) that wraps a random data encryption key (DEK), and
// the DEK encrypts note fields. Changing the password therefore re-wraps
// one 32-byte key instead of re-encrypting the whole note store.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/mknotes/mkvault/crypto"
	"github.com/mknotes/mkvault/internal/util"
	"github.com/mknotes/mkvault/remote"
	"github.com/mknotes/mkvault/storage"
)

// KeyManager owns the vault key hierarchy: it derives the KEK from the
// master password, keeps the unwrapped DEK sealed in an enclave while the
// vault is unlocked, and persists only wrapped material.
//
// All state transitions serialize on one mutex. A Lock racing a
// ChangePassword can therefore never observe a half-swapped hierarchy.
type KeyManager struct {
	mu        sync.Mutex
	store     storage.Store
	mirror    remote.Mirror
	principal string
	logger    *slog.Logger
	now       func() time.Time

	// dek seals the only unwrapped copy of the data encryption key.
	// nil while the vault is locked.
	dek *memguard.Enclave
}

// NewKeyManager creates a KeyManager over the given store.
func NewKeyManager(store storage.Store, opts ...Option) *KeyManager {
	m := &KeyManager{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return m
}

// Initialize creates a brand-new vault from the master password and leaves
// it unlocked. Fails with ErrVaultExists when metadata is already present.
func (m *KeyManager) Initialize(ctx context.Context, password string) error {
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := loadMetadata(m.store); err == nil {
		return ErrVaultExists
	} else if !errors.Is(err, ErrNoVault) {
		return err
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	iterations := crypto.DefaultIterations

	if err := ctx.Err(); err != nil {
		return err
	}

	kek, err := crypto.DeriveKey(util.Normalize(password), salt, iterations)
	if err != nil {
		return err
	}
	defer util.WipeBytes(kek)

	dek, err := crypto.GenerateDEK()
	if err != nil {
		return err
	}
	defer util.WipeBytes(dek)

	wrappedDEK, err := crypto.EncryptDEK(dek, kek)
	if err != nil {
		return err
	}
	verifyTag, err := crypto.ComputeVerifyTag(kek)
	if err != nil {
		return err
	}

	meta := Metadata{
		Salt:         util.HexEncode(salt),
		WrappedDEK:   wrappedDEK,
		VerifyTag:    verifyTag,
		Iterations:   iterations,
		KeyVersion:   1,
		VaultVersion: VersionDEK,
	}
	if err := saveMetadata(m.store, meta); err != nil {
		return fmt.Errorf("persisting vault metadata: %w", err)
	}

	m.pushBestEffort(ctx, meta)

	m.dek = memguard.NewEnclave(dek)
	m.logger.Info("vault initialized", "iterations", iterations)
	return nil
}

// Unlock derives the KEK from the password, verifies it against the stored
// tag in constant time, and caches the unwrapped DEK on success.
func (m *KeyManager) Unlock(ctx context.Context, password string) error {
	if password == "" {
		return ErrWrongPassword
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, err := loadMetadata(m.store)
	if err != nil {
		return err
	}
	salt, err := util.HexDecode(meta.Salt)
	if err != nil {
		return fmt.Errorf("%w: bad salt encoding", ErrCorruptMetadata)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	kek, err := crypto.DeriveKey(util.Normalize(password), salt, meta.Iterations)
	if err != nil {
		return err
	}
	defer util.WipeBytes(kek)

	if !crypto.VerifyTag(kek, meta.VerifyTag) {
		return ErrWrongPassword
	}

	dek, err := crypto.DecryptDEK(meta.WrappedDEK, kek)
	if err != nil {
		// The tag matched yet the wrap would not open: the stored blob
		// itself is damaged, not the password.
		return fmt.Errorf("%w: wrapped DEK unusable: %v", ErrCorruptMetadata, err)
	}

	m.dek = memguard.NewEnclave(dek)
	m.logger.Info("vault unlocked", "keyVersion", meta.KeyVersion)
	return nil
}

// Lock drops the cached DEK. Safe to call in any state, including while a
// migration is pending; it only ever touches the in-memory key.
func (m *KeyManager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dek = nil
	m.logger.Debug("vault locked")
}

// DEK returns a copy of the unwrapped data encryption key, or ErrLocked
// while no key is cached. The caller must wipe the copy after use.
func (m *KeyManager) DEK() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dek == nil {
		return nil, ErrLocked
	}
	buf, err := m.dek.Open()
	if err != nil {
		return nil, fmt.Errorf("opening DEK enclave: %w", err)
	}
	defer buf.Destroy()
	return util.CopyBytes(buf.Bytes()), nil
}

// Unlocked reports whether the DEK is cached in memory.
func (m *KeyManager) Unlocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dek != nil
}

// Initialized reports whether complete vault metadata exists in the store.
func (m *KeyManager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := loadMetadata(m.store)
	return err == nil
}

// Metadata returns the stored vault metadata.
func (m *KeyManager) Metadata() (Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return loadMetadata(m.store)
}

// VaultVersion returns the stored format version, or 0 when the store has
// never held one.
func (m *KeyManager) VaultVersion() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := getIntDefault(m.store, keyVaultVersion, 0)
	if err != nil {
		return 0
	}
	return v
}

// ChangePassword re-wraps the DEK under a KEK derived from the new password
// and leaves the vault unlocked. Note blobs are untouched: the DEK does not
// change, so everything already encrypted stays decryptable. With
// upgradeIterations the new KEK uses the current default cost instead of
// whatever the vault was created with.
func (m *KeyManager) ChangePassword(ctx context.Context, oldPassword, newPassword string, upgradeIterations bool) error {
	if newPassword == "" {
		return fmt.Errorf("new password must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, err := loadMetadata(m.store)
	if err != nil {
		return err
	}
	oldSalt, err := util.HexDecode(meta.Salt)
	if err != nil {
		return fmt.Errorf("%w: bad salt encoding", ErrCorruptMetadata)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	oldKEK, err := crypto.DeriveKey(util.Normalize(oldPassword), oldSalt, meta.Iterations)
	if err != nil {
		return err
	}
	defer util.WipeBytes(oldKEK)
	if !crypto.VerifyTag(oldKEK, meta.VerifyTag) {
		return ErrWrongPassword
	}

	dek, err := crypto.DecryptDEK(meta.WrappedDEK, oldKEK)
	if err != nil {
		return fmt.Errorf("%w: wrapped DEK unusable: %v", ErrCorruptMetadata, err)
	}
	defer util.WipeBytes(dek)

	newSalt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	newIterations := meta.Iterations
	if upgradeIterations {
		newIterations = crypto.DefaultIterations
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	newKEK, err := crypto.DeriveKey(util.Normalize(newPassword), newSalt, newIterations)
	if err != nil {
		return err
	}
	defer util.WipeBytes(newKEK)

	wrapped, err := crypto.EncryptDEK(dek, newKEK)
	if err != nil {
		return err
	}
	tag, err := crypto.ComputeVerifyTag(newKEK)
	if err != nil {
		return err
	}

	next := Metadata{
		Salt:         util.HexEncode(newSalt),
		WrappedDEK:   wrapped,
		VerifyTag:    tag,
		Iterations:   newIterations,
		KeyVersion:   meta.KeyVersion + 1,
		VaultVersion: meta.VaultVersion,
	}
	if err := saveMetadata(m.store, next); err != nil {
		return fmt.Errorf("persisting vault metadata: %w", err)
	}

	m.pushBestEffort(ctx, next)

	m.dek = memguard.NewEnclave(util.CopyBytes(dek))
	m.logger.Info("master password changed", "keyVersion", next.KeyVersion, "iterations", newIterations)
	return nil
}

// InstallMetadata persists metadata produced by a migration and, when dek is
// non-nil, caches it as the unlocked DEK. It takes ownership of dek. The
// mirror is not pushed; the migration drives that itself.
func (m *KeyManager) InstallMetadata(meta Metadata, dek []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if meta.KeyVersion <= 0 {
		meta.KeyVersion = 1
	}
	if meta.VaultVersion <= 0 {
		meta.VaultVersion = VersionDEK
	}
	if err := saveMetadata(m.store, meta); err != nil {
		return fmt.Errorf("persisting vault metadata: %w", err)
	}
	if dek != nil {
		m.dek = memguard.NewEnclave(dek)
	}
	return nil
}

// MirrorConfigured reports whether a remote mirror and principal are set.
func (m *KeyManager) MirrorConfigured() bool {
	return m.mirror != nil && m.principal != ""
}

// PushRemote mirrors the current metadata to the configured remote.
func (m *KeyManager) PushRemote(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mirror == nil || m.principal == "" {
		return fmt.Errorf("%w: no mirror configured", ErrRemoteSync)
	}
	meta, err := loadMetadata(m.store)
	if err != nil {
		return err
	}
	return m.push(ctx, meta)
}

// FetchRemote pulls mirrored metadata and primes the local store with it.
// It reports false when the mirror holds no usable document. Meant for the
// reinstall path, where the local store is empty but the mirror is not.
func (m *KeyManager) FetchRemote(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mirror == nil || m.principal == "" {
		return false, fmt.Errorf("%w: no mirror configured", ErrRemoteSync)
	}

	doc, err := m.mirror.Fetch(ctx, m.principal)
	if errors.Is(err, remote.ErrNoDocument) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRemoteSync, err)
	}
	if doc.Salt == "" || doc.EncryptedDEK == "" || doc.VerifyTag == "" {
		return false, nil
	}

	meta := Metadata{
		Salt:         doc.Salt,
		WrappedDEK:   doc.EncryptedDEK,
		VerifyTag:    doc.VerifyTag,
		Iterations:   doc.Iterations,
		KeyVersion:   doc.KeyVersion,
		VaultVersion: doc.VaultVersion,
	}
	if meta.Iterations <= 0 {
		meta.Iterations = crypto.DefaultIterations
	}
	if meta.KeyVersion <= 0 {
		meta.KeyVersion = 1
	}
	if meta.VaultVersion <= 0 {
		meta.VaultVersion = VersionDEK
	}
	if err := saveMetadata(m.store, meta); err != nil {
		return false, fmt.Errorf("persisting fetched metadata: %w", err)
	}
	m.logger.Info("vault metadata fetched from mirror", "keyVersion", meta.KeyVersion)
	return true, nil
}

// pushBestEffort mirrors metadata without failing the surrounding operation.
func (m *KeyManager) pushBestEffort(ctx context.Context, meta Metadata) {
	if m.mirror == nil || m.principal == "" {
		return
	}
	if err := m.push(ctx, meta); err != nil {
		m.logger.Warn("metadata mirror push failed", "error", err)
	}
}

func (m *KeyManager) push(ctx context.Context, meta Metadata) error {
	doc := &remote.Document{
		Salt:         meta.Salt,
		EncryptedDEK: meta.WrappedDEK,
		VerifyTag:    meta.VerifyTag,
		Iterations:   meta.Iterations,
		KeyVersion:   meta.KeyVersion,
		VaultVersion: meta.VaultVersion,
		UpdatedAt:    m.now().UnixMilli(),
	}
	if err := m.mirror.Push(ctx, m.principal, doc); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteSync, err)
	}
	return nil
}
