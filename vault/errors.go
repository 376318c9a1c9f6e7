package vault

import "errors"

var (
	// ErrNoVault indicates the store holds no vault metadata.
	ErrNoVault = errors.New("vault not initialized")
	// ErrVaultExists indicates initialization was attempted over an existing vault.
	ErrVaultExists = errors.New("vault already initialized")
	// ErrWrongPassword indicates the password failed verification against the stored tag.
	ErrWrongPassword = errors.New("wrong master password")
	// ErrLocked indicates an operation needed the DEK while the vault is locked.
	ErrLocked = errors.New("vault locked")
	// ErrCorruptMetadata indicates the stored metadata is incomplete or unusable.
	ErrCorruptMetadata = errors.New("corrupt vault metadata")
	// ErrRemoteSync indicates a mirror push or fetch failed.
	ErrRemoteSync = errors.New("remote sync failed")
)
