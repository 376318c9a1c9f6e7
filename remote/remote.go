// Package remote mirrors vault metadata to an object store so a vault can be
// recovered after the local database is lost. Only wrapped key material and
// public parameters ever leave the device.
package remote

import (
	"context"
	"errors"
)

// ErrNoDocument is returned by Fetch when the principal has no mirrored metadata.
var ErrNoDocument = errors.New("no mirrored metadata")

// Document is the mirrored form of the vault metadata. Field names are part
// of the wire format; older clients must be able to parse documents written
// by newer ones.
type Document struct {
	Salt         string `json:"salt"`
	EncryptedDEK string `json:"encryptedDEK"`
	VerifyTag    string `json:"verifyTag"`
	Iterations   int    `json:"iterations"`
	KeyVersion   int    `json:"keyVersion"`
	VaultVersion int    `json:"vaultVersion"`
	UpdatedAt    int64  `json:"updatedAt"` // Unix milliseconds
}

// Mirror pushes and fetches metadata documents keyed by principal.
type Mirror interface {
	Push(ctx context.Context, principal string, doc *Document) error
	Fetch(ctx context.Context, principal string) (*Document, error)
}
