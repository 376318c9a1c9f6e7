package vault

import (
	"log/slog"
	"time"

	"github.com/mknotes/mkvault/remote"
)

// Option configures a KeyManager.
type Option func(*KeyManager)

// WithMirror sets the remote metadata mirror and the principal the mirrored
// document is keyed by. Without a mirror, pushes after initialization and
// password changes become no-ops and PushRemote/FetchRemote fail.
func WithMirror(mirror remote.Mirror, principal string) Option {
	return func(m *KeyManager) {
		m.mirror = mirror
		m.principal = principal
	}
}

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(m *KeyManager) {
		m.logger = logger
	}
}

// WithClock overrides the time source used for mirror timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *KeyManager) {
		m.now = now
	}
}

// AutoLockOption configures an AutoLock.
type AutoLockOption func(*AutoLock)

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) AutoLockOption {
	return func(al *AutoLock) {
		al.timeout = d
	}
}
