package vault

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/mknotes/mkvault/storage"
)

// DefaultLockTimeout is how long the vault may sit in the background before
// it locks itself.
const DefaultLockTimeout = 5 * time.Minute

const (
	keyLastUnlock     = "last_unlock_timestamp"
	keyBackgroundTime = "app_background_timestamp"
)

// AutoLock locks the vault after it has been backgrounded for longer than
// the timeout. The background timestamp is persisted, so the window is
// enforced even when the process is killed and restarted in between.
//
// AutoLock only ever calls Lock on the KeyManager; it never unlocks.
type AutoLock struct {
	km      *KeyManager
	store   storage.Store
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	timer     *time.Timer
	suspended bool
}

// NewAutoLock creates an AutoLock bound to the KeyManager's store, logger
// and clock.
func NewAutoLock(km *KeyManager, opts ...AutoLockOption) *AutoLock {
	al := &AutoLock{
		km:      km,
		store:   km.store,
		timeout: DefaultLockTimeout,
		logger:  km.logger,
		now:     km.now,
	}
	for _, opt := range opts {
		opt(al)
	}
	return al
}

// RecordUnlock persists the time of a successful unlock.
func (al *AutoLock) RecordUnlock() error {
	millis := strconv.FormatInt(al.now().UnixMilli(), 10)
	if err := al.store.Put(nsSecurity, keyLastUnlock, millis); err != nil {
		return fmt.Errorf("recording unlock time: %w", err)
	}
	return nil
}

// LastUnlock returns the persisted time of the most recent unlock, or the
// zero time when none is recorded.
func (al *AutoLock) LastUnlock() time.Time {
	raw, err := al.store.Get(nsSecurity, keyLastUnlock)
	if err != nil {
		return time.Time{}
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || millis <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(millis)
}

// Background records that the app left the foreground and arms the lock
// timer. The timestamp is written even while suspended so that a later
// Foreground on an unsuspended instance still sees it.
func (al *AutoLock) Background() error {
	millis := strconv.FormatInt(al.now().UnixMilli(), 10)
	if err := al.store.Put(nsSecurity, keyBackgroundTime, millis); err != nil {
		return fmt.Errorf("recording background time: %w", err)
	}

	al.mu.Lock()
	defer al.mu.Unlock()
	if al.suspended || !al.km.Unlocked() {
		return nil
	}
	al.stopTimerLocked()
	al.timer = time.AfterFunc(al.timeout, al.timerFired)
	return nil
}

// Foreground disarms the timer and locks the vault if the timeout elapsed
// while backgrounded. The persisted timestamp is consumed either way.
func (al *AutoLock) Foreground() error {
	al.mu.Lock()
	al.stopTimerLocked()
	suspended := al.suspended
	al.mu.Unlock()

	raw, err := al.store.Get(nsSecurity, keyBackgroundTime)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading background time: %w", err)
	}
	if err := al.store.Delete(nsSecurity, keyBackgroundTime); err != nil {
		return fmt.Errorf("clearing background time: %w", err)
	}
	if suspended {
		return nil
	}

	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Unreadable timestamp, fail closed.
		al.logger.Warn("unreadable background timestamp", "value", raw)
		return al.Lock()
	}
	elapsed := al.now().Sub(time.UnixMilli(millis))
	if elapsed > al.timeout {
		al.logger.Info("locking after background timeout", "elapsed", elapsed.String())
		return al.Lock()
	}
	return nil
}

// Lock locks the vault immediately and clears the session timestamps.
func (al *AutoLock) Lock() error {
	al.mu.Lock()
	al.stopTimerLocked()
	al.mu.Unlock()

	al.km.Lock()
	if err := al.store.Put(nsSecurity, keyLastUnlock, "0"); err != nil {
		return fmt.Errorf("clearing unlock time: %w", err)
	}
	if err := al.store.Delete(nsSecurity, keyBackgroundTime); err != nil {
		return fmt.Errorf("clearing background time: %w", err)
	}
	return nil
}

// Suspend pauses auto-locking until Resume. Suspension is runtime-only
// state: a restarted process starts unsuspended.
func (al *AutoLock) Suspend() {
	al.mu.Lock()
	defer al.mu.Unlock()
	al.suspended = true
	al.stopTimerLocked()
}

// Resume re-enables auto-locking.
func (al *AutoLock) Resume() {
	al.mu.Lock()
	defer al.mu.Unlock()
	al.suspended = false
}

// Suspended reports whether auto-locking is currently paused.
func (al *AutoLock) Suspended() bool {
	al.mu.Lock()
	defer al.mu.Unlock()
	return al.suspended
}

// SessionValid reports whether the session may keep using the vault. While
// suspended the session stays valid regardless of timers.
func (al *AutoLock) SessionValid() bool {
	al.mu.Lock()
	suspended := al.suspended
	al.mu.Unlock()
	if suspended {
		return true
	}
	return al.km.Unlocked()
}

func (al *AutoLock) timerFired() {
	al.mu.Lock()
	suspended := al.suspended
	al.timer = nil
	al.mu.Unlock()
	if suspended {
		return
	}
	al.logger.Info("background timeout elapsed")
	if err := al.Lock(); err != nil {
		al.logger.Warn("auto-lock failed", "error", err)
	}
}

func (al *AutoLock) stopTimerLocked() {
	if al.timer != nil {
		al.timer.Stop()
		al.timer = nil
	}
}
