// Package migrate converts a vault from the legacy single-layer scheme,
// where the password-derived key encrypted note fields directly, to the
// two-layer hierarchy where that key only wraps a random DEK. Every note
// row is re-encrypted inside one transaction, with a file snapshot of the
// database as a second safety net.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mknotes/mkvault/crypto"
	"github.com/mknotes/mkvault/internal/util"
	"github.com/mknotes/mkvault/notes"
	"github.com/mknotes/mkvault/vault"
)

var (
	// ErrBackup means the pre-migration snapshot could not be created and
	// nothing was changed.
	ErrBackup = errors.New("snapshot failed")
	// ErrTransaction means the re-encryption transaction failed and was
	// rolled back; the snapshot was restored over the database.
	ErrTransaction = errors.New("re-encryption failed")
	// ErrRestore means a failed migration could not put the snapshot back.
	// The snapshot file remains on disk for manual recovery.
	ErrRestore = errors.New("snapshot restore failed")
)

// Migrator drives the one-time conversion to the wrapped-DEK vault.
type Migrator struct {
	km     *vault.KeyManager
	legacy *vault.Legacy
	store  *notes.Store
	tables []TableSpec
	logger *slog.Logger
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithTables overrides the table descriptors to re-encrypt.
func WithTables(tables []TableSpec) Option {
	return func(m *Migrator) { m.tables = tables }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Migrator) { m.logger = logger }
}

// NewMigrator creates a Migrator over the key manager, the legacy
// credential records, and the note database.
func NewMigrator(km *vault.KeyManager, legacy *vault.Legacy, store *notes.Store, opts ...Option) *Migrator {
	m := &Migrator{
		km:     km,
		legacy: legacy,
		store:  store,
		tables: DefaultTables,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return m
}

// Needed reports whether the vault still carries the legacy scheme: no
// wrapped-DEK metadata yet, but legacy credentials present.
func (m *Migrator) Needed() bool {
	if m.km.VaultVersion() >= vault.VersionDEK {
		return false
	}
	if !m.legacy.PasswordSet() {
		return false
	}
	_, ok := m.legacy.Salt()
	return ok
}

// Run performs the migration with the master password, which the caller has
// already verified against the legacy system. On failure the database is
// restored from the snapshot and Needed stays true, so the next attempt
// starts clean. Run must not interleave with other vault operations.
func (m *Migrator) Run(ctx context.Context, password string) error {
	if password == "" {
		return errors.New("password must not be empty")
	}

	dbPath := m.store.Path()
	backupPath := dbPath + BackupSuffix

	if err := createBackup(dbPath, backupPath); err != nil {
		return fmt.Errorf("%w: %v", ErrBackup, err)
	}
	m.logger.Info("pre-migration snapshot created", "path", backupPath)

	saltHex, ok := m.legacy.Salt()
	if !ok {
		_ = deleteBackup(backupPath)
		return errors.New("legacy salt missing")
	}
	oldSalt, err := util.HexDecode(saltHex)
	if err != nil {
		_ = deleteBackup(backupPath)
		return fmt.Errorf("decoding legacy salt: %w", err)
	}

	if err := ctx.Err(); err != nil {
		_ = deleteBackup(backupPath)
		return err
	}

	// The legacy system derived from the raw password; Unicode
	// normalization only came in with the wrapped-DEK scheme.
	oldKEK, err := crypto.DeriveKey(password, oldSalt, m.legacy.Iterations())
	if err != nil {
		_ = deleteBackup(backupPath)
		return fmt.Errorf("deriving legacy key: %w", err)
	}
	defer crypto.Wipe(oldKEK)

	dek, err := crypto.GenerateDEK()
	if err != nil {
		_ = deleteBackup(backupPath)
		return err
	}
	defer crypto.Wipe(dek)

	if err := m.reEncryptAll(ctx, oldKEK, dek); err != nil {
		return m.failAndRestore(dbPath, backupPath, fmt.Errorf("%w: %v", ErrTransaction, err))
	}
	m.logger.Info("note re-encryption committed", "tables", len(m.tables))

	newSalt, err := crypto.GenerateSalt()
	if err != nil {
		return m.failAndRestore(dbPath, backupPath, err)
	}
	if err := ctx.Err(); err != nil {
		return m.failAndRestore(dbPath, backupPath, err)
	}
	newKEK, err := crypto.DeriveKey(util.Normalize(password), newSalt, crypto.DefaultIterations)
	if err != nil {
		return m.failAndRestore(dbPath, backupPath, fmt.Errorf("deriving new key: %w", err))
	}
	defer crypto.Wipe(newKEK)

	wrapped, err := crypto.EncryptDEK(dek, newKEK)
	if err != nil {
		return m.failAndRestore(dbPath, backupPath, err)
	}
	tag, err := crypto.ComputeVerifyTag(newKEK)
	if err != nil {
		return m.failAndRestore(dbPath, backupPath, err)
	}

	meta := vault.Metadata{
		Salt:         util.HexEncode(newSalt),
		WrappedDEK:   wrapped,
		VerifyTag:    tag,
		Iterations:   crypto.DefaultIterations,
		KeyVersion:   1,
		VaultVersion: vault.VersionDEK,
	}
	if err := m.km.InstallMetadata(meta, util.CopyBytes(dek)); err != nil {
		return m.failAndRestore(dbPath, backupPath, err)
	}

	// From here the database and the metadata are consistent with each
	// other; restoring the snapshot would desync them. The snapshot is
	// only removed once everything else succeeds too.
	if err := m.legacy.SetMigrated(true); err != nil {
		return err
	}

	if m.km.MirrorConfigured() {
		if err := m.km.PushRemote(ctx); err != nil {
			m.logger.Warn("metadata mirror push failed", "error", err)
		}
	}

	if err := deleteBackup(backupPath); err != nil {
		m.logger.Warn("snapshot cleanup failed", "error", err)
	}
	m.logger.Info("migration complete", "iterations", crypto.DefaultIterations)
	return nil
}

// failAndRestore puts the snapshot back and returns cause, or ErrRestore
// when the snapshot could not be put back.
func (m *Migrator) failAndRestore(dbPath, backupPath string, cause error) error {
	if err := m.restore(dbPath, backupPath); err != nil {
		return fmt.Errorf("%w: %v (while recovering from: %v)", ErrRestore, err, cause)
	}
	return cause
}

// restore puts the snapshot back over the database. The note store handle
// is cycled around the swap; an open handle keeps serving the replaced
// file. When restore itself fails the snapshot stays on disk for manual
// recovery.
func (m *Migrator) restore(dbPath, backupPath string) error {
	if err := m.store.Close(); err != nil {
		m.logger.Warn("closing note database for restore", "error", err)
	}
	if err := restoreBackup(dbPath, backupPath); err != nil {
		m.logger.Error("snapshot restore failed", "path", backupPath, "error", err)
		return err
	}
	if err := m.store.Reopen(); err != nil {
		m.logger.Error("reopening note database after restore", "error", err)
		return err
	}
	m.logger.Info("database restored from snapshot")
	return nil
}

func (m *Migrator) reEncryptAll(ctx context.Context, oldKey, newKey []byte) error {
	tx, err := m.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, spec := range m.tables {
		if err := reEncryptTable(ctx, tx, spec, oldKey, newKey); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func reEncryptTable(ctx context.Context, tx *sql.Tx, spec TableSpec, oldKey, newKey []byte) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s, %s FROM %s`,
		spec.IDColumn, strings.Join(spec.EncryptedColumns, ", "), spec.Table))
	if err != nil {
		return fmt.Errorf("reading %s: %w", spec.Table, err)
	}

	type rowUpdate struct {
		id     int64
		values []string
	}

	// Updates are buffered and applied after the cursor closes; the
	// transaction owns a single connection.
	var updates []rowUpdate
	for rows.Next() {
		var id int64
		raw := make([]sql.NullString, len(spec.EncryptedColumns))
		dest := make([]any, 0, len(raw)+1)
		dest = append(dest, &id)
		for i := range raw {
			dest = append(dest, &raw[i])
		}
		if err := rows.Scan(dest...); err != nil {
			rows.Close()
			return fmt.Errorf("scanning %s row: %w", spec.Table, err)
		}

		values := make([]string, len(raw))
		for i, v := range raw {
			switch {
			case !v.Valid || v.String == "":
				values[i] = ""
			case crypto.IsEncrypted(v.String):
				// Decrypt falls back to its input when the old key does
				// not authenticate, so an undecryptable field survives
				// re-wrapped instead of being dropped.
				plaintext := crypto.Decrypt(v.String, oldKey)
				enc, err := crypto.Encrypt(plaintext, newKey)
				if err != nil {
					rows.Close()
					return fmt.Errorf("re-encrypting %s.%s: %w", spec.Table, spec.EncryptedColumns[i], err)
				}
				values[i] = enc
			default:
				enc, err := crypto.Encrypt(v.String, newKey)
				if err != nil {
					rows.Close()
					return fmt.Errorf("encrypting %s.%s: %w", spec.Table, spec.EncryptedColumns[i], err)
				}
				values[i] = enc
			}
		}
		updates = append(updates, rowUpdate{id: id, values: values})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterating %s: %w", spec.Table, err)
	}
	rows.Close()

	sets := make([]string, len(spec.EncryptedColumns))
	for i, c := range spec.EncryptedColumns {
		sets[i] = c + " = ?"
	}
	stmt := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = ?`,
		spec.Table, strings.Join(sets, ", "), spec.IDColumn)
	for _, u := range updates {
		args := make([]any, 0, len(u.values)+1)
		for _, v := range u.values {
			args = append(args, v)
		}
		args = append(args, u.id)
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("updating %s row %d: %w", spec.Table, u.id, err)
		}
	}
	return nil
}
