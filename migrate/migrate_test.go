package migrate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mknotes/mkvault/crypto"
	"github.com/mknotes/mkvault/internal/util"
	"github.com/mknotes/mkvault/notes"
	"github.com/mknotes/mkvault/storage/memory"
	"github.com/mknotes/mkvault/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "correcthorse1"

type legacyFixture struct {
	km     *vault.KeyManager
	legacy *vault.Legacy
	store  *notes.Store
	oldKEK []byte
}

// setupLegacyVault builds the state an old installation leaves behind:
// legacy credentials in the security namespace and no wrapped-DEK metadata.
func setupLegacyVault(t *testing.T) *legacyFixture {
	t.Helper()

	kv := memory.NewStore()
	store, err := notes.Open(filepath.Join(t.TempDir(), "mknotes.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})

	salt, err := crypto.GenerateSalt()
	require.NoError(t, err)
	oldKEK, err := crypto.DeriveKey(testPassword, salt, vault.LegacyDefaultIterations)
	require.NoError(t, err)

	legacy := vault.NewLegacy(kv)
	require.NoError(t, legacy.RestoreBackup(util.HexEncode(salt), "legacy-token"))

	return &legacyFixture{
		km:     vault.NewKeyManager(kv),
		legacy: legacy,
		store:  store,
		oldKEK: oldKEK,
	}
}

// seedLegacyRows inserts the mix an old database holds: a plaintext note, a
// note encrypted under the legacy key, and a trash row with a NULL field.
func seedLegacyRows(t *testing.T, f *legacyFixture) {
	t.Helper()

	encTitle, err := crypto.Encrypt("bank codes", f.oldKEK)
	require.NoError(t, err)
	encBody, err := crypto.Encrypt("pin 1234", f.oldKEK)
	require.NoError(t, err)

	db := f.store.DB()
	_, err = db.Exec(`INSERT INTO notes (title, content, checklist_data, routine_data)
		VALUES ('plain title', 'plain body', NULL, '')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO notes (title, content) VALUES (?, ?)`, encTitle, encBody)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO trash (note_title, note_content) VALUES ('old trash', NULL)`)
	require.NoError(t, err)
}

func TestMigrator_Needed(t *testing.T) {
	t.Run("Legacy vault needs migration", func(t *testing.T) {
		f := setupLegacyVault(t)
		assert.True(t, NewMigrator(f.km, f.legacy, f.store).Needed())
	})

	t.Run("Fresh install does not", func(t *testing.T) {
		kv := memory.NewStore()
		store, err := notes.Open(filepath.Join(t.TempDir(), "mknotes.db"))
		require.NoError(t, err)
		t.Cleanup(func() {
			store.Close()
		})
		assert.False(t, NewMigrator(vault.NewKeyManager(kv), vault.NewLegacy(kv), store).Needed())
	})

	t.Run("Migrated vault does not", func(t *testing.T) {
		f := setupLegacyVault(t)
		require.NoError(t, f.km.InstallMetadata(vault.Metadata{
			Salt:       "aa",
			WrappedDEK: "bb:cc",
			VerifyTag:  "dd",
			Iterations: 1000,
		}, nil))
		assert.False(t, NewMigrator(f.km, f.legacy, f.store).Needed())
	})
}

func TestMigrator_Run(t *testing.T) {
	ctx := t.Context()
	f := setupLegacyVault(t)
	seedLegacyRows(t, f)

	m := NewMigrator(f.km, f.legacy, f.store)
	require.True(t, m.Needed())
	require.NoError(t, m.Run(ctx, testPassword))

	// The vault switched to the wrapped-DEK scheme and is usable at once.
	assert.Equal(t, vault.VersionDEK, f.km.VaultVersion())
	assert.True(t, f.km.Unlocked())
	assert.False(t, m.Needed())
	assert.True(t, f.legacy.Migrated())

	meta, err := f.km.Metadata()
	require.NoError(t, err)
	assert.Equal(t, crypto.DefaultIterations, meta.Iterations)
	assert.Equal(t, 1, meta.KeyVersion)

	dek, err := f.km.DEK()
	require.NoError(t, err)

	// Both the plaintext-era note and the legacy-encrypted note decrypt
	// under the new DEK.
	all, err := f.store.List(ctx, dek)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "plain title", all[0].Title)
	assert.Equal(t, "plain body", all[0].Content)
	assert.Equal(t, "bank codes", all[1].Title)
	assert.Equal(t, "pin 1234", all[1].Content)

	// The stored blobs no longer open under the legacy key.
	var rawTitle string
	require.NoError(t, f.store.DB().QueryRow(`SELECT title FROM notes WHERE id = 2`).Scan(&rawTitle))
	assert.True(t, crypto.IsEncrypted(rawTitle))
	assert.Equal(t, crypto.FieldAuthFailed, crypto.DecryptField(rawTitle, f.oldKEK).State)

	// NULL fields were normalized and empty fields stayed empty.
	var checklist, routine string
	require.NoError(t, f.store.DB().QueryRow(
		`SELECT checklist_data, routine_data FROM notes WHERE id = 1`).Scan(&checklist, &routine))
	assert.Equal(t, "", checklist)
	assert.Equal(t, "", routine)

	// The trash table came along.
	trash, err := f.store.Trash(ctx, dek)
	require.NoError(t, err)
	require.Len(t, trash, 1)
	assert.Equal(t, "old trash", trash[0].Title)
	assert.Equal(t, "", trash[0].Content)

	// The snapshot is gone after full success.
	_, err = os.Stat(f.store.Path() + BackupSuffix)
	assert.True(t, os.IsNotExist(err))

	// A cold unlock with the same password yields the same DEK.
	f.km.Lock()
	require.NoError(t, f.km.Unlock(ctx, testPassword))
	dek2, err := f.km.DEK()
	require.NoError(t, err)
	assert.Equal(t, dek, dek2)
}

func TestMigrator_Run_EmptyPassword(t *testing.T) {
	f := setupLegacyVault(t)
	err := NewMigrator(f.km, f.legacy, f.store).Run(t.Context(), "")
	require.Error(t, err)
}

func TestMigrator_Run_TransactionFailure(t *testing.T) {
	ctx := t.Context()
	f := setupLegacyVault(t)
	seedLegacyRows(t, f)

	// A bad descriptor after the real ones forces a failure once the real
	// tables are already re-encrypted inside the transaction.
	bad := append(append([]TableSpec{}, DefaultTables...), TableSpec{
		Table:            "no_such_table",
		IDColumn:         "id",
		EncryptedColumns: []string{"x"},
	})
	m := NewMigrator(f.km, f.legacy, f.store, WithTables(bad))

	err := m.Run(ctx, testPassword)
	require.ErrorIs(t, err, ErrTransaction)

	// The rollback left the database exactly as it was.
	var rawTitle string
	require.NoError(t, f.store.DB().QueryRow(`SELECT title FROM notes WHERE id = 1`).Scan(&rawTitle))
	assert.Equal(t, "plain title", rawTitle)
	assert.False(t, f.km.Initialized())
	assert.False(t, f.km.Unlocked())

	// The next attempt starts clean and succeeds.
	retry := NewMigrator(f.km, f.legacy, f.store)
	require.True(t, retry.Needed())
	require.NoError(t, retry.Run(ctx, testPassword))
	assert.Equal(t, vault.VersionDEK, f.km.VaultVersion())

	dek, err := f.km.DEK()
	require.NoError(t, err)
	all, err := f.store.List(ctx, dek)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "plain title", all[0].Title)
}

func TestMigrator_VerifyPassword(t *testing.T) {
	ctx := t.Context()

	t.Run("Against encrypted data", func(t *testing.T) {
		f := setupLegacyVault(t)
		seedLegacyRows(t, f)
		m := NewMigrator(f.km, f.legacy, f.store)

		ok, err := m.VerifyPassword(ctx, testPassword)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = m.VerifyPassword(ctx, "wrongpass")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = m.VerifyPassword(ctx, "")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Plaintext-only database cannot reject", func(t *testing.T) {
		f := setupLegacyVault(t)
		_, err := f.store.DB().Exec(`INSERT INTO notes (title, content) VALUES ('plain', 'body')`)
		require.NoError(t, err)
		m := NewMigrator(f.km, f.legacy, f.store)

		ok, err := m.VerifyPassword(ctx, "anything-goes1")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestMigrator_Run_BackupFailure(t *testing.T) {
	f := setupLegacyVault(t)
	seedLegacyRows(t, f)

	// Deleting the file makes the snapshot copy fail before anything else
	// runs; the open handle is unaffected.
	require.NoError(t, os.Remove(f.store.Path()))

	err := NewMigrator(f.km, f.legacy, f.store).Run(t.Context(), testPassword)
	require.ErrorIs(t, err, ErrBackup)
	assert.False(t, f.km.Initialized())
}

func TestBackupLifecycle(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "mknotes.db")
	backup := source + BackupSuffix
	require.NoError(t, os.WriteFile(source, []byte("original content"), 0o600))

	require.NoError(t, createBackup(source, backup))
	got, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, []byte("original content"), got)

	// Damage the live file, then restore.
	require.NoError(t, os.WriteFile(source, []byte("damaged"), 0o600))
	require.NoError(t, restoreBackup(source, backup))
	got, err = os.ReadFile(source)
	require.NoError(t, err)
	assert.Equal(t, []byte("original content"), got)

	// The rename consumed the snapshot; deleting again is not an error.
	_, err = os.Stat(backup)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, deleteBackup(backup))

	// Restoring without a snapshot fails.
	require.Error(t, restoreBackup(source, backup))
}
