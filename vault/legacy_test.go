package vault

import (
	"testing"

	"github.com/mknotes/mkvault/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegacy_Defaults(t *testing.T) {
	l := NewLegacy(memory.NewStore())

	assert.False(t, l.PasswordSet())
	assert.False(t, l.Migrated())
	assert.Equal(t, LegacyDefaultIterations, l.Iterations())

	_, ok := l.Salt()
	assert.False(t, ok)
	_, ok = l.VerifyToken()
	assert.False(t, ok)
}

func TestLegacy_PasswordSet(t *testing.T) {
	l := NewLegacy(memory.NewStore())
	require.NoError(t, l.MarkPasswordSet())
	assert.True(t, l.PasswordSet())
}

func TestLegacy_Iterations(t *testing.T) {
	store := memory.NewStore()
	l := NewLegacy(store)

	require.NoError(t, store.Put(nsSecurity, keyLegacyIterations, "45000"))
	assert.Equal(t, 45000, l.Iterations())

	// Garbage and non-positive values fall back to the historical default.
	require.NoError(t, store.Put(nsSecurity, keyLegacyIterations, "many"))
	assert.Equal(t, LegacyDefaultIterations, l.Iterations())
	require.NoError(t, store.Put(nsSecurity, keyLegacyIterations, "0"))
	assert.Equal(t, LegacyDefaultIterations, l.Iterations())
}

func TestLegacy_Migrated(t *testing.T) {
	l := NewLegacy(memory.NewStore())

	require.NoError(t, l.SetMigrated(true))
	assert.True(t, l.Migrated())

	require.NoError(t, l.SetMigrated(false))
	assert.False(t, l.Migrated())
}

func TestLegacy_RestoreBackup(t *testing.T) {
	l := NewLegacy(memory.NewStore())

	require.NoError(t, l.RestoreBackup("00112233445566778899aabbccddeeff", "token-a1b2"))

	salt, ok := l.Salt()
	require.True(t, ok)
	assert.Equal(t, "00112233445566778899aabbccddeeff", salt)

	token, ok := l.VerifyToken()
	require.True(t, ok)
	assert.Equal(t, "token-a1b2", token)

	assert.True(t, l.PasswordSet())
	assert.True(t, l.Migrated(), "legacy backups always hold encrypted content")
}

func TestLegacy_RestoreBackup_MissingFields(t *testing.T) {
	l := NewLegacy(memory.NewStore())
	require.Error(t, l.RestoreBackup("", "token"))
	require.Error(t, l.RestoreBackup("aabb", ""))
	assert.False(t, l.PasswordSet())
}
