package vault

import (
	"testing"

	"github.com/mknotes/mkvault/crypto"
	"github.com/mknotes/mkvault/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_RoundTrip(t *testing.T) {
	store := memory.NewStore()
	want := Metadata{
		Salt:         "00112233445566778899aabbccddeeff",
		WrappedDEK:   "aabbccdd:eeff0011",
		VerifyTag:    "cafebabe",
		Iterations:   45_000,
		KeyVersion:   3,
		VaultVersion: VersionDEK,
	}

	require.NoError(t, saveMetadata(store, want))
	got, err := loadMetadata(store)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMetadata_LoadEmptyStore(t *testing.T) {
	_, err := loadMetadata(memory.NewStore())
	require.ErrorIs(t, err, ErrNoVault)
}

func TestMetadata_LoadPartialRecord(t *testing.T) {
	tests := []struct {
		name   string
		remove string
	}{
		{"Missing salt", keySalt},
		{"Missing wrapped DEK", keyEncryptedDEK},
		{"Missing verify tag", keyVerifyTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			require.NoError(t, saveMetadata(store, Metadata{
				Salt:       "aa",
				WrappedDEK: "bb:cc",
				VerifyTag:  "dd",
				Iterations: 1000,
			}))
			require.NoError(t, store.Delete(nsVault, tt.remove))

			_, err := loadMetadata(store)
			require.ErrorIs(t, err, ErrCorruptMetadata)
			assert.NotErrorIs(t, err, ErrNoVault)
		})
	}
}

func TestMetadata_LoadEmptyCoreField(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, saveMetadata(store, Metadata{
		Salt:       "aa",
		WrappedDEK: "bb:cc",
		VerifyTag:  "dd",
		Iterations: 1000,
	}))
	require.NoError(t, store.Put(nsVault, keyVerifyTag, ""))

	_, err := loadMetadata(store)
	require.ErrorIs(t, err, ErrCorruptMetadata)
}

func TestMetadata_IntDefaults(t *testing.T) {
	store := memory.NewStore()

	// Only the three core fields present, written by hand as an old
	// record would look.
	require.NoError(t, store.Put(nsVault, keySalt, "aa"))
	require.NoError(t, store.Put(nsVault, keyEncryptedDEK, "bb:cc"))
	require.NoError(t, store.Put(nsVault, keyVerifyTag, "dd"))

	got, err := loadMetadata(store)
	require.NoError(t, err)
	assert.Equal(t, crypto.DefaultIterations, got.Iterations)
	assert.Equal(t, 1, got.KeyVersion)
	assert.Equal(t, 0, got.VaultVersion)
}

func TestMetadata_BadIntValue(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Put(nsVault, keySalt, "aa"))
	require.NoError(t, store.Put(nsVault, keyEncryptedDEK, "bb:cc"))
	require.NoError(t, store.Put(nsVault, keyVerifyTag, "dd"))
	require.NoError(t, store.Put(nsVault, keyIterations, "lots"))

	_, err := loadMetadata(store)
	require.ErrorIs(t, err, ErrCorruptMetadata)
}
