package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mknotes/mkvault/crypto"
	"github.com/mknotes/mkvault/internal/util"
)

// VerifyPassword checks the master password against the data itself: it
// derives the legacy key and test-decrypts the first encrypted-looking
// field it finds. A database holding only plaintext has nothing to check
// against and reports true for any password.
func (m *Migrator) VerifyPassword(ctx context.Context, password string) (bool, error) {
	if password == "" {
		return false, nil
	}

	saltHex, ok := m.legacy.Salt()
	if !ok {
		return false, fmt.Errorf("legacy salt missing")
	}
	salt, err := util.HexDecode(saltHex)
	if err != nil {
		return false, fmt.Errorf("decoding legacy salt: %w", err)
	}

	kek, err := crypto.DeriveKey(password, salt, m.legacy.Iterations())
	if err != nil {
		return false, fmt.Errorf("deriving legacy key: %w", err)
	}
	defer crypto.Wipe(kek)

	for _, spec := range m.tables {
		blob, found, err := firstEncryptedField(ctx, m.store.DB(), spec)
		if err != nil {
			return false, err
		}
		if found {
			return crypto.DecryptField(blob, kek).State == crypto.FieldDecrypted, nil
		}
	}
	return true, nil
}

func firstEncryptedField(ctx context.Context, db *sql.DB, spec TableSpec) (string, bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s`, strings.Join(spec.EncryptedColumns, ", "), spec.Table))
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", spec.Table, err)
	}
	defer rows.Close()

	raw := make([]sql.NullString, len(spec.EncryptedColumns))
	dest := make([]any, len(raw))
	for i := range raw {
		dest[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return "", false, fmt.Errorf("scanning %s row: %w", spec.Table, err)
		}
		for _, v := range raw {
			if v.Valid && crypto.IsEncrypted(v.String) {
				return v.String, true, nil
			}
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, fmt.Errorf("iterating %s: %w", spec.Table, err)
	}
	return "", false, nil
}
