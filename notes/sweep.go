package notes

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mknotes/mkvault/crypto"
)

// EncryptAll encrypts every plaintext field in both tables under dek,
// leaving fields that already carry the encrypted shape untouched. The
// whole sweep runs in one transaction and returns the number of fields it
// encrypted. Runs once right after vault creation on a database that
// predates encryption; re-running is harmless.
func (s *Store) EncryptAll(ctx context.Context, dek []byte) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning encryption sweep: %w", err)
	}
	defer tx.Rollback()

	total := 0
	for _, t := range []struct {
		table    string
		idColumn string
		columns  []string
	}{
		{"notes", "id", []string{"title", "content", "checklist_data", "routine_data"}},
		{"trash", "trash_id", []string{"note_title", "note_content", "checklist_data"}},
	} {
		n, err := sweepTable(ctx, tx, dek, t.table, t.idColumn, t.columns)
		if err != nil {
			return 0, err
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing encryption sweep: %w", err)
	}
	return total, nil
}

func sweepTable(ctx context.Context, tx *sql.Tx, dek []byte, table, idColumn string, columns []string) (int, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s, %s FROM %s`, idColumn, strings.Join(columns, ", "), table))
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", table, err)
	}

	type rowUpdate struct {
		id     int64
		values []string
	}

	// Updates are buffered and applied after the cursor closes; the
	// transaction owns a single connection.
	var updates []rowUpdate
	count := 0
	for rows.Next() {
		var id int64
		raw := make([]sql.NullString, len(columns))
		dest := make([]any, 0, len(columns)+1)
		dest = append(dest, &id)
		for i := range raw {
			dest = append(dest, &raw[i])
		}
		if err := rows.Scan(dest...); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning %s row: %w", table, err)
		}

		changed := false
		values := make([]string, len(columns))
		for i, v := range raw {
			values[i] = v.String
			if !v.Valid || v.String == "" || crypto.IsEncrypted(v.String) {
				continue
			}
			enc, err := crypto.Encrypt(v.String, dek)
			if err != nil {
				rows.Close()
				return 0, fmt.Errorf("encrypting %s.%s: %w", table, columns[i], err)
			}
			values[i] = enc
			changed = true
			count++
		}
		if changed {
			updates = append(updates, rowUpdate{id: id, values: values})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterating %s: %w", table, err)
	}
	rows.Close()

	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c + " = ?"
	}
	stmt := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = ?`, table, strings.Join(sets, ", "), idColumn)
	for _, u := range updates {
		args := make([]any, 0, len(u.values)+1)
		for _, v := range u.values {
			args = append(args, v)
		}
		args = append(args, u.id)
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, fmt.Errorf("updating %s row %d: %w", table, u.id, err)
		}
	}
	return count, nil
}
