package notes

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// ensureSchema creates the note tables if they do not exist. Safe to call
// on every open (all statements use IF NOT EXISTS).
func ensureSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("ensuring note schema: %w", err)
	}
	return nil
}
