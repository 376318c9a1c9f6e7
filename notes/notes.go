// Package notes stores note rows in a local SQLite database. Sensitive
// columns hold vault-encrypted blobs; the store encrypts on write and
// decrypts on read with a DEK supplied per call, so it never holds key
// material of its own.
package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/mknotes/mkvault/crypto"
)

// ErrNotFound is returned when a note id matches no row.
var ErrNotFound = errors.New("note not found")

// Note is one decrypted note row. ChecklistData and RoutineData carry the
// app's JSON sidecars and are encrypted like the text fields.
type Note struct {
	ID            int64
	Title         string
	Content       string
	ChecklistData string
	RoutineData   string
}

// TrashedNote is one decrypted row of the trash table.
type TrashedNote struct {
	ID            int64
	Title         string
	Content       string
	ChecklistData string
}

// Store is the SQLite-backed note store.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates (if needed) and opens the note database at path.
// The caller must Close the returned store.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func openDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening note database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging note database: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reopen closes the handle and opens the file at the same path again. The
// migration engine calls this after swapping a snapshot back in, because an
// open handle keeps serving the replaced file. Only safe while no other
// operation is in flight.
func (s *Store) Reopen() error {
	s.db.Close()
	db, err := openDB(s.path)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

// DB exposes the underlying handle for the migration engine, which
// re-encrypts rows inside its own transaction.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path. The migration engine snapshots the
// file at this path before touching any rows.
func (s *Store) Path() string {
	return s.path
}

// Create encrypts the note's fields under dek and inserts a new row.
func (s *Store) Create(ctx context.Context, dek []byte, n Note) (int64, error) {
	if err := encryptFields(dek, &n.Title, &n.Content, &n.ChecklistData, &n.RoutineData); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (title, content, checklist_data, routine_data) VALUES (?, ?, ?, ?)`,
		n.Title, n.Content, n.ChecklistData, n.RoutineData)
	if err != nil {
		return 0, fmt.Errorf("inserting note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading note id: %w", err)
	}
	return id, nil
}

// Get returns the note with the given id, decrypted under dek. Fields that
// predate encryption are returned as stored.
func (s *Store) Get(ctx context.Context, dek []byte, id int64) (Note, error) {
	var n Note
	err := s.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(title, ''), COALESCE(content, ''),
		 COALESCE(checklist_data, ''), COALESCE(routine_data, '')
		 FROM notes WHERE id = ?`, id).
		Scan(&n.ID, &n.Title, &n.Content, &n.ChecklistData, &n.RoutineData)
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, fmt.Errorf("note %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Note{}, fmt.Errorf("reading note: %w", err)
	}
	decryptFields(dek, &n.Title, &n.Content, &n.ChecklistData, &n.RoutineData)
	return n, nil
}

// List returns all notes ordered by id, decrypted under dek.
func (s *Store) List(ctx context.Context, dek []byte) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(title, ''), COALESCE(content, ''),
		 COALESCE(checklist_data, ''), COALESCE(routine_data, '')
		 FROM notes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.ChecklistData, &n.RoutineData); err != nil {
			return nil, fmt.Errorf("scanning note: %w", err)
		}
		decryptFields(dek, &n.Title, &n.Content, &n.ChecklistData, &n.RoutineData)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Update re-encrypts the note's fields under dek and rewrites the row.
func (s *Store) Update(ctx context.Context, dek []byte, n Note) error {
	if err := encryptFields(dek, &n.Title, &n.Content, &n.ChecklistData, &n.RoutineData); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE notes SET title = ?, content = ?, checklist_data = ?, routine_data = ?,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		n.Title, n.Content, n.ChecklistData, n.RoutineData, n.ID)
	if err != nil {
		return fmt.Errorf("updating note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating note: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("note %d: %w", n.ID, ErrNotFound)
	}
	return nil
}

// MoveToTrash moves a note into the trash table. Encrypted columns are
// copied as stored, so no key is needed.
func (s *Store) MoveToTrash(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning trash transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO trash (note_title, note_content, checklist_data)
		 SELECT title, content, checklist_data FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("copying note to trash: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("copying note to trash: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("note %d: %w", id, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting trashed note: %w", err)
	}
	return tx.Commit()
}

// Trash returns all trashed notes ordered by id, decrypted under dek.
func (s *Store) Trash(ctx context.Context, dek []byte) ([]TrashedNote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trash_id, COALESCE(note_title, ''), COALESCE(note_content, ''),
		 COALESCE(checklist_data, '')
		 FROM trash ORDER BY trash_id`)
	if err != nil {
		return nil, fmt.Errorf("listing trash: %w", err)
	}
	defer rows.Close()

	var out []TrashedNote
	for rows.Next() {
		var n TrashedNote
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.ChecklistData); err != nil {
			return nil, fmt.Errorf("scanning trash row: %w", err)
		}
		decryptFields(dek, &n.Title, &n.Content, &n.ChecklistData)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Counts reports the number of active and trashed notes. It reads no
// encrypted content, so it works while the vault is locked.
func (s *Store) Counts(ctx context.Context) (active, trashed int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&active); err != nil {
		return 0, 0, fmt.Errorf("counting notes: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trash`).Scan(&trashed); err != nil {
		return 0, 0, fmt.Errorf("counting trash: %w", err)
	}
	return active, trashed, nil
}

func encryptFields(dek []byte, fields ...*string) error {
	for _, f := range fields {
		enc, err := crypto.Encrypt(*f, dek)
		if err != nil {
			return fmt.Errorf("encrypting field: %w", err)
		}
		*f = enc
	}
	return nil
}

func decryptFields(dek []byte, fields ...*string) {
	for _, f := range fields {
		*f = crypto.Decrypt(*f, dek)
	}
}
