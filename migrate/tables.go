package migrate

// TableSpec names one table whose listed columns hold vault-encrypted
// values. The re-encryption pass reads and rewrites tables through these
// descriptors without interpreting what the columns mean.
type TableSpec struct {
	Table            string
	IDColumn         string
	EncryptedColumns []string
}

// DefaultTables describes the note store's encrypted column layout.
var DefaultTables = []TableSpec{
	{
		Table:            "notes",
		IDColumn:         "id",
		EncryptedColumns: []string{"title", "content", "checklist_data", "routine_data"},
	},
	{
		Table:            "trash",
		IDColumn:         "trash_id",
		EncryptedColumns: []string{"note_title", "note_content", "checklist_data"},
	},
}
