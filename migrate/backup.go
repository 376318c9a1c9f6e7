package migrate

import (
	"fmt"
	"io"
	"os"
)

// BackupSuffix is appended to the database filename for the pre-migration
// snapshot. The suffix is shared with the mobile app so recovery tooling
// finds snapshots from either implementation.
const BackupSuffix = ".pre_migration.bak"

// createBackup copies the database file byte for byte. The copy is synced
// to disk before it counts as a snapshot.
func createBackup(source, dest string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening database for snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying database to snapshot: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	return out.Close()
}

// restoreBackup puts the snapshot back over the live database, preferring a
// rename and falling back to a copy. Open handles on the old file keep
// serving its previous content until they are reopened.
func restoreBackup(dbPath, backupPath string) error {
	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("snapshot not found: %w", err)
	}
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing damaged database: %w", err)
	}
	if err := os.Rename(backupPath, dbPath); err != nil {
		// Rename can fail across filesystems; copy instead and keep the
		// snapshot file.
		if copyErr := createBackup(backupPath, dbPath); copyErr != nil {
			return fmt.Errorf("restoring snapshot: %w", copyErr)
		}
	}
	return nil
}

// deleteBackup removes the snapshot file. A missing file is not an error.
func deleteBackup(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}
