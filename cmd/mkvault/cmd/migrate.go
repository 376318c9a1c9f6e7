package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mknotes/mkvault/migrate"
	"github.com/mknotes/mkvault/vault"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Convert a legacy vault to the wrapped-DEK scheme",
	Long: `Re-encrypts every note from the old password-derived key to a fresh
random data key, then wraps that key under the master password. A snapshot
of the note database is kept until the conversion fully succeeds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		m := migrate.NewMigrator(keys, legacy, noteStore, migrate.WithLogger(engineLogger()))
		if !m.Needed() {
			fmt.Println("Nothing to migrate.")
			return nil
		}

		printBanner()
		fmt.Println("This vault still uses the legacy scheme. Notes will be re-encrypted")
		fmt.Println("under a new data key; a database snapshot protects the conversion.")

		password, err := passwordFromEnvOrPrompt("Enter master password: ")
		if err != nil {
			return err
		}

		ok, err := m.VerifyPassword(ctx, password)
		if err != nil {
			return err
		}
		if !ok {
			return vault.ErrWrongPassword
		}

		if err := m.Run(ctx, password); err != nil {
			return err
		}
		defer keys.Lock()

		if err := locker.RecordUnlock(); err != nil {
			return err
		}

		fmt.Println("Migration complete. The vault now uses a wrapped data key.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
