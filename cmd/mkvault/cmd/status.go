package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mknotes/mkvault/migrate"
	"github.com/mknotes/mkvault/vault"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if !keys.Initialized() {
			m := migrate.NewMigrator(keys, legacy, noteStore, migrate.WithLogger(engineLogger()))
			if m.Needed() {
				fmt.Println("Vault: legacy scheme (run mkvault migrate)")
			} else {
				fmt.Println("Vault: not initialized (run mkvault init)")
			}
			return nil
		}

		meta, err := keys.Metadata()
		if err != nil {
			return err
		}

		scheme := fmt.Sprintf("version %d", meta.VaultVersion)
		if meta.VaultVersion == vault.VersionDEK {
			scheme = fmt.Sprintf("wrapped DEK (version %d)", meta.VaultVersion)
		}

		fmt.Println("Vault: initialized")
		fmt.Printf("Scheme: %s\n", scheme)
		fmt.Printf("Key version: %d\n", meta.KeyVersion)
		fmt.Printf("PBKDF2 iterations: %d\n", meta.Iterations)

		if keys.MirrorConfigured() {
			fmt.Printf("Mirror: configured (principal %s)\n", storedPrincipal())
		} else {
			fmt.Println("Mirror: not configured")
		}

		active, trashed, err := noteStore.Counts(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Notes: %d active, %d trashed\n", active, trashed)

		if last := locker.LastUnlock(); !last.IsZero() {
			fmt.Printf("Last unlock: %s\n", last.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
