package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mknotes/mkvault/crypto"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new vault",
	Long: `Creates the vault: generates a random data key, wraps it under a key
derived from your master password, and encrypts any notes already present
in the database. With a mirror configured, the wrapped key material is
pushed so the vault survives losing this machine.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if keys.Initialized() {
			return fmt.Errorf("a vault already exists; use change-password or status")
		}

		principal := storedPrincipal()
		if principal == "" {
			principal = uuid.NewString()
			if err := kvStore.Put(nsCLI, keyPrincipalID, principal); err != nil {
				return fmt.Errorf("persisting principal id: %w", err)
			}
			// The mirror is keyed by this id; rebuild so the first push
			// lands under it.
			if err := buildKeyManager(ctx); err != nil {
				return err
			}
		}

		password := viper.GetString("password")
		if password == "" {
			pw, err := promptNewPassword("master password")
			if err != nil {
				return err
			}
			password = pw
		} else if err := checkStrength(password); err != nil {
			return err
		}

		if err := keys.Initialize(ctx, password); err != nil {
			return err
		}
		defer keys.Lock()

		if err := legacy.MarkPasswordSet(); err != nil {
			return err
		}
		if err := locker.RecordUnlock(); err != nil {
			return err
		}

		dek, err := keys.DEK()
		if err != nil {
			return err
		}
		defer crypto.Wipe(dek)

		encrypted, err := noteStore.EncryptAll(ctx, dek)
		if err != nil {
			return fmt.Errorf("encrypting existing notes: %w", err)
		}

		fmt.Println("Vault created.")
		fmt.Printf("Principal id: %s\n", principal)
		if encrypted > 0 {
			fmt.Printf("Encrypted %d existing note fields.\n", encrypted)
		}
		if keys.MirrorConfigured() {
			if err := keys.PushRemote(ctx); err != nil {
				fmt.Println("Mirror push failed; run mkvault sync push to retry.")
			} else {
				fmt.Println("Wrapped key material mirrored.")
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
