package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var upgradeIterations bool

var changePasswordCmd = &cobra.Command{
	Use:   "change-password",
	Short: "Change the master password",
	Long: `Re-wraps the data key under a key derived from the new password.
Notes are not touched, so the change takes the same time whether the vault
holds one note or ten thousand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		current, err := promptPassword("Enter current master password: ")
		if err != nil {
			return err
		}
		next, err := promptNewPassword("new master password")
		if err != nil {
			return err
		}

		if err := keys.ChangePassword(ctx, current, next, upgradeIterations); err != nil {
			return err
		}
		defer keys.Lock()

		if err := locker.RecordUnlock(); err != nil {
			return err
		}

		meta, err := keys.Metadata()
		if err != nil {
			return err
		}
		fmt.Printf("Master password changed (key version %d).\n", meta.KeyVersion)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changePasswordCmd)
	changePasswordCmd.Flags().BoolVar(&upgradeIterations, "upgrade-iterations", false,
		"re-derive at the current default PBKDF2 cost")
}
