package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror vault metadata to the object store",
	Long: `Pushes or fetches the wrapped key document keyed by this installation's
principal id. Only wrapped keys and public parameters are mirrored; notes
never leave the machine.`,
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload the local vault metadata",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireMirror(); err != nil {
			return err
		}
		if err := keys.PushRemote(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Vault metadata pushed.")
		return nil
	},
}

var syncFetchForce bool

var syncFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download mirrored vault metadata onto this machine",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireMirror(); err != nil {
			return err
		}
		if keys.Initialized() && !syncFetchForce {
			return errors.New("local vault metadata already exists; pass --force to overwrite it with the mirrored copy")
		}
		found, err := keys.FetchRemote(cmd.Context())
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("No mirrored metadata for this principal.")
			return nil
		}
		fmt.Println("Vault metadata fetched. Unlock with your master password to use it.")
		return nil
	},
}

func requireMirror() error {
	if keys.MirrorConfigured() {
		return nil
	}
	return errors.New("no metadata mirror configured; set remote.endpoint, remote.bucket and credentials (run mkvault init first to create a principal id)")
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncPushCmd, syncFetchCmd)

	syncFetchCmd.Flags().BoolVar(&syncFetchForce, "force", false, "overwrite existing local metadata")
}
