package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mknotes/mkvault/crypto"
	"github.com/mknotes/mkvault/notes"
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Work with encrypted notes",
	Long:  `Commands for creating, reading and trashing notes. Each unlocks the vault with the master password and locks it again on exit.`,
}

// unlockForSession unlocks the vault and hands back a DEK copy for the rest
// of the command. The caller wipes the copy and locks on exit.
func unlockForSession(ctx context.Context) ([]byte, error) {
	password, err := passwordFromEnvOrPrompt("Enter master password: ")
	if err != nil {
		return nil, err
	}
	if err := keys.Unlock(ctx, password); err != nil {
		return nil, err
	}
	if err := locker.RecordUnlock(); err != nil {
		return nil, err
	}
	return keys.DEK()
}

var (
	noteTitle     string
	noteContent   string
	noteChecklist string
	noteRoutine   string
)

var noteAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a note",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dek, err := unlockForSession(ctx)
		if err != nil {
			return err
		}
		defer keys.Lock()
		defer crypto.Wipe(dek)

		id, err := noteStore.Create(ctx, dek, notes.Note{
			Title:         noteTitle,
			Content:       noteContent,
			ChecklistData: noteChecklist,
			RoutineData:   noteRoutine,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created note %d.\n", id)
		return nil
	},
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dek, err := unlockForSession(ctx)
		if err != nil {
			return err
		}
		defer keys.Lock()
		defer crypto.Wipe(dek)

		all, err := noteStore.List(ctx, dek)
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Println("No notes.")
			return nil
		}
		for _, n := range all {
			title := n.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%4d  %s\n", n.ID, title)
		}
		return nil
	},
}

var noteShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid note id %q", args[0])
		}

		dek, err := unlockForSession(ctx)
		if err != nil {
			return err
		}
		defer keys.Lock()
		defer crypto.Wipe(dek)

		n, err := noteStore.Get(ctx, dek, id)
		if err != nil {
			return err
		}
		fmt.Printf("Title: %s\n", n.Title)
		fmt.Printf("Content:\n%s\n", n.Content)
		if n.ChecklistData != "" {
			fmt.Printf("Checklist: %s\n", n.ChecklistData)
		}
		if n.RoutineData != "" {
			fmt.Printf("Routine: %s\n", n.RoutineData)
		}
		return nil
	},
}

var noteRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Move a note to the trash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid note id %q", args[0])
		}
		// Trashing copies the stored columns as they are; no key needed.
		if err := noteStore.MoveToTrash(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Note %d moved to trash.\n", id)
		return nil
	},
}

var noteTrashCmd = &cobra.Command{
	Use:   "trash",
	Short: "List trashed notes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dek, err := unlockForSession(ctx)
		if err != nil {
			return err
		}
		defer keys.Lock()
		defer crypto.Wipe(dek)

		trashed, err := noteStore.Trash(ctx, dek)
		if err != nil {
			return err
		}
		if len(trashed) == 0 {
			fmt.Println("Trash is empty.")
			return nil
		}
		for _, n := range trashed {
			title := n.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%4d  %s\n", n.ID, title)
		}
		return nil
	},
}

var noteEncryptExistingCmd = &cobra.Command{
	Use:   "encrypt-existing",
	Short: "Encrypt plaintext note fields left by older app versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dek, err := unlockForSession(ctx)
		if err != nil {
			return err
		}
		defer keys.Lock()
		defer crypto.Wipe(dek)

		count, err := noteStore.EncryptAll(ctx, dek)
		if err != nil {
			return err
		}
		if count == 0 {
			fmt.Println("All note fields already encrypted.")
		} else {
			fmt.Printf("Encrypted %d note fields.\n", count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(noteCmd)
	noteCmd.AddCommand(noteAddCmd, noteListCmd, noteShowCmd, noteRmCmd, noteTrashCmd, noteEncryptExistingCmd)

	noteAddCmd.Flags().StringVar(&noteTitle, "title", "", "note title")
	noteAddCmd.Flags().StringVar(&noteContent, "content", "", "note body")
	noteAddCmd.Flags().StringVar(&noteChecklist, "checklist", "", "checklist payload (JSON)")
	noteAddCmd.Flags().StringVar(&noteRoutine, "routine", "", "routine payload (JSON)")
}
