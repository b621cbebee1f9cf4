package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/studiosync/internal/model"
)

var moveCmd = &cobra.Command{
	Use:   "move IDENTITY ID FROM TO",
	Short: "Move a message between folders",
	Args:  cobra.ExactArgs(4),
	RunE:  runMove,
}

var archiveCmd = &cobra.Command{
	Use:   "archive IDENTITY ID",
	Short: "Move an INBOX message to the archive folder",
	Args:  cobra.ExactArgs(2),
	RunE:  runArchive,
}

func runMove(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp("")
	if err != nil {
		return err
	}
	defer cleanup()

	identity, id := args[0], model.ExternalID(args[1])
	if err := a.CheckIdentity(identity); err != nil {
		return err
	}

	err = a.Mail.MoveMessage(cmd.Context(), identity, id, args[2], args[3])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Moved %s from %s to %s.\n",
		id, args[2], args[3])
	return nil
}

func runArchive(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp("")
	if err != nil {
		return err
	}
	defer cleanup()

	identity, id := args[0], model.ExternalID(args[1])
	if err := a.CheckIdentity(identity); err != nil {
		return err
	}

	if err := a.Mail.Archive(cmd.Context(), identity, id); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Archived %s to %s.\n",
		id, a.Mail.ArchiveFolder())
	return nil
}
