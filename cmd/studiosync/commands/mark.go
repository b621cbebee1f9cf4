package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/studiosync/internal/model"
)

var (
	markSubject string
	markActor   string
)

var markProcessedCmd = &cobra.Command{
	Use:   "mark-processed ID",
	Short: "Record that a message was turned into a card",
	Args:  cobra.ExactArgs(1),
	RunE: markRunner("processed",
		func(ctx context.Context, a markService, id model.ExternalID) (bool, error) {
			return a.MarkProcessed(ctx, id, markSubject, markActor)
		}),
}

var unmarkProcessedCmd = &cobra.Command{
	Use:   "unmark-processed ID",
	Short: "Remove a message from the processed set",
	Args:  cobra.ExactArgs(1),
	RunE: markRunner("unmarked",
		func(ctx context.Context, a markService, id model.ExternalID) (bool, error) {
			return a.UnmarkProcessed(ctx, id)
		}),
}

var markDeletedCmd = &cobra.Command{
	Use:   "mark-deleted ID",
	Short: "Hide a message locally",
	Args:  cobra.ExactArgs(1),
	RunE: markRunner("deleted",
		func(ctx context.Context, a markService, id model.ExternalID) (bool, error) {
			return a.MarkDeleted(ctx, id, markSubject, markActor)
		}),
}

var restoreCmd = &cobra.Command{
	Use:   "restore ID",
	Short: "Restore a locally deleted message",
	Args:  cobra.ExactArgs(1),
	RunE: markRunner("restored",
		func(ctx context.Context, a markService, id model.ExternalID) (bool, error) {
			return a.RestoreDeleted(ctx, id)
		}),
}

var markSpamCmd = &cobra.Command{
	Use:   "mark-spam ID",
	Short: "Flag a message as spam",
	Args:  cobra.ExactArgs(1),
	RunE: markRunner("spam",
		func(ctx context.Context, a markService, id model.ExternalID) (bool, error) {
			return a.MarkSpam(ctx, id, markSubject, markActor)
		}),
}

func init() {
	for _, c := range []*cobra.Command{
		markProcessedCmd, markDeletedCmd, markSpamCmd,
	} {
		c.Flags().StringVar(&markSubject, "subject", "",
			"Message subject recorded in the activity log")
		c.Flags().StringVar(&markActor, "actor", "",
			"Who performed the action")
	}
}

// markService is the subset of mailops used by the mark commands.
type markService interface {
	MarkProcessed(ctx context.Context, id model.ExternalID, subject, actor string) (bool, error)
	UnmarkProcessed(ctx context.Context, id model.ExternalID) (bool, error)
	MarkDeleted(ctx context.Context, id model.ExternalID, subject, actor string) (bool, error)
	RestoreDeleted(ctx context.Context, id model.ExternalID) (bool, error)
	MarkSpam(ctx context.Context, id model.ExternalID, subject, actor string) (bool, error)
}

func markRunner(
	verb string,
	op func(ctx context.Context, a markService, id model.ExternalID) (bool, error),
) func(cmd *cobra.Command, args []string) error {

	return func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := openApp("")
		if err != nil {
			return err
		}
		defer cleanup()

		id := model.ExternalID(args[0])
		changed, err := op(cmd.Context(), a.Mail, id)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if changed {
			fmt.Fprintf(out, "%s: %s\n", id, verb)
		} else {
			fmt.Fprintf(out, "%s: unchanged\n", id)
		}
		return nil
	}
}
