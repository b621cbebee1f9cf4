package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/studiosync/internal/theme"
)

var attachmentsCmd = &cobra.Command{
	Use:   "attachments",
	Short: "Inspect the attachment save queue",
}

var attachmentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending attachment jobs",
	Args:  cobra.NoArgs,
	RunE:  runAttachmentsList,
}

var attachmentsDoneCmd = &cobra.Command{
	Use:   "done JOB_ID",
	Short: "Mark an attachment job as saved",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttachmentsDone,
}

func init() {
	attachmentsCmd.AddCommand(attachmentsListCmd)
	attachmentsCmd.AddCommand(attachmentsDoneCmd)
}

func runAttachmentsList(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp("")
	if err != nil {
		return err
	}
	defer cleanup()

	jobs, err := a.Mail.PendingAttachments(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return outputJSON(out, jobs)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, theme.HelpStyle.Render("No pending attachments."))
		return nil
	}

	t := theme.NewTable("Job", "Identity", "Folder", "Message", "Files", "Queued")
	for _, j := range jobs {
		t.Row(j.ID, j.Identity, j.Folder, j.ExternalID,
			strings.Join(j.Filenames, ", "),
			j.CreatedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintln(out, t.Render())

	return nil
}

func runAttachmentsDone(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp("")
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.Mail.MarkAttachmentsSaved(cmd.Context(), args[0]); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Job %s completed.\n", args[0])
	return nil
}
