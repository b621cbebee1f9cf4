package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/studiosync/internal/model"
	"github.com/nhle/studiosync/internal/store"
	"github.com/nhle/studiosync/internal/theme"
)

var (
	inboxFolder string
	inboxAll    bool
	inboxLimit  int
)

var inboxCmd = &cobra.Command{
	Use:   "inbox IDENTITY",
	Short: "List the messages of a mailbox folder",
	Long: `Fetch a folder of IDENTITY's mailbox and list its messages. Messages
marked processed, deleted or spam are hidden unless --all is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runInbox,
}

func init() {
	inboxCmd.Flags().StringVarP(&inboxFolder, "folder", "f", "INBOX",
		"Folder to list")
	inboxCmd.Flags().BoolVarP(&inboxAll, "all", "a", false,
		"Include processed, deleted and spam messages")
	inboxCmd.Flags().IntVarP(&inboxLimit, "limit", "n", 20,
		"Maximum number of messages to display")
}

// inboxRow is one listed message.
type inboxRow struct {
	model.Message
	Marks []string `json:"marks,omitempty"`
}

func runInbox(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp("")
	if err != nil {
		return err
	}
	defer cleanup()

	identity := args[0]
	if err := a.CheckIdentity(identity); err != nil {
		return err
	}

	ctx := cmd.Context()
	msgs, err := a.Cache.Refresh(ctx, identity, inboxFolder)
	if err != nil {
		return err
	}

	marks := make(map[store.MailSet]map[string]store.MailIDEntry)
	for _, set := range []store.MailSet{
		store.MailSetProcessed, store.MailSetDeleted, store.MailSetSpam,
	} {
		ids, err := a.Mail.IDs(ctx, set)
		if err != nil {
			return err
		}
		marks[set] = ids
	}

	rows := make([]inboxRow, 0, len(msgs))
	for _, m := range msgs {
		row := inboxRow{Message: m}
		for set, ids := range marks {
			if _, ok := ids[m.ExternalID.String()]; ok {
				row.Marks = append(row.Marks, string(set))
			}
		}
		if len(row.Marks) > 0 && !inboxAll {
			continue
		}
		rows = append(rows, row)
		if inboxLimit > 0 && len(rows) == inboxLimit {
			break
		}
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return outputJSON(out, rows)
	}

	fmt.Fprintln(out, theme.HeaderStyle.Render(
		fmt.Sprintf("%s / %s", identity, inboxFolder)))

	if len(rows) == 0 {
		fmt.Fprintln(out, theme.HelpStyle.Render("No messages."))
		return nil
	}

	t := theme.NewTable("ID", "From", "Subject", "Date", "Att.")
	for _, r := range rows {
		att := ""
		if r.HasAttachments() {
			att = fmt.Sprint(len(r.Attachments))
		}
		subject := r.Subject
		for _, mark := range r.Marks {
			subject += " [" + mark + "]"
		}
		t.Row(r.ExternalID.String(), r.From, subject, r.Date, att)
	}
	fmt.Fprintln(out, t.Render())

	return nil
}
