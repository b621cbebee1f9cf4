package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/studiosync/internal/theme"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single sync pass and exit",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

// syncStatusView is the JSON shape of one identity's status.
type syncStatusView struct {
	Identity string    `json:"identity"`
	State    string    `json:"state"`
	Skipped  bool      `json:"skipped,omitempty"`
	LastSync time.Time `json:"last_sync,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func runSync(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp("")
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if err := a.Start(ctx); err != nil {
		return err
	}

	a.Driver.RunPass(ctx)

	statuses := a.Driver.GetStatuses()
	views := make([]syncStatusView, 0, len(statuses))
	for _, s := range statuses {
		v := syncStatusView{
			Identity: s.Identity,
			State:    s.State.String(),
			Skipped:  s.Skipped,
			LastSync: s.LastSync,
		}
		if s.Error != nil {
			v.Error = s.Error.Error()
		}
		views = append(views, v)
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return outputJSON(out, views)
	}

	if len(views) == 0 {
		fmt.Fprintln(out, theme.HelpStyle.Render("No enabled identities."))
		return nil
	}

	t := theme.NewTable("Identity", "State", "Detail")
	for _, v := range views {
		detail := v.Error
		if v.Skipped {
			detail = "no credentials"
		}
		t.Row(v.Identity, theme.SyncStateStyle(v.State).Render(v.State), detail)
	}
	fmt.Fprintln(out, t.Render())

	return nil
}
