package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/studiosync/internal/model"
	"github.com/nhle/studiosync/internal/theme"
)

var activityLimit int

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show the most recent automation activity",
	Args:  cobra.NoArgs,
	RunE:  runActivity,
}

func init() {
	activityCmd.Flags().IntVarP(&activityLimit, "limit", "n",
		model.MaxActivityEntries, "Maximum number of entries to display")
}

func runActivity(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp("")
	if err != nil {
		return err
	}
	defer cleanup()

	entries, err := a.Activity.Recent(cmd.Context(), activityLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return outputJSON(out, entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, theme.HelpStyle.Render("No activity yet."))
		return nil
	}

	t := theme.NewTable("When", "Type", "User", "Text")
	for _, e := range entries {
		t.Row(
			e.Timestamp.Local().Format(time.DateTime),
			theme.ActivityTypeStyle(e.Type).Render(e.Type),
			e.User,
			e.Text,
		)
	}
	fmt.Fprintln(out, t.Render())

	return nil
}
