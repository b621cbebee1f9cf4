package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/studiosync/internal/credential"
	"github.com/nhle/studiosync/internal/model"
	"github.com/nhle/studiosync/internal/theme"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report which identities have credentials",
	Args:  cobra.NoArgs,
	RunE:  runConfigCheck,
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret KEY",
	Short: "Store a secret (e.g. IMAP_PASS_MONTSE) in the OS keyring",
	Long: `Store a secret in the OS keyring. The value is read from stdin.
Keyring lookups are only used when credentials.use_keyring is enabled.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigSetSecret,
}

var configDeleteSecretCmd = &cobra.Command{
	Use:   "delete-secret KEY",
	Short: "Remove a secret from the OS keyring",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigDeleteSecret,
}

var configForce bool

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false,
		"Overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configSetSecretCmd)
	configCmd.AddCommand(configDeleteSecretCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return outputJSON(cmd.OutOrStdout(), cfg)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force)", configPath)
	}

	if err := model.SaveConfig(configPath, model.DefaultAppConfig()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
	return nil
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp("")
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	ids := a.Config.Identities()
	if len(ids) == 0 {
		fmt.Fprintln(out, theme.HelpStyle.Render("Roster is empty."))
		return nil
	}

	t := theme.NewTable("Identity", "Key", "Credentials", "Board")
	for _, id := range ids {
		status := theme.ErrorStyle.Render("missing")
		a.Resolver.Resolve(id).WhenSome(func(c model.Credentials) {
			status = theme.SyncStateStyle("idle").Render(c.Username)
		})

		board := "-"
		if r, ok := a.Config.Route(id); ok {
			board = r.BoardID
		}

		t.Row(id, a.Resolver.Key(id), status, board)
	}
	fmt.Fprintln(out, t.Render())

	return nil
}

func runConfigSetSecret(cmd *cobra.Command, args []string) error {
	ring, err := credential.NewKeyringSource()
	if err != nil {
		return err
	}

	value, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && value == "" {
		return fmt.Errorf("reading secret from stdin: %w", err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("empty secret")
	}

	key := strings.ToUpper(args[0])
	if err := ring.Set(key, value); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in keyring.\n", key)
	return nil
}

func runConfigDeleteSecret(cmd *cobra.Command, args []string) error {
	ring, err := credential.NewKeyringSource()
	if err != nil {
		return err
	}

	key := strings.ToUpper(args[0])
	if err := ring.Delete(key); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from keyring.\n", key)
	return nil
}
