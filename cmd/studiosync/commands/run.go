package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runLogDir string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the periodic sync daemon",
	Long: `Run the sync driver until interrupted. After the initial delay every
enabled identity is synced, then again on every interval.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().StringVar(&runLogDir, "log-dir", "",
		"Directory for rotated log files (default: log.dir from config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logDir := runLogDir
	if logDir == "" {
		logDir = cfg.Log.Dir
	}

	a, cleanup, err := openApp(logDir)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}

	slog.Info("studiosync daemon started",
		"identities", len(a.Config.Identities()),
		"config", configPath)

	return a.Driver.Run(ctx)
}
