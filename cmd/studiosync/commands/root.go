package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/studiosync/internal/app"
	"github.com/nhle/studiosync/internal/build"
	"github.com/nhle/studiosync/internal/model"
)

var (
	// configPath is the YAML configuration file.
	configPath string

	// logLevel overrides log.level from the config file.
	logLevel string

	// outputFormat controls output format (text, json).
	outputFormat string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "studiosync",
	Short: "Mailbox synchronization and automation for the studio board",
	Long: `studiosync polls every team mailbox, keeps a short-lived cache of
each folder, and turns incoming mail into cards on the team's boards.

Run "studiosync run" for the daemon, or use the other commands for one-off
mailbox operations.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", model.DefaultConfigPath(),
		"Path to the YAML configuration file",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "",
		"Log level: debug, info, warn, error",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(inboxCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(markProcessedCmd)
	rootCmd.AddCommand(unmarkProcessedCmd)
	rootCmd.AddCommand(markDeletedCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(markSpamCmd)
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(attachmentsCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*model.AppConfig, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// openApp builds the application. logDir enables file logging; one-off
// commands pass "" and log to stderr only. The returned cleanup closes
// the app and the log file.
func openApp(logDir string) (*app.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	log, logCloser, err := build.NewLogger(build.LogConfig{
		Dir:   logDir,
		Level: cfg.Log.Level,
	})
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(log)

	var tracing *build.Tracing
	if cfg.Trace.Enabled {
		tracing, err = build.NewTracerProvider(build.TraceConfig{
			File: cfg.Trace.File,
		})
		if err != nil {
			_ = logCloser.Close()
			return nil, nil, err
		}
	}

	a, err := app.New(cfg, app.Options{Log: log})
	if err != nil {
		shutdownTracing(tracing, log)
		_ = logCloser.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := a.Close(); err != nil {
			log.Error("Closing app", "err", err)
		}
		shutdownTracing(tracing, log)
		_ = logCloser.Close()
	}

	return a, cleanup, nil
}

// shutdownTracing flushes spans still queued in the batcher.
func shutdownTracing(t *build.Tracing, log *slog.Logger) {
	if t == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.Shutdown(ctx); err != nil {
		log.Warn("Flushing traces", "err", err)
	}
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
