package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shyim/db-vault/internal/backup"
	"github.com/shyim/db-vault/internal/config"
	"github.com/shyim/db-vault/internal/metrics"
	"github.com/shyim/db-vault/internal/notification"
	"github.com/shyim/db-vault/internal/snapshot"
	"github.com/spf13/cobra"

	// Import snapshot sources for self-registration
	_ "github.com/shyim/db-vault/internal/sources"

	// Import notifiers for self-registration
	_ "github.com/shyim/db-vault/internal/notifiers"
)

// Exit codes returned by the CLI.
const (
	exitError              = 1
	exitInvalidKeyMaterial = 2
	exitIntegrityFailed    = 3
	exitCorruptArchive     = 4
	exitSnapshotFailed     = 5
	exitDeletionFailed     = 6
	exitChecksumMismatch   = 7
)

var (
	v          = config.NewViper()
	cfgFile    string
	sourceArgs []string
	notifyArgs []string

	rootCmd = &cobra.Command{
		Use:   "db-vault",
		Short: "Encrypted database backups",
		Long: `Takes compressed, AES-256-GCM encrypted snapshots of a database, restores them
and removes backups that are older than the retention age.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()

	// Global flags
	flags.StringVar(&cfgFile, "config", "", "Path to a YAML configuration file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.String("backup-dir", "/var/backups/db-vault", "Directory holding backup artifacts")
	flags.String("temp-dir", os.TempDir(), "Directory for intermediate snapshot files")
	flags.String("restore-dir", "", "Directory restored files are written to (default: backup directory)")
	flags.String("key", "", "Encryption key: base64, hex or 32 raw bytes")
	flags.String("key-file", "", "File containing the encryption key")
	flags.Int("retention-days", 30, "Delete backups older than this many days")
	flags.Int("compression-level", -1, "gzip compression level (-1 for default, 0-9)")
	flags.String("metrics-textfile", "", "Write Prometheus metrics to this file after each command")
	flags.Duration("timeout", 0, "Abort the command after this duration (0 disables the limit)")
	flags.StringArrayVar(&sourceArgs, "source", []string{},
		fmt.Sprintf("Snapshot source option (format: option=value, types: %s)", strings.Join(snapshot.List(), ", ")))
	flags.StringArrayVar(&notifyArgs, "notify", []string{},
		fmt.Sprintf("Notification provider configuration (format: provider.option=value, types: %s)", strings.Join(notification.List(), ", ")))

	bindFlags(rootCmd, map[string]string{
		"log_level":         "log-level",
		"log_format":        "log-format",
		"backup_dir":        "backup-dir",
		"temp_dir":          "temp-dir",
		"restore_dir":       "restore-dir",
		"key":               "key",
		"key_file":          "key-file",
		"retention_days":    "retention-days",
		"compression_level": "compression-level",
		"metrics_textfile":  "metrics-textfile",
		"timeout":           "timeout",
	})

	// Add commands
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(keygenCmd)
}

// bindFlags binds persistent or local flags of cmd to viper keys.
func bindFlags(cmd *cobra.Command, bindings map[string]string) {
	for key, name := range bindings {
		flag := cmd.PersistentFlags().Lookup(name)
		if flag == nil {
			flag = cmd.Flags().Lookup(name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			panic(fmt.Sprintf("failed to bind flag %q: %v", name, err))
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy to process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, backup.ErrInvalidKeyMaterial):
		return exitInvalidKeyMaterial
	case errors.Is(err, backup.ErrIntegrityCheckFailed):
		return exitIntegrityFailed
	case errors.Is(err, backup.ErrCorruptArchive):
		return exitCorruptArchive
	case errors.Is(err, backup.ErrSnapshotFailed):
		return exitSnapshotFailed
	case errors.Is(err, backup.ErrDeletionFailed):
		return exitDeletionFailed
	case errors.Is(err, backup.ErrChecksumMismatch):
		return exitChecksumMismatch
	default:
		return exitError
	}
}

// loadConfig reads the configuration file, environment and flags and sets up logging.
func loadConfig() (*config.Config, error) {
	if err := config.ReadFile(v, cfgFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(v, sourceArgs, notifyArgs)
	if err != nil {
		return nil, err
	}

	setupLogging(cfg.LogLevel, cfg.LogFormat)
	slog.Debug("configuration loaded", "config", cfg)

	return cfg, nil
}

func setupLogging(level, format string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// commandContext is cancelled on SIGINT/SIGTERM and after the configured timeout.
func commandContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if cfg.Timeout <= 0 {
		return ctx, stop
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// writeMetrics exports metrics when a textfile is configured.
func writeMetrics(cfg *config.Config) {
	if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
		slog.Warn("failed to export metrics", "path", cfg.MetricsTextfile, "error", err)
	}
}
