package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/shyim/db-vault/internal/backup"
	"github.com/shyim/db-vault/internal/checksum"
	"github.com/shyim/db-vault/internal/config"
	"github.com/shyim/db-vault/internal/notification"
	"github.com/shyim/db-vault/internal/snapshot"
	"github.com/shyim/db-vault/internal/storages/local"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Backup management commands",
	Long:  "Commands for managing backups: run, restore, list, verify, delete, sweep.",
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Take an encrypted backup now",
	Long: `Take a snapshot from the configured source, compress and encrypt it and write the
artifact and its manifest to the backup directory.`,
	Args: cobra.NoArgs,
	RunE: runBackupRun,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [artifact]",
	Short: "Restore a backup into a new file",
	Long: `Decrypt and decompress an artifact into the restore directory. Without an argument
the most recent artifact is restored. IV and tag are read from the manifest unless
--iv and --tag are given. The live database is never modified.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBackupRestore,
}

var backupListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List backups",
	Long:    "List all artifacts in the backup directory, newest first.",
	Args:    cobra.NoArgs,
	RunE:    runBackupList,
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify <artifact>",
	Short: "Check an artifact against its manifest checksum",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupVerify,
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <artifact>",
	Short: "Delete a specific backup",
	Long:  "Delete an artifact and its manifest from the backup directory.",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupDelete,
}

var backupSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete backups older than the retention age",
	Args:  cobra.NoArgs,
	RunE:  runBackupSweep,
}

var (
	restoreIV  string
	restoreTag string
)

func init() {
	backupRestoreCmd.Flags().StringVar(&restoreIV, "iv", "", "Base64 IV, overrides the manifest")
	backupRestoreCmd.Flags().StringVar(&restoreTag, "tag", "", "Base64 authentication tag, overrides the manifest")

	backupCmd.AddCommand(backupRunCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupVerifyCmd)
	backupCmd.AddCommand(backupDeleteCmd)
	backupCmd.AddCommand(backupSweepCmd)
}

// managerNeeds selects which parts of the configuration a command depends on.
type managerNeeds struct {
	source bool
	key    bool
}

func newManager(cfg *config.Config, needs managerNeeds) (*backup.Manager, error) {
	store, err := local.New(cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup directory: %w", err)
	}

	opts := backup.Options{
		Storage:          store,
		TempDir:          cfg.TempDir,
		RestoreDir:       cfg.ResolveRestoreDir(),
		CompressionLevel: cfg.CompressionLevel,
	}

	if needs.key {
		material, err := keyMaterial(cfg)
		if err != nil {
			return nil, err
		}
		opts.KeyMaterial = material
	}

	if needs.source {
		if err := cfg.RequireSource(); err != nil {
			return nil, err
		}
		source, err := snapshot.Create(cfg.Source.Type, cfg.Source.Options)
		if err != nil {
			return nil, err
		}
		opts.Source = source
	}

	notifyMgr, err := newNotifyManager(cfg)
	if err != nil {
		return nil, err
	}
	opts.Notifier = notifyMgr

	return backup.NewManager(opts)
}

func newNotifyManager(cfg *config.Config) (*notification.Manager, error) {
	notifyMgr := notification.NewManager()
	for name, notifyCfg := range cfg.NotifyConfigs {
		notifier, err := notification.CreateNotifier(notifyCfg.Type, name, notifyCfg.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to create notifier %q: %w", name, err)
		}
		notifyMgr.AddNotifier(name, notifier)
		slog.Debug("notification provider configured", "name", name, "type", notifyCfg.Type)
	}
	return notifyMgr, nil
}

func runBackupRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer writeMetrics(cfg)

	mgr, err := newManager(cfg, managerNeeds{source: true, key: true})
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()

	result, err := mgr.Backup(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Artifact:\t%s\n", result.ArtifactPath)
	_, _ = fmt.Fprintf(w, "Size:\t%s\n", notification.FormatSize(result.SizeBytes))
	_, _ = fmt.Fprintf(w, "Checksum:\t%s:%s\n", checksum.Algorithm, result.Checksum)
	_, _ = fmt.Fprintf(w, "IV:\t%s\n", result.IV)
	_, _ = fmt.Fprintf(w, "Auth tag:\t%s\n", result.AuthTag)
	return w.Flush()
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer writeMetrics(cfg)

	mgr, err := newManager(cfg, managerNeeds{key: true})
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()

	req := backup.RestoreRequest{
		IV:      restoreIV,
		AuthTag: restoreTag,
	}
	if len(args) == 1 {
		req.Artifact = args[0]
	}

	result, err := mgr.Restore(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Restored %s to: %s (%s)\n", result.Artifact, result.RestoredPath, notification.FormatSize(result.SizeBytes))
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr, err := newManager(cfg, managerNeeds{})
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()

	artifacts, err := mgr.List(ctx)
	if err != nil {
		return err
	}

	if len(artifacts) == 0 {
		fmt.Printf("No backups found in: %s\n", cfg.BackupDir)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSIZE\tDATE\tMANIFEST")
	_, _ = fmt.Fprintln(w, "----\t----\t----\t--------")

	for _, a := range artifacts {
		manifest := "yes"
		if !a.HasManifest {
			manifest = "missing"
		}
		date := a.ModTime.Format("2006-01-02 15:04:05")
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Name, notification.FormatSize(a.Size), date, manifest)
	}
	_ = w.Flush()

	fmt.Printf("\nTotal: %d backup(s)\n", len(artifacts))

	return nil
}

func runBackupVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer writeMetrics(cfg)

	mgr, err := newManager(cfg, managerNeeds{})
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()

	result, err := mgr.Verify(ctx, args[0])
	if result != nil {
		status := "OK"
		if !result.Match {
			status = "MISMATCH"
		}
		fmt.Printf("%s: %s\n  expected: %s\n  actual:   %s\n", result.Artifact, status, result.Expected, result.Actual)
	}
	return err
}

func runBackupDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr, err := newManager(cfg, managerNeeds{})
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()

	if err := mgr.Delete(ctx, args[0]); err != nil {
		return err
	}

	fmt.Printf("Backup deleted successfully: %s\n", args[0])
	return nil
}

func runBackupSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer writeMetrics(cfg)

	mgr, err := newManager(cfg, managerNeeds{})
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cfg)
	defer cancel()

	result, err := mgr.Sweep(ctx, cfg.RetentionDays)
	if result != nil {
		fmt.Printf("Deleted %d backup(s) older than %d day(s)\n", result.DeletedCount, cfg.RetentionDays)
		for _, failure := range result.Failures {
			fmt.Fprintf(os.Stderr, "  %v\n", failure)
		}
	}
	if err != nil {
		return err
	}
	if result.FailedCount > 0 {
		return fmt.Errorf("%d deletion(s) failed: %w", result.FailedCount, errors.Join(result.Failures...))
	}

	return nil
}
