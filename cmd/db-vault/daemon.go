package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shyim/db-vault/internal/scheduler"
	"github.com/spf13/cobra"
)

const sweepJob = "sweep"

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run retention sweeps on a schedule",
	Long: `Run the retention sweep on the configured cron schedule until interrupted.
Backups themselves are not scheduled here.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

var sweepOnStart bool

func init() {
	daemonCmd.Flags().String("schedule", "0 3 * * *", "Cron schedule for retention sweeps (5 fields or @descriptor)")
	daemonCmd.Flags().BoolVar(&sweepOnStart, "sweep-on-start", false, "Run one sweep immediately after startup")

	bindFlags(daemonCmd, map[string]string{
		"sweep_schedule": "schedule",
	})
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("starting db-vault daemon",
		"backup_dir", cfg.BackupDir,
		"schedule", cfg.SweepSchedule,
		"retention_days", cfg.RetentionDays,
	)

	mgr, err := newManager(cfg, managerNeeds{})
	if err != nil {
		slog.Error("failed to initialize backup manager", "error", err)
		return err
	}

	sweep := func(ctx context.Context) {
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}

		// Failures are logged and alerted by the manager.
		_, _ = mgr.Sweep(ctx, cfg.RetentionDays)
		writeMetrics(cfg)
	}

	// Initialize scheduler
	sched := scheduler.New()
	if err := sched.AddJob(sweepJob, cfg.SweepSchedule, sweep); err != nil {
		return err
	}

	if sweepOnStart {
		sweep(context.Background())
	}

	// Start scheduler
	sched.Start()

	for name, job := range sched.ListJobs() {
		slog.Info("scheduled job", "job", name, "next_run", job.NextRun.Format(time.RFC3339))
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	slog.Info("received shutdown signal", "signal", sig)

	// Graceful shutdown: running sweeps see a cancelled context
	<-sched.Stop().Done()

	slog.Info("daemon stopped")
	return nil
}
