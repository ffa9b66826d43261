// Package metrics holds the Prometheus metrics of backup, restore and sweep runs.
// The process is short-lived, so metrics are exported to a node_exporter textfile
// collector instead of being scraped.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "db_vault"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	// BackupsTotal counts backup runs.
	// Labels:
	//   - outcome: "success", "failure"
	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Total number of backup runs",
		},
		[]string{"outcome"},
	)

	// BackupStageFailures counts failed backup and restore runs by the stage that failed.
	BackupStageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total number of pipeline failures by stage",
		},
		[]string{"pipeline", "stage"},
	)

	// BackupDuration measures complete backup runs.
	BackupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Duration of backup runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	// BackupSizeBytes is the size of the most recent artifact.
	BackupSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_size_bytes",
			Help:      "Size of the most recent backup artifact in bytes",
		},
	)

	// LastBackupSuccess is the unix time of the last successful backup.
	LastBackupSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_backup_success_timestamp_seconds",
			Help:      "Unix time of the last successful backup",
		},
	)

	// RestoresTotal counts restore runs.
	// Labels:
	//   - outcome: "success", "failure"
	RestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Total number of restore runs",
		},
		[]string{"outcome"},
	)

	// IntegrityFailures counts authentication tag mismatches. Any increase is a
	// security event: the artifact was modified or the wrong key, IV or tag was used.
	IntegrityFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_check_failures_total",
			Help:      "Total number of failed authentication tag checks",
		},
	)

	// ChecksumMismatches counts artifacts whose checksum no longer matches the manifest.
	ChecksumMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checksum_mismatches_total",
			Help:      "Total number of artifact checksum mismatches",
		},
	)

	// SweepDeleted counts files removed by retention sweeps.
	SweepDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_deleted_total",
			Help:      "Total number of files deleted by retention sweeps",
		},
	)

	// SweepFailures counts files a retention sweep failed to delete.
	SweepFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Total number of failed deletions during retention sweeps",
		},
	)

	// LastSweep is the unix time of the last completed sweep.
	LastSweep = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sweep_timestamp_seconds",
			Help:      "Unix time of the last completed retention sweep",
		},
	)
)

// Outcome maps an error to an outcome label value.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// ObserveBackup records a finished backup run.
func ObserveBackup(duration time.Duration, size int64, finished time.Time, err error) {
	BackupsTotal.WithLabelValues(Outcome(err)).Inc()
	if err != nil {
		return
	}
	BackupDuration.Observe(duration.Seconds())
	BackupSizeBytes.Set(float64(size))
	LastBackupSuccess.Set(float64(finished.Unix()))
}

// ObserveSweep records a finished sweep.
func ObserveSweep(deleted, failed int, finished time.Time) {
	SweepDeleted.Add(float64(deleted))
	SweepFailures.Add(float64(failed))
	LastSweep.Set(float64(finished.Unix()))
}

// WriteTextfile writes all registered metrics to path in the text exposition format.
// An empty path disables the export.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
