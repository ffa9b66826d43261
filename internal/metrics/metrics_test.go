package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Outcome(nil))
	assert.Equal(t, OutcomeFailure, Outcome(errors.New("boom")))
}

func TestObserveBackup(t *testing.T) {
	success := testutil.ToFloat64(BackupsTotal.WithLabelValues(OutcomeSuccess))
	failure := testutil.ToFloat64(BackupsTotal.WithLabelValues(OutcomeFailure))

	finished := time.Unix(1700000000, 0)
	ObserveBackup(2*time.Second, 4096, finished, nil)

	assert.Equal(t, success+1, testutil.ToFloat64(BackupsTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, float64(4096), testutil.ToFloat64(BackupSizeBytes))
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(LastBackupSuccess))

	ObserveBackup(time.Second, 1, time.Unix(1800000000, 0), errors.New("boom"))

	assert.Equal(t, failure+1, testutil.ToFloat64(BackupsTotal.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, float64(4096), testutil.ToFloat64(BackupSizeBytes), "failed run must not overwrite size")
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(LastBackupSuccess))
}

func TestObserveSweep(t *testing.T) {
	deleted := testutil.ToFloat64(SweepDeleted)
	failed := testutil.ToFloat64(SweepFailures)

	ObserveSweep(3, 1, time.Unix(1700000000, 0))

	assert.Equal(t, deleted+3, testutil.ToFloat64(SweepDeleted))
	assert.Equal(t, failed+1, testutil.ToFloat64(SweepFailures))
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(LastSweep))
}

func TestWriteTextfile(t *testing.T) {
	IntegrityFailures.Inc()

	path := filepath.Join(t.TempDir(), "db_vault.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "db_vault_integrity_check_failures_total")
	assert.Contains(t, string(data), "# HELP db_vault_sweep_deleted_total")
}

func TestWriteTextfile_Disabled(t *testing.T) {
	assert.NoError(t, WriteTextfile(""))
}

func TestWriteTextfile_BadPath(t *testing.T) {
	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "db_vault.prom"))
	assert.Error(t, err)
}
