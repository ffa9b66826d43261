package backup

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shyim/db-vault/internal/artifact"
	"github.com/shyim/db-vault/internal/checksum"
	"github.com/shyim/db-vault/internal/keys"
	"github.com/shyim/db-vault/internal/lockfile"
	"github.com/shyim/db-vault/internal/metrics"
	"github.com/shyim/db-vault/internal/notification"
	"github.com/shyim/db-vault/internal/retention"
	"github.com/shyim/db-vault/internal/snapshot"
	"github.com/shyim/db-vault/internal/storages/local"
	"github.com/shyim/db-vault/internal/stream"
)

const notifyTimeout = 30 * time.Second

// Options configures a Manager.
type Options struct {
	// Source produces raw snapshots. Only Backup needs it.
	Source snapshot.Source
	// Storage is the backup directory.
	Storage *local.LocalStorage
	// KeyMaterial is resolved with keys.Resolve on every run.
	KeyMaterial string
	// TempDir holds the raw and compressed snapshot during a backup and the
	// decrypted artifact during a restore.
	TempDir string
	// RestoreDir receives restored files. Defaults to the backup directory.
	RestoreDir string
	// CompressionLevel is a gzip level, -1 selects the default.
	CompressionLevel int
	Notifier         *notification.Manager
	// Now defaults to time.Now.
	Now func() time.Time
}

// Manager orchestrates backups, restores and sweeps of one backup directory.
type Manager struct {
	source      snapshot.Source
	store       *local.LocalStorage
	keyMaterial string
	tempDir     string
	restoreDir  string
	level       int
	notifyMgr   *notification.Manager
	now         func() time.Time
}

// NewManager creates a new backup manager
func NewManager(opts Options) (*Manager, error) {
	if opts.Storage == nil {
		return nil, errors.New("backup storage is required")
	}

	m := &Manager{
		source:      opts.Source,
		store:       opts.Storage,
		keyMaterial: opts.KeyMaterial,
		tempDir:     opts.TempDir,
		restoreDir:  opts.RestoreDir,
		level:       opts.CompressionLevel,
		notifyMgr:   opts.Notifier,
		now:         opts.Now,
	}
	if m.tempDir == "" {
		m.tempDir = os.TempDir()
	}
	if m.restoreDir == "" {
		m.restoreDir = m.store.Dir()
	}
	if m.now == nil {
		m.now = time.Now
	}

	return m, nil
}

// Backup takes a snapshot and turns it into an encrypted artifact in the backup
// directory. On failure every file the run created is removed and a *StageError is
// returned.
func (m *Manager) Backup(ctx context.Context) (*Result, error) {
	start := m.now()
	state := StateIdle

	sourceName := ""
	if m.source != nil {
		sourceName = m.source.Name()
	}

	result, err := m.backup(ctx, &state)

	finished := m.now()
	duration := finished.Sub(start)
	var size int64
	if result != nil {
		size = result.SizeBytes
	}
	metrics.ObserveBackup(duration, size, finished, err)

	if err != nil {
		var stageErr *StageError
		stage := ""
		if errors.As(err, &stageErr) {
			stage = string(stageErr.Stage)
			metrics.BackupStageFailures.WithLabelValues("backup", stage).Inc()
		}

		slog.Error("backup failed",
			"source", sourceName,
			"stage", stage,
			"state", state,
			"error", err,
		)
		m.notify(ctx, notification.Event{
			Type:      notification.EventBackupFailed,
			Source:    sourceName,
			Stage:     stage,
			Error:     err,
			Timestamp: finished,
		})
		return nil, err
	}

	slog.Info("backup completed",
		"source", sourceName,
		"artifact", filepath.Base(result.ArtifactPath),
		"size", result.SizeBytes,
		"checksum", result.Checksum,
		"duration", duration,
	)
	m.notify(ctx, notification.Event{
		Type:      notification.EventBackupCompleted,
		Source:    sourceName,
		Artifact:  filepath.Base(result.ArtifactPath),
		Size:      result.SizeBytes,
		Duration:  duration,
		Timestamp: finished,
	})

	return result, nil
}

func (m *Manager) backup(ctx context.Context, state *State) (*Result, error) {
	if m.source == nil {
		return nil, stageError(StageSnapshot, fmt.Errorf("%w: no snapshot source configured", snapshot.ErrSnapshotFailed))
	}

	key, err := keys.Resolve(m.keyMaterial)
	if err != nil {
		return nil, stageError(StageKey, err)
	}
	defer keys.Wipe(key)

	lock, err := lockfile.Acquire(m.store.Dir())
	if err != nil {
		if errors.Is(err, lockfile.ErrLocked) {
			err = fmt.Errorf("%w: %w", ErrBackupInProgress, err)
		}
		return nil, stageError(StageLock, err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("failed to release backup lock", "path", lock.Path(), "error", err)
		}
	}()

	ws := &workspace{}
	defer ws.cleanup()

	scratch, err := ws.scratchDir(m.tempDir, "db-vault-backup-*")
	if err != nil {
		return nil, stageError(StageSnapshot, err)
	}
	rawPath := filepath.Join(scratch, "snapshot")
	compressedPath := filepath.Join(scratch, "snapshot.gz")

	slog.Debug("taking snapshot", "source", m.source.Name(), "path", rawPath)
	if err := m.source.TakeSnapshot(ctx, rawPath); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, stageError(StageSnapshot, ctxErr)
		}
		return nil, stageError(StageSnapshot, snapshot.Failed(m.source.Name(), err))
	}
	*state = StateSnapshotTaken

	if err := stream.ApplyFile(ctx, stream.Gzip(m.level), rawPath, compressedPath); err != nil {
		return nil, stageError(StageCompress, err)
	}
	_ = os.Remove(rawPath)
	*state = StateCompressed

	name := artifact.Name(m.source.Name(), m.now())
	finalPath := m.store.Path(name)
	partialPath := finalPath + artifact.PartialSuffix

	ws.output(partialPath)
	encrypt := stream.Encrypt(key)
	if err := stream.ApplyFile(ctx, encrypt, compressedPath, partialPath); err != nil {
		return nil, stageError(StageEncrypt, err)
	}
	_ = os.Remove(compressedPath)

	ws.output(finalPath)
	if err := os.Rename(partialPath, finalPath); err != nil {
		return nil, stageError(StageEncrypt, fmt.Errorf("failed to finalize artifact: %w", err))
	}
	if err := local.SyncDir(m.store.Dir()); err != nil {
		return nil, stageError(StageEncrypt, err)
	}
	*state = StateEncrypted

	sum, err := checksum.File(ctx, finalPath)
	if err != nil {
		return nil, stageError(StageChecksum, err)
	}
	*state = StateChecksumComputed

	info, err := os.Stat(finalPath)
	if err != nil {
		return nil, stageError(StageFinalize, fmt.Errorf("failed to stat artifact: %w", err))
	}

	result := &Result{
		ArtifactPath: finalPath,
		SizeBytes:    info.Size(),
		Checksum:     sum,
		IV:           base64.StdEncoding.EncodeToString(encrypt.IV()),
		AuthTag:      base64.StdEncoding.EncodeToString(encrypt.Tag()),
	}

	manifest := &artifact.Manifest{
		Version:           artifact.ManifestVersion,
		Artifact:          name,
		Source:            m.source.Name(),
		CreatedAt:         info.ModTime().UTC(),
		SizeBytes:         result.SizeBytes,
		Checksum:          result.Checksum,
		ChecksumAlgorithm: checksum.Algorithm,
		Cipher:            artifact.CipherAESGCM,
		Compression:       artifact.CompressionGzip,
		IV:                result.IV,
		AuthTag:           result.AuthTag,
	}
	data, err := manifest.Encode()
	if err != nil {
		return nil, stageError(StageFinalize, err)
	}

	manifestName := artifact.ManifestName(name)
	ws.output(m.store.Path(manifestName))
	if err := m.store.Store(ctx, manifestName, bytes.NewReader(data)); err != nil {
		return nil, stageError(StageFinalize, fmt.Errorf("failed to write manifest: %w", err))
	}

	ws.commit()
	*state = StateFinalized
	result.State = StateFinalized

	return result, nil
}

// Sweep applies the retention policy to the backup directory and reports the outcome.
func (m *Manager) Sweep(ctx context.Context, retentionDays int) (*retention.SweepResult, error) {
	start := m.now()

	result, err := retention.New(m.store, retention.WithClock(m.now)).Sweep(ctx, retentionDays)
	if err != nil {
		slog.Error("retention sweep failed", "error", err)
		if result == nil {
			return nil, err
		}
	}

	m.notify(ctx, notification.Event{
		Type:      notification.EventSweepCompleted,
		Deleted:   result.DeletedCount,
		Failed:    result.FailedCount,
		Error:     errors.Join(err, result.Err()),
		Duration:  m.now().Sub(start),
		Timestamp: m.now(),
	})

	return result, err
}

// notify delivers an event without letting caller cancellation drop it.
func (m *Manager) notify(ctx context.Context, event notification.Event) {
	if m.notifyMgr == nil || m.notifyMgr.NotifierCount() == 0 {
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	m.notifyMgr.Notify(notifyCtx, event)
}
