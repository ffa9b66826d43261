package backup

import (
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
	"github.com/shyim/db-vault/internal/metrics"
	"github.com/shyim/db-vault/internal/notification"
	"github.com/shyim/db-vault/internal/storage"
	"github.com/shyim/db-vault/internal/storages/local"
	"github.com/shyim/db-vault/internal/stream"
)

const maxNameAttempts = 100

// Restore decrypts and decompresses an artifact into a new file in the restore
// directory. Nothing is written there unless the authentication tag verifies and the
// archive decompresses cleanly. The live database is never touched.
func (m *Manager) Restore(ctx context.Context, req RestoreRequest) (*RestoreResult, error) {
	start := m.now()
	state := StateIdle

	result, name, err := m.restore(ctx, req, &state)

	finished := m.now()
	duration := finished.Sub(start)
	metrics.RestoresTotal.WithLabelValues(metrics.Outcome(err)).Inc()

	if err != nil {
		var stageErr *StageError
		stage := ""
		if errors.As(err, &stageErr) {
			stage = string(stageErr.Stage)
			metrics.BackupStageFailures.WithLabelValues("restore", stage).Inc()
		}

		if errors.Is(err, ErrIntegrityCheckFailed) {
			metrics.IntegrityFailures.Inc()
			slog.Error("integrity check failed: artifact was modified or key, iv or tag is wrong",
				"security_event", true,
				"artifact", name,
				"error", err,
			)
			m.notify(ctx, notification.Event{
				Type:      notification.EventIntegrityCheckFailed,
				Artifact:  name,
				Stage:     stage,
				Error:     err,
				Timestamp: finished,
			})
			return nil, err
		}

		slog.Error("restore failed",
			"artifact", name,
			"stage", stage,
			"state", state,
			"error", err,
		)
		m.notify(ctx, notification.Event{
			Type:      notification.EventRestoreFailed,
			Artifact:  name,
			Stage:     stage,
			Error:     err,
			Timestamp: finished,
		})
		return nil, err
	}

	slog.Info("restore completed",
		"artifact", result.Artifact,
		"restored_path", result.RestoredPath,
		"size", result.SizeBytes,
		"duration", duration,
	)
	m.notify(ctx, notification.Event{
		Type:      notification.EventRestoreCompleted,
		Artifact:  result.Artifact,
		Size:      result.SizeBytes,
		Duration:  duration,
		Timestamp: finished,
	})

	return result, nil
}

func (m *Manager) restore(ctx context.Context, req RestoreRequest, state *State) (*RestoreResult, string, error) {
	key, err := keys.Resolve(m.keyMaterial)
	if err != nil {
		return nil, req.Artifact, stageError(StageKey, err)
	}
	defer keys.Wipe(key)

	artifactPath, err := m.locate(ctx, req.Artifact)
	if err != nil {
		return nil, req.Artifact, stageError(StageLocate, err)
	}
	name := filepath.Base(artifactPath)

	info, err := artifact.Parse(name)
	if err != nil {
		return nil, name, stageError(StageLocate, fmt.Errorf("%w: %w", ErrNotArtifact, err))
	}

	manifest, err := loadManifest(artifactPath)
	if err != nil {
		return nil, name, stageError(StageLocate, err)
	}

	iv, tag, err := restoreParameters(req, manifest)
	if err != nil {
		return nil, name, stageError(StageLocate, err)
	}

	if manifest != nil {
		m.checkChecksum(ctx, artifactPath, manifest)
	}

	restoreDir := req.RestoreDir
	if restoreDir == "" {
		restoreDir = m.restoreDir
	}

	ws := &workspace{}
	defer ws.cleanup()

	scratch, err := ws.scratchDir(m.tempDir, "db-vault-restore-*")
	if err != nil {
		return nil, name, stageError(StageDecrypt, err)
	}
	decryptedPath := filepath.Join(scratch, "decrypted.gz")

	slog.Debug("decrypting artifact", "artifact", name, "path", decryptedPath)
	if err := stream.ApplyFile(ctx, stream.Decrypt(key, iv, tag), artifactPath, decryptedPath); err != nil {
		return nil, name, stageError(StageDecrypt, err)
	}
	*state = StateDecrypted

	// Staged next to the target so it can be hard-linked into place.
	staging, err := ws.scratchDir(restoreDir, ".db-vault-restore-*")
	if err != nil {
		return nil, name, stageError(StageDecompress, err)
	}
	stagedPath := filepath.Join(staging, "restored")

	if err := stream.ApplyFile(ctx, stream.Gunzip(), decryptedPath, stagedPath); err != nil {
		return nil, name, stageError(StageDecompress, err)
	}
	_ = os.Remove(decryptedPath)
	*state = StateDecompressed

	restoredPath, err := placeRestored(stagedPath, restoreDir, info, m.now())
	if err != nil {
		return nil, name, stageError(StageFinalize, err)
	}
	ws.output(restoredPath)

	if err := local.SyncDir(restoreDir); err != nil {
		return nil, name, stageError(StageFinalize, err)
	}

	stat, err := os.Stat(restoredPath)
	if err != nil {
		return nil, name, stageError(StageFinalize, fmt.Errorf("failed to stat restored file: %w", err))
	}

	ws.commit()
	*state = StateFinalized

	return &RestoreResult{
		Artifact:     name,
		RestoredPath: restoredPath,
		SizeBytes:    stat.Size(),
		State:        StateFinalized,
	}, name, nil
}

// placeRestored hard-links the staged file to the first free restored name. Existing
// files are never replaced.
func placeRestored(stagedPath, restoreDir string, info artifact.Info, t time.Time) (string, error) {
	var err error
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		path := filepath.Join(restoreDir, artifact.RestoredName(info, t, attempt))
		if err = os.Link(stagedPath, path); err == nil {
			return path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			break
		}
	}
	return "", fmt.Errorf("failed to place restored file: %w", err)
}

// locate resolves an artifact reference to a path. A bare name is looked up in the
// backup directory and an empty reference selects the most recent artifact.
func (m *Manager) locate(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		latest, err := m.Latest(ctx)
		if err != nil {
			return "", err
		}
		return m.store.Path(latest.Name), nil
	}

	path := ref
	if filepath.Base(ref) == ref {
		path = m.store.Path(ref)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("artifact %s: %w", ref, storage.ErrNotFound)
		}
		return "", fmt.Errorf("failed to stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrNotArtifact, ref)
	}

	return path, nil
}

// loadManifest reads the sidecar of the artifact at artifactPath. A missing manifest
// is not an error and yields nil.
func loadManifest(artifactPath string) (*artifact.Manifest, error) {
	name := filepath.Base(artifactPath)
	path := filepath.Join(filepath.Dir(artifactPath), artifact.ManifestName(name))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	manifest, err := artifact.DecodeManifest(data)
	if err != nil {
		return nil, err
	}
	if manifest.Artifact != name {
		return nil, fmt.Errorf("%w: describes %s, not %s", artifact.ErrInvalidManifest, manifest.Artifact, name)
	}

	return manifest, nil
}

// restoreParameters picks IV and tag from the request, falling back to the manifest.
func restoreParameters(req RestoreRequest, manifest *artifact.Manifest) (iv, tag []byte, err error) {
	if manifest == nil && (req.IV == "" || req.AuthTag == "") {
		return nil, nil, fmt.Errorf("%w: no manifest found, pass --iv and --tag", ErrMissingParameters)
	}

	iv, err = restoreParameter("iv", req.IV, manifest, (*artifact.Manifest).IVBytes)
	if err != nil {
		return nil, nil, err
	}
	tag, err = restoreParameter("auth tag", req.AuthTag, manifest, (*artifact.Manifest).AuthTagBytes)
	if err != nil {
		return nil, nil, err
	}

	return iv, tag, nil
}

func restoreParameter(name, explicit string, manifest *artifact.Manifest, fromManifest func(*artifact.Manifest) ([]byte, error)) ([]byte, error) {
	if explicit == "" {
		return fromManifest(manifest)
	}

	value, err := base64.StdEncoding.DecodeString(explicit)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return value, nil
}

// checkChecksum compares the artifact against its manifest. A mismatch is reported
// but does not stop the restore; the authentication tag decides.
func (m *Manager) checkChecksum(ctx context.Context, artifactPath string, manifest *artifact.Manifest) {
	if manifest.Checksum == "" {
		return
	}

	name := filepath.Base(artifactPath)
	actual, err := checksum.Verify(ctx, artifactPath, manifest.Checksum)
	switch {
	case errors.Is(err, checksum.ErrMismatch):
		m.reportMismatch(ctx, name, manifest.Checksum, actual, err)
	case err != nil:
		slog.Warn("failed to verify artifact checksum", "artifact", name, "error", err)
	}
}

func (m *Manager) reportMismatch(ctx context.Context, name, expected, actual string, err error) {
	metrics.ChecksumMismatches.Inc()
	slog.Warn("artifact checksum does not match manifest",
		"artifact", name,
		"expected", expected,
		"actual", actual,
	)
	m.notify(ctx, notification.Event{
		Type:      notification.EventChecksumMismatch,
		Artifact:  name,
		Error:     err,
		Timestamp: m.now(),
	})
}
