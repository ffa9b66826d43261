package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shyim/db-vault/internal/artifact"
	"github.com/shyim/db-vault/internal/checksum"
)

// List returns the artifacts in the backup directory, newest first.
func (m *Manager) List(ctx context.Context) ([]ArtifactInfo, error) {
	files, err := m.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	manifests := make(map[string]bool)
	for _, file := range files {
		if artifact.IsManifest(file.Key) {
			manifests[file.Key] = true
		}
	}

	var result []ArtifactInfo
	for _, file := range files {
		info, err := artifact.Parse(file.Key)
		if err != nil {
			continue
		}
		result = append(result, ArtifactInfo{
			Name:        file.Key,
			Source:      info.Source(),
			Size:        file.Size,
			ModTime:     file.LastModified,
			HasManifest: manifests[artifact.ManifestName(file.Key)],
		})
	}

	return result, nil
}

// Latest returns the most recently written artifact.
func (m *Manager) Latest(ctx context.Context) (*ArtifactInfo, error) {
	artifacts, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(artifacts) == 0 {
		return nil, ErrNoArtifacts
	}
	return &artifacts[0], nil
}

// Verify recomputes the checksum of an artifact and compares it with its manifest.
// On a mismatch both the result and an error wrapping ErrChecksumMismatch are returned.
func (m *Manager) Verify(ctx context.Context, name string) (*VerifyResult, error) {
	if !artifact.IsArtifact(name) {
		return nil, fmt.Errorf("%w: %s", ErrNotArtifact, name)
	}
	if _, err := m.store.Stat(ctx, name); err != nil {
		return nil, err
	}

	path := m.store.Path(name)
	manifest, err := loadManifest(path)
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		return nil, fmt.Errorf("%w: no manifest for %s", artifact.ErrInvalidManifest, name)
	}

	actual, err := checksum.Verify(ctx, path, manifest.Checksum)
	result := &VerifyResult{
		Artifact: name,
		Expected: manifest.Checksum,
		Actual:   actual,
		Match:    err == nil,
	}

	if errors.Is(err, checksum.ErrMismatch) {
		m.reportMismatch(ctx, name, manifest.Checksum, actual, err)
		return result, err
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Delete removes an artifact and its manifest.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if !artifact.IsArtifact(name) {
		return fmt.Errorf("%w: %s", ErrNotArtifact, name)
	}
	if _, err := m.store.Stat(ctx, name); err != nil {
		return err
	}

	if err := m.store.Delete(ctx, name); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	if err := m.store.Delete(ctx, artifact.ManifestName(name)); err != nil {
		return fmt.Errorf("failed to delete manifest: %w", err)
	}

	slog.Info("backup deleted", "artifact", name)
	return nil
}
