// Package retention deletes backup artifacts once they are older than the configured
// retention age.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shyim/db-vault/internal/artifact"
	"github.com/shyim/db-vault/internal/metrics"
	"github.com/shyim/db-vault/internal/storage"
)

var (
	// ErrDeletionFailed wraps the failure to delete a single eligible file.
	ErrDeletionFailed = errors.New("deletion failed")
	// ErrInvalidRetention is returned for retention ages below one day.
	ErrInvalidRetention = errors.New("retention age must be at least one day")
)

// SweepResult summarises one sweep.
type SweepResult struct {
	DeletedCount int
	FailedCount  int
	DeletedNames []string
	Failures     []error
}

// Err joins all per-file failures, or returns nil when every deletion succeeded.
func (r *SweepResult) Err() error {
	return errors.Join(r.Failures...)
}

// Manager handles retention policy enforcement
type Manager struct {
	store storage.Storage
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New creates a new retention manager
func New(store storage.Storage, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sweep deletes every artifact whose modification time is more than retentionDays days
// before now, together with its manifest. Stale partial artifacts left by interrupted
// runs and manifests without an artifact follow the same age rule.
//
// A failed deletion is recorded in the result and the sweep continues with the next
// file. The returned error is only set when the sweep could not run at all or was
// cancelled; per-file failures are reported through SweepResult.
func (m *Manager) Sweep(ctx context.Context, retentionDays int) (*SweepResult, error) {
	if retentionDays < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRetention, retentionDays)
	}

	maxAge := time.Duration(retentionDays) * 24 * time.Hour
	now := m.now()

	files, err := m.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	present := make(map[string]bool, len(files))
	for _, file := range files {
		present[file.Key] = true
	}

	result := &SweepResult{}
	defer func() {
		metrics.ObserveSweep(result.DeletedCount, result.FailedCount, m.now())
	}()

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		kind := classify(file.Key, present)
		if kind == kindOther {
			continue
		}

		age := now.Sub(file.LastModified)
		if age <= maxAge {
			continue
		}

		if err := m.store.Delete(ctx, file.Key); err != nil {
			m.recordFailure(result, file.Key, err)
			continue
		}

		switch kind {
		case kindArtifact:
			result.DeletedCount++
			result.DeletedNames = append(result.DeletedNames, file.Key)
			slog.Info("deleted expired backup",
				"artifact", file.Key,
				"age", age.Round(time.Minute),
			)

			manifest := artifact.ManifestName(file.Key)
			if present[manifest] {
				if err := m.store.Delete(ctx, manifest); err != nil {
					m.recordFailure(result, manifest, err)
				}
			}
		default:
			slog.Debug("deleted stale file", "file", file.Key, "age", age.Round(time.Minute))
		}
	}

	slog.Info("retention sweep finished",
		"retention_days", retentionDays,
		"deleted", result.DeletedCount,
		"failed", result.FailedCount,
	)

	return result, nil
}

func (m *Manager) recordFailure(result *SweepResult, key string, err error) {
	result.FailedCount++
	result.Failures = append(result.Failures, fmt.Errorf("%w: %s: %w", ErrDeletionFailed, key, err))
	slog.Warn("failed to delete expired backup",
		"file", key,
		"error", err,
	)
}

type fileKind int

const (
	kindOther fileKind = iota
	kindArtifact
	kindPartial
	kindOrphanManifest
)

func classify(key string, present map[string]bool) fileKind {
	switch {
	case artifact.IsArtifact(key):
		return kindArtifact
	case strings.HasSuffix(key, artifact.PartialSuffix) &&
		artifact.IsArtifact(strings.TrimSuffix(key, artifact.PartialSuffix)):
		return kindPartial
	case artifact.IsManifest(key):
		owner := strings.TrimSuffix(key, artifact.ManifestSuffix)
		if artifact.IsArtifact(owner) && !present[owner] {
			return kindOrphanManifest
		}
	}
	return kindOther
}
