// Package snapshot defines how a raw database snapshot is produced. Concrete sources live
// in internal/sources and register themselves at init time.
package snapshot

import (
	"context"
	"errors"
	"fmt"
)

// ErrSnapshotFailed wraps every failure to produce a snapshot.
var ErrSnapshotFailed = errors.New("snapshot failed")

// Source produces a point-in-time copy of a database.
type Source interface {
	// Name is the file name the snapshot is known by, e.g. "app.db". Its base name and
	// extension end up in the artifact name.
	Name() string
	// TakeSnapshot writes the snapshot to destPath, which does not exist yet.
	TakeSnapshot(ctx context.Context, destPath string) error
}

// Type creates sources of one kind from their options.
type Type interface {
	Name() string
	Create(options map[string]string) (Source, error)
}

// Failed wraps err as a snapshot failure.
func Failed(source string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSnapshotFailed) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrSnapshotFailed, source, err)
}
