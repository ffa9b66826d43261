// Package sqlite snapshots a live SQLite database with VACUUM INTO, which produces a
// consistent copy without blocking writers for longer than a read transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shyim/db-vault/internal/snapshot"
	_ "modernc.org/sqlite"
)

func init() {
	snapshot.Register(&Type{})
}

const busyTimeoutMillis = 5000

// Type creates sqlite sources.
type Type struct{}

func (t *Type) Name() string {
	return "sqlite"
}

// Create expects a "path" option.
func (t *Type) Create(options map[string]string) (snapshot.Source, error) {
	path := options["path"]
	if path == "" {
		return nil, fmt.Errorf("sqlite source requires the path option")
	}
	return New(path), nil
}

// Source snapshots the SQLite database at path.
type Source struct {
	path string
}

// New returns a source for the database at path.
func New(path string) *Source {
	return &Source{path: path}
}

func (s *Source) Name() string {
	return filepath.Base(s.path)
}

func (s *Source) TakeSnapshot(ctx context.Context, destPath string) error {
	if _, err := os.Lstat(destPath); err == nil {
		return snapshot.Failed(s.Name(), fmt.Errorf("%s already exists", destPath))
	}

	if err := s.vacuumInto(ctx, destPath); err != nil {
		_ = os.Remove(destPath)
		return snapshot.Failed(s.Name(), err)
	}
	return nil
}

func (s *Source) vacuumInto(ctx context.Context, destPath string) error {
	// opening a missing file would create an empty database
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", s.path)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=busy_timeout(%d)", s.path, busyTimeoutMillis))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("failed to vacuum into snapshot: %w", err)
	}

	f, err := os.OpenFile(destPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if err := f.Chmod(0o600); err != nil {
		return fmt.Errorf("failed to restrict snapshot permissions: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	return nil
}
