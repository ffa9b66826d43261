// Package storage abstracts the backup directory so retention, listing and restore
// lookups do not depend on the filesystem directly.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("backup file not found")
	// ErrInvalidKey is returned for keys that are not plain file names.
	ErrInvalidKey = errors.New("invalid backup file key")
)

// BackupFile represents a stored backup file
type BackupFile struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Storage defines the interface for backup storage backends
type Storage interface {
	// Store atomically saves data with the given key, replacing any previous content
	Store(ctx context.Context, key string, reader io.Reader) error

	// List returns all files whose key starts with prefix, newest first
	List(ctx context.Context, prefix string) ([]BackupFile, error)

	// Delete removes a file. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Stat returns metadata for a single file
	Stat(ctx context.Context, key string) (*BackupFile, error)
}

// ValidateKey accepts plain file names only.
func ValidateKey(key string) error {
	if key == "" || key == "." || key == ".." ||
		strings.ContainsAny(key, `/\`) || filepath.Base(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
