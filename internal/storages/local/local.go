// Package local stores backup artifacts as plain files in a single directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shyim/db-vault/internal/storage"
)

// LocalStorage implements Storage for local filesystem
type LocalStorage struct {
	basePath string
}

// New returns storage rooted at path, creating the directory if needed.
func New(path string) (*LocalStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("local storage requires a path")
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{basePath: path}, nil
}

// Dir returns the storage directory.
func (l *LocalStorage) Dir() string {
	return l.basePath
}

// Path returns the filesystem path for key.
func (l *LocalStorage) Path(key string) string {
	return filepath.Join(l.basePath, key)
}

// Store writes to a temporary file in the same directory and renames it into place
func (l *LocalStorage) Store(ctx context.Context, key string, reader io.Reader) (err error) {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(l.basePath, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath) // Clean up on failure
		}
	}()

	if _, err = io.Copy(tmp, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err = os.Rename(tmpPath, l.Path(key)); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	return SyncDir(l.basePath)
}

// List returns the regular files whose name starts with prefix, newest first
func (l *LocalStorage) List(ctx context.Context, prefix string) ([]storage.BackupFile, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	var files []storage.BackupFile
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // Removed since ReadDir
			}
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}

		files = append(files, storage.BackupFile{
			Key:          entry.Name(),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
	}

	// Sort by modification time (newest first)
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].LastModified.After(files[j].LastModified)
	})

	return files, nil
}

// Delete removes a backup file
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}

	if err := os.Remove(l.Path(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// Stat returns metadata for a single backup file
func (l *LocalStorage) Stat(ctx context.Context, key string) (*storage.BackupFile, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}

	info, err := os.Stat(l.Path(key))
	if err != nil {
		return nil, wrapNotFound(key, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", key)
	}

	return &storage.BackupFile{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

// SyncDir fsyncs a directory so renames and unlinks inside it are durable.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open directory: %w", err)
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync directory: %w", err)
	}
	return nil
}

func wrapNotFound(key string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return fmt.Errorf("failed to open file: %w", err)
}
