// Package file snapshots a database that lives in a single file by copying it.
// The database must not be written to while the copy runs; use the sqlite source for
// live SQLite databases.
package file

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shyim/db-vault/internal/snapshot"
)

func init() {
	snapshot.Register(&Type{})
}

// Type creates file sources.
type Type struct{}

func (t *Type) Name() string {
	return "file"
}

// Create expects a "path" option.
func (t *Type) Create(options map[string]string) (snapshot.Source, error) {
	path := options["path"]
	if path == "" {
		return nil, fmt.Errorf("file source requires the path option")
	}
	return New(path), nil
}

// Source copies a file.
type Source struct {
	path string
}

// New returns a source copying path.
func New(path string) *Source {
	return &Source{path: path}
}

func (s *Source) Name() string {
	return filepath.Base(s.path)
}

func (s *Source) TakeSnapshot(ctx context.Context, destPath string) error {
	src, err := os.Open(s.path)
	if err != nil {
		return snapshot.Failed(s.Name(), err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return snapshot.Failed(s.Name(), err)
	}
	if !info.Mode().IsRegular() {
		return snapshot.Failed(s.Name(), fmt.Errorf("%s is not a regular file", s.path))
	}

	err = snapshot.WriteFile(destPath, func(w *bufio.Writer) error {
		_, err := io.Copy(w, readerFunc(func(p []byte) (int, error) {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			return src.Read(p)
		}))
		return err
	})
	return snapshot.Failed(s.Name(), err)
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) {
	return f(p)
}
