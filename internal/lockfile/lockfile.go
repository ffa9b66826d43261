// Package lockfile guards a backup directory against concurrent writers.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Name is the lock file created inside the guarded directory.
const Name = ".db-vault.lock"

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("directory is locked by another process")

// Lock is a held directory lock.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes the lock for dir without blocking. When the lock is held elsewhere the
// returned error wraps ErrLocked and names the holder PID if it is known.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, Name)

	f, err := lockFile(path)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			if pid := holder(path); pid > 0 {
				return nil, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
			}
		}
		return nil, err
	}

	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	return &Lock{path: path, file: f}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks the directory. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	f := l.file
	l.file = nil

	_ = f.Truncate(0)
	uerr := unlockFile(f)
	cerr := f.Close()
	if uerr != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.path, uerr)
	}
	if cerr != nil {
		return cerr
	}
	return removeLockFile(l.path)
}

func holder(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
