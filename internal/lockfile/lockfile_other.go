//go:build !unix

package lockfile

import (
	"errors"
	"fmt"
	"os"
)

// Without flock the lock is the existence of the file. A crashed holder leaves it behind
// and it has to be removed by hand.
func lockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	return f, nil
}

func unlockFile(*os.File) error {
	return nil
}

func removeLockFile(path string) error {
	return os.Remove(path)
}
