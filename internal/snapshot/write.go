package snapshot

import (
	"bufio"
	"fmt"
	"os"
)

// WriteFile creates destPath, lets fill write the snapshot into it and fsyncs the result.
// The file is removed when fill or any file operation fails.
func WriteFile(destPath string, fill func(w *bufio.Writer) error) (err error) {
	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}

	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(destPath)
		}
	}()

	bw := bufio.NewWriterSize(f, 64*1024)
	if err = fill(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	return nil
}
