package backup

import (
	"fmt"
	"log/slog"
	"os"
)

// workspace tracks the files a pipeline run creates. Scratch directories are removed
// when the run ends; outputs are removed only if the run did not commit.
type workspace struct {
	scratch   []string
	outputs   []string
	committed bool
}

// scratchDir creates a temporary directory under parent that is always removed.
func (w *workspace) scratchDir(parent, pattern string) (string, error) {
	if err := os.MkdirAll(parent, 0o700); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", parent, err)
	}
	dir, err := os.MkdirTemp(parent, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary directory: %w", err)
	}
	w.scratch = append(w.scratch, dir)
	return dir, nil
}

// output registers a path that must not survive a failed run.
func (w *workspace) output(path string) {
	w.outputs = append(w.outputs, path)
}

func (w *workspace) commit() {
	w.committed = true
}

// cleanup removes scratch directories and, for uncommitted runs, every output.
func (w *workspace) cleanup() {
	if !w.committed {
		for i := len(w.outputs) - 1; i >= 0; i-- {
			if err := os.Remove(w.outputs[i]); err != nil && !os.IsNotExist(err) {
				slog.Warn("failed to remove incomplete output", "path", w.outputs[i], "error", err)
			}
		}
	}
	for _, dir := range w.scratch {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to remove temporary directory", "path", dir, "error", err)
		}
	}
}
