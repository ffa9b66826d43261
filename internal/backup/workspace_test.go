package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspace_CleanupUncommitted(t *testing.T) {
	parent := t.TempDir()
	ws := &workspace{}

	scratch, err := ws.scratchDir(parent, "scratch-*")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "tmp"), []byte("x"), 0o600))

	output := filepath.Join(parent, "output")
	require.NoError(t, os.WriteFile(output, []byte("x"), 0o600))
	ws.output(output)
	ws.output(filepath.Join(parent, "never-created"))

	ws.cleanup()

	assert.NoDirExists(t, scratch)
	assert.NoFileExists(t, output)
}

func TestWorkspace_CleanupCommitted(t *testing.T) {
	parent := t.TempDir()
	ws := &workspace{}

	scratch, err := ws.scratchDir(filepath.Join(parent, "nested"), "scratch-*")
	require.NoError(t, err)

	output := filepath.Join(parent, "output")
	require.NoError(t, os.WriteFile(output, []byte("x"), 0o600))
	ws.output(output)

	ws.commit()
	ws.cleanup()

	assert.NoDirExists(t, scratch)
	assert.FileExists(t, output)
}
