package lockfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, Name), lock.Path())

	data, err := os.ReadFile(lock.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))

	require.NoError(t, lock.Release())
}

func TestAcquire_Held(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()

	_, err = Acquire(dir)
	require.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), strconv.Itoa(os.Getpid()))
}

func TestAcquire_AfterRelease(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, first.Release())

	second, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestRelease_Twice(t *testing.T) {
	lock, err := Acquire(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	assert.NoError(t, lock.Release())

	var nilLock *Lock
	assert.NoError(t, nilLock.Release())
}

func TestAcquire_MissingDirectory(t *testing.T) {
	_, err := Acquire(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
}
