package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shyim/db-vault/internal/artifact"
	"github.com/shyim/db-vault/internal/notification"
	"github.com/shyim/db-vault/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	m, h := newTestManager(t, &staticSource{name: "app.db", data: []byte("data")})

	older, err := m.Backup(context.Background())
	require.NoError(t, err)
	newer, err := m.Backup(context.Background())
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older.ArtifactPath, past, past))
	require.NoError(t, os.Remove(newer.ArtifactPath+artifact.ManifestSuffix))
	require.NoError(t, os.WriteFile(filepath.Join(h.backupDir, "README"), []byte("x"), 0o600))

	list, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, filepath.Base(newer.ArtifactPath), list[0].Name)
	assert.False(t, list[0].HasManifest)
	assert.Equal(t, filepath.Base(older.ArtifactPath), list[1].Name)
	assert.True(t, list[1].HasManifest)
	assert.Equal(t, "app.db", list[1].Source)
	assert.Equal(t, older.SizeBytes, list[1].Size)

	latest, err := m.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, list[0].Name, latest.Name)
}

func TestLatest_Empty(t *testing.T) {
	m, _ := newTestManager(t, &staticSource{name: "app.db"})

	_, err := m.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoArtifacts)
}

func TestVerify(t *testing.T) {
	m, h := newTestManager(t, &staticSource{name: "app.db", data: []byte("data")})

	backup, err := m.Backup(context.Background())
	require.NoError(t, err)
	name := filepath.Base(backup.ArtifactPath)

	result, err := m.Verify(context.Background(), name)
	require.NoError(t, err)
	assert.True(t, result.Match)
	assert.Equal(t, backup.Checksum, result.Expected)
	assert.Equal(t, backup.Checksum, result.Actual)

	data, err := os.ReadFile(backup.ArtifactPath)
	require.NoError(t, err)
	data[0] ^= 0x01
	require.NoError(t, os.WriteFile(backup.ArtifactPath, data, 0o600))

	result, err = m.Verify(context.Background(), name)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	require.NotNil(t, result)
	assert.False(t, result.Match)
	assert.NotEqual(t, result.Expected, result.Actual)
	assert.Equal(t, notification.EventChecksumMismatch, h.notifier.last().Type)
}

func TestVerify_Errors(t *testing.T) {
	m, _ := newTestManager(t, &staticSource{name: "app.db", data: []byte("data")})

	_, err := m.Verify(context.Background(), "notes.txt")
	assert.ErrorIs(t, err, ErrNotArtifact)

	_, err = m.Verify(context.Background(), artifact.Name("app.db", fixedNow))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	backup, err := m.Backup(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(backup.ArtifactPath+artifact.ManifestSuffix))

	_, err = m.Verify(context.Background(), filepath.Base(backup.ArtifactPath))
	assert.ErrorIs(t, err, artifact.ErrInvalidManifest)
}

func TestDelete(t *testing.T) {
	m, _ := newTestManager(t, &staticSource{name: "app.db", data: []byte("data")})

	backup, err := m.Backup(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Delete(context.Background(), filepath.Base(backup.ArtifactPath)))
	assert.NoFileExists(t, backup.ArtifactPath)
	assert.NoFileExists(t, backup.ArtifactPath+artifact.ManifestSuffix)

	err = m.Delete(context.Background(), filepath.Base(backup.ArtifactPath))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = m.Delete(context.Background(), "notes.txt")
	assert.ErrorIs(t, err, ErrNotArtifact)
}
