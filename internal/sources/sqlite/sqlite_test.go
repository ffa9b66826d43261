package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/shyim/db-vault/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createDatabase(t *testing.T, path string, rows int) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE records (id INTEGER PRIMARY KEY, label TEXT NOT NULL)")
	require.NoError(t, err)

	for i := 0; i < rows; i++ {
		_, err = db.Exec("INSERT INTO records (label) VALUES (?)", fmt.Sprintf("NARA-TEST-%d", i))
		require.NoError(t, err)
	}
}

func countRows(t *testing.T, path string) int {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM records").Scan(&count))
	return count
}

func TestTakeSnapshot(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "app.db")
	createDatabase(t, dbPath, 50)

	src := New(dbPath)
	assert.Equal(t, "app.db", src.Name())

	dest := filepath.Join(dir, "snapshot.db")
	require.NoError(t, src.TakeSnapshot(context.Background(), dest))

	assert.Equal(t, 50, countRows(t, dest))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestTakeSnapshot_MissingDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "missing.db")
	dest := filepath.Join(dir, "snapshot.db")

	err := New(dbPath).TakeSnapshot(context.Background(), dest)
	require.ErrorIs(t, err, snapshot.ErrSnapshotFailed)
	assert.NoFileExists(t, dbPath)
	assert.NoFileExists(t, dest)
}

func TestTakeSnapshot_ExistingDestination(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "app.db")
	createDatabase(t, dbPath, 1)

	dest := filepath.Join(dir, "snapshot.db")
	require.NoError(t, os.WriteFile(dest, []byte("not empty"), 0o600))

	err := New(dbPath).TakeSnapshot(context.Background(), dest)
	assert.ErrorIs(t, err, snapshot.ErrSnapshotFailed)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "not empty", string(data))
}

func TestType_Create(t *testing.T) {
	typ, ok := snapshot.Get("sqlite")
	require.True(t, ok)

	_, err := typ.Create(map[string]string{})
	assert.Error(t, err)

	src, err := typ.Create(map[string]string{"path": "/var/lib/app/app.sqlite"})
	require.NoError(t, err)
	assert.Equal(t, "app.sqlite", src.Name())
}
