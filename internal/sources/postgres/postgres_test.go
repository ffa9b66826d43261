package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shyim/db-vault/internal/docker"
	"github.com/shyim/db-vault/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type fakeClient struct {
	info     *docker.ContainerInfo
	output   string
	exitCode int
	execErr  error
	cmd      []string
	closed   bool
}

func (f *fakeClient) GetContainer(ctx context.Context, containerID string) (*docker.ContainerInfo, error) {
	if f.info == nil {
		return nil, errors.New("no such container")
	}
	return f.info, nil
}

func (f *fakeClient) ExecWithOutput(ctx context.Context, containerID string, cmd []string, w io.Writer) (*docker.ExecResult, error) {
	f.cmd = cmd
	if f.execErr != nil {
		return nil, f.execErr
	}
	_, _ = io.WriteString(w, f.output)
	return &docker.ExecResult{ExitCode: f.exitCode, Output: "pg_dumpall: error"}, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func dialer(c *fakeClient) Dialer {
	return func(ctx context.Context, host string) (Client, error) {
		return c, nil
	}
}

func TestSource_Name(t *testing.T) {
	assert.Equal(t, "db.sql", New("db", "", nil).Name())
}

func TestTakeSnapshot_Dump(t *testing.T) {
	client := &fakeClient{
		info: &docker.ContainerInfo{
			ID:      "abc",
			Name:    "db",
			Running: true,
			Env:     map[string]string{EnvPostgresUser: "app"},
		},
		output: "CREATE TABLE users ();\n",
	}

	dest := filepath.Join(t.TempDir(), "snapshot")
	require.NoError(t, New("db", "", dialer(client)).TakeSnapshot(context.Background(), dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE users ();\n", string(data))
	assert.Equal(t, []string{"pg_dumpall", "-U", "app", "--clean", "--if-exists"}, client.cmd)
	assert.True(t, client.closed)
}

func TestTakeSnapshot_UserResolution(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		env        map[string]string
		expected   string
		expectErr  bool
	}{
		{"configured wins", "admin", map[string]string{EnvPostgresUser: "app"}, "admin", false},
		{"POSTGRES_USER", "", map[string]string{EnvPostgresUser: "app", EnvPGUser: "pg"}, "app", false},
		{"PGUSER", "", map[string]string{EnvPGUser: "pg"}, "pg", false},
		{"missing", "", map[string]string{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{info: &docker.ContainerInfo{ID: "abc", Name: "db", Running: true, Env: tt.env}}
			dest := filepath.Join(t.TempDir(), "snapshot")

			err := New("db", tt.configured, dialer(client)).TakeSnapshot(context.Background(), dest)
			if tt.expectErr {
				require.ErrorIs(t, err, snapshot.ErrSnapshotFailed)
				assert.NoFileExists(t, dest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, client.cmd[2])
		})
	}
}

func TestTakeSnapshot_Failures(t *testing.T) {
	running := &docker.ContainerInfo{ID: "abc", Name: "db", Running: true, Env: map[string]string{EnvPGUser: "pg"}}

	tests := []struct {
		name   string
		client *fakeClient
	}{
		{"missing container", &fakeClient{}},
		{"stopped container", &fakeClient{info: &docker.ContainerInfo{ID: "abc", Name: "db", Env: running.Env}}},
		{"exec error", &fakeClient{info: running, execErr: errors.New("connection reset")}},
		{"non-zero exit", &fakeClient{info: running, output: "partial", exitCode: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "snapshot")

			err := New("db", "", dialer(tt.client)).TakeSnapshot(context.Background(), dest)
			require.ErrorIs(t, err, snapshot.ErrSnapshotFailed)
			assert.NoFileExists(t, dest)
		})
	}
}

func TestTakeSnapshot_DialFailure(t *testing.T) {
	dial := func(ctx context.Context, host string) (Client, error) {
		return nil, errors.New("cannot connect to the docker daemon")
	}

	err := New("db", "", dial).TakeSnapshot(context.Background(), filepath.Join(t.TempDir(), "snapshot"))
	assert.ErrorIs(t, err, snapshot.ErrSnapshotFailed)
}

func TestType_Create(t *testing.T) {
	typ, ok := snapshot.Get("postgres")
	require.True(t, ok)

	_, err := typ.Create(map[string]string{})
	assert.Error(t, err)

	src, err := typ.Create(map[string]string{"container": "db", "docker-host": "unix:///var/run/docker.sock"})
	require.NoError(t, err)
	assert.Equal(t, "db.sql", src.Name())
}

// TestTakeSnapshot_Integration dumps a real PostgreSQL container via testcontainers.
func TestTakeSnapshot_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	defer db.Close()

	require.Eventually(t, func() bool {
		return db.Ping() == nil
	}, 10*time.Second, 100*time.Millisecond)

	_, err = db.Exec(`CREATE TABLE records (id SERIAL PRIMARY KEY, label VARCHAR(100) NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO records (label) VALUES ('NARA-TEST-1234')`)
	require.NoError(t, err)

	src, err := (&Type{}).Create(map[string]string{"container": pgContainer.GetContainerID()})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "snapshot.sql")
	require.NoError(t, src.TakeSnapshot(ctx, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	dump := string(data)
	assert.True(t, strings.Contains(dump, "CREATE TABLE public.records"), "dump should contain the table")
	assert.Contains(t, dump, "NARA-TEST-1234")
}
