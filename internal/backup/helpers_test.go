package backup

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shyim/db-vault/internal/notification"
	"github.com/shyim/db-vault/internal/storages/local"
	"github.com/stretchr/testify/require"
)

const zeroKey = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

var fixedNow = time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)

type staticSource struct {
	name  string
	data  []byte
	err   error
	calls int
}

func (s *staticSource) Name() string {
	return s.name
}

func (s *staticSource) TakeSnapshot(ctx context.Context, destPath string) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(destPath, s.data, 0o600)
}

// blockingSource waits for cancellation and fails the way a killed dump would.
type blockingSource struct{}

func (blockingSource) Name() string {
	return "app.db"
}

func (blockingSource) TakeSnapshot(ctx context.Context, destPath string) error {
	<-ctx.Done()
	return errors.New("dump process exited: signal: killed")
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (r *recordingNotifier) Name() string {
	return "recorder"
}

func (r *recordingNotifier) Type() string {
	return "test"
}

func (r *recordingNotifier) Send(ctx context.Context, event notification.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) types() []notification.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]notification.EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

func (r *recordingNotifier) last() notification.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type harness struct {
	backupDir  string
	tempDir    string
	restoreDir string
	notifier   *recordingNotifier
}

func newTestManager(t *testing.T, source *staticSource, mutate ...func(*Options)) (*Manager, *harness) {
	t.Helper()

	h := &harness{
		backupDir:  t.TempDir(),
		tempDir:    t.TempDir(),
		restoreDir: t.TempDir(),
		notifier:   &recordingNotifier{},
	}

	store, err := local.New(h.backupDir)
	require.NoError(t, err)

	notifyMgr := notification.NewManager()
	notifyMgr.AddNotifier("recorder", h.notifier)

	opts := Options{
		Source:           source,
		Storage:          store,
		KeyMaterial:      zeroKey,
		TempDir:          h.tempDir,
		RestoreDir:       h.restoreDir,
		CompressionLevel: -1,
		Notifier:         notifyMgr,
		Now:              func() time.Time { return fixedNow },
	}
	for _, fn := range mutate {
		fn(&opts)
	}

	m, err := NewManager(opts)
	require.NoError(t, err)

	return m, h
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
