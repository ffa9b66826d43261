package artifact

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 7, 59, 0, time.UTC)

	tests := []struct {
		name   string
		source string
		prefix string
		suffix string
	}{
		{"with extension", "app.db", "app-2024-03-09T14:07-", ".db.gz.enc"},
		{"path", "/var/lib/app/data.sqlite", "data-2024-03-09T14:07-", ".sqlite.gz.enc"},
		{"no extension", "dump", "dump-2024-03-09T14:07-", "gz.enc"},
		{"dashes in base", "my-app-prod.sql", "my-app-prod-2024-03-09T14:07-", ".sql.gz.enc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := Name(tt.source, ts)
			assert.True(t, strings.HasPrefix(name, tt.prefix), name)
			assert.True(t, strings.HasSuffix(name, tt.suffix), name)
			assert.True(t, IsArtifact(name), name)
		})
	}
}

func TestName_NoExtensionHasNoEmptySegment(t *testing.T) {
	name := Name("dump", time.Now())
	assert.NotContains(t, name, "..")
	assert.NotContains(t, name, "-.gz")
}

func TestName_UsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 3, 9, 1, 30, 0, 0, loc)

	name := Name("app.db", ts)
	assert.True(t, strings.HasPrefix(name, "app-2024-03-08T23:30-"), name)
}

func TestName_UniqueWithinSameMinute(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 7, 0, 0, time.UTC)
	seen := make(map[string]struct{}, 1000)

	for i := 0; i < 1000; i++ {
		name := Name("app.db", ts)
		_, dup := seen[name]
		require.False(t, dup, "duplicate name %s", name)
		seen[name] = struct{}{}
	}
}

func TestParse(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 7, 0, 0, time.UTC)
	name := Name("/data/my-app.db", ts)

	info, err := Parse("/backups/" + name)
	require.NoError(t, err)

	assert.Equal(t, "my-app", info.Base)
	assert.Equal(t, "db", info.Ext)
	assert.Equal(t, "my-app.db", info.Source())
	assert.True(t, ts.Equal(info.Timestamp))
	assert.Len(t, info.ID, 36)
}

func TestParse_NoExtension(t *testing.T) {
	info, err := Parse(Name("dump", time.Now()))
	require.NoError(t, err)

	assert.Equal(t, "dump", info.Base)
	assert.Empty(t, info.Ext)
	assert.Equal(t, "dump", info.Source())
}

func TestIsArtifact_Rejects(t *testing.T) {
	valid := Name("app.db", time.Now())

	for _, name := range []string{
		"",
		"app.db",
		"app.db.gz.enc",
		valid + PartialSuffix,
		ManifestName(valid),
		".db-vault.lock",
		"app-2024-03-09T14:07-not-a-uuid.db.gz.enc",
	} {
		assert.False(t, IsArtifact(name), name)
	}
}

func TestSplitSource(t *testing.T) {
	tests := []struct {
		source, base, ext string
	}{
		{"app.db", "app", "db"},
		{"archive.tar.gz", "archive.tar", "gz"},
		{"noext", "noext", ""},
		{".env", ".env", ""},
		{"/a/b/c.sql", "c", "sql"},
	}

	for _, tt := range tests {
		base, ext := SplitSource(tt.source)
		assert.Equal(t, tt.base, base, tt.source)
		assert.Equal(t, tt.ext, ext, tt.source)
	}
}

func TestRestoredName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 7, 5, 0, time.UTC)

	assert.Equal(t, "app-restored-2024-03-09T14-07-05.db", RestoredName(Info{Base: "app", Ext: "db"}, ts, 0))
	assert.Equal(t, "dump-restored-2024-03-09T14-07-05", RestoredName(Info{Base: "dump"}, ts, 0))
	assert.Equal(t, "app-restored-2024-03-09T14-07-05-2.db", RestoredName(Info{Base: "app", Ext: "db"}, ts, 2))
	assert.Equal(t, "dump-restored-2024-03-09T14-07-05-1", RestoredName(Info{Base: "dump"}, ts, 1))
}
