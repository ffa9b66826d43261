// Package artifact names backup artifacts and describes the manifest stored next to them.
package artifact

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Suffix ends every artifact name: gzip then AES-256-GCM.
	Suffix = ".gz.enc"
	// PartialSuffix marks an artifact that is still being written.
	PartialSuffix = ".partial"
	// TimeLayout is the minute-resolution UTC timestamp embedded in names.
	TimeLayout = "2006-01-02T15:04"
	// RestoreTimeLayout is used for restored file names.
	RestoreTimeLayout = "2006-01-02T15-04-05"
)

var nameRe = regexp.MustCompile(`^(.+)-(\d{4}-\d{2}-\d{2}T\d{2}:\d{2})-([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})(\.[^.]+)?\.gz\.enc$`)

// Info holds the parts of an artifact name.
type Info struct {
	Base      string
	Timestamp time.Time
	ID        string
	// Ext is the source extension without the leading dot, empty if the source had none.
	Ext string
}

// Source returns the original source file name.
func (i Info) Source() string {
	if i.Ext == "" {
		return i.Base
	}
	return i.Base + "." + i.Ext
}

// Name builds an artifact name for sourceName at time t:
// <base>-<YYYY-MM-DDTHH:mm>-<uuid>.<ext>.gz.enc
func Name(sourceName string, t time.Time) string {
	base, ext := SplitSource(sourceName)
	var b strings.Builder
	b.WriteString(base)
	b.WriteByte('-')
	b.WriteString(t.UTC().Format(TimeLayout))
	b.WriteByte('-')
	b.WriteString(uuid.NewString())
	if ext != "" {
		b.WriteByte('.')
		b.WriteString(ext)
	}
	b.WriteString(Suffix)
	return b.String()
}

// SplitSource splits a source path into its base name and extension (without dot).
func SplitSource(sourceName string) (base, ext string) {
	name := filepath.Base(sourceName)
	ext = filepath.Ext(name)
	base = strings.TrimSuffix(name, ext)
	if base == "" {
		// dot files like ".env" have no extension
		return name, ""
	}
	return base, strings.TrimPrefix(ext, ".")
}

// Parse recovers the parts of an artifact name. Directory components are ignored.
func Parse(name string) (Info, error) {
	m := nameRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return Info{}, fmt.Errorf("not an artifact name: %s", name)
	}

	ts, err := time.ParseInLocation(TimeLayout, m[2], time.UTC)
	if err != nil {
		return Info{}, fmt.Errorf("invalid artifact timestamp %q: %w", m[2], err)
	}

	return Info{
		Base:      m[1],
		Timestamp: ts,
		ID:        m[3],
		Ext:       strings.TrimPrefix(m[4], "."),
	}, nil
}

// IsArtifact reports whether name looks like a finished artifact.
func IsArtifact(name string) bool {
	return nameRe.MatchString(filepath.Base(name))
}

// ManifestName returns the sidecar manifest name for an artifact.
func ManifestName(artifactName string) string {
	return artifactName + ManifestSuffix
}

// IsManifest reports whether name is a manifest sidecar.
func IsManifest(name string) bool {
	return strings.HasSuffix(name, ManifestSuffix)
}

// RestoredName returns the file name a restore of info writes at time t. A positive
// attempt appends -<attempt> for restores that land within the same second.
func RestoredName(info Info, t time.Time, attempt int) string {
	name := info.Base + "-restored-" + t.UTC().Format(RestoreTimeLayout)
	if attempt > 0 {
		name += "-" + strconv.Itoa(attempt)
	}
	if info.Ext != "" {
		name += "." + info.Ext
	}
	return name
}
