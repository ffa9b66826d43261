package artifact

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

const (
	// ManifestSuffix is appended to an artifact name to form its sidecar.
	ManifestSuffix = ".manifest.json"
	// ManifestVersion is the current manifest format.
	ManifestVersion = 1

	CipherAESGCM    = "aes-256-gcm"
	CompressionGzip = "gzip"
)

// ErrInvalidManifest is returned when a manifest cannot be decoded or is incomplete.
var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest records everything needed to restore and verify an artifact except the key.
type Manifest struct {
	Version           int       `json:"version"`
	Artifact          string    `json:"artifact"`
	Source            string    `json:"source"`
	CreatedAt         time.Time `json:"created_at"`
	SizeBytes         int64     `json:"size_bytes"`
	Checksum          string    `json:"checksum"`
	ChecksumAlgorithm string    `json:"checksum_algorithm"`
	Cipher            string    `json:"cipher"`
	Compression       string    `json:"compression"`
	IV                string    `json:"iv"`
	AuthTag           string    `json:"auth_tag"`
}

// Encode returns the indented JSON form of m.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeManifest parses and validates a manifest.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidManifest, m.Version)
	}
	if m.Artifact == "" {
		return nil, fmt.Errorf("%w: missing artifact", ErrInvalidManifest)
	}
	return &m, nil
}

// IVBytes decodes the base64 IV.
func (m *Manifest) IVBytes() ([]byte, error) {
	return decodeField("iv", m.IV)
}

// AuthTagBytes decodes the base64 authentication tag.
func (m *Manifest) AuthTagBytes() ([]byte, error) {
	return decodeField("auth_tag", m.AuthTag)
}

func decodeField(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidManifest, name)
	}
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not base64: %v", ErrInvalidManifest, name, err)
	}
	return b, nil
}
