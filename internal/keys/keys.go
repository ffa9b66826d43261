// Package keys turns operator-supplied key material into an AES-256 key.
package keys

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Size is the length of a resolved key in bytes.
const Size = 32

// ErrInvalidKeyMaterial is returned when no supported encoding yields exactly Size bytes.
var ErrInvalidKeyMaterial = errors.New("invalid key material")

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// Resolve decodes key material as base64, then hex, then raw text, and returns the
// first decoding that is exactly Size bytes long. Nothing is padded or truncated.
// Surrounding whitespace is ignored for base64 and hex. Raw text is taken as given
// and only falls back to its trimmed form when that is Size bytes.
func Resolve(material string) ([]byte, error) {
	trimmed := strings.TrimSpace(material)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: key is empty", ErrInvalidKeyMaterial)
	}

	for _, enc := range base64Encodings {
		if key, err := enc.DecodeString(trimmed); err == nil && len(key) == Size {
			return key, nil
		}
	}

	if key, err := hex.DecodeString(trimmed); err == nil && len(key) == Size {
		return key, nil
	}

	for _, raw := range []string{material, trimmed} {
		if len(raw) == Size {
			return []byte(raw), nil
		}
	}

	// never echo the material itself
	return nil, fmt.Errorf("%w: expected %d bytes encoded as base64, hex or raw text", ErrInvalidKeyMaterial, Size)
}

// Generate returns a new random key encoded as standard base64.
func Generate() (string, error) {
	key := make([]byte, Size)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to read random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Wipe zeroes a resolved key once it is no longer needed.
func Wipe(key []byte) {
	clear(key)
}
