// Package checksum computes the content digest recorded for every artifact.
//
// Digests are BLAKE2b with a 128-bit output, hex encoded, and match the output of
// `b2sum -l 128`.
package checksum

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/shyim/db-vault/internal/stream"
	"golang.org/x/crypto/blake2b"
)

// Algorithm is recorded next to every digest.
const Algorithm = "blake2b-128"

// Size is the digest length in bytes.
const Size = 16

// ErrMismatch is returned by Verify when the content does not match the expected digest.
var ErrMismatch = errors.New("checksum mismatch")

// New returns an unkeyed BLAKE2b-128 hash.
func New() hash.Hash {
	h, err := blake2b.New(Size, nil)
	if err != nil {
		// only fails for invalid sizes or oversized keys
		panic(err)
	}
	return h
}

// Reader returns the hex digest of everything read from r.
func Reader(ctx context.Context, r io.Reader) (string, error) {
	t := stream.Hash(New())
	if err := t.Apply(ctx, io.Discard, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(t.Sum()), nil
}

// File returns the hex digest of the file at path.
func File(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	sum, err := Reader(ctx, f)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return sum, nil
}

// Verify recomputes the digest of the file at path and compares it with expected.
// It returns the actual digest alongside ErrMismatch when they differ.
func Verify(ctx context.Context, path, expected string) (string, error) {
	actual, err := File(ctx, path)
	if err != nil {
		return "", err
	}
	if !Equal(actual, expected) {
		return actual, fmt.Errorf("%w: expected %s, got %s", ErrMismatch, expected, actual)
	}
	return actual, nil
}

// Equal compares two hex digests case-insensitively.
func Equal(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
