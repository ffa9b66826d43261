// Package seal implements streaming AES-256-GCM.
//
// The standard library only exposes GCM as a one-shot AEAD, which needs the whole
// message in memory. Writer and Reader produce and consume exactly the same bytes as
// crypto/cipher's GCM with a 12-byte nonce and 16-byte tag, but process the payload
// incrementally. The nonce and tag travel separately from the ciphertext.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// NonceSize is the length of the initialization vector.
	NonceSize = 12
	// TagSize is the length of the authentication tag.
	TagSize = 16

	blockSize = aes.BlockSize

	// GCM allows at most 2^32-2 blocks per nonce. Staying below this also keeps the
	// 128-bit counter of cipher.NewCTR equivalent to GCM's 32-bit counter increment.
	maxMessageSize = (1<<32 - 2) * blockSize

	chunkSize = 32 * 1024
)

var (
	// ErrIntegrityCheckFailed means the authentication tag did not match: the key, IV or
	// tag is wrong, or the ciphertext was modified.
	ErrIntegrityCheckFailed = errors.New("integrity check failed")

	// ErrMessageTooLarge is returned when a message exceeds the GCM length limit.
	ErrMessageTooLarge = errors.New("message exceeds AES-GCM length limit")

	// ErrInvalidKey is returned for keys that are not KeySize bytes.
	ErrInvalidKey = errors.New("key must be 32 bytes")

	errWriterClosed = errors.New("seal: write to closed writer")
)

type state struct {
	ctr     cipher.Stream
	hash    *ghash
	tagMask [blockSize]byte
	n       uint64
}

func newState(key, iv []byte) (*state, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	var h [blockSize]byte
	block.Encrypt(h[:], h[:])

	var counter [blockSize]byte
	copy(counter[:], iv)
	counter[blockSize-1] = 1

	s := &state{hash: newGHASH(h[:])}
	block.Encrypt(s.tagMask[:], counter[:])

	counter[blockSize-1] = 2
	s.ctr = cipher.NewCTR(block, counter[:])

	return s, nil
}

func (s *state) tag() []byte {
	sum := s.hash.sum(s.n)
	out := make([]byte, TagSize)
	subtle.XORBytes(out, sum[:], s.tagMask[:])
	return out
}

// Writer encrypts everything written to it into an underlying writer.
type Writer struct {
	dst    io.Writer
	state  *state
	iv     []byte
	tag    []byte
	buf    []byte
	err    error
	closed bool
}

// NewWriter returns a Writer that encrypts into dst under key using a fresh random IV.
func NewWriter(dst io.Writer, key []byte) (*Writer, error) {
	iv := make([]byte, NonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	s, err := newState(key, iv)
	if err != nil {
		return nil, err
	}

	return &Writer{
		dst:   dst,
		state: s,
		iv:    iv,
		buf:   make([]byte, chunkSize),
	}, nil
}

// Write encrypts p and writes the ciphertext to the underlying writer.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errWriterClosed
	}
	if w.err != nil {
		return 0, w.err
	}
	if uint64(len(p)) > maxMessageSize-w.state.n {
		w.err = ErrMessageTooLarge
		return 0, w.err
	}

	written := 0
	for len(p) > 0 {
		chunk := min(len(p), len(w.buf))
		out := w.buf[:chunk]

		w.state.ctr.XORKeyStream(out, p[:chunk])
		w.state.hash.write(out)
		w.state.n += uint64(chunk)

		n, err := w.dst.Write(out)
		written += n
		if err == nil && n < chunk {
			err = io.ErrShortWrite
		}
		if err != nil {
			w.err = err
			return written, err
		}
		p = p[chunk:]
	}

	return written, nil
}

// Close finalizes the authentication tag. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	if w.err != nil {
		return w.err
	}

	w.tag = w.state.tag()
	return nil
}

// IV returns the initialization vector used by this writer.
func (w *Writer) IV() []byte {
	return append([]byte(nil), w.iv...)
}

// Tag returns the authentication tag. It is nil until Close succeeds.
func (w *Writer) Tag() []byte {
	if w.tag == nil {
		return nil
	}
	return append([]byte(nil), w.tag...)
}

// Reader decrypts ciphertext read from an underlying reader.
//
// Plaintext returned by Read is unverified until Read reports io.EOF. If the tag does
// not match, Read returns ErrIntegrityCheckFailed instead of io.EOF and every byte
// returned before must be discarded.
type Reader struct {
	src      io.Reader
	state    *state
	expected []byte
	err      error
}

// NewReader returns a Reader that decrypts src with key, iv and the expected tag.
func NewReader(src io.Reader, key, iv, tag []byte) (*Reader, error) {
	if len(iv) != NonceSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrIntegrityCheckFailed, NonceSize, len(iv))
	}
	if len(tag) != TagSize {
		return nil, fmt.Errorf("%w: tag must be %d bytes, got %d", ErrIntegrityCheckFailed, TagSize, len(tag))
	}

	s, err := newState(key, iv)
	if err != nil {
		return nil, err
	}

	return &Reader{
		src:      src,
		state:    s,
		expected: append([]byte(nil), tag...),
	}, nil
}

// Read decrypts into p. See the type documentation for the verification contract.
func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}

	n, err := r.src.Read(p)
	if n > 0 {
		if uint64(n) > maxMessageSize-r.state.n {
			r.err = fmt.Errorf("%w: ciphertext exceeds AES-GCM length limit", ErrIntegrityCheckFailed)
			return 0, r.err
		}
		r.state.hash.write(p[:n])
		r.state.ctr.XORKeyStream(p[:n], p[:n])
		r.state.n += uint64(n)
	}

	switch {
	case err == io.EOF:
		r.err = r.verify()
		if n > 0 {
			return n, nil
		}
		return 0, r.err
	case err != nil:
		r.err = err
		return n, err
	}

	return n, nil
}

// Verified reports whether the whole stream was read and the tag matched.
func (r *Reader) Verified() bool {
	return r.err == io.EOF
}

func (r *Reader) verify() error {
	if subtle.ConstantTimeCompare(r.state.tag(), r.expected) != 1 {
		return ErrIntegrityCheckFailed
	}
	return io.EOF
}
