package stream

import (
	"context"
	"fmt"
	"io"

	"github.com/shyim/db-vault/internal/seal"
)

// EncryptTransform encrypts with AES-256-GCM under a fresh IV on every Apply.
type EncryptTransform struct {
	key []byte
	iv  []byte
	tag []byte
}

// Encrypt returns an encrypting transform. IV and Tag are available after Apply.
func Encrypt(key []byte) *EncryptTransform {
	return &EncryptTransform{key: key}
}

func (e *EncryptTransform) Kind() Kind {
	return KindEncrypt
}

func (e *EncryptTransform) Apply(ctx context.Context, dst io.Writer, src io.Reader) error {
	e.iv, e.tag = nil, nil

	w, err := seal.NewWriter(dst, e.key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	if _, err := copyContext(ctx, w, src); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	e.iv = w.IV()
	e.tag = w.Tag()
	return nil
}

// IV returns the initialization vector of the last successful Apply.
func (e *EncryptTransform) IV() []byte {
	return e.iv
}

// Tag returns the authentication tag of the last successful Apply.
func (e *EncryptTransform) Tag() []byte {
	return e.tag
}

// DecryptTransform decrypts and authenticates AES-256-GCM ciphertext.
//
// Plaintext is written to dst before the tag is checked. When Apply fails, everything
// written to dst must be discarded; ApplyFile does that by removing the output file.
type DecryptTransform struct {
	key []byte
	iv  []byte
	tag []byte
}

// Decrypt returns a decrypting transform for the given key, IV and expected tag.
func Decrypt(key, iv, tag []byte) *DecryptTransform {
	return &DecryptTransform{key: key, iv: iv, tag: tag}
}

func (d *DecryptTransform) Kind() Kind {
	return KindDecrypt
}

func (d *DecryptTransform) Apply(ctx context.Context, dst io.Writer, src io.Reader) error {
	r, err := seal.NewReader(src, d.key, d.iv, d.tag)
	if err != nil {
		return err
	}

	_, err = copyContext(ctx, dst, r)
	return err
}
