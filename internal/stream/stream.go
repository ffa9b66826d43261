// Package stream expresses every pipeline stage as a transform from one byte stream to
// another, so the backup and restore pipelines share the same buffering, cancellation
// and cleanup behaviour.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Kind identifies a stage transform.
type Kind string

const (
	KindCompress   Kind = "compress"
	KindDecompress Kind = "decompress"
	KindEncrypt    Kind = "encrypt"
	KindDecrypt    Kind = "decrypt"
	KindHash       Kind = "hash"
)

const bufferSize = 64 * 1024

// ErrCorruptArchive is returned when compressed input is malformed or truncated.
var ErrCorruptArchive = errors.New("corrupt archive")

// Transform reads all of src and writes the transformed bytes to dst.
// Apply returns only after src is exhausted and any trailer has been written.
type Transform interface {
	Kind() Kind
	Apply(ctx context.Context, dst io.Writer, src io.Reader) error
}

// ApplyFile runs t from srcPath into a newly created dstPath. The destination must not
// exist. It is fsynced before ApplyFile returns and removed again on any failure.
func ApplyFile(ctx context.Context, t Transform, srcPath, dstPath string) (err error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open %s input: %w", t.Kind(), err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s output: %w", t.Kind(), err)
	}

	closed := false
	defer func() {
		if !closed {
			_ = dst.Close()
		}
		if err != nil {
			_ = os.Remove(dstPath)
		}
	}()

	bw := bufio.NewWriterSize(dst, bufferSize)
	if err = t.Apply(ctx, bw, src); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s output: %w", t.Kind(), err)
	}
	if err = dst.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s output: %w", t.Kind(), err)
	}

	closed = true
	if err = dst.Close(); err != nil {
		return fmt.Errorf("failed to close %s output: %w", t.Kind(), err)
	}

	return nil
}

// copyContext copies src to dst with a fixed buffer, stopping early once ctx is done.
func copyContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, bufferSize)
	return io.CopyBuffer(onlyWriter{dst}, contextReader{ctx: ctx, r: src}, buf)
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// onlyWriter hides ReaderFrom so io.CopyBuffer keeps using our buffer and reader.
type onlyWriter struct {
	io.Writer
}

// sourceReader remembers errors coming from the underlying source so they can be told
// apart from decoding errors raised by a wrapping reader.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}
