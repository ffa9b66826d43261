package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// GzipTransform compresses its input.
type GzipTransform struct {
	level int
}

// Gzip returns a compressing transform. Level follows compress/flate semantics;
// gzip.DefaultCompression selects the library default.
func Gzip(level int) *GzipTransform {
	return &GzipTransform{level: level}
}

func (g *GzipTransform) Kind() Kind {
	return KindCompress
}

func (g *GzipTransform) Apply(ctx context.Context, dst io.Writer, src io.Reader) error {
	zw, err := gzip.NewWriterLevel(dst, g.level)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}

	if _, err := copyContext(ctx, zw, src); err != nil {
		_ = zw.Close()
		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return nil
}

// GunzipTransform decompresses its input.
type GunzipTransform struct{}

// Gunzip returns a decompressing transform.
func Gunzip() *GunzipTransform {
	return &GunzipTransform{}
}

func (g *GunzipTransform) Kind() Kind {
	return KindDecompress
}

func (g *GunzipTransform) Apply(ctx context.Context, dst io.Writer, src io.Reader) error {
	source := &sourceReader{r: contextReader{ctx: ctx, r: src}}

	zr, err := gzip.NewReader(source)
	if err != nil {
		return g.classify(ctx, source, err)
	}
	defer zr.Close()

	buf := make([]byte, bufferSize)
	for {
		n, rerr := zr.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return g.classify(ctx, source, rerr)
		}
	}
}

// classify keeps cancellation and source I/O errors as they are and reports everything
// else produced by the decoder as a corrupt archive.
func (g *GunzipTransform) classify(ctx context.Context, source *sourceReader, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if source.err != nil && errors.Is(err, source.err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
}
