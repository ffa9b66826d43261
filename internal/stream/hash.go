package stream

import (
	"context"
	"hash"
	"io"
)

// HashTransform feeds its input through a hash while passing it on unchanged.
type HashTransform struct {
	h hash.Hash
}

// Hash returns a transform computing h over the stream. Use io.Discard as the
// destination when only the digest is needed.
func Hash(h hash.Hash) *HashTransform {
	return &HashTransform{h: h}
}

func (t *HashTransform) Kind() Kind {
	return KindHash
}

func (t *HashTransform) Apply(ctx context.Context, dst io.Writer, src io.Reader) error {
	_, err := copyContext(ctx, io.MultiWriter(dst, t.h), src)
	return err
}

// Sum returns the digest of everything passed through so far.
func (t *HashTransform) Sum() []byte {
	return t.h.Sum(nil)
}
