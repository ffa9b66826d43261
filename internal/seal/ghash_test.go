package seal

import (
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mulBitwise is the textbook one-bit-at-a-time multiply from NIST SP 800-38D.
func mulBitwise(x0, x1, h0, h1 uint64) (uint64, uint64) {
	var z0, z1 uint64
	v0, v1 := h0, h1

	for i := 0; i < 128; i++ {
		var bit uint64
		if i < 64 {
			bit = (x0 >> (63 - i)) & 1
		} else {
			bit = (x1 >> (127 - i)) & 1
		}
		mask := -bit
		z0 ^= v0 & mask
		z1 ^= v1 & mask

		lsb := v1 & 1
		v1 = v1>>1 | v0<<63
		v0 >>= 1
		v0 ^= 0xe100000000000000 & -lsb
	}

	return z0, z1
}

func TestGHASH_TableMatchesBitwise(t *testing.T) {
	h := make([]byte, blockSize)
	x := make([]byte, blockSize)

	for i := 0; i < 200; i++ {
		_, err := rand.Read(h)
		require.NoError(t, err)
		_, err = rand.Read(x)
		require.NoError(t, err)

		g := newGHASH(h)
		g.y0 = binary.BigEndian.Uint64(x[:8])
		g.y1 = binary.BigEndian.Uint64(x[8:])
		g.mul()

		want0, want1 := mulBitwise(
			binary.BigEndian.Uint64(x[:8]), binary.BigEndian.Uint64(x[8:]),
			binary.BigEndian.Uint64(h[:8]), binary.BigEndian.Uint64(h[8:]),
		)
		assert.Equal(t, want0, g.y0, "high half, round %d", i)
		assert.Equal(t, want1, g.y1, "low half, round %d", i)
	}
}

func TestGHASH_MultiplyByOne(t *testing.T) {
	// In GCM's bit order the polynomial 1 is the block 0x80 00 .. 00.
	one := make([]byte, blockSize)
	one[0] = 0x80

	x := make([]byte, blockSize)
	_, err := rand.Read(x)
	require.NoError(t, err)

	g := newGHASH(one)
	g.y0 = binary.BigEndian.Uint64(x[:8])
	g.y1 = binary.BigEndian.Uint64(x[8:])
	g.mul()

	assert.Equal(t, binary.BigEndian.Uint64(x[:8]), g.y0)
	assert.Equal(t, binary.BigEndian.Uint64(x[8:]), g.y1)
}
