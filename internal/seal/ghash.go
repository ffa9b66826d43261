package seal

import "encoding/binary"

// ghash is the GCM universal hash over GF(2^128) as defined in NIST SP 800-38D.
// Blocks are kept as two big-endian uint64 halves. Multiplication by H walks the
// block four bits at a time against a table of the 16 nibble multiples of H.
type ghash struct {
	table  [16]fieldElement
	y0, y1 uint64
	buf    [blockSize]byte
	nbuf   int
}

type fieldElement struct {
	hi, lo uint64
}

// ghashReduction[r] is the reduction term for the nibble r shifted out of the low end,
// to be placed in the top 16 bits.
var ghashReduction = [16]uint64{
	0x0000, 0x1c20, 0x3840, 0x2460, 0x7080, 0x6ca0, 0x48c0, 0x54e0,
	0xe100, 0xfd20, 0xd940, 0xc560, 0x9180, 0x8da0, 0xa9c0, 0xb5e0,
}

func newGHASH(h []byte) *ghash {
	g := &ghash{}

	// Nibble bit 8 is the x^0 coefficient, bit 1 the x^3 coefficient.
	v := fieldElement{
		hi: binary.BigEndian.Uint64(h[:8]),
		lo: binary.BigEndian.Uint64(h[8:]),
	}
	g.table[8] = v
	for i := 4; i > 0; i >>= 1 {
		v = mulX(v)
		g.table[i] = v
	}
	for i := 2; i <= 8; i <<= 1 {
		for j := 1; j < i; j++ {
			g.table[i+j] = fieldElement{
				hi: g.table[i].hi ^ g.table[j].hi,
				lo: g.table[i].lo ^ g.table[j].lo,
			}
		}
	}

	return g
}

// mulX multiplies v by x, which is a right shift in GCM's bit order.
func mulX(v fieldElement) fieldElement {
	lsb := v.lo & 1
	return fieldElement{
		hi: (v.hi >> 1) ^ (0xe100000000000000 & -lsb),
		lo: (v.lo >> 1) | (v.hi << 63),
	}
}

// mul sets y = y * H, starting from the highest-degree nibble.
func (g *ghash) mul() {
	var z0, z1 uint64

	for i := 0; i < 32; i++ {
		var nibble uint64
		if i < 16 {
			nibble = (g.y1 >> (4 * i)) & 0xf
		} else {
			nibble = (g.y0 >> (4 * (i - 16))) & 0xf
		}

		if i > 0 {
			rem := z1 & 0xf
			z1 = (z1 >> 4) | (z0 << 60)
			z0 = (z0 >> 4) ^ (ghashReduction[rem] << 48)
		}

		t := &g.table[nibble]
		z0 ^= t.hi
		z1 ^= t.lo
	}

	g.y0, g.y1 = z0, z1
}

func (g *ghash) block(b []byte) {
	g.y0 ^= binary.BigEndian.Uint64(b[:8])
	g.y1 ^= binary.BigEndian.Uint64(b[8:blockSize])
	g.mul()
}

func (g *ghash) write(p []byte) {
	if g.nbuf > 0 {
		n := copy(g.buf[g.nbuf:], p)
		g.nbuf += n
		p = p[n:]
		if g.nbuf < blockSize {
			return
		}
		g.block(g.buf[:])
		g.nbuf = 0
	}

	for len(p) >= blockSize {
		g.block(p[:blockSize])
		p = p[blockSize:]
	}

	if len(p) > 0 {
		g.nbuf = copy(g.buf[:], p)
	}
}

// sum pads the pending partial block, absorbs the length block and returns the digest.
// The additional authenticated data is always empty.
func (g *ghash) sum(ciphertextLen uint64) [blockSize]byte {
	if g.nbuf > 0 {
		clear(g.buf[g.nbuf:])
		g.block(g.buf[:])
		g.nbuf = 0
	}

	var lengths [blockSize]byte
	binary.BigEndian.PutUint64(lengths[8:], ciphertextLen*8)
	g.block(lengths[:])

	var out [blockSize]byte
	binary.BigEndian.PutUint64(out[:8], g.y0)
	binary.BigEndian.PutUint64(out[8:], g.y1)
	return out
}
