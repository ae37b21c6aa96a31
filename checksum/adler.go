// Package checksum implements the rolling sum-of-sums checksum that trails
// zlib-framed Flate data.
package checksum

import "hash"

// Modulus is the largest prime smaller than 65536.
const Modulus = 65521

// Size of the checksum in bytes.
const Size = 4

// nmax is the largest n such that 255n(n+1)/2 + (n+1)(Modulus-1) <= 2^32-1,
// so sums can be deferred that many bytes before reducing.
const nmax = 5552

type digest struct {
	s1, s2 uint32
}

// New returns a hash.Hash32 computing the checksum.
func New() hash.Hash32 {
	d := new(digest)
	d.Reset()
	return d
}

func (d *digest) Reset()         { d.s1, d.s2 = 1, 0 }
func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return 4 }
func (d *digest) Sum32() uint32  { return d.s2<<16 | d.s1 }

func (d *digest) Write(p []byte) (int, error) {
	d.s1, d.s2 = update(d.s1, d.s2, p)
	return len(p), nil
}

func (d *digest) Sum(in []byte) []byte {
	s := d.Sum32()
	return append(in, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}

func update(s1, s2 uint32, p []byte) (uint32, uint32) {
	for len(p) > 0 {
		var q []byte
		if len(p) > nmax {
			p, q = p[:nmax], p[nmax:]
		}
		for _, c := range p {
			s1 += uint32(c)
			s2 += s1
		}
		s1 %= Modulus
		s2 %= Modulus
		p = q
	}
	return s1, s2
}

// Checksum returns the checksum of data.
func Checksum(data []byte) uint32 {
	s1, s2 := update(1, 0, data)
	return s2<<16 | s1
}

// Update continues a checksum previously returned by Checksum or Update with p.
func Update(sum uint32, p []byte) uint32 {
	s1, s2 := update(sum&0xFFFF, sum>>16, p)
	return s2<<16 | s1
}
