package bloom

import "github.com/zeebo/xxh3"

// Hash is the pair of base hashes a key is reduced to. It is computed once
// per key and reused for every generation.
type Hash struct {
	h1 uint64
	h2 uint64
}

// HashKey hashes key with 128-bit xxh3. h2 is forced odd so the slot
// sequence never degenerates to a single position.
func HashKey(key string) Hash {
	h := xxh3.HashString128(key)
	return Hash{h1: h.Hi, h2: h.Lo | 1}
}

// slot returns the position of the i-th slot inside a partition of
// partBits bits.
func (h Hash) slot(i uint32, partBits uint64) uint64 {
	return (h.h1 + uint64(i)*h.h2) % partBits
}
