// Package bloom implements the scalable Bloom filter used by every named
// filter on the server.
//
// A Scalable filter is an append-only list of Generations. Each generation
// is a partitioned Bloom filter: the bitmap is split into k equal slices and
// slot i only ever touches slice i. Slot positions come from double
// hashing, h1 + i*h2, where both halves are taken from one 128-bit xxh3
// hash of the key.
//
// When the newest generation reaches its capacity a new one is appended.
// Generation i is sized for initial*scale^i keys at probability P0*r^i
// with P0 = (1-r)*P, so the union never exceeds the target P.
//
// Nothing in this package is safe for concurrent use. Callers serialize
// writers and readers with their own lock.
package bloom
