package bloom

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

const (
	// PageSize is the granularity of dirty tracking, in bytes.
	PageSize = 4096

	pageBits  = PageSize * 8
	pageWords = PageSize / 8
)

// Meta is everything about a generation except its bitmap.
type Meta struct {
	K           uint32
	Bits        uint64
	Capacity    uint64
	Count       uint64
	Probability float64
}

// Generation is one partitioned Bloom filter of a Scalable filter.
type Generation struct {
	bits     *bitset.BitSet
	k        uint32
	partBits uint64
	capacity uint64
	prob     float64
	count    uint64

	// dirty has one bit per PageSize bytes of the bitmap.
	dirty       *bitset.BitSet
	storedCount uint64
}

// NewGeneration allocates an empty generation sized for capacity keys.
func NewGeneration(capacity uint64, prob float64) *Generation {
	nbits, k := OptimalParams(capacity, prob)
	return &Generation{
		bits:     bitset.New(uint(nbits)),
		k:        k,
		partBits: nbits / uint64(k),
		capacity: capacity,
		prob:     prob,
		dirty:    bitset.New(uint(pagesFor(nbits))),
	}
}

// RestoreGeneration rebuilds a generation from its stored meta and bitmap
// words. The result has no dirty pages.
func RestoreGeneration(m Meta, words []uint64) (*Generation, error) {
	if m.K == 0 || m.Bits == 0 || m.Bits%uint64(m.K) != 0 {
		return nil, fmt.Errorf("%w: k=%d bits=%d", ErrCorruptData, m.K, m.Bits)
	}
	if uint64(len(words)) != WordsFor(m.Bits) {
		return nil, fmt.Errorf("%w: have %d words, want %d", ErrCorruptData, len(words), WordsFor(m.Bits))
	}

	return &Generation{
		bits:        bitset.FromWithLength(uint(m.Bits), words),
		k:           m.K,
		partBits:    m.Bits / uint64(m.K),
		capacity:    m.Capacity,
		prob:        m.Probability,
		count:       m.Count,
		dirty:       bitset.New(uint(pagesFor(m.Bits))),
		storedCount: m.Count,
	}, nil
}

// Add sets the slot bits of h. It does not check for prior membership.
func (g *Generation) Add(h Hash) {
	for i := uint32(0); i < g.k; i++ {
		pos := uint64(i)*g.partBits + h.slot(i, g.partBits)
		g.bits.Set(uint(pos))
		g.dirty.Set(uint(pos / pageBits))
	}
	g.count++
}

func (g *Generation) Contains(h Hash) bool {
	for i := uint32(0); i < g.k; i++ {
		pos := uint64(i)*g.partBits + h.slot(i, g.partBits)
		if !g.bits.Test(uint(pos)) {
			return false
		}
	}
	return true
}

// Full reports whether the generation reached its designed capacity.
func (g *Generation) Full() bool {
	return g.count >= g.capacity
}

func (g *Generation) Count() uint64 {
	return g.count
}

func (g *Generation) Capacity() uint64 {
	return g.capacity
}

func (g *Generation) K() uint32 {
	return g.k
}

func (g *Generation) Meta() Meta {
	return Meta{
		K:           g.k,
		Bits:        uint64(g.bits.Len()),
		Capacity:    g.capacity,
		Count:       g.count,
		Probability: g.prob,
	}
}

// Words exposes the bitmap. Callers must not modify it.
func (g *Generation) Words() []uint64 {
	return g.bits.Words()
}

// ByteSize is the in-memory size of the bitmap.
func (g *Generation) ByteSize() uint64 {
	return WordsFor(uint64(g.bits.Len())) * 8
}

// FillRatio is the share of set bits.
func (g *Generation) FillRatio() float64 {
	return float64(g.bits.Count()) / float64(g.bits.Len())
}

// Dirty reports whether the bitmap or the count changed since the last
// committed snapshot.
func (g *Generation) Dirty() bool {
	return g.dirty.Any() || g.count != g.storedCount
}

// Page is a copy of PageSize bytes of a bitmap.
type Page struct {
	Index uint
	Words []uint64
}

// Snapshot is a point-in-time copy of the unpersisted part of a generation.
type Snapshot struct {
	Index int
	Meta  Meta
	Pages []Page
}

// Snapshot copies the dirty pages and clears their dirty bits. The caller
// must Commit the snapshot once it is durable, or Redirty it on failure.
func (g *Generation) Snapshot(idx int) Snapshot {
	snap := Snapshot{Index: idx, Meta: g.Meta()}
	words := g.bits.Words()
	for p, ok := g.dirty.NextSet(0); ok; p, ok = g.dirty.NextSet(p + 1) {
		lo := int(p) * pageWords
		hi := min(lo+pageWords, len(words))
		snap.Pages = append(snap.Pages, Page{
			Index: p,
			Words: append([]uint64(nil), words[lo:hi]...),
		})
	}
	g.dirty.ClearAll()
	return snap
}

// Commit records that snap reached durable storage.
func (g *Generation) Commit(snap Snapshot) {
	g.storedCount = snap.Meta.Count
}

// Redirty marks the pages of a failed snapshot dirty again.
func (g *Generation) Redirty(snap Snapshot) {
	for _, p := range snap.Pages {
		g.dirty.Set(p.Index)
	}
}

// MarkAllDirty forces the next snapshot to cover the whole bitmap.
func (g *Generation) MarkAllDirty() {
	for i := uint(0); i < g.dirty.Len(); i++ {
		g.dirty.Set(i)
	}
	g.storedCount = ^uint64(0)
}

// WordsFor is the number of uint64 words holding nbits bits.
func WordsFor(nbits uint64) uint64 {
	return (nbits + 63) / 64
}

func pagesFor(nbits uint64) uint64 {
	return (WordsFor(nbits) + pageWords - 1) / pageWords
}
