package bloom

import "fmt"

// Scalable is a Bloom filter that grows by appending generations.
type Scalable struct {
	params Params
	gens   []*Generation
}

// New returns a filter holding one empty generation.
func New(p Params) (*Scalable, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Scalable{params: p}
	s.grow()
	return s, nil
}

// Restore wraps previously stored generations. With none it behaves like New.
func Restore(p Params, gens []*Generation) (*Scalable, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(gens) == 0 {
		return New(p)
	}
	for i, g := range gens {
		if g == nil {
			return nil, fmt.Errorf("%w: missing generation %d", ErrCorruptData, i)
		}
	}
	return &Scalable{params: p, gens: gens}, nil
}

// Add inserts key and reports whether it was absent from every generation.
func (s *Scalable) Add(key string) bool {
	return s.addHash(HashKey(key))
}

// Contains reports whether any generation may hold key.
func (s *Scalable) Contains(key string) bool {
	return s.containsHash(HashKey(key))
}

// AddAll is Add applied to keys in order.
func (s *Scalable) AddAll(keys []string) []bool {
	res := make([]bool, len(keys))
	for i, key := range keys {
		res[i] = s.addHash(HashKey(key))
	}
	return res
}

// ContainsAll is Contains applied to keys in order.
func (s *Scalable) ContainsAll(keys []string) []bool {
	res := make([]bool, len(keys))
	for i, key := range keys {
		res[i] = s.containsHash(HashKey(key))
	}
	return res
}

func (s *Scalable) addHash(h Hash) bool {
	if s.containsHash(h) {
		return false
	}
	if s.newest().Full() {
		s.grow()
	}
	s.newest().Add(h)
	return true
}

func (s *Scalable) containsHash(h Hash) bool {
	// newest first, it holds the most keys
	for i := len(s.gens) - 1; i >= 0; i-- {
		if s.gens[i].Contains(h) {
			return true
		}
	}
	return false
}

func (s *Scalable) newest() *Generation {
	return s.gens[len(s.gens)-1]
}

func (s *Scalable) grow() {
	capacity, prob := s.params.generation(len(s.gens))
	s.gens = append(s.gens, NewGeneration(capacity, prob))
}

// Reset drops every generation and starts over with one empty one.
func (s *Scalable) Reset() {
	s.gens = nil
	s.grow()
}

func (s *Scalable) Params() Params {
	return s.params
}

// Generations returns the generations oldest first. The slice is shared.
func (s *Scalable) Generations() []*Generation {
	return s.gens
}

// Size is the number of keys added.
func (s *Scalable) Size() uint64 {
	var n uint64
	for _, g := range s.gens {
		n += g.Count()
	}
	return n
}

// Capacity is the number of keys the current generations were sized for.
func (s *Scalable) Capacity() uint64 {
	var n uint64
	for _, g := range s.gens {
		n += g.Capacity()
	}
	return n
}

// FalsePositiveRate estimates the current false positive probability from
// the load of every generation.
func (s *Scalable) FalsePositiveRate() float64 {
	var rate float64
	for _, g := range s.gens {
		p := EstimateFalsePositiveRate(uint64(g.bits.Len()), g.K(), g.Count())
		rate += p - rate*p
	}
	return rate
}

// FillRatio is the share of set bits in the newest generation.
func (s *Scalable) FillRatio() float64 {
	return s.newest().FillRatio()
}

// ByteSize is the memory held by all bitmaps.
func (s *Scalable) ByteSize() uint64 {
	var n uint64
	for _, g := range s.gens {
		n += g.ByteSize()
	}
	return n
}

// Snapshot captures every generation with unpersisted changes.
func (s *Scalable) Snapshot() []Snapshot {
	var snaps []Snapshot
	for i, g := range s.gens {
		if g.Dirty() {
			snaps = append(snaps, g.Snapshot(i))
		}
	}
	return snaps
}

// Commit marks snaps as durable.
func (s *Scalable) Commit(snaps []Snapshot) {
	for _, snap := range snaps {
		if snap.Index < len(s.gens) {
			s.gens[snap.Index].Commit(snap)
		}
	}
}

// Redirty restores the dirty state of snaps after a failed write.
func (s *Scalable) Redirty(snaps []Snapshot) {
	for _, snap := range snaps {
		if snap.Index < len(s.gens) {
			s.gens[snap.Index].Redirty(snap)
		}
	}
}

// Dirty reports whether any generation has unpersisted changes.
func (s *Scalable) Dirty() bool {
	for _, g := range s.gens {
		if g.Dirty() {
			return true
		}
	}
	return false
}
