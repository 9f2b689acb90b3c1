package filter

import "sync/atomic"

type counters struct {
	checkHits   atomic.Uint64
	checkMisses atomic.Uint64
	setHits     atomic.Uint64
	setMisses   atomic.Uint64
	pageIns     atomic.Uint64
	pageOuts    atomic.Uint64
}

func (c *counters) recordChecks(res []bool) {
	for _, ok := range res {
		if ok {
			c.checkHits.Add(1)
		} else {
			c.checkMisses.Add(1)
		}
	}
}

func (c *counters) recordSets(res []bool) {
	for _, ok := range res {
		if ok {
			c.setHits.Add(1)
		} else {
			c.setMisses.Add(1)
		}
	}
}

// Stats is a point-in-time view of a filter.
type Stats struct {
	Name        string
	State       State
	InMemory    bool
	Probability float64
	Capacity    uint64
	Size        uint64
	Bytes       uint64
	Generations int

	// FillRatio and FalsePositiveRate describe the loaded generations and
	// are zero while the filter is closed.
	FillRatio         float64
	FalsePositiveRate float64

	CheckHits   uint64
	CheckMisses uint64
	SetHits     uint64
	SetMisses   uint64
	PageIns     uint64
	PageOuts    uint64
}

func (s Stats) Checks() uint64 { return s.CheckHits + s.CheckMisses }
func (s Stats) Sets() uint64   { return s.SetHits + s.SetMisses }

func (f *Filter) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := Stats{
		Name:        f.name,
		State:       f.state,
		InMemory:    f.cfg.InMemory,
		Probability: f.cfg.Params.Probability,
		CheckHits:   f.counters.checkHits.Load(),
		CheckMisses: f.counters.checkMisses.Load(),
		SetHits:     f.counters.setHits.Load(),
		SetMisses:   f.counters.setMisses.Load(),
		PageIns:     f.counters.pageIns.Load(),
		PageOuts:    f.counters.pageOuts.Load(),
	}
	m := f.metaLocked()
	s.Capacity = m.Capacity
	s.Size = m.Size
	s.Bytes = m.Bytes
	if f.set != nil {
		s.Generations = len(f.set.Generations())
		s.FillRatio = f.set.FillRatio()
		s.FalsePositiveRate = f.set.FalsePositiveRate()
	}
	return s
}
