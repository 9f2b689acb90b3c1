package bloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallParams() Params {
	return Params{
		InitialCapacity:      1000,
		Probability:          0.01,
		ScaleSize:            2,
		ProbabilityReduction: 0.9,
	}
}

func TestOptimalParams(t *testing.T) {
	bits, k := OptimalParams(100000, 1e-4)
	assert.Equal(t, uint32(13), k)
	assert.Zero(t, bits%uint64(k))
	assert.InDelta(t, 19.17, float64(bits)/100000, 0.01)

	bits, k = OptimalParams(0, 0.5)
	assert.GreaterOrEqual(t, k, uint32(1))
	assert.NotZero(t, bits)
}

func TestGenerationSizing(t *testing.T) {
	p := DefaultParams()

	capacity, prob := p.generation(0)
	assert.Equal(t, uint64(100000), capacity)
	assert.InDelta(t, 1e-5, prob, 1e-12)

	capacity, prob = p.generation(2)
	assert.Equal(t, uint64(1600000), capacity)
	assert.InDelta(t, 1e-5*0.81, prob, 1e-12)
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	bad := []Params{
		{InitialCapacity: 0, Probability: 0.01, ScaleSize: 2, ProbabilityReduction: 0.9},
		{InitialCapacity: 10, Probability: 0, ScaleSize: 2, ProbabilityReduction: 0.9},
		{InitialCapacity: 10, Probability: 1, ScaleSize: 2, ProbabilityReduction: 0.9},
		{InitialCapacity: 10, Probability: 0.01, ScaleSize: 1, ProbabilityReduction: 0.9},
		{InitialCapacity: 10, Probability: 0.01, ScaleSize: 2, ProbabilityReduction: 1},
	}
	for _, p := range bad {
		_, err := New(p)
		assert.ErrorIs(t, err, ErrBadParams, "%+v", p)
	}
}

func TestAddIsIdempotent(t *testing.T) {
	s, err := New(smallParams())
	require.NoError(t, err)

	assert.True(t, s.Add("test"))
	assert.False(t, s.Add("test"))
	assert.True(t, s.Contains("test"))
	assert.False(t, s.Contains("test1"))
	assert.Equal(t, uint64(1), s.Size())
}

func TestBatchMatchesSequential(t *testing.T) {
	a, err := New(smallParams())
	require.NoError(t, err)
	b, err := New(smallParams())
	require.NoError(t, err)

	keys := []string{"k1", "k2", "k1", "k3", "k2"}

	var want []bool
	for _, k := range keys {
		want = append(want, a.Add(k))
	}
	assert.Equal(t, want, b.AddAll(keys))
	assert.Equal(t, []bool{true, true, true, true, true}, b.ContainsAll(keys))
	assert.Equal(t, []bool{true, true, false, true, false}, want)
}

func TestGrowthKeepsMembers(t *testing.T) {
	s, err := New(smallParams())
	require.NoError(t, err)

	var added []string
	for i := 0; i < 5000; i++ {
		key := fmt.Sprintf("key-%d", i)
		if s.Add(key) {
			added = append(added, key)
		}
	}

	require.GreaterOrEqual(t, len(s.Generations()), 3)
	assert.Equal(t, uint64(len(added)), s.Size())
	for _, key := range added {
		require.True(t, s.Contains(key), key)
	}

	gens := s.Generations()
	for i := 1; i < len(gens); i++ {
		assert.Equal(t, gens[i-1].Capacity()*2, gens[i].Capacity())
	}
	assert.Equal(t, sumCapacity(gens), s.Capacity())
}

func sumCapacity(gens []*Generation) uint64 {
	var n uint64
	for _, g := range gens {
		n += g.Capacity()
	}
	return n
}

func TestFalsePositiveRateBounded(t *testing.T) {
	s, err := New(smallParams())
	require.NoError(t, err)

	for i := 0; i < 10000; i++ {
		s.Add(fmt.Sprintf("member-%d", i))
	}

	fp := 0
	const lookups = 10000
	for i := 0; i < lookups; i++ {
		if s.Contains(fmt.Sprintf("stranger-%d", i)) {
			fp++
		}
	}
	assert.Less(t, float64(fp)/lookups, 0.02)
}

func TestLoadEstimates(t *testing.T) {
	s, err := New(smallParams())
	require.NoError(t, err)
	assert.Zero(t, s.FalsePositiveRate())
	assert.Zero(t, s.FillRatio())

	for i := 0; i < 1000; i++ {
		s.Add(fmt.Sprintf("member-%d", i))
	}
	require.Len(t, s.Generations(), 1)

	assert.InDelta(t, 0.5, s.FillRatio(), 0.05)
	fp := s.FalsePositiveRate()
	assert.Greater(t, fp, 0.0)
	assert.LessOrEqual(t, fp, smallParams().Probability)
}

func TestReset(t *testing.T) {
	s, err := New(smallParams())
	require.NoError(t, err)

	for i := 0; i < 3000; i++ {
		s.Add(fmt.Sprintf("key-%d", i))
	}
	require.Greater(t, len(s.Generations()), 1)

	s.Reset()
	assert.Len(t, s.Generations(), 1)
	assert.Zero(t, s.Size())
	assert.False(t, s.Contains("key-1"))
}

func TestSnapshotLifecycle(t *testing.T) {
	g := NewGeneration(1000, 0.01)
	assert.False(t, g.Dirty())
	assert.Empty(t, g.Snapshot(0).Pages)

	g.Add(HashKey("a"))
	require.True(t, g.Dirty())

	snap := g.Snapshot(3)
	assert.Equal(t, 3, snap.Index)
	assert.Equal(t, uint64(1), snap.Meta.Count)
	require.NotEmpty(t, snap.Pages)
	assert.True(t, g.Dirty(), "count is not committed yet")

	g.Redirty(snap)
	again := g.Snapshot(3)
	assert.Equal(t, snap.Pages, again.Pages)

	g.Commit(again)
	assert.False(t, g.Dirty())

	g.MarkAllDirty()
	assert.True(t, g.Dirty())
	assert.Len(t, g.Snapshot(0).Pages, int(pagesFor(g.Meta().Bits)))
}

func TestSnapshotIsACopy(t *testing.T) {
	g := NewGeneration(1000, 0.01)
	g.Add(HashKey("a"))
	snap := g.Snapshot(0)

	before := append([]uint64(nil), snap.Pages[0].Words...)
	for i := 0; i < 50; i++ {
		g.Add(HashKey(fmt.Sprintf("more-%d", i)))
	}
	assert.Equal(t, before, snap.Pages[0].Words)
}

func TestScalableSnapshotSkipsCleanGenerations(t *testing.T) {
	s, err := New(smallParams())
	require.NoError(t, err)
	for i := 0; i < 1500; i++ {
		s.Add(fmt.Sprintf("key-%d", i))
	}
	require.Len(t, s.Generations(), 2)

	snaps := s.Snapshot()
	require.Len(t, snaps, 2)
	s.Commit(snaps)
	assert.False(t, s.Dirty())

	s.Add("fresh")
	snaps = s.Snapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, 1, snaps[0].Index)

	s.Redirty(snaps)
	assert.True(t, s.Dirty())
}

func TestRestoreGeneration(t *testing.T) {
	g := NewGeneration(1000, 0.01)
	for i := 0; i < 100; i++ {
		g.Add(HashKey(fmt.Sprintf("key-%d", i)))
	}

	words := append([]uint64(nil), g.Words()...)
	r, err := RestoreGeneration(g.Meta(), words)
	require.NoError(t, err)

	assert.Equal(t, g.Meta(), r.Meta())
	assert.False(t, r.Dirty())
	for i := 0; i < 100; i++ {
		assert.True(t, r.Contains(HashKey(fmt.Sprintf("key-%d", i))))
	}

	_, err = RestoreGeneration(g.Meta(), words[:len(words)-1])
	assert.ErrorIs(t, err, ErrCorruptData)

	m := g.Meta()
	m.K = 0
	_, err = RestoreGeneration(m, words)
	assert.ErrorIs(t, err, ErrCorruptData)
}

func TestRestoreScalable(t *testing.T) {
	s, err := New(smallParams())
	require.NoError(t, err)
	for i := 0; i < 2500; i++ {
		s.Add(fmt.Sprintf("key-%d", i))
	}

	var gens []*Generation
	for _, g := range s.Generations() {
		r, err := RestoreGeneration(g.Meta(), append([]uint64(nil), g.Words()...))
		require.NoError(t, err)
		gens = append(gens, r)
	}

	r, err := Restore(smallParams(), gens)
	require.NoError(t, err)
	assert.Equal(t, s.Size(), r.Size())
	assert.False(t, r.Add("key-42"))
}
