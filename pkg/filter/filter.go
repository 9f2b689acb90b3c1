package filter

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"bloomd/pkg/bloom"
	"bloomd/pkg/pagestore"
)

// Config is fixed when a filter is created.
type Config struct {
	Params   bloom.Params
	InMemory bool
}

// Filter is one named scalable filter together with its storage binding.
//
// Lock order is flushMu before mu. mu guards state and set; flushMu
// serializes everything that touches the store, so snapshots reach the
// disk in the order they were taken.
type Filter struct {
	name  string
	cfg   Config
	store pagestore.Store

	flushMu sync.Mutex
	mu      sync.RWMutex
	state   State
	set     *bloom.Scalable

	// sizes reported while the filter is closed
	closedSize     uint64
	closedCapacity uint64
	closedBytes    uint64

	stateView atomic.Int32
	hot       atomic.Bool
	counters  counters
}

// New creates an active filter with one empty generation and stores its
// metadata.
func New(name string, cfg Config, store pagestore.Store) (*Filter, error) {
	if !ValidName(name) {
		return nil, ErrBadName
	}
	set, err := bloom.New(cfg.Params)
	if err != nil {
		return nil, err
	}

	f := &Filter{
		name:  name,
		cfg:   cfg,
		store: store,
		set:   set,
	}
	f.setState(Active)
	f.hot.Store(true)

	if err := store.SaveMeta(f.metaLocked()); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrStorage, name, err)
	}
	return f, nil
}

// Open binds a filter found on disk. It stays closed until first use.
func Open(name string, store pagestore.Store) (*Filter, error) {
	if !ValidName(name) {
		return nil, ErrBadName
	}
	meta, err := store.LoadMeta()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrStorage, name, err)
	}
	cfg := Config{Params: meta.Params(), InMemory: false}
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	f := &Filter{
		name:           name,
		cfg:            cfg,
		store:          store,
		closedSize:     meta.Size,
		closedCapacity: meta.Capacity,
		closedBytes:    meta.Bytes,
	}
	f.setState(Closed)
	return f, nil
}

func (f *Filter) Name() string {
	return f.name
}

func (f *Filter) Config() Config {
	return f.cfg
}

// State can be read without the filter lock.
func (f *Filter) State() State {
	return State(f.stateView.Load())
}

func (f *Filter) setState(s State) {
	f.state = s
	f.stateView.Store(int32(s))
}

// Set adds keys in order and reports which of them were new.
func (f *Filter) Set(keys ...string) ([]bool, error) {
	if err := f.lockActive(); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	res := f.set.AddAll(keys)
	f.hot.Store(true)
	f.counters.recordSets(res)
	return res, nil
}

// Check tests keys in order.
func (f *Filter) Check(keys ...string) ([]bool, error) {
	if err := f.rlockActive(); err != nil {
		return nil, err
	}
	defer f.mu.RUnlock()

	res := f.set.ContainsAll(keys)
	f.hot.Store(true)
	f.counters.recordChecks(res)
	return res, nil
}

// lockActive takes the write lock, reloading a closed filter first.
func (f *Filter) lockActive() error {
	f.mu.Lock()
	if err := f.activate(); err != nil {
		f.mu.Unlock()
		return err
	}
	return nil
}

// rlockActive takes the read lock on an active filter. A closed filter is
// reloaded under the write lock and the state is checked again.
func (f *Filter) rlockActive() error {
	for {
		f.mu.RLock()
		switch f.state {
		case Active:
			return nil
		case Deleting:
			f.mu.RUnlock()
			return ErrDeleted
		}
		f.mu.RUnlock()

		if err := f.lockActive(); err != nil {
			return err
		}
		f.mu.Unlock()
	}
}

// activate moves a closed filter back to Active. mu must be held for writing.
func (f *Filter) activate() error {
	switch f.state {
	case Active:
		return nil
	case Deleting:
		return ErrDeleted
	}

	gens, err := f.store.Load()
	if err != nil {
		return fmt.Errorf("%w: load %s: %w", ErrStorage, f.name, err)
	}
	set, err := bloom.Restore(f.cfg.Params, gens)
	if err != nil {
		if cerr := f.store.Close(); cerr != nil {
			slog.Warn("failed to close filter files", "filter", f.name, "error", cerr)
		}
		return fmt.Errorf("%w: restore %s: %w", ErrStorage, f.name, err)
	}

	f.set = set
	f.setState(Active)
	f.counters.pageIns.Add(1)
	slog.Debug("filter loaded", "filter", f.name, "generations", len(gens))
	return nil
}

// Flush persists dirty pages. Writers are blocked only while the dirty
// pages are copied. On failure the pages stay dirty for the next flush.
func (f *Filter) Flush() error {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()

	f.mu.Lock()
	switch f.state {
	case Deleting:
		f.mu.Unlock()
		return ErrDeleted
	case Closed:
		f.mu.Unlock()
		return nil
	}
	snaps := f.set.Snapshot()
	meta := f.metaLocked()
	f.mu.Unlock()

	err := f.persist(snaps, meta)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.set.Redirty(snaps)
		return err
	}
	f.set.Commit(snaps)
	return nil
}

func (f *Filter) persist(snaps []bloom.Snapshot, meta pagestore.Meta) error {
	if len(snaps) == 0 {
		return nil
	}
	if err := f.store.Write(snaps); err != nil {
		return fmt.Errorf("%w: flush %s: %w", ErrStorage, f.name, err)
	}
	if err := f.store.SaveMeta(meta); err != nil {
		return fmt.Errorf("%w: flush %s: %w", ErrStorage, f.name, err)
	}
	return nil
}

// Close flushes and releases the generations of a persistent filter. The
// next access reloads them. In-memory filters cannot be reloaded and stay
// active.
func (f *Filter) Close() error {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case Deleting:
		return ErrDeleted
	case Closed:
		return nil
	}
	if f.cfg.InMemory {
		return nil
	}

	snaps := f.set.Snapshot()
	if err := f.persist(snaps, f.metaLocked()); err != nil {
		f.set.Redirty(snaps)
		return err
	}
	f.set.Commit(snaps)

	f.closedSize = f.set.Size()
	f.closedCapacity = f.set.Capacity()
	f.closedBytes = f.set.ByteSize()
	f.set = nil
	if err := f.store.Close(); err != nil {
		slog.Warn("failed to close filter files", "filter", f.name, "error", err)
	}
	f.setState(Closed)
	f.counters.pageOuts.Add(1)
	return nil
}

// Clear drops every key of a closed filter. The filter stays listed and
// reloads as one empty generation.
func (f *Filter) Clear() error {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case Deleting:
		return ErrDeleted
	case Active:
		return ErrNotClosed
	}

	if err := f.store.Truncate(); err != nil {
		return fmt.Errorf("%w: clear %s: %w", ErrStorage, f.name, err)
	}
	f.closedSize = 0
	f.closedCapacity = 0
	f.closedBytes = 0
	if err := f.store.SaveMeta(f.metaLocked()); err != nil {
		return fmt.Errorf("%w: clear %s: %w", ErrStorage, f.name, err)
	}
	return nil
}

// MarkDeleting moves the filter to Deleting. It returns false if it was
// already there. Operations that acquire the filter lock afterwards fail
// with ErrDeleted.
func (f *Filter) MarkDeleting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Deleting {
		return false
	}
	f.setState(Deleting)
	return true
}

// Destroy discards the generations and removes the stored data. It waits
// for a running flush to finish.
func (f *Filter) Destroy() error {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Deleting {
		return ErrAlive
	}
	f.set = nil
	if err := f.store.Destroy(); err != nil {
		return fmt.Errorf("%w: destroy %s: %w", ErrStorage, f.name, err)
	}
	return nil
}

// Cold reports whether the filter went untouched since the previous call.
func (f *Filter) Cold() bool {
	return !f.hot.Swap(false)
}

// Dirty reports whether an active filter has unpersisted changes.
func (f *Filter) Dirty() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.set != nil && f.set.Dirty()
}

// metaLocked builds the stored metadata. mu must be held.
func (f *Filter) metaLocked() pagestore.Meta {
	m := pagestore.MetaFromParams(f.cfg.Params, f.cfg.InMemory)
	if f.set != nil {
		m.Size = f.set.Size()
		m.Capacity = f.set.Capacity()
		m.Bytes = f.set.ByteSize()
	} else {
		m.Size = f.closedSize
		m.Capacity = f.closedCapacity
		m.Bytes = f.closedBytes
	}
	return m
}
