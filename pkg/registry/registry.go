package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/zhangyunhao116/skipmap"
	"golang.org/x/sync/errgroup"

	"bloomd/pkg/filter"
	"bloomd/pkg/pagestore"
)

type Options struct {
	DataDir string
	// FS defaults to the local file system.
	FS pagestore.FS
	// Defaults apply to filters created without explicit parameters.
	Defaults filter.Config
	// QueueSize bounds the number of dropped filters waiting for vacuum.
	QueueSize int
	// FlushConcurrency bounds FlushAll.
	FlushConcurrency int
}

// Registry maps names to filters. Create and drop are serialized by a
// structural lock; every other operation goes straight to the filter.
type Registry struct {
	opts Options

	mu      sync.Mutex
	filters *skipmap.OrderedMap[string, *filter.Filter]

	deleted  chan *filter.Filter
	dropping sync.WaitGroup
	closing  chan struct{}
	shutdown sync.Once
}

func New(opts Options) *Registry {
	if opts.FS == nil {
		opts.FS = pagestore.Default
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.FlushConcurrency < 1 {
		opts.FlushConcurrency = 1
	}
	return &Registry{
		opts:    opts,
		filters: skipmap.New[string, *filter.Filter](),
		deleted: make(chan *filter.Filter, opts.QueueSize),
		closing: make(chan struct{}),
	}
}

// Defaults returns the config used for filters created without options.
func (r *Registry) Defaults() filter.Config {
	return r.opts.Defaults
}

// Deleted feeds dropped filters to the vacuum worker.
func (r *Registry) Deleted() <-chan *filter.Filter {
	return r.deleted
}

// Load registers every filter found in the data directory as closed.
// Folders that cannot be opened are logged and skipped.
func (r *Registry) Load() error {
	names, err := pagestore.Discover(r.opts.FS, r.opts.DataDir)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		store, err := r.newStore(name, filter.Config{})
		if err != nil {
			slog.Error("skipping filter folder", "filter", name, "error", err)
			continue
		}
		f, err := filter.Open(name, store)
		if err != nil {
			slog.Error("failed to discover filter", "filter", name, "error", err)
			continue
		}
		r.filters.Store(name, f)
	}
	slog.Info("filters discovered", "count", r.filters.Len())
	return nil
}

func (r *Registry) newStore(name string, cfg filter.Config) (pagestore.Store, error) {
	if cfg.InMemory {
		return pagestore.MemoryStore{}, nil
	}
	dir, err := pagestore.FilterDir(r.opts.DataDir, name)
	if err != nil {
		return nil, err
	}
	return pagestore.NewFileStore(r.opts.FS, dir), nil
}

func (r *Registry) Create(name string, cfg filter.Config) error {
	if !filter.ValidName(name) {
		return filter.ErrBadName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isClosing() {
		return ErrShutdown
	}

	if f, ok := r.filters.Load(name); ok {
		if f.State() == filter.Deleting {
			return ErrDeleteInProgress
		}
		return ErrExists
	}

	store, err := r.newStore(name, cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", filter.ErrBadName, err)
	}
	f, err := filter.New(name, cfg, store)
	if err != nil {
		return err
	}
	r.filters.Store(name, f)

	slog.Info("filter created", "filter", name, "in_memory", cfg.InMemory,
		"capacity", cfg.Params.InitialCapacity, "probability", cfg.Params.Probability)
	return nil
}

// Drop marks the filter deleted and hands it to the vacuum worker. The name
// stays taken until the vacuum calls Remove. Once Shutdown has begun the
// storage is destroyed before Drop returns.
func (r *Registry) Drop(name string) error {
	r.mu.Lock()
	f, ok := r.filters.Load(name)
	if !ok || !f.MarkDeleting() {
		r.mu.Unlock()
		return ErrNotFound
	}
	closing := r.isClosing()
	if !closing {
		r.dropping.Add(1)
	}
	r.mu.Unlock()

	if closing {
		return r.reclaim(f)
	}
	defer r.dropping.Done()

	select {
	case r.deleted <- f:
	case <-r.closing:
		return r.reclaim(f)
	}
	slog.Info("filter dropped", "filter", name)
	return nil
}

// reclaim destroys the storage of a dropped filter and forgets it, for
// drops the vacuum will never see.
func (r *Registry) reclaim(f *filter.Filter) error {
	if err := f.Destroy(); err != nil {
		slog.Error("failed to reclaim dropped filter", "filter", f.Name(), "error", err)
		return fmt.Errorf("reclaim %s: %w", f.Name(), err)
	}
	r.Remove(f)
	slog.Info("filter dropped", "filter", f.Name())
	return nil
}

func (r *Registry) isClosing() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

// Remove forgets f once its storage is gone. A newer filter with the same
// name is left alone.
func (r *Registry) Remove(f *filter.Filter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.filters.Load(f.Name())
	if !ok || cur != f {
		return false
	}
	r.filters.Delete(f.Name())
	return true
}

// Get returns a live filter.
func (r *Registry) Get(name string) (*filter.Filter, error) {
	f, ok := r.filters.Load(name)
	if !ok || f.State() == filter.Deleting {
		return nil, ErrNotFound
	}
	return f, nil
}

func (r *Registry) Set(name string, keys ...string) ([]bool, error) {
	f, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	res, err := f.Set(keys...)
	return res, translate(err)
}

func (r *Registry) Check(name string, keys ...string) ([]bool, error) {
	f, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	res, err := f.Check(keys...)
	return res, translate(err)
}

func (r *Registry) Close(name string) error {
	f, err := r.Get(name)
	if err != nil {
		return err
	}
	return translate(f.Close())
}

func (r *Registry) Clear(name string) error {
	f, err := r.Get(name)
	if err != nil {
		return err
	}
	return translate(f.Clear())
}

func (r *Registry) Flush(name string) error {
	f, err := r.Get(name)
	if err != nil {
		return err
	}
	return translate(f.Flush())
}

// FlushAll flushes every active filter with bounded concurrency.
func (r *Registry) FlushAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.FlushConcurrency)

	r.filters.Range(func(name string, f *filter.Filter) bool {
		if ctx.Err() != nil {
			return false
		}
		if f.State() != filter.Active {
			return true
		}
		g.Go(func() error {
			if err := f.Flush(); err != nil && !errors.Is(err, filter.ErrDeleted) {
				return fmt.Errorf("flush %s: %w", name, err)
			}
			return nil
		})
		return true
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Registry) Info(name string) (filter.Stats, error) {
	f, err := r.Get(name)
	if err != nil {
		return filter.Stats{}, err
	}
	return f.Stats(), nil
}

// List returns the live filter names starting with prefix, ascending.
func (r *Registry) List(prefix string) []string {
	var names []string
	r.filters.Range(func(name string, f *filter.Filter) bool {
		if !strings.HasPrefix(name, prefix) {
			// names are ordered, so the prefix block is contiguous
			return name < prefix
		}
		if f.State() != filter.Deleting {
			names = append(names, name)
		}
		return true
	})
	return names
}

// Filters returns every live filter, ordered by name.
func (r *Registry) Filters() []*filter.Filter {
	var out []*filter.Filter
	r.filters.Range(func(_ string, f *filter.Filter) bool {
		if f.State() != filter.Deleting {
			out = append(out, f)
		}
		return true
	})
	return out
}

// ColdFilters returns persistent active filters untouched since the
// previous call.
func (r *Registry) ColdFilters() []string {
	var names []string
	r.filters.Range(func(name string, f *filter.Filter) bool {
		if f.State() == filter.Active && !f.Config().InMemory && f.Cold() {
			names = append(names, name)
		}
		return true
	})
	return names
}

// Shutdown stops accepting new filters, reclaims drops the vacuum did not
// get to and closes every persistent filter, flushing its pages.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	r.shutdown.Do(func() { close(r.closing) })
	r.mu.Unlock()
	r.dropping.Wait()

	var errs []error
	for pending := true; pending; {
		select {
		case f := <-r.deleted:
			if err := r.reclaim(f); err != nil {
				errs = append(errs, err)
			}
		default:
			pending = false
		}
	}

	for _, f := range r.Filters() {
		if f.Config().InMemory {
			continue
		}
		if err := f.Close(); err != nil && !errors.Is(err, filter.ErrDeleted) {
			slog.Error("failed to close filter", "filter", f.Name(), "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", f.Name(), err))
		}
	}
	return errors.Join(errs...)
}
