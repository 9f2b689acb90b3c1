package pagestore

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"bloomd/pkg/bloom"
)

const (
	// DirPrefix marks filter folders inside the data directory.
	DirPrefix = "bloomd."

	metaFile = "config.yaml"
)

var (
	ErrBadHeader = errors.New("pagestore: bad generation header")
	ErrGap       = errors.New("pagestore: missing generation file")
	ErrDestroyed = errors.New("pagestore: store destroyed")
	ErrBadPath   = errors.New("pagestore: filter folder outside data dir")
)

// Store persists the generations of one filter.
type Store interface {
	// Load reads every stored generation, oldest first.
	Load() ([]*bloom.Generation, error)
	// Write persists generation snapshots: pages first, then the header,
	// then fsync. Snapshots must be written in the order they were taken.
	Write(snaps []bloom.Snapshot) error
	// Close releases open handles. Data stays on disk.
	Close() error
	// Truncate removes every generation file and keeps the metadata.
	Truncate() error
	// Destroy removes everything the store owns.
	Destroy() error

	SaveMeta(m Meta) error
	LoadMeta() (Meta, error)
}

// Meta is the per-filter metadata written next to the generation files.
type Meta struct {
	InitialCapacity      uint64  `yaml:"initial_capacity"`
	Probability          float64 `yaml:"default_probability"`
	ScaleSize            uint64  `yaml:"scale_size"`
	ProbabilityReduction float64 `yaml:"probability_reduction"`
	InMemory             bool    `yaml:"in_memory"`
	Size                 uint64  `yaml:"size"`
	Capacity             uint64  `yaml:"capacity"`
	Bytes                uint64  `yaml:"bytes"`
}

func (m Meta) Params() bloom.Params {
	return bloom.Params{
		InitialCapacity:      m.InitialCapacity,
		Probability:          m.Probability,
		ScaleSize:            m.ScaleSize,
		ProbabilityReduction: m.ProbabilityReduction,
	}
}

// MetaFromParams copies p into a fresh Meta.
func MetaFromParams(p bloom.Params, inMemory bool) Meta {
	return Meta{
		InitialCapacity:      p.InitialCapacity,
		Probability:          p.Probability,
		ScaleSize:            p.ScaleSize,
		ProbabilityReduction: p.ProbabilityReduction,
		InMemory:             inMemory,
	}
}

// FilterDir is the folder holding filter name. It must be a direct child
// of dataDir.
func FilterDir(dataDir, name string) (string, error) {
	dir := filepath.Join(dataDir, DirPrefix+name)
	if filepath.Dir(dir) != filepath.Clean(dataDir) {
		return "", fmt.Errorf("%w: %q", ErrBadPath, name)
	}
	return dir, nil
}

// Discover returns the names of the filters stored under dataDir, sorted.
func Discover(fsys FS, dataDir string) ([]string, error) {
	entries, err := fsys.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name, ok := strings.CutPrefix(e.Name(), DirPrefix)
		if !ok || name == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
