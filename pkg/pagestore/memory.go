package pagestore

import (
	"errors"

	"bloomd/pkg/bloom"
)

var ErrNoMeta = errors.New("pagestore: no stored metadata")

// MemoryStore backs in-memory filters. Every operation succeeds without
// touching the disk.
type MemoryStore struct{}

func (MemoryStore) Load() ([]*bloom.Generation, error) { return nil, nil }
func (MemoryStore) Close() error                       { return nil }
func (MemoryStore) Truncate() error                    { return nil }
func (MemoryStore) Destroy() error                     { return nil }
func (MemoryStore) SaveMeta(Meta) error                { return nil }
func (MemoryStore) LoadMeta() (Meta, error)            { return Meta{}, ErrNoMeta }

func (MemoryStore) Write([]bloom.Snapshot) error { return nil }
