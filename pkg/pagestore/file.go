package pagestore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"bloomd/pkg/bloom"
)

const (
	dataPrefix = "data."
	dataSuffix = ".bin"
)

// FileStore keeps one file per generation inside the filter folder:
// a HeaderSize header followed by the bitmap as little-endian words.
type FileStore struct {
	fs  FS
	dir string

	files     []File
	destroyed bool
}

// NewFileStore returns a store rooted at dir. Nothing is created until the
// first SaveMeta or Flush.
func NewFileStore(fsys FS, dir string) *FileStore {
	if fsys == nil {
		fsys = Default
	}
	return &FileStore{fs: fsys, dir: dir}
}

func (s *FileStore) genPath(idx int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%03d%s", dataPrefix, idx, dataSuffix))
}

func (s *FileStore) Load() ([]*bloom.Generation, error) {
	if s.destroyed {
		return nil, ErrDestroyed
	}
	if err := s.Close(); err != nil {
		return nil, err
	}

	indexes, err := s.generationIndexes()
	if err != nil {
		return nil, err
	}

	gens := make([]*bloom.Generation, 0, len(indexes))
	for i, idx := range indexes {
		if idx != i {
			return nil, fmt.Errorf("%w: %s", ErrGap, s.genPath(i))
		}

		g, f, err := s.loadGeneration(i)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		gens = append(gens, g)
		s.files = append(s.files, f)
	}

	return gens, nil
}

func (s *FileStore) loadGeneration(idx int) (*bloom.Generation, File, error) {
	path := s.genPath(idx)
	f, err := s.fs.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open generation: %w", err)
	}

	header := make([]byte, HeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("read header %s: %w", path, err)
	}
	meta, err := decodeHeader(header)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	raw := make([]byte, bloom.WordsFor(meta.Bits)*8)
	if _, err := f.ReadAt(raw, HeaderSize); err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("read bitmap %s: %w", path, err)
	}

	g, err := bloom.RestoreGeneration(meta, decodeWords(raw))
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, f, nil
}

func (s *FileStore) generationIndexes() ([]int, error) {
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read filter dir: %w", err)
	}

	var indexes []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, dataPrefix) || !strings.HasSuffix(name, dataSuffix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, dataPrefix), dataSuffix))
		if err != nil {
			continue
		}
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	return indexes, nil
}

func (s *FileStore) Write(snaps []bloom.Snapshot) error {
	if s.destroyed {
		return ErrDestroyed
	}
	if len(snaps) == 0 {
		return nil
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("make filter dir: %w", err)
	}

	for _, snap := range snaps {
		if err := s.writeSnapshot(snap); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) writeSnapshot(snap bloom.Snapshot) error {
	f, err := s.file(snap.Index, snap.Meta)
	if err != nil {
		return err
	}

	for _, p := range snap.Pages {
		off := int64(HeaderSize) + int64(p.Index)*bloom.PageSize
		if _, err := f.WriteAt(encodeWords(p.Words), off); err != nil {
			return fmt.Errorf("write page %d of generation %d: %w", p.Index, snap.Index, err)
		}
	}

	if _, err := f.WriteAt(encodeHeader(snap.Meta), 0); err != nil {
		return fmt.Errorf("write header of generation %d: %w", snap.Index, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync generation %d: %w", snap.Index, err)
	}
	return nil
}

// file returns the handle of generation idx, creating the file for
// generations that were never written. A new file is sized and gets a
// header with a zero count before any page lands, so it always loads.
func (s *FileStore) file(idx int, m bloom.Meta) (File, error) {
	if idx < len(s.files) {
		return s.files[idx], nil
	}
	if idx != len(s.files) {
		return nil, fmt.Errorf("%w: generation %d before %d", ErrGap, idx, len(s.files))
	}

	path := s.genPath(idx)
	f, err := s.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create generation: %w", err)
	}

	empty := m
	empty.Count = 0
	size := int64(HeaderSize) + int64(bloom.WordsFor(m.Bits))*8
	if err := f.Truncate(size); err != nil {
		s.discard(f, path)
		return nil, fmt.Errorf("size generation %s: %w", path, err)
	}
	if _, err := f.WriteAt(encodeHeader(empty), 0); err != nil {
		s.discard(f, path)
		return nil, fmt.Errorf("write header %s: %w", path, err)
	}

	s.files = append(s.files, f)
	return f, nil
}

// discard drops a generation file that never got a valid header.
func (s *FileStore) discard(f File, path string) {
	_ = f.Close()
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to remove partial generation", "path", path, "error", err)
	}
}

func (s *FileStore) Close() error {
	var errs []error
	for _, f := range s.files {
		errs = append(errs, f.Close())
	}
	s.files = nil
	return errors.Join(errs...)
}

func (s *FileStore) Truncate() error {
	if err := s.Close(); err != nil {
		return fmt.Errorf("close generations: %w", err)
	}

	indexes, err := s.generationIndexes()
	if err != nil {
		return err
	}
	for _, idx := range indexes {
		if err := s.fs.Remove(s.genPath(idx)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove generation %d: %w", idx, err)
		}
	}
	return nil
}

func (s *FileStore) Destroy() error {
	if err := s.Close(); err != nil {
		return fmt.Errorf("close generations: %w", err)
	}
	if err := s.fs.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove filter dir: %w", err)
	}
	s.destroyed = true
	return nil
}

func (s *FileStore) SaveMeta(m Meta) error {
	if s.destroyed {
		return ErrDestroyed
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("make filter dir: %w", err)
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal filter meta: %w", err)
	}
	if err := s.fs.WriteFile(filepath.Join(s.dir, metaFile), data, 0o644); err != nil {
		return fmt.Errorf("write filter meta: %w", err)
	}
	return nil
}

func (s *FileStore) LoadMeta() (Meta, error) {
	var m Meta
	data, err := s.fs.ReadFile(filepath.Join(s.dir, metaFile))
	if err != nil {
		return m, fmt.Errorf("read filter meta: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("unmarshal filter meta: %w", err)
	}
	return m, nil
}
