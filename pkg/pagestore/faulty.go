package pagestore

import (
	"errors"
	"os"
	"strings"
	"sync"
)

var ErrInjected = errors.New("pagestore: injected fault")

// Fault describes how operations on matching paths fail.
type Fault struct {
	FailWrite  bool
	FailSync   bool
	FailRemove bool
	// FromOffset limits FailWrite to writes starting at or past it.
	FromOffset int64
	Err        error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// FaultyFS wraps an FS and fails operations on paths matching a rule.
// Rules are checked on every call, so faults can be switched on and off
// while files are open.
type FaultyFS struct {
	FS FS

	mu    sync.Mutex
	rules map[string]Fault
}

func NewFaultyFS(fsys FS) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{FS: fsys, rules: make(map[string]Fault)}
}

// AddRule makes operations on paths containing pattern fail.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.rules)
}

func (f *FaultyFS) match(name string) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) {
			return rule, true
		}
	}
	return Fault{}, false
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f, name: name}, nil
}

func (f *FaultyFS) Remove(name string) error {
	if rule, ok := f.match(name); ok && rule.FailRemove {
		return rule.err()
	}
	return f.FS.Remove(name)
}

func (f *FaultyFS) RemoveAll(path string) error {
	if rule, ok := f.match(path); ok && rule.FailRemove {
		return rule.err()
	}
	return f.FS.RemoveAll(path)
}

func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }

func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error) { return f.FS.ReadDir(name) }
func (f *FaultyFS) ReadFile(name string) ([]byte, error)       { return f.FS.ReadFile(name) }

func (f *FaultyFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	if rule, ok := f.match(name); ok && rule.FailWrite {
		return rule.err()
	}
	return f.FS.WriteFile(name, data, perm)
}

type faultyFile struct {
	File
	fs   *FaultyFS
	name string
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if rule, ok := ff.fs.match(ff.name); ok && rule.FailWrite && off >= rule.FromOffset {
		return 0, rule.err()
	}
	return ff.File.WriteAt(p, off)
}

func (ff *faultyFile) Sync() error {
	if rule, ok := ff.fs.match(ff.name); ok && rule.FailSync {
		return rule.err()
	}
	return ff.File.Sync()
}
