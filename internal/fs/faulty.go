package fs

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInjected is returned by a Fault without its own Err.
var ErrInjected = errors.New("fs: injected fault")

// Fault describes how writes to a matching file fail.
type Fault struct {
	// FailAfterBytes fails the write that would cross this many bytes.
	// Negative values disable the check.
	FailAfterBytes int64
	FailOnSync     bool
	FailOnClose    bool
	FailOnRename   bool
	Err            error
}

func (f Fault) cause() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// FaultyFS wraps a FileSystem and fails operations on files whose target
// path contains a registered pattern. The longest matching pattern wins.
// Temp files are matched by the pattern they were created from.
type FaultyFS struct {
	FileSystem

	mu    sync.Mutex
	rules map[string]Fault
}

// NewFaultyFS wraps fsys, or Default when fsys is nil.
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{FileSystem: fsys, rules: make(map[string]Fault)}
}

// AddRule registers fault for paths containing pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	f.rules[pattern] = fault
	f.mu.Unlock()
}

// ClearRules removes every rule.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	clear(f.rules)
	f.mu.Unlock()
}

func (f *FaultyFS) match(path string) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	best, found := "", false
	for pattern := range f.rules {
		if strings.Contains(path, pattern) && (!found || len(pattern) > len(best)) {
			best, found = pattern, true
		}
	}
	return f.rules[best], found
}

func (f *FaultyFS) CreateTemp(dir, pattern string) (File, error) {
	file, err := f.FileSystem.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	if fault, ok := f.match(filepath.Join(dir, pattern)); ok {
		return &faultyFile{File: file, fault: fault}, nil
	}
	return file, nil
}

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	if fault, ok := f.match(newpath); ok && fault.FailOnRename {
		return fault.cause()
	}
	return f.FileSystem.Rename(oldpath, newpath)
}

type faultyFile struct {
	File
	fault   Fault
	written int64
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if limit := ff.fault.FailAfterBytes; limit >= 0 && ff.written+int64(len(p)) > limit {
		return 0, ff.fault.cause()
	}
	n, err := ff.File.Write(p)
	ff.written += int64(n)
	return n, err
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.cause()
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	err := ff.File.Close()
	if ff.fault.FailOnClose {
		return ff.fault.cause()
	}
	return err
}
