package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is returned by injected faults that carry no explicit error.
var ErrInjected = errors.New("injected fault")

// Op is a file system operation a Fault can target.
type Op uint8

const (
	OpOpen Op = iota + 1
	OpWrite
	OpSync
	OpClose
	OpRename
	OpRemove
)

// Fault makes one operation fail on matching files.
type Fault struct {
	Op Op
	// After is the number of bytes an OpWrite fault lets through per file.
	After int64
	// Err is returned instead of ErrInjected when set.
	Err error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

type rule struct {
	pattern string
	fault   Fault
}

// FaultyFS wraps a FileSystem and fails operations on files whose name
// contains a rule's pattern. Rules are checked in the order they were added.
type FaultyFS struct {
	FS FileSystem

	mu      sync.Mutex
	rules   []rule
	written int64
}

// NewFaultyFS wraps fs, or Default if fs is nil.
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = Default
	}
	return &FaultyFS{FS: fs}
}

// AddRule injects fault into operations on files whose name contains pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{pattern: pattern, fault: fault})
}

// ClearRules removes all rules.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
}

// Written returns the bytes written through the wrapper.
func (f *FaultyFS) Written() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written
}

func (f *FaultyFS) fault(name string, op Op) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.rules {
		if r.fault.Op == op && strings.Contains(name, r.pattern) {
			return r.fault, true
		}
	}
	return Fault{}, false
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	if fault, ok := f.fault(name, OpOpen); ok {
		return nil, fault.err()
	}
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f, name: name}, nil
}

func (f *FaultyFS) Remove(name string) error {
	if fault, ok := f.fault(name, OpRemove); ok {
		return fault.err()
	}
	return f.FS.Remove(name)
}

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	if fault, ok := f.fault(newpath, OpRename); ok {
		return fault.err()
	}
	return f.FS.Rename(oldpath, newpath)
}

func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }

func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error { return f.FS.MkdirAll(path, perm) }

func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error) { return f.FS.ReadDir(name) }

type faultyFile struct {
	File
	fs      *FaultyFS
	name    string
	written int64
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if fault, ok := ff.fs.fault(ff.name, OpWrite); ok && ff.written+int64(len(p)) > fault.After {
		return 0, fault.err()
	}

	n, err := ff.File.Write(p)
	ff.written += int64(n)
	ff.fs.mu.Lock()
	ff.fs.written += int64(n)
	ff.fs.mu.Unlock()
	return n, err
}

func (ff *faultyFile) Sync() error {
	if fault, ok := ff.fs.fault(ff.name, OpSync); ok {
		return fault.err()
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	if fault, ok := ff.fs.fault(ff.name, OpClose); ok {
		_ = ff.File.Close()
		return fault.err()
	}
	return ff.File.Close()
}
