// Package fsutil is the filesystem the recorder writes its data files
// through. Sinks must support Sync so a flush is durable before the file
// is closed.
package fsutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// SyncWriteCloser is a data sink that can force its contents to stable
// storage. *os.File satisfies it.
type SyncWriteCloser interface {
	io.WriteCloser
	Sync() error
}

// FileSystem is what the recorder and the stimulus loader need from disk.
type FileSystem interface {
	// Create creates or truncates name.
	Create(name string) (SyncWriteCloser, error)
	ReadFile(name string) ([]byte, error)
	// MkdirAll creates path and any missing parents.
	MkdirAll(path string, perm os.FileMode) error
}

// OSFileSystem is the host filesystem.
type OSFileSystem struct{}

func (OSFileSystem) Create(name string) (SyncWriteCloser, error) { return os.Create(name) }
func (OSFileSystem) ReadFile(name string) ([]byte, error)        { return os.ReadFile(name) }
func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// MemoryFileSystem keeps files in memory. Writes are visible at once and
// each file counts its Sync calls so tests can check durability.
type MemoryFileSystem struct {
	mu       sync.RWMutex
	files    map[string]*memFile
	dirs     map[string]bool
	writeErr error
}

type memFile struct {
	data   []byte
	syncs  int
	closed bool
}

func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{files: map[string]*memFile{}, dirs: map[string]bool{}}
}

// FailWrites makes every later Write return err; nil clears it.
func (m *MemoryFileSystem) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

func (m *MemoryFileSystem) Create(name string) (SyncWriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := &memFile{}
	m.files[filepath.Clean(name)] = f
	return &memWriter{fs: m, file: f}, nil
}

func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	f := m.file(name)
	if f == nil {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(f.data), nil
}

func (m *MemoryFileSystem) MkdirAll(path string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := filepath.Clean(path); p != "." && p != "/"; p = filepath.Dir(p) {
		m.dirs[p] = true
	}
	return nil
}

// Exists reports whether name was created as a file or directory.
func (m *MemoryFileSystem) Exists(name string) bool {
	if m.file(name) != nil {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirs[filepath.Clean(name)]
}

// Syncs is how many times name was synced.
func (m *MemoryFileSystem) Syncs(name string) int {
	if f := m.file(name); f != nil {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return f.syncs
	}
	return 0
}

// Closed reports whether name has been closed.
func (m *MemoryFileSystem) Closed(name string) bool {
	if f := m.file(name); f != nil {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return f.closed
	}
	return false
}

// Names lists the created files in lexical order.
func (m *MemoryFileSystem) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (m *MemoryFileSystem) file(name string) *memFile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files[filepath.Clean(name)]
}

type memWriter struct {
	fs   *MemoryFileSystem
	file *memFile
}

func (w *memWriter) Write(p []byte) (int, error) {
	w.fs.mu.Lock()
	defer w.fs.mu.Unlock()
	switch {
	case w.fs.writeErr != nil:
		return 0, w.fs.writeErr
	case w.file.closed:
		return 0, fs.ErrClosed
	}
	w.file.data = append(w.file.data, p...)
	return len(p), nil
}

func (w *memWriter) Sync() error {
	w.fs.mu.Lock()
	defer w.fs.mu.Unlock()
	if w.file.closed {
		return fs.ErrClosed
	}
	w.file.syncs++
	return nil
}

func (w *memWriter) Close() error {
	w.fs.mu.Lock()
	defer w.fs.mu.Unlock()
	if w.file.closed {
		return fs.ErrClosed
	}
	w.file.closed = true
	return nil
}
