// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keychain.
//
// go-keychain is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package memory provides an in-memory storage.Platform for tests. It
// mirrors the file platform's semantics and adds per-operation fault
// injection so orchestration code can be exercised against storage
// failures. Parent directories are implied on write.
package memory

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/storage"
)

// MemPlatform is an in-memory implementation of storage.Platform.
// It is safe for concurrent use.
type MemPlatform struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]struct{}

	readErr      error
	writeErr     error
	touchErr     error
	renameErr    error
	deleteErr    error
	enumerateErr error
}

// New creates an empty in-memory platform.
func New() *MemPlatform {
	return &MemPlatform{
		files: make(map[string][]byte),
		dirs:  make(map[string]struct{}),
	}
}

// SetReadError makes subsequent ReadFile calls fail with err; nil clears.
func (m *MemPlatform) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// SetWriteError makes subsequent WriteFileAtomicDurable calls fail with
// err; nil clears.
func (m *MemPlatform) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// SetTouchError makes subsequent TouchFileDurable calls fail with err;
// nil clears.
func (m *MemPlatform) SetTouchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchErr = err
}

// SetRenameError makes subsequent Rename calls fail with err; nil clears.
func (m *MemPlatform) SetRenameError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renameErr = err
}

// SetDeleteError makes subsequent DeleteFile calls fail with err; nil
// clears.
func (m *MemPlatform) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// SetEnumerateError makes subsequent EnumerateDirectoryEntries calls fail
// with err; nil clears.
func (m *MemPlatform) SetEnumerateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enumerateErr = err
}

// ReadFile returns the contents of the file at path.
func (m *MemPlatform) ReadFile(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.readErr != nil {
		return nil, m.readErr
	}
	data, ok := m.files[filepath.Clean(path)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteFileAtomicDurable stores data at path, creating implied parents.
func (m *MemPlatform) WriteFileAtomicDurable(path string, data []byte, mode fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}
	cleaned := filepath.Clean(path)
	stored := make([]byte, len(data))
	copy(stored, data)
	m.files[cleaned] = stored
	m.dirs[filepath.Dir(cleaned)] = struct{}{}
	return nil
}

// TouchFileDurable creates an empty file at path exclusively.
func (m *MemPlatform) TouchFileDurable(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.touchErr != nil {
		return m.touchErr
	}
	cleaned := filepath.Clean(path)
	if _, ok := m.files[cleaned]; ok {
		return storage.ErrAlreadyExists
	}
	m.files[cleaned] = []byte{}
	m.dirs[filepath.Dir(cleaned)] = struct{}{}
	return nil
}

// Rename moves oldPath to newPath, replacing newPath if present.
func (m *MemPlatform) Rename(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.renameErr != nil {
		return m.renameErr
	}
	oldClean := filepath.Clean(oldPath)
	data, ok := m.files[oldClean]
	if !ok {
		return storage.ErrNotFound
	}
	newClean := filepath.Clean(newPath)
	m.files[newClean] = data
	m.dirs[filepath.Dir(newClean)] = struct{}{}
	delete(m.files, oldClean)
	return nil
}

// DeleteFile removes the file at path.
func (m *MemPlatform) DeleteFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	cleaned := filepath.Clean(path)
	if _, ok := m.files[cleaned]; !ok {
		return storage.ErrNotFound
	}
	delete(m.files, cleaned)
	return nil
}

// DeletePathRecursively removes path and everything under it.
func (m *MemPlatform) DeletePathRecursively(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleaned := filepath.Clean(path)
	prefix := cleaned + string(filepath.Separator)
	for p := range m.files {
		if p == cleaned || strings.HasPrefix(p, prefix) {
			delete(m.files, p)
		}
	}
	for d := range m.dirs {
		if d == cleaned || strings.HasPrefix(d, prefix) {
			delete(m.dirs, d)
		}
	}
	return nil
}

// FileExists reports whether a file or directory exists at path.
func (m *MemPlatform) FileExists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cleaned := filepath.Clean(path)
	if _, ok := m.files[cleaned]; ok {
		return true
	}
	_, ok := m.dirs[cleaned]
	return ok
}

// EnumerateDirectoryEntries returns the full paths of entries directly
// inside dirPath, sorted by name.
func (m *MemPlatform) EnumerateDirectoryEntries(dirPath string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.enumerateErr != nil {
		return nil, m.enumerateErr
	}
	cleaned := filepath.Clean(dirPath)
	if _, ok := m.dirs[cleaned]; !ok {
		return nil, storage.ErrNotFound
	}
	seen := make(map[string]struct{})
	for p := range m.files {
		if filepath.Dir(p) == cleaned {
			seen[p] = struct{}{}
		}
	}
	for d := range m.dirs {
		if filepath.Dir(d) == cleaned && d != cleaned {
			seen[d] = struct{}{}
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// CreateDirectory records dirPath and its parents as directories.
func (m *MemPlatform) CreateDirectory(path string, mode fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleaned := filepath.Clean(path)
	for cleaned != string(filepath.Separator) && cleaned != "." {
		m.dirs[cleaned] = struct{}{}
		cleaned = filepath.Dir(cleaned)
	}
	return nil
}

// Verify interface compliance at compile time
var _ storage.Platform = (*MemPlatform)(nil)
