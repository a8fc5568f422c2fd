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

// Package file provides the production implementation of storage.Platform.
// Writes go through a temp file, fsync, and atomic rename so a crash never
// leaves a partially written keyset behind.
package file

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/storage"
)

const (
	// Directory permissions (owner rwx only)
	dirPerms = 0700

	// File permissions (owner rw only)
	filePerms = 0600
)

// FilePlatform implements storage.Platform on the local filesystem,
// confined to a root directory. It is safe for concurrent use.
type FilePlatform struct {
	mu      sync.RWMutex
	rootDir string
}

// New creates a FilePlatform rooted at rootDir. The root is created with
// 0700 permissions if it doesn't exist; every path passed to the platform
// must stay inside it.
func New(rootDir string) (storage.Platform, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("file platform: root directory cannot be empty")
	}
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("file platform: resolving root directory: %w", err)
	}
	if err := os.MkdirAll(abs, dirPerms); err != nil {
		return nil, fmt.Errorf("file platform: creating root directory: %w", err)
	}
	return &FilePlatform{rootDir: abs}, nil
}

// ReadFile returns the contents of the file at path.
func (f *FilePlatform) ReadFile(path string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.validatePath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("file platform: reading %q: %w", path, err)
	}
	return data, nil
}

// WriteFileAtomicDurable writes data via temp file, fsync, and rename.
func (f *FilePlatform) WriteFileAtomicDurable(path string, data []byte, mode fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.validatePath(path); err != nil {
		return err
	}
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".")
	if err != nil {
		return fmt.Errorf("file platform: creating temp file in %q: %w", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return fmt.Errorf("file platform: setting mode on %q: %w", tmpName, err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("file platform: writing %q: %w", tmpName, err)
	}
	if err := unix.Fsync(int(tmp.Fd())); err != nil {
		cleanup()
		return fmt.Errorf("file platform: syncing %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("file platform: closing %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("file platform: renaming %q to %q: %w", tmpName, path, err)
	}
	return f.syncDirectory(dir)
}

// TouchFileDurable creates an empty file at path exclusively.
func (f *FilePlatform) TouchFileDurable(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.validatePath(path); err != nil {
		return err
	}
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerms)
	if err != nil {
		if os.IsExist(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("file platform: creating %q: %w", path, err)
	}
	if err := fd.Close(); err != nil {
		return fmt.Errorf("file platform: closing %q: %w", path, err)
	}
	return f.syncDirectory(filepath.Dir(path))
}

// Rename atomically renames oldPath to newPath.
func (f *FilePlatform) Rename(oldPath, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.validatePath(oldPath); err != nil {
		return err
	}
	if err := f.validatePath(newPath); err != nil {
		return err
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		if os.IsNotExist(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("file platform: renaming %q to %q: %w", oldPath, newPath, err)
	}
	return f.syncDirectory(filepath.Dir(newPath))
}

// DeleteFile removes the file at path.
func (f *FilePlatform) DeleteFile(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.validatePath(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("file platform: deleting %q: %w", path, err)
	}
	return f.syncDirectory(filepath.Dir(path))
}

// DeletePathRecursively removes path and everything under it.
func (f *FilePlatform) DeletePathRecursively(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.validatePath(path); err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("file platform: removing %q: %w", path, err)
	}
	return f.syncDirectory(filepath.Dir(path))
}

// FileExists reports whether a file exists at path.
func (f *FilePlatform) FileExists(path string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.validatePath(path); err != nil {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// EnumerateDirectoryEntries returns the full paths of entries directly
// inside dirPath, sorted by name.
func (f *FilePlatform) EnumerateDirectoryEntries(dirPath string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.validatePath(dirPath); err != nil {
		return nil, err
	}
	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("file platform: stating %q: %w", dirPath, err)
	}
	if !info.IsDir() {
		return nil, storage.ErrNotDirectory
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("file platform: listing %q: %w", dirPath, err)
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, filepath.Join(dirPath, entry.Name()))
	}
	return paths, nil
}

// CreateDirectory creates dirPath and any missing parents.
func (f *FilePlatform) CreateDirectory(path string, mode fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.validatePath(path); err != nil {
		return err
	}
	if err := os.MkdirAll(path, mode); err != nil {
		return fmt.Errorf("file platform: creating directory %q: %w", path, err)
	}
	return nil
}

// syncDirectory flushes a directory's metadata so renames and unlinks
// survive a crash.
func (f *FilePlatform) syncDirectory(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("file platform: opening directory %q: %w", dir, err)
	}
	defer func() { _ = d.Close() }()
	if err := unix.Fsync(int(d.Fd())); err != nil {
		return fmt.Errorf("file platform: syncing directory %q: %w", dir, err)
	}
	return nil
}

// validatePath requires an absolute, traversal-free path inside the root.
func (f *FilePlatform) validatePath(path string) error {
	if path == "" || strings.Contains(path, "\x00") {
		return storage.ErrInvalidPath
	}
	if !filepath.IsAbs(path) {
		return storage.ErrInvalidPath
	}
	cleaned := filepath.Clean(path)
	if cleaned != f.rootDir && !strings.HasPrefix(cleaned, f.rootDir+string(filepath.Separator)) {
		return storage.ErrInvalidPath
	}
	return nil
}

// Verify interface compliance at compile time
var _ storage.Platform = (*FilePlatform)(nil)
