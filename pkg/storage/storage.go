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

// Package storage defines the platform file abstraction the keyset store
// persists through. Implementations must guarantee that a single write is
// all-or-nothing; multi-step sequences are the caller's problem.
package storage

import "io/fs"

// Platform is the file-level interface between the keyset store and the
// operating system. All paths are absolute. Implementations must be safe
// for concurrent use; they do not serialize logical multi-file
// operations.
type Platform interface {
	// ReadFile returns the contents of the file at path.
	// Returns ErrNotFound if the file does not exist.
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomicDurable writes data to path with the given mode via
	// a temp file, fsync, and atomic rename. After it returns the file
	// either has the full new contents or its previous state.
	WriteFileAtomicDurable(path string, data []byte, mode fs.FileMode) error

	// TouchFileDurable creates an empty file at path exclusively.
	// Returns ErrAlreadyExists if the path is taken.
	TouchFileDurable(path string) error

	// Rename atomically renames oldPath to newPath, replacing newPath if
	// it exists.
	Rename(oldPath, newPath string) error

	// DeleteFile removes the file at path.
	// Returns ErrNotFound if the file does not exist.
	DeleteFile(path string) error

	// DeletePathRecursively removes path and everything under it.
	DeletePathRecursively(path string) error

	// FileExists reports whether a file exists at path.
	FileExists(path string) bool

	// EnumerateDirectoryEntries returns the full paths of the entries
	// directly inside dirPath, sorted by name.
	EnumerateDirectoryEntries(dirPath string) ([]string, error)

	// CreateDirectory creates dirPath and any missing parents.
	CreateDirectory(path string, mode fs.FileMode) error
}
