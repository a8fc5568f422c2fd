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

package storage

import "errors"

var (
	// ErrNotFound is returned when a file does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrAlreadyExists is returned when exclusively creating a file that
	// already exists.
	ErrAlreadyExists = errors.New("storage: already exists")

	// ErrInvalidPath is returned when a path is relative, escapes the
	// platform root, or contains a null byte.
	ErrInvalidPath = errors.New("storage: invalid path")

	// ErrNotDirectory is returned when a directory operation targets a
	// non-directory.
	ErrNotDirectory = errors.New("storage: not a directory")
)
