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

package keyset

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

const (
	// KeysetFilePrefix is the fixed prefix of keyset files; the decimal
	// suffix is the slot index.
	KeysetFilePrefix = "master."

	// MaxKeysets bounds the slot namespace. Valid indices are
	// [0, MaxKeysets).
	MaxKeysets = 100

	// InitialKeysetIndex is the slot allocated for a user's first keyset.
	InitialKeysetIndex = 0

	keysetDirPerms = 0700
)

// UserKeysetDir returns the directory holding one user's keyset files.
func UserKeysetDir(shadowRoot string, user types.ObfuscatedUsername) string {
	return filepath.Join(shadowRoot, user.String())
}

// KeysetPath returns the file path of the keyset at the given slot index
// inside a user's keyset directory.
func KeysetPath(userDir string, index int) string {
	return filepath.Join(userDir, KeysetFilePrefix+strconv.Itoa(index))
}

// ParseKeysetIndex extracts the slot index from a keyset file name.
// Names without the canonical prefix, with a suffix that does not parse
// as an integer, or with an index outside [0, MaxKeysets) report false.
func ParseKeysetIndex(filename string) (int, bool) {
	suffix, found := strings.CutPrefix(filename, KeysetFilePrefix)
	if !found {
		return 0, false
	}
	index, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	if index < 0 || index >= MaxKeysets {
		return 0, false
	}
	return index, true
}
