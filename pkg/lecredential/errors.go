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

package lecredential

import "errors"

var (
	// ErrInvalidLESecret is returned when the presented low entropy
	// secret does not match the leaf. Each occurrence moves the
	// wrong-attempt counter until the policy threshold locks the leaf.
	ErrInvalidLESecret = errors.New("lecredential: mismatched low entropy secret")

	// ErrCredentialLocked is returned when the leaf has exhausted its
	// attempt budget. No check is performed against a locked leaf.
	ErrCredentialLocked = errors.New("lecredential: credential locked out, reset required")

	// ErrInvalidResetSecret is returned when the presented reset secret
	// does not match the leaf's commitment. The leaf state is unchanged.
	ErrInvalidResetSecret = errors.New("lecredential: mismatched reset secret")

	// ErrLabelNotFound is returned when no leaf exists at the label.
	ErrLabelNotFound = errors.New("lecredential: label not found")

	// ErrHashTree wraps failures of the backing credential store itself.
	ErrHashTree = errors.New("lecredential: hash tree operation failed")
)
