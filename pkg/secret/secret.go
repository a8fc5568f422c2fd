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

// Package secret provides zero-on-clear byte buffers for key material.
//
// Every piece of sensitive data handled by the keyset store (passkeys,
// derived key blobs, reset seeds, filesystem encryption keys) lives in a
// Blob so its backing memory can be overwritten the moment it is no longer
// needed, independent of garbage collection.
package secret

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
)

var (
	// ErrInvalidLength is returned when a random blob of non-positive
	// length is requested.
	ErrInvalidLength = errors.New("secret: blob length must be positive")
)

// Blob holds sensitive bytes that are zeroed by Clear.
//
// Unlike a plain byte slice, a Blob makes ownership explicit: a function
// that accepts a Blob may read it; a function documented to consume it
// calls Clear before returning. Bytes returns the backing array, not a
// copy, so that cryptographic operations do not scatter unzeroed
// duplicates across the heap.
type Blob struct {
	data []byte
}

// New creates a Blob holding a private copy of data.
func New(data []byte) *Blob {
	b := make([]byte, len(data))
	copy(b, data)
	return &Blob{data: b}
}

// FromString creates a Blob from the bytes of s.
func FromString(s string) *Blob {
	return &Blob{data: []byte(s)}
}

// NewRandom creates a Blob with n cryptographically random bytes.
func NewRandom(n int) (*Blob, error) {
	if n <= 0 {
		return nil, ErrInvalidLength
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("secret: reading random bytes: %w", err)
	}
	return &Blob{data: b}, nil
}

// Bytes returns the backing slice. The caller must not retain it past the
// Blob's lifetime; Clear overwrites it in place.
func (b *Blob) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Len returns the number of bytes held.
func (b *Blob) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// IsEmpty reports whether the blob holds no bytes.
func (b *Blob) IsEmpty() bool {
	return b.Len() == 0
}

// Clone returns an independent copy of the blob. The clone must be
// cleared separately.
func (b *Blob) Clone() *Blob {
	if b == nil {
		return nil
	}
	return New(b.data)
}

// Clear overwrites the backing memory with zeros and detaches it.
//
// After Clear, Bytes returns nil. The operation is irreversible.
func (b *Blob) Clear() {
	if b == nil || b.data == nil {
		return
	}
	for i := range b.data {
		b.data[i] = 0
	}
	// Ensure the compiler does not optimize the wipe away.
	subtle.ConstantTimeCopy(1, b.data, make([]byte, len(b.data)))
	b.data = nil
}

// Equal compares two blobs in constant time.
func (b *Blob) Equal(other *Blob) bool {
	return subtle.ConstantTimeCompare(b.Bytes(), other.Bytes()) == 1
}

// Zero overwrites a raw byte slice in place. It is for transient
// intermediates that never made it into a Blob.
func Zero(p []byte) {
	if len(p) == 0 {
		return
	}
	for i := range p {
		p[i] = 0
	}
	subtle.ConstantTimeCopy(1, p, make([]byte, len(p)))
}
