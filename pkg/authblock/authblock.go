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

// Package authblock turns a user authentication factor into the symmetric
// key material that unwraps a vault keyset. Each variant binds the factor
// differently: hardware-sealed, hardware-sealed over an ECC auth value,
// pure scrypt, or rate-limited through the low entropy credential store.
// The persisted State selects the variant on the way back in.
package authblock

import (
	"context"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/secret"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

// AuthInput carries the caller-supplied material for Create and Derive.
type AuthInput struct {
	// Passkey is the user factor. Required for every variant.
	Passkey *secret.Blob

	// ObfuscatedUsername scopes hardware bindings to the account.
	ObfuscatedUsername types.ObfuscatedUsername

	// ResetSeed and ResetSalt feed the rate-limited variant at creation:
	// the per-credential reset secret is derived from them.
	ResetSeed *secret.Blob
	ResetSalt []byte
}

// AuthBlock is one member of the closed variant family. Create derives
// fresh key blobs for a new keyset and returns the state to persist;
// Derive recovers the same blobs from the persisted state. Failures carry
// a types.CryptoError classification in their chain.
type AuthBlock interface {
	Create(ctx context.Context, input AuthInput) (*types.KeyBlobs, *State, error)
	Derive(ctx context.Context, input AuthInput, state *State) (*types.KeyBlobs, error)
}
