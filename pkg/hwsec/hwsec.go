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

// Package hwsec abstracts the hardware security module the keyset store
// seals key material through. The interface is deliberately narrow: seal
// and unseal bound to platform configuration, an ECC-derived auth value,
// and enough introspection to pick the strongest envelope. Failures carry
// a types.CryptoError classification in their chain.
package hwsec

import (
	"github.com/google/go-tpm/tpm2"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/secret"
)

// CurrentUserPcr is the PCR index bound into user keyset envelopes. It is
// extended when a user signs in, so an envelope sealed against its boot
// value cannot be unsealed once another user's session has started.
const CurrentUserPcr uint = 4

// PcrSelection names a single PCR in a single bank.
type PcrSelection struct {
	Index uint
	Bank  tpm2.TPMIAlgHash
}

// DefaultPcrSelection selects the current-user PCR in the SHA-256 bank.
func DefaultPcrSelection() PcrSelection {
	return PcrSelection{Index: CurrentUserPcr, Bank: tpm2.TPMAlgSHA256}
}

// TPML renders the selection in TPM wire form.
func (s PcrSelection) TPML() tpm2.TPMLPCRSelection {
	return tpm2.TPMLPCRSelection{
		PCRSelections: []tpm2.TPMSPCRSelection{{
			Hash:      s.Bank,
			PCRSelect: tpm2.PCClientCompatible.PCRs(s.Index),
		}},
	}
}

// Frontend is the security-module contract consumed by the auth blocks.
// Implementations must be safe for concurrent use. Hardware latency is
// opaque; calls block until the module answers.
type Frontend interface {
	// IsEnabled reports whether a security module is present and turned
	// on.
	IsEnabled() bool

	// IsReady reports whether the module is owned and usable for sealing.
	IsReady() bool

	// GetPublicKeyHash returns a stable hash of the module's sealing key,
	// recorded into keysets so a swapped module is detected at derive
	// time.
	GetPublicKeyHash() ([]byte, error)

	// GetRandom returns n bytes from the module's RNG.
	GetRandom(n int) ([]byte, error)

	// SealToPcr seals plaintext under the module's key, gated on
	// authValue and the current value of the selected PCR.
	SealToPcr(plaintext, authValue *secret.Blob, sel PcrSelection) ([]byte, error)

	// UnsealWithAuthorization reverses SealToPcr. A wrong authValue or a
	// changed PCR fails the unseal.
	UnsealWithAuthorization(sealed []byte, authValue *secret.Blob, sel PcrSelection) (*secret.Blob, error)

	// GetEccAuthValue derives the module-bound ECC auth value for the
	// low-latency envelope: deterministic per (module, salt, input).
	GetEccAuthValue(salt []byte, passkeyDerived *secret.Blob) (*secret.Blob, error)
}
