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

package authblock

import (
	"encoding/json"
	"errors"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

var (
	ErrNoVariant        = errors.New("authblock: state has no variant")
	ErrMultipleVariants = errors.New("authblock: state has multiple variants")
)

// Variant names one member of the closed family.
type Variant string

const (
	VariantTpmBoundToPcr Variant = "tpm_bound_to_pcr"
	VariantTpmBoundToEcc Variant = "tpm_bound_to_ecc"
	VariantScryptOnly    Variant = "scrypt_only"
	VariantPinWeaver     Variant = "pin_weaver"
)

// TpmBoundToPcrState is the persisted form of the hardware-sealed,
// PCR-bound variant.
type TpmBoundToPcrState struct {
	// Salt feeds the scrypt derivation of the sealing auth value.
	Salt []byte `json:"salt"`

	// SealedVkk is the hardware-sealed vault keyset key.
	SealedVkk []byte `json:"sealed_vkk"`

	// TpmPublicKeyHash identifies the sealing hierarchy the blob was
	// created under.
	TpmPublicKeyHash []byte `json:"tpm_public_key_hash,omitempty"`

	// PcrIndex is the platform configuration register the seal is bound
	// to.
	PcrIndex uint `json:"pcr_index"`
}

// TpmBoundToEccState is the persisted form of the ECC auth value variant.
type TpmBoundToEccState struct {
	Salt []byte `json:"salt"`

	// SealedHvkkm is the hardware-sealed high entropy vault keyset key
	// material. The VKK is derived from it after unsealing.
	SealedHvkkm []byte `json:"sealed_hvkkm"`

	TpmPublicKeyHash []byte `json:"tpm_public_key_hash,omitempty"`
	PcrIndex         uint   `json:"pcr_index"`
}

// ScryptOnlyState is the persisted form of the software-only variant.
type ScryptOnlyState struct {
	Salt []byte `json:"salt"`

	// Work parameters recorded so old envelopes stay readable if the
	// defaults move.
	WorkFactor int `json:"work_factor"`
	BlockSize  int `json:"block_size"`
	Parallel   int `json:"parallel"`
}

// PinWeaverState is the persisted form of the rate-limited variant.
type PinWeaverState struct {
	// LELabel locates the credential leaf in the device-wide store.
	LELabel uint64 `json:"le_label"`

	// Salt feeds the scrypt derivation of the low entropy secret.
	Salt []byte `json:"salt"`

	// ResetSalt pairs with the user's reset seed to rebuild the leaf's
	// reset secret.
	ResetSalt []byte `json:"reset_salt,omitempty"`
}

// State selects the AuthBlock variant for a persisted keyset. Exactly one
// variant pointer is set; serialization rejects anything else so the
// envelope set stays closed.
type State struct {
	TpmBoundToPcr *TpmBoundToPcrState `json:"tpm_bound_to_pcr,omitempty"`
	TpmBoundToEcc *TpmBoundToEccState `json:"tpm_bound_to_ecc,omitempty"`
	ScryptOnly    *ScryptOnlyState    `json:"scrypt_only,omitempty"`
	PinWeaver     *PinWeaverState     `json:"pin_weaver,omitempty"`
}

// Variant returns the tag of the populated variant.
func (s *State) Variant() (Variant, error) {
	var (
		variant Variant
		count   int
	)
	if s.TpmBoundToPcr != nil {
		variant = VariantTpmBoundToPcr
		count++
	}
	if s.TpmBoundToEcc != nil {
		variant = VariantTpmBoundToEcc
		count++
	}
	if s.ScryptOnly != nil {
		variant = VariantScryptOnly
		count++
	}
	if s.PinWeaver != nil {
		variant = VariantPinWeaver
		count++
	}
	switch count {
	case 0:
		return "", ErrNoVariant
	case 1:
		return variant, nil
	default:
		return "", ErrMultipleVariants
	}
}

// Validate checks that exactly one variant is populated.
func (s *State) Validate() error {
	_, err := s.Variant()
	return err
}

// KeysetFlags returns the keyset flag bits implied by the variant.
func (s *State) KeysetFlags() (int32, error) {
	variant, err := s.Variant()
	if err != nil {
		return 0, err
	}
	switch variant {
	case VariantTpmBoundToPcr:
		return types.KeysetFlagTPMWrapped | types.KeysetFlagScryptDerived | types.KeysetFlagPCRBound, nil
	case VariantTpmBoundToEcc:
		return types.KeysetFlagTPMWrapped | types.KeysetFlagScryptDerived | types.KeysetFlagPCRBound | types.KeysetFlagECC, nil
	case VariantScryptOnly:
		return types.KeysetFlagScryptWrapped, nil
	case VariantPinWeaver:
		return types.KeysetFlagLECredential, nil
	}
	return 0, ErrNoVariant
}

// stateAlias breaks the MarshalJSON/UnmarshalJSON recursion.
type stateAlias State

// MarshalJSON rejects states that are not exactly one variant.
func (s *State) MarshalJSON() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal((*stateAlias)(s))
}

// UnmarshalJSON rejects persisted states that are not exactly one
// variant.
func (s *State) UnmarshalJSON(data []byte) error {
	var alias stateAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	decoded := State(alias)
	if err := decoded.Validate(); err != nil {
		return err
	}
	*s = decoded
	return nil
}
