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
	"context"
	"fmt"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/cryptoutil"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/hwsec"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/secret"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

// TpmBoundToPcrAuthBlock seals a random vault keyset key in the hardware
// module, authorized by a scrypt-derived value and bound to the current
// user PCR state. Unsealing fails once the platform configuration
// diverges from the one recorded at creation.
type TpmBoundToPcrAuthBlock struct {
	hwsec hwsec.Frontend
}

// NewTpmBoundToPcrAuthBlock creates the PCR-bound variant.
func NewTpmBoundToPcrAuthBlock(frontend hwsec.Frontend) *TpmBoundToPcrAuthBlock {
	return &TpmBoundToPcrAuthBlock{hwsec: frontend}
}

// authValue derives the sealing authorization from the passkey.
func (a *TpmBoundToPcrAuthBlock) authValue(passkey *secret.Blob, salt []byte) (*secret.Blob, error) {
	value, err := cryptoutil.DeriveScryptKey(passkey, salt, cryptoutil.AESKeySize)
	if err != nil {
		return nil, fmt.Errorf("authblock: deriving auth value: %w: %v", types.CryptoErrorScryptCrypto, err)
	}
	return value, nil
}

// Create seals a fresh vault keyset key to the current platform state.
func (a *TpmBoundToPcrAuthBlock) Create(ctx context.Context, input AuthInput) (*types.KeyBlobs, *State, error) {
	if input.Passkey.IsEmpty() {
		return nil, nil, fmt.Errorf("authblock: passkey required: %w", types.CryptoErrorOtherFatal)
	}
	salt, err := cryptoutil.GetSecureRandom(types.SaltSize)
	if err != nil {
		return nil, nil, fmt.Errorf("authblock: generating salt: %w", types.CryptoErrorOtherFatal)
	}
	auth, err := a.authValue(input.Passkey, salt)
	if err != nil {
		return nil, nil, err
	}
	defer auth.Clear()

	vkkRaw, err := a.hwsec.GetRandom(cryptoutil.AESKeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("authblock: generating vault keyset key: %w", err)
	}
	vkk := secret.New(vkkRaw)
	secret.Zero(vkkRaw)

	sel := hwsec.DefaultPcrSelection()
	sealed, err := a.hwsec.SealToPcr(vkk, auth, sel)
	if err != nil {
		vkk.Clear()
		return nil, nil, fmt.Errorf("authblock: sealing vault keyset key: %w", err)
	}

	// Recorded so a changed sealing hierarchy is detectable at derive
	// time. Best effort.
	pubKeyHash, err := a.hwsec.GetPublicKeyHash()
	if err != nil {
		pubKeyHash = nil
	}

	state := &State{
		TpmBoundToPcr: &TpmBoundToPcrState{
			Salt:             salt,
			SealedVkk:        sealed,
			TpmPublicKeyHash: pubKeyHash,
			PcrIndex:         sel.Index,
		},
	}
	return &types.KeyBlobs{VkkKey: vkk}, state, nil
}

// Derive unseals the vault keyset key recorded in the state.
func (a *TpmBoundToPcrAuthBlock) Derive(ctx context.Context, input AuthInput, state *State) (*types.KeyBlobs, error) {
	if state == nil || state.TpmBoundToPcr == nil {
		return nil, fmt.Errorf("authblock: pcr-bound state missing: %w", types.CryptoErrorOtherFatal)
	}
	st := state.TpmBoundToPcr
	if input.Passkey.IsEmpty() {
		return nil, fmt.Errorf("authblock: passkey required: %w", types.CryptoErrorOtherFatal)
	}
	auth, err := a.authValue(input.Passkey, st.Salt)
	if err != nil {
		return nil, err
	}
	defer auth.Clear()

	sel := hwsec.PcrSelection{Index: st.PcrIndex, Bank: hwsec.DefaultPcrSelection().Bank}
	vkk, err := a.hwsec.UnsealWithAuthorization(st.SealedVkk, auth, sel)
	if err != nil {
		return nil, fmt.Errorf("authblock: unsealing vault keyset key: %w", err)
	}
	return &types.KeyBlobs{VkkKey: vkk}, nil
}

// Verify interface compliance at compile time
var _ AuthBlock = (*TpmBoundToPcrAuthBlock)(nil)
