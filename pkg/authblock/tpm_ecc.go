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

// TpmEccAuthBlock seals high entropy key material authorized by a
// module-resident ECC derivation of the passkey. The extra round trip
// through the module keeps the auth value off the host, at lower latency
// than the RSA-era PCR variant.
type TpmEccAuthBlock struct {
	hwsec hwsec.Frontend
}

// NewTpmEccAuthBlock creates the ECC variant.
func NewTpmEccAuthBlock(frontend hwsec.Frontend) *TpmEccAuthBlock {
	return &TpmEccAuthBlock{hwsec: frontend}
}

func (a *TpmEccAuthBlock) authValue(passkey *secret.Blob, salt []byte) (*secret.Blob, error) {
	passkeyDerived, err := cryptoutil.DeriveScryptKey(passkey, salt, cryptoutil.AESKeySize)
	if err != nil {
		return nil, fmt.Errorf("authblock: deriving passkey key: %w: %v", types.CryptoErrorScryptCrypto, err)
	}
	defer passkeyDerived.Clear()
	auth, err := a.hwsec.GetEccAuthValue(salt, passkeyDerived)
	if err != nil {
		return nil, fmt.Errorf("authblock: ecc auth value: %w", err)
	}
	return auth, nil
}

// vkkFromHvkkm narrows the sealed key material to the vault keyset key.
func vkkFromHvkkm(hvkkm *secret.Blob, salt []byte) (*secret.Blob, error) {
	vkk, err := cryptoutil.DeriveHKDFKey(hvkkm, salt, []byte("ecc-vkk"), cryptoutil.AESKeySize)
	if err != nil {
		return nil, fmt.Errorf("authblock: deriving vkk: %w", types.CryptoErrorOtherFatal)
	}
	return vkk, nil
}

// Create seals fresh key material under the ECC auth value.
func (a *TpmEccAuthBlock) Create(ctx context.Context, input AuthInput) (*types.KeyBlobs, *State, error) {
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

	hvkkmRaw, err := a.hwsec.GetRandom(cryptoutil.AESKeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("authblock: generating key material: %w", err)
	}
	hvkkm := secret.New(hvkkmRaw)
	secret.Zero(hvkkmRaw)
	defer hvkkm.Clear()

	sel := hwsec.DefaultPcrSelection()
	sealed, err := a.hwsec.SealToPcr(hvkkm, auth, sel)
	if err != nil {
		return nil, nil, fmt.Errorf("authblock: sealing key material: %w", err)
	}

	pubKeyHash, err := a.hwsec.GetPublicKeyHash()
	if err != nil {
		pubKeyHash = nil
	}

	vkk, err := vkkFromHvkkm(hvkkm, salt)
	if err != nil {
		return nil, nil, err
	}

	state := &State{
		TpmBoundToEcc: &TpmBoundToEccState{
			Salt:             salt,
			SealedHvkkm:      sealed,
			TpmPublicKeyHash: pubKeyHash,
			PcrIndex:         sel.Index,
		},
	}
	return &types.KeyBlobs{VkkKey: vkk}, state, nil
}

// Derive unseals the key material recorded in the state and narrows it
// back to the vault keyset key.
func (a *TpmEccAuthBlock) Derive(ctx context.Context, input AuthInput, state *State) (*types.KeyBlobs, error) {
	if state == nil || state.TpmBoundToEcc == nil {
		return nil, fmt.Errorf("authblock: ecc state missing: %w", types.CryptoErrorOtherFatal)
	}
	st := state.TpmBoundToEcc
	if input.Passkey.IsEmpty() {
		return nil, fmt.Errorf("authblock: passkey required: %w", types.CryptoErrorOtherFatal)
	}
	auth, err := a.authValue(input.Passkey, st.Salt)
	if err != nil {
		return nil, err
	}
	defer auth.Clear()

	sel := hwsec.PcrSelection{Index: st.PcrIndex, Bank: hwsec.DefaultPcrSelection().Bank}
	hvkkm, err := a.hwsec.UnsealWithAuthorization(st.SealedHvkkm, auth, sel)
	if err != nil {
		return nil, fmt.Errorf("authblock: unsealing key material: %w", err)
	}
	defer hvkkm.Clear()

	vkk, err := vkkFromHvkkm(hvkkm, st.Salt)
	if err != nil {
		return nil, err
	}
	return &types.KeyBlobs{VkkKey: vkk}, nil
}

// Verify interface compliance at compile time
var _ AuthBlock = (*TpmEccAuthBlock)(nil)
