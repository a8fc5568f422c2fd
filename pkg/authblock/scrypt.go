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

	"golang.org/x/crypto/scrypt"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/cryptoutil"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/secret"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

// ScryptOnlyAuthBlock is the software fallback: the vault keyset key is
// derived directly from the passkey with scrypt over a per-keyset salt.
// No hardware module is involved, so possession of the envelope plus the
// passkey is sufficient to unwrap it offline.
type ScryptOnlyAuthBlock struct{}

// NewScryptOnlyAuthBlock creates the software-only variant.
func NewScryptOnlyAuthBlock() *ScryptOnlyAuthBlock {
	return &ScryptOnlyAuthBlock{}
}

// Create derives fresh key blobs from the passkey.
func (a *ScryptOnlyAuthBlock) Create(ctx context.Context, input AuthInput) (*types.KeyBlobs, *State, error) {
	if input.Passkey.IsEmpty() {
		return nil, nil, fmt.Errorf("authblock: passkey required: %w", types.CryptoErrorOtherFatal)
	}
	salt, err := cryptoutil.GetSecureRandom(types.SaltSize)
	if err != nil {
		return nil, nil, fmt.Errorf("authblock: generating salt: %w", types.CryptoErrorOtherFatal)
	}
	state := &State{
		ScryptOnly: &ScryptOnlyState{
			Salt:       salt,
			WorkFactor: cryptoutil.ScryptN,
			BlockSize:  cryptoutil.ScryptR,
			Parallel:   cryptoutil.ScryptP,
		},
	}
	blobs, err := a.deriveFromState(input.Passkey, state.ScryptOnly)
	if err != nil {
		return nil, nil, err
	}
	return blobs, state, nil
}

// Derive recomputes the key blobs from the persisted state.
func (a *ScryptOnlyAuthBlock) Derive(ctx context.Context, input AuthInput, state *State) (*types.KeyBlobs, error) {
	if state == nil || state.ScryptOnly == nil {
		return nil, fmt.Errorf("authblock: scrypt state missing: %w", types.CryptoErrorOtherFatal)
	}
	if input.Passkey.IsEmpty() {
		return nil, fmt.Errorf("authblock: passkey required: %w", types.CryptoErrorOtherFatal)
	}
	return a.deriveFromState(input.Passkey, state.ScryptOnly)
}

func (a *ScryptOnlyAuthBlock) deriveFromState(passkey *secret.Blob, st *ScryptOnlyState) (*types.KeyBlobs, error) {
	if len(st.Salt) == 0 {
		return nil, fmt.Errorf("authblock: scrypt state has no salt: %w", types.CryptoErrorOtherFatal)
	}
	n, r, p := st.WorkFactor, st.BlockSize, st.Parallel
	if n == 0 {
		n, r, p = cryptoutil.ScryptN, cryptoutil.ScryptR, cryptoutil.ScryptP
	}
	key, err := scrypt.Key(passkey.Bytes(), st.Salt, n, r, p, cryptoutil.AESKeySize)
	if err != nil {
		return nil, fmt.Errorf("authblock: scrypt derivation: %w: %v", types.CryptoErrorScryptCrypto, err)
	}
	vkk := secret.New(key)
	secret.Zero(key)
	return &types.KeyBlobs{VkkKey: vkk}, nil
}

// Verify interface compliance at compile time
var _ AuthBlock = (*ScryptOnlyAuthBlock)(nil)
