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
	"errors"
	"fmt"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/cryptoutil"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/lecredential"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/secret"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

// PinWeaverAuthBlock protects PIN-class factors through the rate-limited
// credential store. The unwrapping key lives in a leaf there and is
// released only after the store accepts the attempt, so offline guessing
// against the envelope is not possible.
type PinWeaverAuthBlock struct {
	le     lecredential.Manager
	policy lecredential.Policy
}

// NewPinWeaverAuthBlock creates the rate-limited variant.
func NewPinWeaverAuthBlock(le lecredential.Manager, policy lecredential.Policy) *PinWeaverAuthBlock {
	return &PinWeaverAuthBlock{le: le, policy: policy}
}

// leSecret derives the low entropy secret checked by the store.
func leSecretFromPasskey(passkey *secret.Blob, salt []byte) (*secret.Blob, error) {
	le, err := cryptoutil.DeriveScryptKey(passkey, salt, cryptoutil.AESKeySize)
	if err != nil {
		return nil, fmt.Errorf("authblock: deriving le secret: %w: %v", types.CryptoErrorScryptCrypto, err)
	}
	return le, nil
}

// Create inserts a fresh leaf holding a random high entropy secret and
// the reset secret derived from the caller's reset seed.
func (a *PinWeaverAuthBlock) Create(ctx context.Context, input AuthInput) (*types.KeyBlobs, *State, error) {
	if a.le == nil {
		return nil, nil, fmt.Errorf("authblock: no low entropy credential backend: %w", types.CryptoErrorOtherFatal)
	}
	if input.Passkey.IsEmpty() {
		return nil, nil, fmt.Errorf("authblock: passkey required: %w", types.CryptoErrorOtherFatal)
	}
	if input.ResetSeed.IsEmpty() || len(input.ResetSalt) == 0 {
		return nil, nil, fmt.Errorf("authblock: reset seed and salt required for rate-limited keysets: %w", types.CryptoErrorOtherFatal)
	}

	salt, err := cryptoutil.GetSecureRandom(types.SaltSize)
	if err != nil {
		return nil, nil, fmt.Errorf("authblock: generating salt: %w", types.CryptoErrorOtherFatal)
	}
	leSecret, err := leSecretFromPasskey(input.Passkey, salt)
	if err != nil {
		return nil, nil, err
	}
	defer leSecret.Clear()

	heSecret, err := secret.NewRandom(cryptoutil.AESKeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("authblock: generating he secret: %w", types.CryptoErrorOtherFatal)
	}
	resetSecret := types.DeriveResetSecret(input.ResetSeed, input.ResetSalt)

	label, err := a.le.InsertCredential(leSecret, heSecret, resetSecret, a.policy)
	if err != nil {
		heSecret.Clear()
		resetSecret.Clear()
		return nil, nil, fmt.Errorf("authblock: inserting credential leaf: %w: %v", types.CryptoErrorOtherFatal, err)
	}

	state := &State{
		PinWeaver: &PinWeaverState{
			LELabel:   label,
			Salt:      salt,
			ResetSalt: input.ResetSalt,
		},
	}
	return &types.KeyBlobs{VkkKey: heSecret, ResetSecret: resetSecret}, state, nil
}

// Derive asks the store to release the leaf's payload for this attempt.
func (a *PinWeaverAuthBlock) Derive(ctx context.Context, input AuthInput, state *State) (*types.KeyBlobs, error) {
	if a.le == nil {
		return nil, fmt.Errorf("authblock: no low entropy credential backend: %w", types.CryptoErrorOtherFatal)
	}
	if state == nil || state.PinWeaver == nil {
		return nil, fmt.Errorf("authblock: pin weaver state missing: %w", types.CryptoErrorOtherFatal)
	}
	st := state.PinWeaver
	if input.Passkey.IsEmpty() {
		return nil, fmt.Errorf("authblock: passkey required: %w", types.CryptoErrorOtherFatal)
	}
	leSecret, err := leSecretFromPasskey(input.Passkey, st.Salt)
	if err != nil {
		return nil, err
	}
	defer leSecret.Clear()

	blobs, err := a.le.CheckCredential(st.LELabel, leSecret)
	if err != nil {
		return nil, classifyLEError(err)
	}
	return blobs, nil
}

// classifyLEError maps credential store failures onto the crypto error
// taxonomy the mount layer understands.
func classifyLEError(err error) error {
	switch {
	case errors.Is(err, lecredential.ErrCredentialLocked):
		return fmt.Errorf("authblock: credential locked: %w", types.CryptoErrorTPMDefendLock)
	case errors.Is(err, lecredential.ErrInvalidLESecret):
		return fmt.Errorf("authblock: wrong credential: %w", types.CryptoErrorLEInvalidSecret)
	case errors.Is(err, lecredential.ErrLabelNotFound):
		return fmt.Errorf("authblock: credential leaf missing: %w", types.CryptoErrorOtherFatal)
	default:
		return fmt.Errorf("authblock: credential check: %w: %v", types.CryptoErrorOtherFatal, err)
	}
}

// Verify interface compliance at compile time
var _ AuthBlock = (*PinWeaverAuthBlock)(nil)
