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

package vaultkeyset

import (
	"encoding/json"
	"fmt"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/authblock"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/secret"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

// serializedKeyset is the on-disk form of one slot file. Binary fields
// are base64 in the JSON encoding. The slot index is not stored; it is
// implied by the filename.
type serializedKeyset struct {
	Flags            int32            `json:"flags"`
	KeyData          *types.KeyData   `json:"key_data,omitempty"`
	WrappedKeyset    []byte           `json:"wrapped_keyset"`
	WrappedChapsKey  []byte           `json:"wrapped_chaps_key,omitempty"`
	WrappedResetSeed []byte           `json:"wrapped_reset_seed,omitempty"`
	ResetSalt        []byte           `json:"reset_salt,omitempty"`
	LELabel          *uint64          `json:"le_label,omitempty"`
	AuthBlockState   *authblock.State `json:"auth_block_state"`
}

func (s *serializedKeyset) validate() error {
	if len(s.WrappedKeyset) == 0 {
		return fmt.Errorf("vaultkeyset: record has no wrapped keyset")
	}
	if s.AuthBlockState == nil {
		return fmt.Errorf("vaultkeyset: record has no auth block state")
	}
	if err := s.AuthBlockState.Validate(); err != nil {
		return fmt.Errorf("vaultkeyset: %w", err)
	}
	return nil
}

// keysetPayload is the plaintext protected by wrapped_keyset.
type keysetPayload struct {
	FEK      []byte `json:"fek"`
	FNEK     []byte `json:"fnek"`
	FEKSalt  []byte `json:"fek_salt"`
	FNEKSalt []byte `json:"fnek_salt"`
	FEKSig   []byte `json:"fek_sig"`
	FNEKSig  []byte `json:"fnek_sig"`
}

func payloadFromFileSystemKeyset(fsk *types.FileSystemKeyset) ([]byte, error) {
	payload := keysetPayload{
		FEK:      fsk.FEK.Bytes(),
		FNEK:     fsk.FNEK.Bytes(),
		FEKSalt:  fsk.FEKSalt.Bytes(),
		FNEKSalt: fsk.FNEKSalt.Bytes(),
		FEKSig:   fsk.FEKSig.Bytes(),
		FNEKSig:  fsk.FNEKSig.Bytes(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("vaultkeyset: encoding keyset payload: %w", err)
	}
	return data, nil
}

// fileSystemKeysetFromPayload rebuilds the in-memory keys. The chaps key
// is wrapped separately and attached by the caller.
func fileSystemKeysetFromPayload(data []byte) (*types.FileSystemKeyset, error) {
	var payload keysetPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("vaultkeyset: decoding keyset payload: %w", err)
	}
	fsk := &types.FileSystemKeyset{
		FEK:      secret.New(payload.FEK),
		FNEK:     secret.New(payload.FNEK),
		FEKSalt:  secret.New(payload.FEKSalt),
		FNEKSalt: secret.New(payload.FNEKSalt),
		FEKSig:   secret.New(payload.FEKSig),
		FNEKSig:  secret.New(payload.FNEKSig),
	}
	secret.Zero(payload.FEK)
	secret.Zero(payload.FNEK)
	secret.Zero(payload.FEKSalt)
	secret.Zero(payload.FNEKSalt)
	secret.Zero(payload.FEKSig)
	secret.Zero(payload.FNEKSig)
	return fsk, nil
}
