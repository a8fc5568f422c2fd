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

// Package vaultkeyset holds the per-slot credential record: the user's
// file system keys wrapped under key material an AuthBlock can rebuild
// from an authentication factor. One record is one file; the slot index
// is the filename's numeric suffix.
package vaultkeyset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/authblock"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/cryptoutil"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/logging"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/secret"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/storage"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

// LegacyLabelPrefix prefixes the label synthesized for records persisted
// without key data.
const LegacyLabelPrefix = "legacy-"

const keysetFilePerms fs.FileMode = 0600

var ErrNotInitialized = errors.New("vaultkeyset: record not bound to platform and crypto")

// VaultKeyset is one credential record. The wrapped fields round-trip
// through disk; the plaintext fields exist only after a successful
// Decrypt or an Initialize call and are zeroed by ClearSecrets.
type VaultKeyset struct {
	platform storage.Platform
	crypto   *authblock.Factory
	logger   *logging.Logger

	index      int
	sourceFile string

	flags            int32
	keyData          types.KeyData
	hasKeyData       bool
	wrappedKeyset    []byte
	wrappedChapsKey  []byte
	wrappedResetSeed []byte
	resetSalt        []byte
	leLabel          *uint64
	authState        *authblock.State

	fsk         *types.FileSystemKeyset
	resetSeed   *secret.Blob
	resetSecret *secret.Blob
}

// Initialize binds the record to its collaborators. Records are unusable
// until initialized; the factory does this.
func (vk *VaultKeyset) Initialize(platform storage.Platform, crypto *authblock.Factory, logger *logging.Logger) {
	vk.platform = platform
	vk.crypto = crypto
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	vk.logger = logger
}

// Index returns the slot index.
func (vk *VaultKeyset) Index() int { return vk.index }

// SetIndex records the slot index the file was found at or will be saved
// to.
func (vk *VaultKeyset) SetIndex(index int) { vk.index = index }

// SourceFile returns the path the record was last loaded from or saved
// to.
func (vk *VaultKeyset) SourceFile() string { return vk.sourceFile }

// Flags returns the wrapping flag bits.
func (vk *VaultKeyset) Flags() int32 { return vk.flags }

// KeyData returns the key metadata.
func (vk *VaultKeyset) KeyData() types.KeyData { return vk.keyData }

// HasKeyData reports whether the record carries key metadata.
func (vk *VaultKeyset) HasKeyData() bool { return vk.hasKeyData }

// SetKeyData attaches key metadata.
func (vk *VaultKeyset) SetKeyData(keyData types.KeyData) {
	vk.keyData = keyData
	vk.hasKeyData = true
}

// Label returns the keyset's label, synthesizing the legacy form for
// records without one.
func (vk *VaultKeyset) Label() string {
	if vk.hasKeyData && vk.keyData.Label != "" {
		return vk.keyData.Label
	}
	return fmt.Sprintf("%s%d", LegacyLabelPrefix, vk.index)
}

// IsLECredential reports whether the record is backed by the rate-limited
// credential store.
func (vk *VaultKeyset) IsLECredential() bool {
	return vk.flags&types.KeysetFlagLECredential != 0
}

// IsTPMWrapped reports whether the envelope is hardware-sealed.
func (vk *VaultKeyset) IsTPMWrapped() bool {
	return vk.flags&types.KeysetFlagTPMWrapped != 0
}

// IsPCRBound reports whether the envelope is bound to platform
// configuration.
func (vk *VaultKeyset) IsPCRBound() bool {
	return vk.flags&types.KeysetFlagPCRBound != 0
}

// HasWrappedResetSeed reports whether the record carries a wrapped reset
// seed.
func (vk *VaultKeyset) HasWrappedResetSeed() bool {
	return len(vk.wrappedResetSeed) > 0
}

// LELabel returns the credential store label for rate-limited records.
func (vk *VaultKeyset) LELabel() (uint64, bool) {
	if vk.leLabel == nil {
		return 0, false
	}
	return *vk.leLabel, true
}

// ResetSalt returns the salt the record's reset secret is derived with.
func (vk *VaultKeyset) ResetSalt() []byte { return vk.resetSalt }

// AuthBlockState returns the persisted variant state.
func (vk *VaultKeyset) AuthBlockState() *authblock.State { return vk.authState }

// TpmPublicKeyHash returns the sealing hierarchy hash recorded at
// encryption time, nil for software envelopes.
func (vk *VaultKeyset) TpmPublicKeyHash() []byte {
	if vk.authState == nil {
		return nil
	}
	switch {
	case vk.authState.TpmBoundToPcr != nil:
		return vk.authState.TpmBoundToPcr.TpmPublicKeyHash
	case vk.authState.TpmBoundToEcc != nil:
		return vk.authState.TpmBoundToEcc.TpmPublicKeyHash
	}
	return nil
}

// FileSystemKeyset returns the decrypted file system keys, nil before a
// successful Decrypt.
func (vk *VaultKeyset) FileSystemKeyset() *types.FileSystemKeyset { return vk.fsk }

// ResetSeed returns the decrypted reset seed, nil when absent.
func (vk *VaultKeyset) ResetSeed() *secret.Blob { return vk.resetSeed }

// SetResetSeed attaches a reset seed, taking ownership of the blob.
func (vk *VaultKeyset) SetResetSeed(seed *secret.Blob) {
	vk.resetSeed.Clear()
	vk.resetSeed = seed
}

// ResetSecret returns the per-credential reset secret for rate-limited
// records, nil otherwise.
func (vk *VaultKeyset) ResetSecret() *secret.Blob { return vk.resetSecret }

// CreateRandomResetSeed generates a fresh reset seed for this record.
func (vk *VaultKeyset) CreateRandomResetSeed() error {
	seed, err := secret.NewRandom(types.ResetSeedSize)
	if err != nil {
		return fmt.Errorf("vaultkeyset: generating reset seed: %w", err)
	}
	vk.SetResetSeed(seed)
	return nil
}

// InitializeFromFileSystemKeyset seeds a fresh record from the user's
// file system keys. The keys are copied; the caller keeps ownership of
// fsk.
func (vk *VaultKeyset) InitializeFromFileSystemKeyset(fsk *types.FileSystemKeyset) error {
	if fsk == nil || fsk.FEK.IsEmpty() {
		return errors.New("vaultkeyset: file system keyset required")
	}
	vk.fsk.Clear()
	vk.fsk = &types.FileSystemKeyset{
		FEK:      fsk.FEK.Clone(),
		FNEK:     fsk.FNEK.Clone(),
		FEKSalt:  fsk.FEKSalt.Clone(),
		FNEKSalt: fsk.FNEKSalt.Clone(),
		FEKSig:   fsk.FEKSig.Clone(),
		FNEKSig:  fsk.FNEKSig.Clone(),
		ChapsKey: fsk.ChapsKey.Clone(),
	}
	return nil
}

// InitializeToAdd seeds this record with the decrypted material of an
// authenticated sibling so both wrap the same file system keys and reset
// seed.
func (vk *VaultKeyset) InitializeToAdd(reference *VaultKeyset) error {
	if reference == nil || reference.fsk == nil {
		return errors.New("vaultkeyset: reference keyset is not decrypted")
	}
	if err := vk.InitializeFromFileSystemKeyset(reference.fsk); err != nil {
		return err
	}
	if !reference.resetSeed.IsEmpty() {
		vk.SetResetSeed(reference.resetSeed.Clone())
	}
	return nil
}

// ClearSecrets zeroes and drops all decrypted material.
func (vk *VaultKeyset) ClearSecrets() {
	vk.fsk.Clear()
	vk.fsk = nil
	vk.resetSeed.Clear()
	vk.resetSeed = nil
	vk.resetSecret.Clear()
	vk.resetSecret = nil
}

// Load reads and validates the record at path. Decrypted material is not
// touched; the wrapped fields replace whatever was loaded before.
func (vk *VaultKeyset) Load(path string) error {
	if vk.platform == nil {
		return ErrNotInitialized
	}
	data, err := vk.platform.ReadFile(path)
	if err != nil {
		return fmt.Errorf("vaultkeyset: reading %s: %w", path, err)
	}
	var ser serializedKeyset
	if err := json.Unmarshal(data, &ser); err != nil {
		return fmt.Errorf("vaultkeyset: decoding %s: %w", path, err)
	}
	if err := ser.validate(); err != nil {
		return fmt.Errorf("%w (%s)", err, path)
	}

	vk.flags = ser.Flags
	if ser.KeyData != nil {
		vk.keyData = *ser.KeyData
		vk.hasKeyData = true
	} else {
		vk.keyData = types.KeyData{}
		vk.hasKeyData = false
	}
	vk.wrappedKeyset = ser.WrappedKeyset
	vk.wrappedChapsKey = ser.WrappedChapsKey
	vk.wrappedResetSeed = ser.WrappedResetSeed
	vk.resetSalt = ser.ResetSalt
	vk.leLabel = ser.LELabel
	vk.authState = ser.AuthBlockState
	vk.sourceFile = path
	return nil
}

func (vk *VaultKeyset) toSerialized() *serializedKeyset {
	ser := &serializedKeyset{
		Flags:            vk.flags,
		WrappedKeyset:    vk.wrappedKeyset,
		WrappedChapsKey:  vk.wrappedChapsKey,
		WrappedResetSeed: vk.wrappedResetSeed,
		ResetSalt:        vk.resetSalt,
		LELabel:          vk.leLabel,
		AuthBlockState:   vk.authState,
	}
	if vk.hasKeyData {
		keyData := vk.keyData
		ser.KeyData = &keyData
	}
	return ser
}

// Save writes the record to path with the atomic, durable discipline.
func (vk *VaultKeyset) Save(path string) error {
	if vk.platform == nil {
		return ErrNotInitialized
	}
	ser := vk.toSerialized()
	if err := ser.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(ser)
	if err != nil {
		return fmt.Errorf("vaultkeyset: encoding record: %w", err)
	}
	if err := vk.platform.WriteFileAtomicDurable(path, data, keysetFilePerms); err != nil {
		return fmt.Errorf("vaultkeyset: writing %s: %w", path, err)
	}
	vk.sourceFile = path
	return nil
}

// Encrypt wraps the record's plaintext keys under a fresh envelope
// derived from the passkey with the strongest variant available.
func (vk *VaultKeyset) Encrypt(ctx context.Context, passkey *secret.Blob, obfuscated types.ObfuscatedUsername) error {
	if vk.crypto == nil {
		return ErrNotInitialized
	}
	if vk.fsk == nil {
		return errors.New("vaultkeyset: no file system keyset to protect")
	}
	block, err := vk.crypto.ForCreation(vk.keyData)
	if err != nil {
		return err
	}
	input := authblock.AuthInput{
		Passkey:            passkey,
		ObfuscatedUsername: obfuscated,
	}
	if vk.keyData.Policy.LowEntropyCredential {
		// The reset seed is mandatory for rate-limited keysets: without
		// it a lockout could never be cleared.
		if vk.resetSeed.IsEmpty() {
			return errors.New("vaultkeyset: rate-limited keyset requires a reset seed")
		}
		resetSalt, err := cryptoutil.GetSecureRandom(types.ResetSaltSize)
		if err != nil {
			return fmt.Errorf("vaultkeyset: generating reset salt: %w", err)
		}
		input.ResetSeed = vk.resetSeed
		input.ResetSalt = resetSalt
	}
	blobs, state, err := block.Create(ctx, input)
	if err != nil {
		return err
	}
	return vk.EncryptEx(blobs, state)
}

// EncryptEx wraps the record's plaintext keys under externally produced
// key material. The blobs are consumed: whatever the record does not
// take over is zeroed before returning.
func (vk *VaultKeyset) EncryptEx(blobs *types.KeyBlobs, state *authblock.State) error {
	defer blobs.Clear()
	if vk.fsk == nil {
		return errors.New("vaultkeyset: no file system keyset to protect")
	}
	if blobs == nil || blobs.VkkKey.IsEmpty() {
		return errors.New("vaultkeyset: key blobs carry no vault keyset key")
	}
	if state == nil {
		return errors.New("vaultkeyset: auth block state required")
	}
	flags, err := state.KeysetFlags()
	if err != nil {
		return fmt.Errorf("vaultkeyset: %w", err)
	}

	payload, err := payloadFromFileSystemKeyset(vk.fsk)
	if err != nil {
		return err
	}
	defer secret.Zero(payload)
	wrappedKeyset, err := cryptoutil.EncryptAESGCM(blobs.VkkKey, payload)
	if err != nil {
		return fmt.Errorf("vaultkeyset: wrapping keyset: %w", err)
	}

	var wrappedChaps []byte
	if !vk.fsk.ChapsKey.IsEmpty() {
		wrappedChaps, err = cryptoutil.EncryptAESGCM(blobs.VkkKey, vk.fsk.ChapsKey.Bytes())
		if err != nil {
			return fmt.Errorf("vaultkeyset: wrapping chaps key: %w", err)
		}
	}

	var wrappedResetSeed []byte
	if !vk.resetSeed.IsEmpty() {
		wrappedResetSeed, err = cryptoutil.EncryptAESGCM(blobs.VkkKey, vk.resetSeed.Bytes())
		if err != nil {
			return fmt.Errorf("vaultkeyset: wrapping reset seed: %w", err)
		}
	}

	vk.flags = flags
	vk.wrappedKeyset = wrappedKeyset
	vk.wrappedChapsKey = wrappedChaps
	vk.wrappedResetSeed = wrappedResetSeed
	vk.authState = state

	if state.PinWeaver != nil {
		label := state.PinWeaver.LELabel
		vk.leLabel = &label
		if len(state.PinWeaver.ResetSalt) > 0 {
			vk.resetSalt = state.PinWeaver.ResetSalt
		}
		vk.resetSecret.Clear()
		vk.resetSecret = blobs.ResetSecret
		blobs.ResetSecret = nil
	} else {
		vk.leLabel = nil
	}
	return nil
}

// Decrypt authenticates the passkey against the persisted envelope and
// recovers the plaintext keys. Failures carry a types.CryptoError
// classification.
func (vk *VaultKeyset) Decrypt(ctx context.Context, passkey *secret.Blob) error {
	if vk.crypto == nil {
		return ErrNotInitialized
	}
	if vk.authState == nil {
		return fmt.Errorf("vaultkeyset: record has no auth block state: %w", types.CryptoErrorOtherFatal)
	}
	block, err := vk.crypto.ForDerivation(vk.authState)
	if err != nil {
		return err
	}
	blobs, err := block.Derive(ctx, authblock.AuthInput{Passkey: passkey}, vk.authState)
	if err != nil {
		return err
	}
	return vk.DecryptEx(blobs)
}

// DecryptEx recovers the plaintext keys using externally produced key
// material. The blobs are consumed.
func (vk *VaultKeyset) DecryptEx(blobs *types.KeyBlobs) error {
	defer blobs.Clear()
	if blobs == nil || blobs.VkkKey.IsEmpty() {
		return fmt.Errorf("vaultkeyset: key blobs carry no vault keyset key: %w", types.CryptoErrorOtherFatal)
	}
	if len(vk.wrappedKeyset) == 0 {
		return fmt.Errorf("vaultkeyset: record has no wrapped keyset: %w", types.CryptoErrorOtherFatal)
	}

	payload, err := cryptoutil.DecryptAESGCM(blobs.VkkKey, vk.wrappedKeyset)
	if err != nil {
		if vk.flags&types.KeysetFlagScryptWrapped != 0 {
			return fmt.Errorf("vaultkeyset: unwrapping keyset: %w", types.CryptoErrorScryptCrypto)
		}
		return fmt.Errorf("vaultkeyset: unwrapping keyset: %w", types.CryptoErrorOtherCrypto)
	}
	fsk, err := fileSystemKeysetFromPayload(payload)
	secret.Zero(payload)
	if err != nil {
		return fmt.Errorf("%v: %w", err, types.CryptoErrorOtherFatal)
	}

	if len(vk.wrappedChapsKey) > 0 {
		chaps, err := cryptoutil.DecryptAESGCM(blobs.VkkKey, vk.wrappedChapsKey)
		if err != nil {
			fsk.Clear()
			return fmt.Errorf("vaultkeyset: unwrapping chaps key: %w", types.CryptoErrorOtherCrypto)
		}
		fsk.ChapsKey = secret.New(chaps)
		secret.Zero(chaps)
	}

	var resetSeed *secret.Blob
	if len(vk.wrappedResetSeed) > 0 {
		seed, err := cryptoutil.DecryptAESGCM(blobs.VkkKey, vk.wrappedResetSeed)
		if err != nil {
			fsk.Clear()
			return fmt.Errorf("vaultkeyset: unwrapping reset seed: %w", types.CryptoErrorOtherCrypto)
		}
		resetSeed = secret.New(seed)
		secret.Zero(seed)
	}

	vk.ClearSecrets()
	vk.fsk = fsk
	vk.resetSeed = resetSeed
	if blobs.ResetSecret != nil {
		vk.resetSecret = blobs.ResetSecret
		blobs.ResetSecret = nil
	}
	return nil
}
