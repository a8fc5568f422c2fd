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

package keyset

import (
	"context"
	"fmt"
	"time"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/authblock"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/correlation"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/logging"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/metrics"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/vaultkeyset"
)

// AddInitialKeyset creates a user's first keyset at slot 0 from the
// given filesystem keyset, encrypted with the strongest available auth
// block. Valid only while the user has zero keysets. A fresh reset seed
// is generated and wrapped into the record so rate-limited keysets can
// be added later. Nothing is persisted on failure.
func (km *Management) AddInitialKeyset(ctx context.Context, creds *types.Credentials, fsKeyset *types.FileSystemKeyset) (ok bool) {
	start := time.Now()
	defer func() { observe(metrics.OpAddInitialKeyset, start, ok) }()
	log := km.logger.With("operation_id", correlation.GetOrGenerate(ctx))

	obfuscated := creds.ObfuscatedUsername(km.systemSalt)
	return km.addInitialKeyset(log, obfuscated, creds.KeyData, fsKeyset, func(vk *vaultkeyset.VaultKeyset) error {
		return vk.Encrypt(ctx, creds.Passkey, obfuscated)
	})
}

// AddInitialKeysetWithKeyBlobs is AddInitialKeyset for callers whose
// auth block pipeline already produced the key material. The blobs are
// consumed.
func (km *Management) AddInitialKeysetWithKeyBlobs(user types.ObfuscatedUsername, keyData types.KeyData, fsKeyset *types.FileSystemKeyset, blobs *types.KeyBlobs, state *authblock.State) (ok bool) {
	start := time.Now()
	defer func() { observe(metrics.OpAddInitialKeyset, start, ok) }()

	return km.addInitialKeyset(km.logger, user, keyData, fsKeyset, func(vk *vaultkeyset.VaultKeyset) error {
		return vk.EncryptEx(blobs, state)
	})
}

func (km *Management) addInitialKeyset(log *logging.Logger, user types.ObfuscatedUsername, keyData types.KeyData, fsKeyset *types.FileSystemKeyset, encrypt func(*vaultkeyset.VaultKeyset) error) bool {
	indices, err := km.GetVaultKeysets(user)
	if err != nil {
		log.Warnf("keyset: enumerating keysets for %s: %v", user, err)
		return false
	}
	if len(indices) != 0 {
		log.Warnf("keyset: refusing initial keyset, %s already has %d", user, len(indices))
		return false
	}

	vk := km.vkFactory.New()
	if err := vk.InitializeFromFileSystemKeyset(fsKeyset); err != nil {
		log.Errorf("keyset: initializing record: %v", err)
		return false
	}
	if err := vk.CreateRandomResetSeed(); err != nil {
		log.Errorf("keyset: generating reset seed: %v", err)
		return false
	}
	vk.SetIndex(InitialKeysetIndex)
	vk.SetKeyData(keyData)

	if err := km.platform.CreateDirectory(km.userDir(user), keysetDirPerms); err != nil {
		log.Errorf("keyset: creating keyset directory for %s: %v", user, err)
		return false
	}
	if err := encrypt(vk); err != nil {
		log.Errorf("keyset: encrypting initial keyset for %s: %v", user, err)
		return false
	}
	if err := vk.Save(km.keysetPath(user, InitialKeysetIndex)); err != nil {
		log.Errorf("keyset: saving initial keyset for %s: %v", user, err)
		return false
	}
	log.Infof("keyset: added initial keyset for %s", user)
	return true
}

// AddKeyset binds new credentials to the reference keyset's filesystem
// keys at the lowest free slot. A label collision returns
// ErrorCodeKeyLabelExists unless clobber is set, in which case the
// colliding slot is overwritten in place. The reference must hold
// decrypted keys.
func (km *Management) AddKeyset(ctx context.Context, newCreds *types.Credentials, reference *vaultkeyset.VaultKeyset, clobber bool) (code types.ErrorCode) {
	start := time.Now()
	defer func() { observe(metrics.OpAddKeyset, start, code == types.ErrorCodeNotSet) }()
	log := km.logger.With("operation_id", correlation.GetOrGenerate(ctx))

	obfuscated := newCreds.ObfuscatedUsername(km.systemSalt)
	return km.addKeyset(log, obfuscated, newCreds.KeyData, reference, clobber, func(vk *vaultkeyset.VaultKeyset) error {
		return vk.Encrypt(ctx, newCreds.Passkey, obfuscated)
	})
}

// AddKeysetWithKeyBlobs is AddKeyset for externally produced key
// material. The blobs are consumed.
func (km *Management) AddKeysetWithKeyBlobs(user types.ObfuscatedUsername, keyData types.KeyData, reference *vaultkeyset.VaultKeyset, blobs *types.KeyBlobs, state *authblock.State, clobber bool) (code types.ErrorCode) {
	start := time.Now()
	defer func() { observe(metrics.OpAddKeyset, start, code == types.ErrorCodeNotSet) }()

	return km.addKeyset(km.logger, user, keyData, reference, clobber, func(vk *vaultkeyset.VaultKeyset) error {
		return vk.EncryptEx(blobs, state)
	})
}

// addKeyset walks the slot namespace for the first free index, reserves
// it with an exclusive create, then redirects to an existing slot when
// the label already exists and clobbering is allowed. Nothing stops
// simultaneous access to these files; callers serialize per user.
func (km *Management) addKeyset(log *logging.Logger, user types.ObfuscatedUsername, keyData types.KeyData, reference *vaultkeyset.VaultKeyset, clobber bool, encrypt func(*vaultkeyset.VaultKeyset) error) types.ErrorCode {
	path := ""
	index := -1
	for i := 0; i < MaxKeysets; i++ {
		candidate := km.keysetPath(user, i)
		if km.platform.FileExists(candidate) {
			continue
		}
		if err := km.platform.TouchFileDurable(candidate); err != nil {
			log.Debugf("keyset: reserving slot %d for %s: %v", i, user, err)
			continue
		}
		path, index = candidate, i
		break
	}
	if index < 0 {
		log.Warnf("keyset: no free slots for %s", user)
		return types.ErrorCodeKeyQuotaExceeded
	}

	// The reservation is surplus once an existing record carries the
	// label; the overwrite happens at that record's own slot.
	overwriting := false
	if match := km.GetVaultKeyset(user, keyData.Label); match != nil {
		if err := km.platform.DeleteFile(path); err != nil {
			log.Warnf("keyset: releasing reserved slot %d for %s: %v", index, user, err)
		}
		if !clobber {
			return types.ErrorCodeKeyLabelExists
		}
		path = match.SourceFile()
		index = match.Index()
		overwriting = true
	}

	cleanup := func() {
		if overwriting {
			return
		}
		if err := km.platform.DeleteFile(path); err != nil {
			log.Warnf("keyset: cleaning up slot %d for %s: %v", index, user, err)
		}
	}

	vk := km.vkFactory.New()
	if err := vk.InitializeToAdd(reference); err != nil {
		log.Errorf("keyset: initializing record from reference: %v", err)
		cleanup()
		return types.ErrorCodeBackingStoreFailure
	}
	vk.SetIndex(index)
	vk.SetKeyData(keyData)

	if err := encrypt(vk); err != nil {
		log.Errorf("keyset: encrypting keyset %q for %s: %v", keyData.Label, user, err)
		cleanup()
		return types.ErrorCodeBackingStoreFailure
	}
	if err := vk.Save(path); err != nil {
		log.Errorf("keyset: saving keyset %q for %s: %v", keyData.Label, user, err)
		cleanup()
		return types.ErrorCodeBackingStoreFailure
	}
	log.Infof("keyset: added keyset %q at slot %d for %s", vk.Label(), index, user)
	return types.ErrorCodeNotSet
}

// UpdateKeyset re-encrypts the reference keyset in place under new
// credentials. The credentials must carry the reference's label; the
// slot index is preserved.
func (km *Management) UpdateKeyset(ctx context.Context, creds *types.Credentials, reference *vaultkeyset.VaultKeyset) (code types.ErrorCode) {
	start := time.Now()
	defer func() { observe(metrics.OpUpdateKeyset, start, code == types.ErrorCodeNotSet) }()
	log := km.logger.With("operation_id", correlation.GetOrGenerate(ctx))

	obfuscated := creds.ObfuscatedUsername(km.systemSalt)
	if code := km.checkUpdateTarget(obfuscated, creds.KeyData, reference); code != types.ErrorCodeNotSet {
		return code
	}
	return km.addKeyset(log, obfuscated, creds.KeyData, reference, true, func(vk *vaultkeyset.VaultKeyset) error {
		return vk.Encrypt(ctx, creds.Passkey, obfuscated)
	})
}

// UpdateKeysetWithKeyBlobs is UpdateKeyset for externally produced key
// material. The blobs are consumed.
func (km *Management) UpdateKeysetWithKeyBlobs(user types.ObfuscatedUsername, keyData types.KeyData, reference *vaultkeyset.VaultKeyset, blobs *types.KeyBlobs, state *authblock.State) (code types.ErrorCode) {
	start := time.Now()
	defer func() { observe(metrics.OpUpdateKeyset, start, code == types.ErrorCodeNotSet) }()

	if code := km.checkUpdateTarget(user, keyData, reference); code != types.ErrorCodeNotSet {
		return code
	}
	return km.addKeyset(km.logger, user, keyData, reference, true, func(vk *vaultkeyset.VaultKeyset) error {
		return vk.EncryptEx(blobs, state)
	})
}

func (km *Management) checkUpdateTarget(user types.ObfuscatedUsername, keyData types.KeyData, reference *vaultkeyset.VaultKeyset) types.ErrorCode {
	if keyData.Label != reference.Label() {
		km.logger.Warnf("keyset: update label %q does not match target %q", keyData.Label, reference.Label())
		return types.ErrorCodeAuthorizationKeyNotFound
	}
	if km.GetVaultKeyset(user, reference.Label()) == nil {
		km.logger.Warnf("keyset: update target %q not on disk for %s", reference.Label(), user)
		return types.ErrorCodeAuthorizationKeyNotFound
	}
	return types.ErrorCodeNotSet
}

// RemoveKeyset deletes the keyset carrying the target label after the
// authorization credentials independently re-validate. The target's
// rate-limit leaf, if any, is removed best-effort before the file.
func (km *Management) RemoveKeyset(ctx context.Context, authCreds *types.Credentials, target types.KeyData) (code types.ErrorCode) {
	start := time.Now()
	defer func() { observe(metrics.OpRemoveKeyset, start, code == types.ErrorCodeNotSet) }()
	log := km.logger.With("operation_id", correlation.GetOrGenerate(ctx))

	obfuscated := authCreds.ObfuscatedUsername(km.systemSalt)
	targetVK := km.GetVaultKeyset(obfuscated, target.Label)
	if targetVK == nil {
		return types.ErrorCodeKeyNotFound
	}
	if authCreds.KeyData.Label != "" && km.GetVaultKeyset(obfuscated, authCreds.KeyData.Label) == nil {
		return types.ErrorCodeAuthorizationKeyNotFound
	}

	authVK, mountErr := km.GetValidKeyset(ctx, authCreds)
	if authVK == nil {
		log.Warnf("keyset: removal of %q refused, authorization failed: %s", target.Label, mountErr)
		return types.ErrorCodeAuthorizationKeyFailed
	}
	authVK.ClearSecrets()

	if !km.ForceRemoveKeyset(obfuscated, targetVK.Index()) {
		return types.ErrorCodeBackingStoreFailure
	}
	log.Infof("keyset: removed keyset %q at slot %d for %s", target.Label, targetVK.Index(), obfuscated)
	return types.ErrorCodeNotSet
}

// ForceRemoveKeyset deletes the keyset at the given slot without
// authentication. An out-of-range index reports false; an absent slot
// reports true. When the record loads and is rate-limited, its leaf is
// removed best-effort first.
func (km *Management) ForceRemoveKeyset(user types.ObfuscatedUsername, index int) (ok bool) {
	start := time.Now()
	defer func() { observe(metrics.OpForceRemoveKeyset, start, ok) }()

	if index < 0 || index >= MaxKeysets {
		return false
	}
	vk, err := km.loadVaultKeyset(user, index)
	if err != nil {
		// Nothing usable lives at this slot, so there is nothing left
		// to do.
		km.logger.Debugf("keyset: force remove slot %d for %s: %v", index, user, err)
		return true
	}
	if vk.IsLECredential() && km.le != nil {
		if label, has := vk.LELabel(); has {
			if err := km.le.RemoveCredential(label); err != nil {
				km.logger.Errorf("keyset: removing rate-limit leaf %d: %v", label, err)
			}
		}
	}
	if err := km.platform.DeleteFile(km.keysetPath(user, index)); err != nil {
		km.logger.Errorf("keyset: deleting slot %d for %s: %v", index, user, err)
		return false
	}
	return true
}

// MoveKeyset relocates a keyset from slot src to slot dst. It fails on
// an out-of-range index, an absent src, or a present dst. The dst slot
// is reserved with an exclusive create before the rename; when the
// rename then fails, the reservation file is left behind at dst and
// callers must tolerate it.
func (km *Management) MoveKeyset(user types.ObfuscatedUsername, src, dst int) (ok bool) {
	start := time.Now()
	defer func() { observe(metrics.OpMoveKeyset, start, ok) }()

	if src < 0 || src >= MaxKeysets || dst < 0 || dst >= MaxKeysets {
		return false
	}
	srcPath := km.keysetPath(user, src)
	dstPath := km.keysetPath(user, dst)
	if !km.platform.FileExists(srcPath) {
		km.logger.Warnf("keyset: move source slot %d for %s does not exist", src, user)
		return false
	}
	if km.platform.FileExists(dstPath) {
		km.logger.Warnf("keyset: move destination slot %d for %s already exists", dst, user)
		return false
	}
	if err := km.platform.TouchFileDurable(dstPath); err != nil {
		km.logger.Warnf("keyset: reserving destination slot %d for %s: %v", dst, user, err)
		return false
	}
	if err := km.platform.Rename(srcPath, dstPath); err != nil {
		km.logger.Errorf("keyset: renaming slot %d to %d for %s: %v", src, dst, user, err)
		return false
	}
	return true
}

// AddWrappedResetSeedIfMissing generates a reset seed for a keyset that
// predates them and persists the re-encrypted record, so rate-limited
// credentials can later be reset from this keyset. The record must hold
// decrypted keys.
func (km *Management) AddWrappedResetSeedIfMissing(ctx context.Context, vk *vaultkeyset.VaultKeyset, creds *types.Credentials) error {
	if vk.HasWrappedResetSeed() {
		return nil
	}
	log := km.logger.With("operation_id", correlation.GetOrGenerate(ctx))

	obfuscated := creds.ObfuscatedUsername(km.systemSalt)
	if vk.ResetSeed().IsEmpty() {
		if err := vk.CreateRandomResetSeed(); err != nil {
			return fmt.Errorf("keyset: generating reset seed: %w", err)
		}
	}
	log.Infof("keyset: attaching missing reset seed to slot %d for %s", vk.Index(), obfuscated)
	if err := vk.Encrypt(ctx, creds.Passkey, obfuscated); err != nil {
		return fmt.Errorf("keyset: re-encrypting slot %d: %w", vk.Index(), err)
	}
	if err := vk.Save(vk.SourceFile()); err != nil {
		return fmt.Errorf("keyset: saving slot %d: %w", vk.Index(), err)
	}
	return nil
}
