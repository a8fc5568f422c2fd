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

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/correlation"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/logging"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/metrics"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/vaultkeyset"
)

// ShouldReSaveKeyset reports whether the record's envelope is weaker
// than what the platform can produce now. First match wins: a
// rate-limited keyset re-saves only when the backend wants its leaves
// rebound to platform state; otherwise, with hardware ready, a
// software-only envelope, a hardware envelope without a platform
// binding, and a bound envelope missing its recorded public key hash
// each re-save.
func (km *Management) ShouldReSaveKeyset(vk *vaultkeyset.VaultKeyset) bool {
	if vk.IsLECredential() {
		return km.le != nil && km.le.NeedsPcrBinding()
	}
	if !km.authFactory.HardwareReady() {
		return false
	}
	if !vk.IsTPMWrapped() {
		return true
	}
	if !vk.IsPCRBound() {
		return true
	}
	if len(vk.TpmPublicKeyHash()) == 0 {
		return true
	}
	return false
}

// ReSaveKeyset re-encrypts the record under the current best envelope,
// preserving its slot and label. The record must hold decrypted keys. A
// rate-limited keyset must carry a wrapped reset seed; re-saving it
// allocates a fresh leaf, and the old leaf is removed best-effort after
// the record persists. On failure the in-memory record is restored from
// disk.
func (km *Management) ReSaveKeyset(ctx context.Context, creds *types.Credentials, vk *vaultkeyset.VaultKeyset) (err error) {
	start := time.Now()
	defer func() {
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusError
		}
		metrics.RecordResave(status)
		observe(metrics.OpResaveKeyset, start, err == nil)
	}()
	log := km.logger.With("operation_id", correlation.GetOrGenerate(ctx))

	if vk.IsLECredential() && !vk.HasWrappedResetSeed() {
		return fmt.Errorf("keyset: slot %d: rate-limited keyset carries no wrapped reset seed", vk.Index())
	}

	obfuscated := creds.ObfuscatedUsername(km.systemSalt)
	oldLELabel, hadLELabel := vk.LELabel()

	if err := vk.Encrypt(ctx, creds.Passkey, obfuscated); err != nil {
		km.restoreFromDisk(log, vk)
		return fmt.Errorf("keyset: re-encrypting slot %d: %w", vk.Index(), err)
	}
	if err := vk.Save(vk.SourceFile()); err != nil {
		km.restoreFromDisk(log, vk)
		return fmt.Errorf("keyset: saving slot %d: %w", vk.Index(), err)
	}

	if hadLELabel && km.le != nil {
		if newLabel, has := vk.LELabel(); has && newLabel != oldLELabel {
			if err := km.le.RemoveCredential(oldLELabel); err != nil {
				log.Warnf("keyset: removing stale rate-limit leaf %d: %v", oldLELabel, err)
			}
		}
	}
	log.Infof("keyset: re-saved slot %d for %s", vk.Index(), obfuscated)
	return nil
}

// restoreFromDisk reloads the persisted view of the record after a
// failed re-encryption. Saves are atomic, so the file still holds the
// pre-failure envelope; decrypted material is untouched by Load.
func (km *Management) restoreFromDisk(log *logging.Logger, vk *vaultkeyset.VaultKeyset) {
	source := vk.SourceFile()
	if source == "" {
		return
	}
	if err := vk.Load(source); err != nil {
		log.Warnf("keyset: restoring record from %s: %v", source, err)
	}
}

// ReSaveKeysetIfNeeded re-saves the record when its envelope is due for
// an upgrade and leaves it alone otherwise.
func (km *Management) ReSaveKeysetIfNeeded(ctx context.Context, creds *types.Credentials, vk *vaultkeyset.VaultKeyset) error {
	if !km.ShouldReSaveKeyset(vk) {
		return nil
	}
	km.logger.Infof("keyset: slot %d envelope is below the platform's current best", vk.Index())
	return km.ReSaveKeyset(ctx, creds, vk)
}

// RemoveLECredentials removes every rate-limited keyset of the user:
// the hash-tree leaf first, then the file. A leaf that fails to remove
// keeps its file; the sweep continues with the remaining slots.
func (km *Management) RemoveLECredentials(user types.ObfuscatedUsername) {
	start := time.Now()
	defer func() { observe(metrics.OpRemoveLECredentials, start, true) }()

	indices, err := km.GetVaultKeysets(user)
	if err != nil {
		km.logger.Warnf("keyset: enumerating keysets for %s: %v", user, err)
		return
	}
	for _, index := range indices {
		vk, err := km.loadVaultKeyset(user, index)
		if err != nil || !vk.IsLECredential() {
			continue
		}
		label, has := vk.LELabel()
		if !has {
			km.logger.Warnf("keyset: slot %d flagged rate-limited but carries no leaf label", index)
			continue
		}
		if km.le == nil {
			continue
		}
		if err := km.le.RemoveCredential(label); err != nil {
			km.logger.Warnf("keyset: removing rate-limit leaf %d: %v", label, err)
			continue
		}
		if err := km.platform.DeleteFile(km.keysetPath(user, index)); err != nil {
			km.logger.Warnf("keyset: deleting slot %d for %s: %v", index, user, err)
		}
	}
}

// ResetLECredentials clears the lockout state of every rate-limited
// keyset of the user, after the supplied credentials validate against a
// non-rate-limited keyset. The validation happens lazily, only once a
// rate-limited sibling is found. Invalid credentials change nothing
// anywhere.
func (km *Management) ResetLECredentials(ctx context.Context, creds *types.Credentials) {
	start := time.Now()
	ok := true
	defer func() { observe(metrics.OpResetLECredentials, start, ok) }()
	log := km.logger.With("operation_id", correlation.GetOrGenerate(ctx))

	obfuscated := creds.ObfuscatedUsername(km.systemSalt)
	indices, err := km.GetVaultKeysets(obfuscated)
	if err != nil {
		log.Warnf("keyset: enumerating keysets for %s: %v", obfuscated, err)
		ok = false
		return
	}

	var validated *vaultkeyset.VaultKeyset
	defer func() {
		if validated != nil {
			validated.ClearSecrets()
		}
	}()
	for _, index := range indices {
		leVK, err := km.loadVaultKeyset(obfuscated, index)
		if err != nil || !leVK.IsLECredential() {
			continue
		}
		if validated == nil {
			vk, mountErr := km.GetValidKeyset(ctx, creds)
			if vk == nil {
				log.Warnf("keyset: reset refused for %s, credentials failed: %s", obfuscated, mountErr)
				ok = false
				return
			}
			if vk.IsLECredential() {
				log.Warnf("keyset: reset refused for %s, a rate-limited credential cannot authorize it", obfuscated)
				vk.ClearSecrets()
				ok = false
				return
			}
			validated = vk
		}
		km.resetLECredential(log, validated, leVK)
	}
}

// resetLECredential derives the leaf's reset secret from the validated
// keyset's reset seed and the leaf record's reset salt, then asks the
// backend to zero the wrong-attempt counter and clear the lock.
func (km *Management) resetLECredential(log *logging.Logger, validated, leVK *vaultkeyset.VaultKeyset) {
	if km.le == nil {
		return
	}
	label, has := leVK.LELabel()
	if !has {
		log.Warnf("keyset: slot %d flagged rate-limited but carries no leaf label", leVK.Index())
		return
	}
	seed := validated.ResetSeed()
	if seed.IsEmpty() {
		log.Warnf("keyset: validated keyset carries no reset seed, cannot reset leaf %d", label)
		return
	}
	resetSecret := types.DeriveResetSecret(seed, leVK.ResetSalt())
	defer resetSecret.Clear()
	if err := km.le.ResetCredential(label, resetSecret); err != nil {
		log.Warnf("keyset: resetting leaf %d: %v", label, err)
		return
	}
	log.Infof("keyset: cleared lockout state for leaf %d at slot %d", label, leVK.Index())
}
