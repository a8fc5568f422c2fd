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

// Package keyset manages the set of vault keyset records belonging to
// one obfuscated username: slot allocation, label lookup, authentication
// dispatch, removal, and envelope migration. Records live as files named
// with a fixed prefix and a decimal slot suffix inside one directory per
// user; operations against the same user must be serialized by the
// caller.
package keyset

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/authblock"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/correlation"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/lecredential"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/logging"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/metrics"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/storage"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/vaultkeyset"
)

var (
	// ErrNoShadowRoot is returned when the configuration names no root
	// directory for user keyset storage.
	ErrNoShadowRoot = errors.New("keyset: shadow root is required")

	// ErrNoSystemSalt is returned when the configuration carries no
	// system salt for username obfuscation.
	ErrNoSystemSalt = errors.New("keyset: system salt is required")

	// ErrNilPlatform is returned when no platform implementation is
	// provided.
	ErrNilPlatform = errors.New("keyset: platform is required")

	// ErrNilFactory is returned when no vault keyset factory is provided.
	ErrNilFactory = errors.New("keyset: vault keyset factory is required")

	// ErrNilAuthFactory is returned when no auth block factory is
	// provided.
	ErrNilAuthFactory = errors.New("keyset: auth block factory is required")
)

// Config carries the storage layout settings for keyset management.
type Config struct {
	// ShadowRoot is the directory holding one keyset directory per
	// obfuscated username.
	ShadowRoot string

	// SystemSalt obfuscates account names into on-disk directory names.
	SystemSalt []byte
}

// Validate checks the configuration for missing required fields.
func (c *Config) Validate() error {
	if c.ShadowRoot == "" {
		return ErrNoShadowRoot
	}
	if len(c.SystemSalt) == 0 {
		return ErrNoSystemSalt
	}
	return nil
}

// Management is the keyset store for all users under one shadow root.
// Methods are not internally synchronized per user; callers serialize
// concurrent operations against the same obfuscated username.
type Management struct {
	platform    storage.Platform
	vkFactory   vaultkeyset.Factory
	authFactory *authblock.Factory
	le          lecredential.Manager
	shadowRoot  string
	systemSalt  []byte
	logger      *logging.Logger
}

// NewKeysetManagement creates the keyset store over the given platform
// and crypto backends.
func NewKeysetManagement(platform storage.Platform, vkFactory vaultkeyset.Factory, authFactory *authblock.Factory, cfg Config, logger *logging.Logger) (*Management, error) {
	if platform == nil {
		return nil, ErrNilPlatform
	}
	if vkFactory == nil {
		return nil, ErrNilFactory
	}
	if authFactory == nil {
		return nil, ErrNilAuthFactory
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Management{
		platform:    platform,
		vkFactory:   vkFactory,
		authFactory: authFactory,
		le:          authFactory.LEBackend(),
		shadowRoot:  cfg.ShadowRoot,
		systemSalt:  cfg.SystemSalt,
		logger:      logger,
	}, nil
}

// SanitizeUserName obfuscates an account name with the store's system
// salt.
func (km *Management) SanitizeUserName(username string) types.ObfuscatedUsername {
	return types.SanitizeUserName(username, km.systemSalt)
}

func (km *Management) userDir(user types.ObfuscatedUsername) string {
	return UserKeysetDir(km.shadowRoot, user)
}

func (km *Management) keysetPath(user types.ObfuscatedUsername, index int) string {
	return KeysetPath(km.userDir(user), index)
}

// loadVaultKeyset loads the record at the given slot without decrypting
// it.
func (km *Management) loadVaultKeyset(user types.ObfuscatedUsername, index int) (*vaultkeyset.VaultKeyset, error) {
	vk := km.vkFactory.New()
	if err := vk.Load(km.keysetPath(user, index)); err != nil {
		return nil, err
	}
	vk.SetIndex(index)
	return vk, nil
}

// observe records the outcome of one management operation.
func observe(op string, start time.Time, ok bool) {
	status := metrics.StatusSuccess
	if !ok {
		status = metrics.StatusError
	}
	metrics.RecordOperation(op, status, time.Since(start).Seconds())
}

// GetVaultKeysets re-scans the user's directory and returns the slot
// indices currently present, sorted ascending. Files whose names do not
// carry the canonical prefix and a parseable in-range index are ignored.
// A user with no directory has no keysets.
func (km *Management) GetVaultKeysets(user types.ObfuscatedUsername) ([]int, error) {
	entries, err := km.platform.EnumerateDirectoryEntries(km.userDir(user))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("keyset: enumerating keysets for %s: %w", user, err)
	}
	var indices []int
	for _, entry := range entries {
		index, ok := ParseKeysetIndex(filepath.Base(entry))
		if !ok {
			continue
		}
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices, nil
}

// GetVaultKeyset loads, without decrypting, the record whose label
// matches, including synthesized legacy labels. Returns nil when the
// label is empty or matches nothing. Unreadable records are skipped.
func (km *Management) GetVaultKeyset(user types.ObfuscatedUsername, label string) *vaultkeyset.VaultKeyset {
	if label == "" {
		return nil
	}
	indices, err := km.GetVaultKeysets(user)
	if err != nil {
		km.logger.Warnf("keyset: enumerating keysets for %s: %v", user, err)
		return nil
	}
	for _, index := range indices {
		vk, err := km.loadVaultKeyset(user, index)
		if err != nil {
			km.logger.Debugf("keyset: skipping unreadable slot %d for %s: %v", index, user, err)
			continue
		}
		if vk.Label() == label {
			return vk
		}
	}
	return nil
}

// GetValidKeyset authenticates the credentials against the user's
// keysets and returns the first record the passkey decrypts. A labeled
// lookup tries only the matching record; an unlabeled one tries every
// slot in index order, skipping rate-limited keysets so a stray wrong
// passkey cannot burn their attempt budget. The mount error classifies
// the failure per the crypto error taxonomy.
func (km *Management) GetValidKeyset(ctx context.Context, creds *types.Credentials) (vk *vaultkeyset.VaultKeyset, mountErr types.MountError) {
	start := time.Now()
	defer func() {
		observe(metrics.OpGetValidKeyset, start, mountErr == types.MountErrorNone)
		if mountErr != types.MountErrorNone {
			metrics.RecordAuthFailure(mountErr.String())
		}
	}()
	log := km.logger.With("operation_id", correlation.GetOrGenerate(ctx))

	obfuscated := creds.ObfuscatedUsername(km.systemSalt)
	indices, err := km.GetVaultKeysets(obfuscated)
	if err != nil {
		log.Warnf("keyset: enumerating keysets for %s: %v", obfuscated, err)
		return nil, types.MountErrorVaultUnrecoverable
	}
	if len(indices) == 0 {
		log.Warnf("keyset: no keysets on disk for %s", obfuscated)
		return nil, types.MountErrorVaultUnrecoverable
	}

	label := creds.KeyData.Label
	lastCryptoError := types.CryptoErrorNone
	for _, index := range indices {
		candidate, err := km.loadVaultKeyset(obfuscated, index)
		if err != nil {
			log.Warnf("keyset: loading slot %d for %s: %v", index, obfuscated, err)
			return nil, types.MountErrorVaultUnrecoverable
		}
		if label != "" && candidate.Label() != label {
			continue
		}
		if label == "" && candidate.IsLECredential() {
			continue
		}
		if err := candidate.Decrypt(ctx, creds.Passkey); err != nil {
			lastCryptoError = types.CryptoErrorFromError(err)
			log.Debugf("keyset: decrypting slot %d for %s: %v", index, obfuscated, err)
			continue
		}
		return candidate, types.MountErrorNone
	}

	if lastCryptoError == types.CryptoErrorNone {
		log.Warnf("keyset: no keyset matched label %q for %s", label, obfuscated)
		return nil, types.MountErrorKeyFailure
	}
	return nil, types.MountErrorFromCryptoError(lastCryptoError)
}

// GetValidKeysetWithKeyBlobs authenticates with externally derived key
// material instead of a passkey. The label must match a record exactly;
// labels are never empty after legacy synthesis, so an empty label
// matches nothing. The blobs are consumed.
func (km *Management) GetValidKeysetWithKeyBlobs(user types.ObfuscatedUsername, blobs *types.KeyBlobs, label string) (vk *vaultkeyset.VaultKeyset, mountErr types.MountError) {
	start := time.Now()
	defer func() {
		observe(metrics.OpGetValidKeyset, start, mountErr == types.MountErrorNone)
		if mountErr != types.MountErrorNone {
			metrics.RecordAuthFailure(mountErr.String())
		}
	}()
	defer blobs.Clear()

	indices, err := km.GetVaultKeysets(user)
	if err != nil {
		km.logger.Warnf("keyset: enumerating keysets for %s: %v", user, err)
		return nil, types.MountErrorVaultUnrecoverable
	}
	if len(indices) == 0 {
		return nil, types.MountErrorVaultUnrecoverable
	}
	for _, index := range indices {
		candidate, err := km.loadVaultKeyset(user, index)
		if err != nil {
			km.logger.Warnf("keyset: loading slot %d for %s: %v", index, user, err)
			return nil, types.MountErrorVaultUnrecoverable
		}
		if candidate.Label() != label {
			continue
		}
		if err := candidate.DecryptEx(blobs); err != nil {
			km.logger.Debugf("keyset: decrypting slot %d for %s: %v", index, user, err)
			return nil, types.MountErrorFromCryptoError(types.CryptoErrorFromError(err))
		}
		return candidate, types.MountErrorNone
	}
	return nil, types.MountErrorKeyFailure
}

// GetVaultKeysetLabels returns the labels of the user's parseable
// keysets in slot order. Unreadable records and duplicate labels are
// skipped; the call fails only if the directory cannot be enumerated.
func (km *Management) GetVaultKeysetLabels(user types.ObfuscatedUsername) (labels []string, err error) {
	start := time.Now()
	defer func() { observe(metrics.OpListLabels, start, err == nil) }()

	labelData, err := km.GetVaultKeysetLabelsAndData(user)
	if err != nil {
		return nil, err
	}
	labels = make([]string, 0, len(labelData))
	for label := range labelData {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels, nil
}

// GetVaultKeysetLabelsAndData returns each parseable keyset's label and
// stored key data. Per-entry skips, never per-entry failures: files
// without a parseable index are ignored by enumeration, unreadable
// records are logged and skipped, and on a duplicate label the first
// record seen wins. Legacy records without key data report a zero
// value.
func (km *Management) GetVaultKeysetLabelsAndData(user types.ObfuscatedUsername) (labelData map[string]types.KeyData, err error) {
	start := time.Now()
	defer func() { observe(metrics.OpListKeysets, start, err == nil) }()

	indices, err := km.GetVaultKeysets(user)
	if err != nil {
		return nil, err
	}
	labelData = make(map[string]types.KeyData, len(indices))
	for _, index := range indices {
		vk, err := km.loadVaultKeyset(user, index)
		if err != nil {
			km.logger.Warnf("keyset: skipping unreadable slot %d for %s: %v", index, user, err)
			continue
		}
		label := vk.Label()
		if _, seen := labelData[label]; seen {
			km.logger.Warnf("keyset: duplicate label %q at slot %d for %s", label, index, user)
			continue
		}
		if vk.HasKeyData() {
			labelData[label] = vk.KeyData()
		} else {
			labelData[label] = types.KeyData{}
		}
	}
	return labelData, nil
}
