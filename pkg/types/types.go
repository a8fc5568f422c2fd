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

// Package types defines the shared data model of the vault keyset store:
// usernames, credentials, key metadata, derived key material, and the
// error taxonomies exchanged between the store and its callers.
package types

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/secret"
)

// ObfuscatedUsername is the salted one-way hash of an account name. It is
// stable for the lifetime of the account and serves as the on-disk
// namespace key; the cleartext account name never touches storage.
type ObfuscatedUsername string

// SanitizeUserName obfuscates an account name with the device-wide system
// salt. The account name is lower-cased first so the mapping is
// case-insensitive.
func SanitizeUserName(username string, systemSalt []byte) ObfuscatedUsername {
	h := sha256.New()
	h.Write(systemSalt)
	h.Write([]byte(strings.ToLower(username)))
	return ObfuscatedUsername(hex.EncodeToString(h.Sum(nil)))
}

// String returns the obfuscated name as a plain string.
func (o ObfuscatedUsername) String() string {
	return string(o)
}

// KeyType describes the kind of authentication factor a keyset binds.
type KeyType string

const (
	KeyTypePassword          KeyType = "password"
	KeyTypePin               KeyType = "pin"
	KeyTypeChallengeResponse KeyType = "challenge-response"
)

// IsValid reports whether the key type is a known value. The empty string
// is accepted for legacy records that predate typed key data.
func (k KeyType) IsValid() bool {
	switch k {
	case "", KeyTypePassword, KeyTypePin, KeyTypeChallengeResponse:
		return true
	}
	return false
}

// KeyDataPolicy carries per-factor policy bits persisted with the keyset.
type KeyDataPolicy struct {
	// LowEntropyCredential marks the factor as PIN-class: protected by
	// the rate-limited hash-tree backend rather than by key stretching.
	LowEntropyCredential bool `json:"low_entropy_credential,omitempty"`
}

// KeyData is the caller-visible metadata stored with each keyset.
type KeyData struct {
	Label    string        `json:"label,omitempty"`
	Type     KeyType       `json:"type,omitempty"`
	Policy   KeyDataPolicy `json:"policy,omitempty"`
	Revision int32         `json:"revision,omitempty"`
}

// Credentials is a caller-supplied authentication attempt. It is
// ephemeral: the passkey belongs to the caller, who clears it after the
// operation completes.
type Credentials struct {
	Username string
	Passkey  *secret.Blob
	KeyData  KeyData
}

// NewCredentials builds a Credentials value with a private copy of the
// passkey bytes.
func NewCredentials(username string, passkey []byte, keyData KeyData) *Credentials {
	return &Credentials{
		Username: username,
		Passkey:  secret.New(passkey),
		KeyData:  keyData,
	}
}

// ObfuscatedUsername resolves the on-disk namespace key for these
// credentials under the given system salt.
func (c *Credentials) ObfuscatedUsername(systemSalt []byte) ObfuscatedUsername {
	return SanitizeUserName(c.Username, systemSalt)
}

// Keyset flag bits persisted in the serialized record. The values are
// part of the on-disk format and must not be renumbered.
const (
	KeysetFlagTPMWrapped                  int32 = 1 << 0
	KeysetFlagScryptWrapped               int32 = 1 << 1
	KeysetFlagScryptDerived               int32 = 1 << 2
	KeysetFlagLECredential                int32 = 1 << 3
	KeysetFlagSignatureChallengeProtected int32 = 1 << 4
	KeysetFlagPCRBound                    int32 = 1 << 5
	KeysetFlagECC                         int32 = 1 << 6
)

// KeyBlobs is the ephemeral symmetric key material produced by an
// AuthBlock. It unwraps the keyset's protected payloads and is never
// persisted; whoever finishes with it calls Clear.
type KeyBlobs struct {
	// VkkKey is the vault keyset key: the AEAD key that unwraps
	// wrapped_keyset, wrapped_chaps_key, and wrapped_reset_seed.
	VkkKey *secret.Blob

	// ResetSecret rides along for low-entropy factors so the hash-tree
	// leaf can be created or reset in the same flow.
	ResetSecret *secret.Blob
}

// Clear wipes all key material held by the blobs.
func (kb *KeyBlobs) Clear() {
	if kb == nil {
		return
	}
	kb.VkkKey.Clear()
	kb.ResetSecret.Clear()
}

// Sizes of the filesystem key material, fixed by the on-disk format.
const (
	FEKSize       = 64
	SaltSize      = 16
	SignatureSize = 8
	ChapsKeySize  = 16
	ResetSeedSize = 32
	ResetSaltSize = 32
)

// FileSystemKeyset is the protected payload: the keys that encrypt a
// user's home directory. It is created once per account and is identical
// across all of that user's keysets; it dies only with the account.
type FileSystemKeyset struct {
	FEK      *secret.Blob
	FNEK     *secret.Blob
	FEKSalt  *secret.Blob
	FNEKSalt *secret.Blob
	FEKSig   *secret.Blob
	FNEKSig  *secret.Blob
	ChapsKey *secret.Blob
}

// NewRandomFileSystemKeyset generates a fresh filesystem keyset for a new
// account.
func NewRandomFileSystemKeyset() (*FileSystemKeyset, error) {
	fsk := &FileSystemKeyset{}
	var err error
	if fsk.FEK, err = secret.NewRandom(FEKSize); err != nil {
		return nil, err
	}
	if fsk.FNEK, err = secret.NewRandom(FEKSize); err != nil {
		return nil, err
	}
	if fsk.FEKSalt, err = secret.NewRandom(SaltSize); err != nil {
		return nil, err
	}
	if fsk.FNEKSalt, err = secret.NewRandom(SaltSize); err != nil {
		return nil, err
	}
	if fsk.FEKSig, err = secret.NewRandom(SignatureSize); err != nil {
		return nil, err
	}
	if fsk.FNEKSig, err = secret.NewRandom(SignatureSize); err != nil {
		return nil, err
	}
	if fsk.ChapsKey, err = secret.NewRandom(ChapsKeySize); err != nil {
		return nil, err
	}
	return fsk, nil
}

// Equal compares two filesystem keysets field by field, each comparison
// in constant time.
func (f *FileSystemKeyset) Equal(other *FileSystemKeyset) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.FEK.Equal(other.FEK) &&
		f.FNEK.Equal(other.FNEK) &&
		f.FEKSalt.Equal(other.FEKSalt) &&
		f.FNEKSalt.Equal(other.FNEKSalt) &&
		f.FEKSig.Equal(other.FEKSig) &&
		f.FNEKSig.Equal(other.FNEKSig) &&
		f.ChapsKey.Equal(other.ChapsKey)
}

// Clear wipes all keys held by the keyset.
func (f *FileSystemKeyset) Clear() {
	if f == nil {
		return
	}
	f.FEK.Clear()
	f.FNEK.Clear()
	f.FEKSalt.Clear()
	f.FNEKSalt.Clear()
	f.FEKSig.Clear()
	f.FNEKSig.Clear()
	f.ChapsKey.Clear()
}

// DeriveResetSecret derives the per-credential reset secret a strong
// factor uses to clear a low-entropy credential's lockout:
// HMAC-SHA256 keyed by the reset seed over the credential's reset salt.
func DeriveResetSecret(resetSeed *secret.Blob, resetSalt []byte) *secret.Blob {
	mac := hmac.New(sha256.New, resetSeed.Bytes())
	mac.Write(resetSalt)
	out := mac.Sum(nil)
	b := secret.New(out)
	secret.Zero(out)
	return b
}
