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

// Package cryptoutil provides the symmetric primitives the keyset store
// builds its envelopes from: AES-256-GCM with a prepended nonce, scrypt
// key stretching, and HKDF subkey derivation. Callers classify failures;
// this package only reports them.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/secret"
)

// Scrypt work factors for passkey stretching. Interactive-login grade;
// changing them invalidates nothing on disk because the parameters ride
// inside each auth block state.
const (
	ScryptN = 32768
	ScryptR = 8
	ScryptP = 1
)

// AESKeySize is the AES-256 key length used for all envelopes.
const AESKeySize = 32

var (
	// ErrInvalidKeyLength is returned when an AEAD key is not AESKeySize
	// bytes.
	ErrInvalidKeyLength = errors.New("cryptoutil: key must be 32 bytes")

	// ErrCiphertextTooShort is returned when a ciphertext is shorter than
	// the prepended nonce.
	ErrCiphertextTooShort = errors.New("cryptoutil: ciphertext too short")

	// ErrDecryptFailed is returned when AEAD authentication fails, which
	// for a passkey-derived key means the passkey was wrong.
	ErrDecryptFailed = errors.New("cryptoutil: decryption failed")
)

// EncryptAESGCM seals plaintext with AES-256-GCM. The random nonce is
// prepended to the returned ciphertext.
func EncryptAESGCM(key *secret.Blob, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptoutil: generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptAESGCM opens a ciphertext produced by EncryptAESGCM. An
// authentication failure surfaces as ErrDecryptFailed.
func DecryptAESGCM(key *secret.Blob, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

func newGCM(key *secret.Blob) (cipher.AEAD, error) {
	if key.Len() != AESKeySize {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: creating GCM: %w", err)
	}
	return aead, nil
}

// DeriveScryptKey stretches a passkey into an AEAD key with scrypt.
func DeriveScryptKey(passkey *secret.Blob, salt []byte, keyLen int) (*secret.Blob, error) {
	key, err := scrypt.Key(passkey.Bytes(), salt, ScryptN, ScryptR, ScryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: scrypt derivation: %w", err)
	}
	b := secret.New(key)
	secret.Zero(key)
	return b, nil
}

// DeriveHKDFKey expands ikm into a keyLen-byte subkey bound to salt and
// info. Used to split one secret into independent per-purpose keys.
func DeriveHKDFKey(ikm *secret.Blob, salt, info []byte, keyLen int) (*secret.Blob, error) {
	r := hkdf.New(sha256.New, ikm.Bytes(), salt, info)
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("cryptoutil: hkdf expansion: %w", err)
	}
	b := secret.New(key)
	secret.Zero(key)
	return b, nil
}

// GetSecureRandom returns n cryptographically random bytes.
func GetSecureRandom(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("cryptoutil: reading random bytes: %w", err)
	}
	return buf, nil
}
