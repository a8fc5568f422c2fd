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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/secret"
)

func TestSanitizeUserName(t *testing.T) {
	salt := []byte("system-salt")

	a := SanitizeUserName("alice@example.com", salt)
	b := SanitizeUserName("ALICE@example.COM", salt)
	c := SanitizeUserName("bob@example.com", salt)

	assert.Equal(t, a, b, "obfuscation should be case-insensitive")
	assert.NotEqual(t, a, c)
	assert.Len(t, a.String(), 64, "hex-encoded SHA-256")

	otherSalt := SanitizeUserName("alice@example.com", []byte("other-salt"))
	assert.NotEqual(t, a, otherSalt, "salt must bind the mapping")
}

func TestKeyTypeIsValid(t *testing.T) {
	tests := []struct {
		keyType KeyType
		valid   bool
	}{
		{KeyTypePassword, true},
		{KeyTypePin, true},
		{KeyTypeChallengeResponse, true},
		{KeyType(""), true},
		{KeyType("fingerprint"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.keyType), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.keyType.IsValid())
		})
	}
}

func TestNewCredentialsCopiesPasskey(t *testing.T) {
	passkey := []byte("secret-passkey")
	creds := NewCredentials("alice", passkey, KeyData{Label: "default"})

	passkey[0] = 'X'
	assert.Equal(t, []byte("secret-passkey"), creds.Passkey.Bytes())
	assert.Equal(t, "default", creds.KeyData.Label)
}

func TestCredentialsObfuscatedUsername(t *testing.T) {
	salt := []byte("salt")
	creds := NewCredentials("alice", []byte("pw"), KeyData{})
	assert.Equal(t, SanitizeUserName("alice", salt), creds.ObfuscatedUsername(salt))
}

func TestNewRandomFileSystemKeyset(t *testing.T) {
	fsk, err := NewRandomFileSystemKeyset()
	require.NoError(t, err)

	assert.Equal(t, FEKSize, fsk.FEK.Len())
	assert.Equal(t, FEKSize, fsk.FNEK.Len())
	assert.Equal(t, SaltSize, fsk.FEKSalt.Len())
	assert.Equal(t, SaltSize, fsk.FNEKSalt.Len())
	assert.Equal(t, SignatureSize, fsk.FEKSig.Len())
	assert.Equal(t, SignatureSize, fsk.FNEKSig.Len())
	assert.Equal(t, ChapsKeySize, fsk.ChapsKey.Len())

	assert.False(t, fsk.FEK.Equal(fsk.FNEK), "FEK and FNEK must be independent")

	other, err := NewRandomFileSystemKeyset()
	require.NoError(t, err)
	assert.False(t, fsk.Equal(other))
	assert.True(t, fsk.Equal(fsk))
}

func TestFileSystemKeysetClear(t *testing.T) {
	fsk, err := NewRandomFileSystemKeyset()
	require.NoError(t, err)

	fsk.Clear()
	assert.True(t, fsk.FEK.IsEmpty())
	assert.True(t, fsk.ChapsKey.IsEmpty())
}

func TestKeyBlobsClear(t *testing.T) {
	kb := &KeyBlobs{VkkKey: secret.FromString("vkk")}
	kb.Clear()
	assert.True(t, kb.VkkKey.IsEmpty())

	var nilKb *KeyBlobs
	nilKb.Clear()
}

func TestDeriveResetSecretDeterministic(t *testing.T) {
	seed := secret.FromString("reset-seed")
	salt := []byte("reset-salt")

	a := DeriveResetSecret(seed, salt)
	b := DeriveResetSecret(seed, salt)
	assert.True(t, a.Equal(b))
	assert.Equal(t, 32, a.Len())

	c := DeriveResetSecret(seed, []byte("other-salt"))
	assert.False(t, a.Equal(c))

	otherSeed := secret.FromString("other-seed")
	d := DeriveResetSecret(otherSeed, salt)
	assert.False(t, a.Equal(d))
}
