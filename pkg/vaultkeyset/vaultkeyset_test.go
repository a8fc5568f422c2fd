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
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/authblock"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/hwsec"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/lecredential"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/secret"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/storage/memory"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

type testEnv struct {
	platform *memory.MemPlatform
	crypto   *authblock.Factory
	le       lecredential.Manager
	factory  Factory
}

func setupEnv(t *testing.T, withHardware bool) *testEnv {
	t.Helper()
	platform := memory.New()

	var frontend hwsec.Frontend
	if withHardware {
		f, err := hwsec.NewSoftwareFrontend(hwsec.Config{Enabled: true})
		require.NoError(t, err)
		frontend = f
	}

	le, err := lecredential.New(lecredential.Config{
		DBPath: filepath.Join(t.TempDir(), "le.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { le.Close() })

	crypto := authblock.NewFactory(authblock.FactoryConfig{
		Hwsec:    frontend,
		LE:       le,
		LEPolicy: lecredential.DefaultPolicy(),
	})
	factory, err := NewFactory(platform, crypto, nil)
	require.NoError(t, err)

	return &testEnv{platform: platform, crypto: crypto, le: le, factory: factory}
}

func randomFSK(t *testing.T) *types.FileSystemKeyset {
	t.Helper()
	fsk, err := types.NewRandomFileSystemKeyset()
	require.NoError(t, err)
	return fsk
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t, false)
	fsk := randomFSK(t)

	vk := env.factory.New()
	vk.SetIndex(0)
	vk.SetKeyData(types.KeyData{Label: "password", Type: types.KeyTypePassword})
	require.NoError(t, vk.InitializeFromFileSystemKeyset(fsk))
	require.NoError(t, vk.CreateRandomResetSeed())
	require.NoError(t, vk.Encrypt(ctx, secret.FromString("pw1"), "obfuscated"))
	require.NoError(t, vk.Save("/home/user/master.0"))

	loaded := env.factory.New()
	loaded.SetIndex(0)
	require.NoError(t, loaded.Load("/home/user/master.0"))
	assert.Equal(t, "password", loaded.Label())
	assert.Equal(t, types.KeysetFlagScryptWrapped, loaded.Flags())
	assert.True(t, loaded.HasWrappedResetSeed())
	assert.Nil(t, loaded.FileSystemKeyset())

	require.NoError(t, loaded.Decrypt(ctx, secret.FromString("pw1")))
	require.NotNil(t, loaded.FileSystemKeyset())
	assert.True(t, fsk.Equal(loaded.FileSystemKeyset()))
	assert.False(t, loaded.ResetSeed().IsEmpty())
}

func TestDecryptWrongPasskey(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t, false)

	vk := env.factory.New()
	require.NoError(t, vk.InitializeFromFileSystemKeyset(randomFSK(t)))
	require.NoError(t, vk.Encrypt(ctx, secret.FromString("right"), "obfuscated"))

	err := vk.Decrypt(ctx, secret.FromString("wrong"))
	require.Error(t, err)
	ce := types.CryptoErrorFromError(err)
	assert.Equal(t, types.CryptoErrorScryptCrypto, ce)
	assert.Equal(t, types.MountErrorKeyFailure, types.MountErrorFromCryptoError(ce))
}

func TestEncryptDecryptHardwareBound(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t, true)
	fsk := randomFSK(t)

	vk := env.factory.New()
	vk.SetKeyData(types.KeyData{Label: "password", Type: types.KeyTypePassword})
	require.NoError(t, vk.InitializeFromFileSystemKeyset(fsk))
	require.NoError(t, vk.Encrypt(ctx, secret.FromString("pw1"), "obfuscated"))

	assert.True(t, vk.IsTPMWrapped())
	assert.True(t, vk.IsPCRBound())
	assert.NotEmpty(t, vk.TpmPublicKeyHash())

	require.NoError(t, vk.Save("/home/user/master.0"))
	loaded := env.factory.New()
	require.NoError(t, loaded.Load("/home/user/master.0"))
	require.NoError(t, loaded.Decrypt(ctx, secret.FromString("pw1")))
	assert.True(t, fsk.Equal(loaded.FileSystemKeyset()))
}

func TestEncryptRateLimitedKeyset(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t, false)
	fsk := randomFSK(t)

	vk := env.factory.New()
	vk.SetIndex(1)
	vk.SetKeyData(types.KeyData{
		Label:  "pin",
		Type:   types.KeyTypePin,
		Policy: types.KeyDataPolicy{LowEntropyCredential: true},
	})
	require.NoError(t, vk.InitializeFromFileSystemKeyset(fsk))

	// Without a reset seed the encryption must refuse.
	err := vk.Encrypt(ctx, secret.FromString("1234"), "obfuscated")
	require.ErrorContains(t, err, "reset seed")

	require.NoError(t, vk.CreateRandomResetSeed())
	require.NoError(t, vk.Encrypt(ctx, secret.FromString("1234"), "obfuscated"))

	assert.True(t, vk.IsLECredential())
	label, ok := vk.LELabel()
	assert.True(t, ok)
	assert.NotZero(t, label)
	assert.NotEmpty(t, vk.ResetSalt())
	assert.False(t, vk.ResetSecret().IsEmpty())
	assert.True(t, vk.HasWrappedResetSeed())

	require.NoError(t, vk.Save("/home/user/master.1"))
	loaded := env.factory.New()
	loaded.SetIndex(1)
	require.NoError(t, loaded.Load("/home/user/master.1"))
	require.NoError(t, loaded.Decrypt(ctx, secret.FromString("1234")))
	assert.True(t, fsk.Equal(loaded.FileSystemKeyset()))
	assert.False(t, loaded.ResetSecret().IsEmpty())
	assert.False(t, loaded.ResetSeed().IsEmpty())

	_, ok = loaded.LELabel()
	assert.True(t, ok)
}

func TestEncryptExConsumesBlobs(t *testing.T) {
	env := setupEnv(t, false)
	vk := env.factory.New()
	require.NoError(t, vk.InitializeFromFileSystemKeyset(randomFSK(t)))

	vkk, err := secret.NewRandom(32)
	require.NoError(t, err)
	blobs := &types.KeyBlobs{VkkKey: vkk}
	state := &authblock.State{
		ScryptOnly: &authblock.ScryptOnlyState{Salt: []byte("0123456789abcdef")},
	}
	require.NoError(t, vk.EncryptEx(blobs, state))
	assert.True(t, blobs.VkkKey.IsEmpty(), "blobs must be consumed")
}

func TestDecryptExRoundTrip(t *testing.T) {
	env := setupEnv(t, false)
	fsk := randomFSK(t)
	vk := env.factory.New()
	require.NoError(t, vk.InitializeFromFileSystemKeyset(fsk))

	vkkBytes := make([]byte, 32)
	for i := range vkkBytes {
		vkkBytes[i] = byte(i)
	}
	state := &authblock.State{
		ScryptOnly: &authblock.ScryptOnlyState{Salt: []byte("0123456789abcdef")},
	}
	require.NoError(t, vk.EncryptEx(&types.KeyBlobs{VkkKey: secret.New(vkkBytes)}, state))
	require.NoError(t, vk.Save("/home/user/master.0"))

	loaded := env.factory.New()
	require.NoError(t, loaded.Load("/home/user/master.0"))
	blobs := &types.KeyBlobs{VkkKey: secret.New(vkkBytes)}
	require.NoError(t, loaded.DecryptEx(blobs))
	assert.True(t, fsk.Equal(loaded.FileSystemKeyset()))
	assert.True(t, blobs.VkkKey.IsEmpty(), "blobs must be consumed")

	// Wrong external key material.
	fresh := env.factory.New()
	require.NoError(t, fresh.Load("/home/user/master.0"))
	wrong, err := secret.NewRandom(32)
	require.NoError(t, err)
	err = fresh.DecryptEx(&types.KeyBlobs{VkkKey: wrong})
	require.Error(t, err)
	assert.Equal(t, types.MountErrorKeyFailure,
		types.MountErrorFromCryptoError(types.CryptoErrorFromError(err)))
}

func TestLabelSynthesis(t *testing.T) {
	env := setupEnv(t, false)

	vk := env.factory.New()
	vk.SetIndex(3)
	assert.Equal(t, "legacy-3", vk.Label())

	vk.SetKeyData(types.KeyData{Label: ""})
	assert.Equal(t, "legacy-3", vk.Label())

	vk.SetKeyData(types.KeyData{Label: "pin"})
	assert.Equal(t, "pin", vk.Label())
}

func TestLoadRejectsMalformedRecords(t *testing.T) {
	env := setupEnv(t, false)

	tests := []struct {
		name string
		data string
	}{
		{"not json", "not json at all"},
		{"no wrapped keyset", `{"flags":2,"auth_block_state":{"scrypt_only":{"salt":"c2FsdA=="}}}`},
		{"no auth state", `{"flags":2,"wrapped_keyset":"Y2lwaGVydGV4dA=="}`},
		{"empty auth state", `{"flags":2,"wrapped_keyset":"Y2lwaGVydGV4dA==","auth_block_state":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/home/user/master.0"
			require.NoError(t, env.platform.WriteFileAtomicDurable(path, []byte(tt.data), 0600))
			vk := env.factory.New()
			assert.Error(t, vk.Load(path))
		})
	}
}

func TestInitializeToAdd(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t, false)
	fsk := randomFSK(t)

	first := env.factory.New()
	require.NoError(t, first.InitializeFromFileSystemKeyset(fsk))
	require.NoError(t, first.CreateRandomResetSeed())
	require.NoError(t, first.Encrypt(ctx, secret.FromString("pw1"), "obfuscated"))
	require.NoError(t, first.Save("/home/user/master.0"))
	require.NoError(t, first.Decrypt(ctx, secret.FromString("pw1")))

	second := env.factory.New()
	second.SetIndex(1)
	second.SetKeyData(types.KeyData{Label: "backup"})
	require.NoError(t, second.InitializeToAdd(first))
	require.NoError(t, second.Encrypt(ctx, secret.FromString("pw2"), "obfuscated"))
	require.NoError(t, second.Save("/home/user/master.1"))

	loaded := env.factory.New()
	loaded.SetIndex(1)
	require.NoError(t, loaded.Load("/home/user/master.1"))
	require.NoError(t, loaded.Decrypt(ctx, secret.FromString("pw2")))
	assert.True(t, fsk.Equal(loaded.FileSystemKeyset()))
	assert.True(t, first.ResetSeed().Equal(loaded.ResetSeed()), "reset seed must carry over")
}

func TestInitializeToAddRequiresDecryptedReference(t *testing.T) {
	env := setupEnv(t, false)
	reference := env.factory.New()
	target := env.factory.New()
	assert.Error(t, target.InitializeToAdd(reference))
}

func TestClearSecrets(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t, false)

	vk := env.factory.New()
	require.NoError(t, vk.InitializeFromFileSystemKeyset(randomFSK(t)))
	require.NoError(t, vk.CreateRandomResetSeed())
	require.NoError(t, vk.Encrypt(ctx, secret.FromString("pw1"), "obfuscated"))
	require.NoError(t, vk.Decrypt(ctx, secret.FromString("pw1")))
	require.NotNil(t, vk.FileSystemKeyset())

	vk.ClearSecrets()
	assert.Nil(t, vk.FileSystemKeyset())
	assert.Nil(t, vk.ResetSeed())
	assert.Nil(t, vk.ResetSecret())
}

func TestSaveRequiresEncryptedRecord(t *testing.T) {
	env := setupEnv(t, false)
	vk := env.factory.New()
	require.NoError(t, vk.InitializeFromFileSystemKeyset(randomFSK(t)))
	assert.Error(t, vk.Save("/home/user/master.0"))
}

func TestSourceFileTracksLoadAndSave(t *testing.T) {
	ctx := context.Background()
	env := setupEnv(t, false)

	vk := env.factory.New()
	require.NoError(t, vk.InitializeFromFileSystemKeyset(randomFSK(t)))
	require.NoError(t, vk.Encrypt(ctx, secret.FromString("pw1"), "obfuscated"))
	assert.Empty(t, vk.SourceFile())

	require.NoError(t, vk.Save("/home/user/master.2"))
	assert.Equal(t, "/home/user/master.2", vk.SourceFile())

	loaded := env.factory.New()
	require.NoError(t, loaded.Load("/home/user/master.2"))
	assert.Equal(t, "/home/user/master.2", loaded.SourceFile())
}
