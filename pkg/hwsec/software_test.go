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

package hwsec

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/secret"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

func setupFrontend(t *testing.T) *SoftwareFrontend {
	t.Helper()
	f, err := NewSoftwareFrontend(Config{Enabled: true})
	require.NoError(t, err)
	return f
}

func TestNewSoftwareFrontend(t *testing.T) {
	t.Run("enabled and ready", func(t *testing.T) {
		f := setupFrontend(t)
		assert.True(t, f.IsEnabled())
		assert.True(t, f.IsReady())
	})

	t.Run("disabled", func(t *testing.T) {
		f, err := NewSoftwareFrontend(Config{Enabled: false})
		require.NoError(t, err)
		assert.False(t, f.IsEnabled())
		assert.False(t, f.IsReady())
	})

	t.Run("persists device key", func(t *testing.T) {
		statePath := filepath.Join(t.TempDir(), "state", "device.key")

		f1, err := NewSoftwareFrontend(Config{Enabled: true, StatePath: statePath})
		require.NoError(t, err)
		plaintext := secret.FromString("sealed payload")
		auth := secret.FromString("auth")
		sealed, err := f1.SealToPcr(plaintext, auth, DefaultPcrSelection())
		require.NoError(t, err)

		// A second frontend on the same state must unseal blobs from the
		// first.
		f2, err := NewSoftwareFrontend(Config{Enabled: true, StatePath: statePath})
		require.NoError(t, err)
		got, err := f2.UnsealWithAuthorization(sealed, auth, DefaultPcrSelection())
		require.NoError(t, err)
		assert.Equal(t, []byte("sealed payload"), got.Bytes())
	})
}

func TestSealUnsealRoundTrip(t *testing.T) {
	f := setupFrontend(t)
	plaintext := secret.FromString("vault keyset key")
	auth := secret.FromString("passkey derived auth")
	sel := DefaultPcrSelection()

	sealed, err := f.SealToPcr(plaintext, auth, sel)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "vault keyset key")

	got, err := f.UnsealWithAuthorization(sealed, auth, sel)
	require.NoError(t, err)
	assert.Equal(t, plaintext.Bytes(), got.Bytes())
}

func TestUnsealWrongAuthValue(t *testing.T) {
	f := setupFrontend(t)
	sealed, err := f.SealToPcr(secret.FromString("payload"), secret.FromString("right"), DefaultPcrSelection())
	require.NoError(t, err)

	_, err = f.UnsealWithAuthorization(sealed, secret.FromString("wrong"), DefaultPcrSelection())
	require.Error(t, err)
	assert.Equal(t, types.CryptoErrorOtherCrypto, types.CryptoErrorFromError(err))
}

func TestUnsealAfterPcrExtend(t *testing.T) {
	f := setupFrontend(t)
	auth := secret.FromString("auth")
	sealed, err := f.SealToPcr(secret.FromString("payload"), auth, DefaultPcrSelection())
	require.NoError(t, err)

	f.ExtendPCR(CurrentUserPcr, []byte("user-login-event"))

	_, err = f.UnsealWithAuthorization(sealed, auth, DefaultPcrSelection())
	require.Error(t, err)
	assert.Equal(t, types.CryptoErrorOtherCrypto, types.CryptoErrorFromError(err))
}

func TestFaultModes(t *testing.T) {
	tests := []struct {
		name string
		mode FaultMode
		want types.CryptoError
	}{
		{"comm error", FaultCommError, types.CryptoErrorTPMCommError},
		{"defend lock", FaultDefendLock, types.CryptoErrorTPMDefendLock},
		{"needs reboot", FaultNeedsReboot, types.CryptoErrorTPMReboot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupFrontend(t)
			auth := secret.FromString("auth")
			sealed, err := f.SealToPcr(secret.FromString("payload"), auth, DefaultPcrSelection())
			require.NoError(t, err)

			f.SetFaultMode(tt.mode)

			_, err = f.SealToPcr(secret.FromString("payload"), auth, DefaultPcrSelection())
			require.Error(t, err)
			assert.Equal(t, tt.want, types.CryptoErrorFromError(err))

			_, err = f.UnsealWithAuthorization(sealed, auth, DefaultPcrSelection())
			require.Error(t, err)
			assert.Equal(t, tt.want, types.CryptoErrorFromError(err))

			f.SetFaultMode(FaultNone)
			got, err := f.UnsealWithAuthorization(sealed, auth, DefaultPcrSelection())
			require.NoError(t, err)
			assert.Equal(t, []byte("payload"), got.Bytes())
		})
	}
}

func TestDisabledFrontendRefusesSealing(t *testing.T) {
	f, err := NewSoftwareFrontend(Config{Enabled: false})
	require.NoError(t, err)

	_, err = f.SealToPcr(secret.FromString("payload"), secret.FromString("auth"), DefaultPcrSelection())
	require.Error(t, err)
	assert.Equal(t, types.CryptoErrorTPMFatal, types.CryptoErrorFromError(err))
}

func TestGetEccAuthValue(t *testing.T) {
	f := setupFrontend(t)
	salt := []byte("ecc-salt")
	input := secret.FromString("passkey derived")

	v1, err := f.GetEccAuthValue(salt, input)
	require.NoError(t, err)
	v2, err := f.GetEccAuthValue(salt, input)
	require.NoError(t, err)
	assert.True(t, v1.Equal(v2), "derivation must be deterministic")

	v3, err := f.GetEccAuthValue([]byte("other-salt"), input)
	require.NoError(t, err)
	assert.False(t, v1.Equal(v3), "different salt must yield a different value")
}

func TestGetPublicKeyHash(t *testing.T) {
	f := setupFrontend(t)
	h1, err := f.GetPublicKeyHash()
	require.NoError(t, err)
	h2, err := f.GetPublicKeyHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 32)
}

func TestGetRandom(t *testing.T) {
	f := setupFrontend(t)
	r1, err := f.GetRandom(32)
	require.NoError(t, err)
	r2, err := f.GetRandom(32)
	require.NoError(t, err)
	assert.Len(t, r1, 32)
	assert.NotEqual(t, r1, r2)
}

func TestFaultErrorsUnwrap(t *testing.T) {
	f := setupFrontend(t)
	f.SetFaultMode(FaultDefendLock)
	_, err := f.SealToPcr(secret.FromString("p"), secret.FromString("a"), DefaultPcrSelection())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.CryptoErrorTPMDefendLock))
}
