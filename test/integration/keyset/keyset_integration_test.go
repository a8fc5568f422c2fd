//go:build integration

package keyset_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/internal/testutil"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/lecredential"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

// TestKeysetIntegration_Lifecycle exercises the full keyset lifecycle on
// real file storage: initial creation, authentication, adding a second
// factor, moving slots, and removal.
func TestKeysetIntegration_Lifecycle(t *testing.T) {
	stack, err := testutil.NewTestStack(t.TempDir(), false)
	require.NoError(t, err)
	defer stack.Close()

	ctx := context.Background()
	km := stack.Keysets

	fsk, err := types.NewRandomFileSystemKeyset()
	require.NoError(t, err)
	defer fsk.Clear()

	creds := testutil.PasswordCredentials("alice", []byte("first-passkey"), "password")
	defer creds.Passkey.Clear()
	require.True(t, km.AddInitialKeyset(ctx, creds, fsk))

	// The passkey opens the record and yields the same filesystem keys.
	vk, mountErr := km.GetValidKeyset(ctx, creds)
	require.Equal(t, types.MountErrorNone, mountErr)
	assert.True(t, fsk.Equal(vk.FileSystemKeyset()))

	// A second keyset protects the same keys behind new credentials.
	backup := testutil.PasswordCredentials("alice", []byte("backup-passkey"), "backup")
	defer backup.Passkey.Clear()
	require.Equal(t, types.ErrorCodeNotSet, km.AddKeyset(ctx, backup, vk, false))
	vk.ClearSecrets()

	backupVK, mountErr := km.GetValidKeyset(ctx, backup)
	require.Equal(t, types.MountErrorNone, mountErr)
	assert.True(t, fsk.Equal(backupVK.FileSystemKeyset()))
	assert.Equal(t, 1, backupVK.Index())
	backupVK.ClearSecrets()

	user := km.SanitizeUserName("alice")
	labels, err := km.GetVaultKeysetLabels(user)
	require.NoError(t, err)
	assert.Equal(t, []string{"backup", "password"}, labels)

	// Slots can move while the record stays openable.
	require.True(t, km.MoveKeyset(user, 1, 5))
	movedVK, mountErr := km.GetValidKeyset(ctx, backup)
	require.Equal(t, types.MountErrorNone, mountErr)
	assert.Equal(t, 5, movedVK.Index())
	movedVK.ClearSecrets()

	// Removal authorized by the other factor.
	require.Equal(t, types.ErrorCodeNotSet,
		km.RemoveKeyset(ctx, creds, types.KeyData{Label: "backup"}))
	_, mountErr = km.GetValidKeyset(ctx, backup)
	assert.Equal(t, types.MountErrorKeyFailure, mountErr)

	labels, err = km.GetVaultKeysetLabels(user)
	require.NoError(t, err)
	assert.Equal(t, []string{"password"}, labels)
}

// TestKeysetIntegration_PinLockout exercises the rate-limited PIN path
// end to end: lockout after the attempt budget is burned, refusal while
// locked, and reset through the password factor.
func TestKeysetIntegration_PinLockout(t *testing.T) {
	stack, err := testutil.NewTestStack(t.TempDir(), false)
	require.NoError(t, err)
	defer stack.Close()

	ctx := context.Background()
	km := stack.Keysets

	fsk, err := types.NewRandomFileSystemKeyset()
	require.NoError(t, err)
	defer fsk.Clear()

	password := testutil.PasswordCredentials("bob", []byte("passkey"), "password")
	defer password.Passkey.Clear()
	require.True(t, km.AddInitialKeyset(ctx, password, fsk))

	vk, mountErr := km.GetValidKeyset(ctx, password)
	require.Equal(t, types.MountErrorNone, mountErr)

	pin := testutil.PinCredentials("bob", []byte("1234"), "pin")
	defer pin.Passkey.Clear()
	require.Equal(t, types.ErrorCodeNotSet, km.AddKeyset(ctx, pin, vk, false))
	vk.ClearSecrets()

	pinVK, mountErr := km.GetValidKeyset(ctx, pin)
	require.Equal(t, types.MountErrorNone, mountErr)
	leaf, hasLeaf := pinVK.LELabel()
	require.True(t, hasLeaf)
	pinVK.ClearSecrets()

	// Burn the attempt budget.
	wrongPin := testutil.PinCredentials("bob", []byte("0000"), "pin")
	defer wrongPin.Passkey.Clear()
	for i := 0; i < int(lecredential.DefaultAttemptThreshold); i++ {
		_, mountErr = km.GetValidKeyset(ctx, wrongPin)
		assert.Equal(t, types.MountErrorKeyFailure, mountErr)
	}

	// Locked now; even the correct PIN is refused without a check.
	_, mountErr = km.GetValidKeyset(ctx, pin)
	assert.Equal(t, types.MountErrorTPMDefendLock, mountErr)

	// The password factor authorizes the reset.
	km.ResetLECredentials(ctx, password)

	attempts, err := stack.LE.GetWrongAuthAttempts(leaf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), attempts)

	pinVK, mountErr = km.GetValidKeyset(ctx, pin)
	require.Equal(t, types.MountErrorNone, mountErr)
	assert.True(t, fsk.Equal(pinVK.FileSystemKeyset()))
	pinVK.ClearSecrets()
}

// TestKeysetIntegration_HardwareUpgrade reopens a software-only store on
// a machine that gained a security module and re-saves the record under
// hardware protection.
func TestKeysetIntegration_HardwareUpgrade(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	software, err := testutil.NewTestStack(dir, false)
	require.NoError(t, err)

	fsk, err := types.NewRandomFileSystemKeyset()
	require.NoError(t, err)
	defer fsk.Clear()

	creds := testutil.PasswordCredentials("carol", []byte("passkey"), "password")
	defer creds.Passkey.Clear()
	require.True(t, software.Keysets.AddInitialKeyset(ctx, creds, fsk))

	vk, mountErr := software.Keysets.GetValidKeyset(ctx, creds)
	require.Equal(t, types.MountErrorNone, mountErr)
	assert.False(t, vk.IsTPMWrapped())
	assert.False(t, software.Keysets.ShouldReSaveKeyset(vk))
	vk.ClearSecrets()
	require.NoError(t, software.Close())

	// Same store, now with a security module present.
	hardware, err := testutil.NewTestStack(dir, true)
	require.NoError(t, err)
	defer hardware.Close()

	vk, mountErr = hardware.Keysets.GetValidKeyset(ctx, creds)
	require.Equal(t, types.MountErrorNone, mountErr)
	require.True(t, hardware.Keysets.ShouldReSaveKeyset(vk))
	require.NoError(t, hardware.Keysets.ReSaveKeyset(ctx, creds, vk))
	vk.ClearSecrets()

	// The record is hardware-wrapped now and still opens.
	vk, mountErr = hardware.Keysets.GetValidKeyset(ctx, creds)
	require.Equal(t, types.MountErrorNone, mountErr)
	assert.True(t, vk.IsTPMWrapped())
	assert.True(t, fsk.Equal(vk.FileSystemKeyset()))
	vk.ClearSecrets()
}
