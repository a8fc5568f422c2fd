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

package cli

import (
	"context"
	"fmt"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/vaultkeyset"
)

// authenticate prompts for the passkey of the labeled keyset and
// validates it. On success it returns the decrypted keyset and the
// credentials used; the caller clears the passkey when done.
func authenticate(ctx context.Context, store *Store, username, label, prompt string) (*vaultkeyset.VaultKeyset, *types.Credentials, error) {
	passkey, err := readPasskey(prompt)
	if err != nil {
		return nil, nil, err
	}

	creds := &types.Credentials{
		Username: username,
		Passkey:  passkey,
		KeyData:  types.KeyData{Label: label},
	}

	vk, mountErr := store.Keysets.GetValidKeyset(ctx, creds)
	if mountErr != types.MountErrorNone {
		passkey.Clear()
		return nil, nil, mountErrMessage(mountErr)
	}
	return vk, creds, nil
}

// mountErrMessage turns a mount error into a user-facing error
func mountErrMessage(me types.MountError) error {
	switch me {
	case types.MountErrorKeyFailure:
		return fmt.Errorf("authentication failed: wrong credentials or no matching keyset (%s)", me)
	case types.MountErrorTPMDefendLock:
		return fmt.Errorf("credential is rate-limited; authenticate with another factor to reset it (%s)", me)
	case types.MountErrorTPMCommError:
		return fmt.Errorf("transient security module failure; try again (%s)", me)
	case types.MountErrorTPMNeedsReboot:
		return fmt.Errorf("security module requires a reboot (%s)", me)
	case types.MountErrorVaultUnrecoverable:
		return fmt.Errorf("keyset is corrupt and cannot be recovered (%s)", me)
	default:
		return fmt.Errorf("authentication failed (%s)", me)
	}
}

// codeMessage turns a mutation status into a user-facing error
func codeMessage(op string, code types.ErrorCode) error {
	switch code {
	case types.ErrorCodeKeyLabelExists:
		return fmt.Errorf("%s failed: a keyset with that label already exists (%s)", op, code)
	case types.ErrorCodeKeyNotFound:
		return fmt.Errorf("%s failed: no keyset matches that label (%s)", op, code)
	case types.ErrorCodeKeyQuotaExceeded:
		return fmt.Errorf("%s failed: no free keyset slots (%s)", op, code)
	case types.ErrorCodeAuthorizationKeyNotFound:
		return fmt.Errorf("%s failed: authorization keyset not found (%s)", op, code)
	case types.ErrorCodeAuthorizationKeyFailed:
		return fmt.Errorf("%s failed: authorization credentials rejected (%s)", op, code)
	case types.ErrorCodeBackingStoreFailure:
		return fmt.Errorf("%s failed: backing store error (%s)", op, code)
	default:
		return fmt.Errorf("%s failed (%s)", op, code)
	}
}
