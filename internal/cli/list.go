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
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/vaultkeyset"
)

// listCmd lists a user's keysets
var listCmd = &cobra.Command{
	Use:   "list <username>",
	Short: "List a user's keysets",
	Long:  `List every keyset of the given user with its slot index, label, and wrapping`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		username := args[0]
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		store, err := cfg.OpenStore()
		if err != nil {
			handleError(err)
			return
		}
		defer store.Close()

		user := store.Keysets.SanitizeUserName(username)
		printVerbose("Listing keysets for %s (%s)", username, user)

		labels, err := store.Keysets.GetVaultKeysetLabels(user)
		if err != nil {
			handleError(fmt.Errorf("failed to enumerate keysets: %w", err))
			return
		}

		rows := make([]KeysetRow, 0, len(labels))
		for _, label := range labels {
			vk := store.Keysets.GetVaultKeyset(user, label)
			if vk == nil {
				// Racing removal; skip the stale label.
				continue
			}
			rows = append(rows, keysetRow(vk))
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Index < rows[j].Index })

		if err := printer.PrintKeysetList(username, rows); err != nil {
			handleError(err)
		}
	},
}

// labelsCmd lists a user's keyset labels
var labelsCmd = &cobra.Command{
	Use:   "labels <username>",
	Short: "List a user's keyset labels",
	Long:  `List the labels of every keyset of the given user`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		username := args[0]
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		store, err := cfg.OpenStore()
		if err != nil {
			handleError(err)
			return
		}
		defer store.Close()

		user := store.Keysets.SanitizeUserName(username)
		labels, err := store.Keysets.GetVaultKeysetLabels(user)
		if err != nil {
			handleError(fmt.Errorf("failed to enumerate keysets: %w", err))
			return
		}

		if err := printer.PrintLabels(username, labels); err != nil {
			handleError(err)
		}
	},
}

// keysetRow builds the listing row for one keyset
func keysetRow(vk *vaultkeyset.VaultKeyset) KeysetRow {
	keyType := string(vk.KeyData().Type)
	if keyType == "" {
		keyType = "-"
	}
	return KeysetRow{
		Index:      vk.Index(),
		Label:      vk.Label(),
		Type:       keyType,
		Protection: protectionName(vk),
		ResetSeed:  vk.HasWrappedResetSeed(),
	}
}

// protectionName names the wrapping scheme protecting the keyset
func protectionName(vk *vaultkeyset.VaultKeyset) string {
	switch {
	case vk.IsLECredential():
		return "pinweaver"
	case vk.IsTPMWrapped() && vk.Flags()&types.KeysetFlagECC != 0:
		return "tpm_ecc"
	case vk.IsTPMWrapped():
		return "tpm_pcr"
	default:
		return "scrypt"
	}
}
