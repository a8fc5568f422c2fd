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

	"github.com/spf13/cobra"
)

// checkCmd verifies a user's credentials
var checkCmd = &cobra.Command{
	Use:   "check <username>",
	Short: "Verify credentials",
	Long: `Verify that a passkey opens one of the user's keysets.

Without --label every keyset is tried in slot order, skipping
rate-limited ones. A successful check also resets the rate-limiting
counters of the user's PIN keysets.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		username := args[0]
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		label, _ := cmd.Flags().GetString("label")

		store, err := cfg.OpenStore()
		if err != nil {
			handleError(err)
			return
		}
		defer store.Close()

		prompt := "Passkey: "
		if label != "" {
			prompt = "Passkey for " + label + ": "
		}
		vk, creds, err := authenticate(cmd.Context(), store, username, label, prompt)
		if err != nil {
			handleError(err)
			return
		}
		defer creds.Passkey.Clear()
		defer vk.ClearSecrets()

		// Proof of identity; clear lockouts on the user's PIN keysets.
		store.Keysets.ResetLECredentials(cmd.Context(), creds)

		msg := fmt.Sprintf("Credentials verified for %s (keyset %q, slot %d)", username, vk.Label(), vk.Index())
		if store.Keysets.ShouldReSaveKeyset(vk) {
			msg += "; the keyset is stale, run \"keysetctl resave\""
		}
		if err := printer.PrintSuccess(msg); err != nil {
			handleError(err)
		}
	},
}

func init() {
	checkCmd.Flags().String("label", "", "check only the keyset with this label")
}
