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

// resaveCmd re-wraps a keyset with the platform's current protections
var resaveCmd = &cobra.Command{
	Use:   "resave <username>",
	Short: "Re-save a keyset with current protections",
	Long: `Re-encrypt a keyset whose envelope is below the platform's current
best: software-wrapped records on a machine that gained a security
module, hardware records missing the module's key hash, or rate-limited
records whose hash tree must be rebound. Password keysets that predate
reset seeds get one attached. Keysets already current are left alone.`,
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

		// Rate-limited keysets carry a reset secret instead of a seed;
		// the backfill applies only to the others.
		seedAttached := false
		if !vk.IsLECredential() && !vk.HasWrappedResetSeed() {
			printVerbose("Attaching missing reset seed to keyset %q (slot %d)", vk.Label(), vk.Index())
			if err := store.Keysets.AddWrappedResetSeedIfMissing(cmd.Context(), vk, creds); err != nil {
				handleError(fmt.Errorf("failed to attach reset seed to keyset %q: %w", vk.Label(), err))
				return
			}
			seedAttached = true
		}

		if !store.Keysets.ShouldReSaveKeyset(vk) {
			msg := fmt.Sprintf("Keyset %q is already current", vk.Label())
			if seedAttached {
				msg = fmt.Sprintf("Attached reset seed to keyset %q; envelope already current", vk.Label())
			}
			if err := printer.PrintSuccess(msg); err != nil {
				handleError(err)
			}
			return
		}

		printVerbose("Re-saving keyset %q (slot %d) for %s", vk.Label(), vk.Index(), username)
		if err := store.Keysets.ReSaveKeyset(cmd.Context(), creds, vk); err != nil {
			handleError(fmt.Errorf("failed to re-save keyset %q: %w", vk.Label(), err))
			return
		}

		msg := fmt.Sprintf("Re-saved keyset %q for %s", vk.Label(), username)
		if seedAttached {
			msg = fmt.Sprintf("Attached reset seed and re-saved keyset %q for %s", vk.Label(), username)
		}
		if err := printer.PrintSuccess(msg); err != nil {
			handleError(err)
		}
	},
}

func init() {
	resaveCmd.Flags().String("label", "", "re-save only the keyset with this label")
}
