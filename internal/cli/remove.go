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

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

// removeCmd removes a keyset
var removeCmd = &cobra.Command{
	Use:   "remove <username>",
	Short: "Remove a keyset",
	Long: `Remove the keyset with the given label.

The removal must be authorized by another of the user's keysets via
--auth-label. With --force the record at --index is destroyed without
authorization; use it only to clean up keysets whose credentials are
lost.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		username := args[0]
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		label, _ := cmd.Flags().GetString("label")
		authLabel, _ := cmd.Flags().GetString("auth-label")
		force, _ := cmd.Flags().GetBool("force")
		index, _ := cmd.Flags().GetInt("index")

		store, err := cfg.OpenStore()
		if err != nil {
			handleError(err)
			return
		}
		defer store.Close()

		if force {
			if index < 0 {
				handleError(fmt.Errorf("--force requires --index"))
				return
			}
			user := store.Keysets.SanitizeUserName(username)
			printVerbose("Force-removing slot %d for %s", index, username)
			if !store.Keysets.ForceRemoveKeyset(user, index) {
				handleError(fmt.Errorf("failed to remove slot %d", index))
				return
			}
			if err := printer.PrintSuccess(fmt.Sprintf("Removed slot %d for %s", index, username)); err != nil {
				handleError(err)
			}
			return
		}

		if label == "" {
			handleError(fmt.Errorf("--label is required"))
			return
		}
		if authLabel == "" {
			handleError(fmt.Errorf("--auth-label is required (or use --force --index)"))
			return
		}

		authVK, authCreds, err := authenticate(cmd.Context(), store, username, authLabel, "Passkey for "+authLabel+": ")
		if err != nil {
			handleError(err)
			return
		}
		defer authCreds.Passkey.Clear()
		defer authVK.ClearSecrets()

		printVerbose("Removing keyset %q for %s", label, username)
		if code := store.Keysets.RemoveKeyset(cmd.Context(), authCreds, types.KeyData{Label: label}); code != types.ErrorCodeNotSet {
			handleError(codeMessage("remove", code))
			return
		}

		if err := printer.PrintSuccess(fmt.Sprintf("Removed keyset %q for %s", label, username)); err != nil {
			handleError(err)
		}
	},
}

func init() {
	removeCmd.Flags().String("label", "", "label of the keyset to remove")
	removeCmd.Flags().String("auth-label", "", "label of the keyset authorizing the removal")
	removeCmd.Flags().Bool("force", false, "destroy a slot without authorization")
	removeCmd.Flags().Int("index", -1, "slot index for --force")
}
