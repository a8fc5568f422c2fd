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

// addCmd adds a keyset for a user
var addCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Add a keyset",
	Long: `Add a keyset for the given user.

The first keyset of a user is created directly with a fresh filesystem
keyset. Every further keyset must be authorized by an existing one via
--auth-label; the new keyset then protects the same filesystem keys.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		username := args[0]
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		label, _ := cmd.Flags().GetString("label")
		authLabel, _ := cmd.Flags().GetString("auth-label")
		pin, _ := cmd.Flags().GetBool("pin")
		clobber, _ := cmd.Flags().GetBool("clobber")

		store, err := cfg.OpenStore()
		if err != nil {
			handleError(err)
			return
		}
		defer store.Close()

		user := store.Keysets.SanitizeUserName(username)
		keyData := types.KeyData{Label: label, Type: types.KeyTypePassword}
		if pin {
			keyData.Type = types.KeyTypePin
			keyData.Policy.LowEntropyCredential = true
		}

		indices, err := store.Keysets.GetVaultKeysets(user)
		if err != nil {
			handleError(err)
			return
		}

		if len(indices) == 0 {
			if pin {
				handleError(fmt.Errorf("the first keyset cannot be a PIN; add a password keyset first"))
				return
			}
			addInitial(cmd, store, printer, username, keyData)
			return
		}

		if authLabel == "" {
			handleError(fmt.Errorf("--auth-label is required when the user already has keysets"))
			return
		}

		reference, authCreds, err := authenticate(cmd.Context(), store, username, authLabel, "Passkey for "+authLabel+": ")
		if err != nil {
			handleError(err)
			return
		}
		defer authCreds.Passkey.Clear()
		defer reference.ClearSecrets()

		passkey, err := readNewPasskey("New passkey for " + label + ": ")
		if err != nil {
			handleError(err)
			return
		}
		defer passkey.Clear()

		newCreds := &types.Credentials{Username: username, Passkey: passkey, KeyData: keyData}
		printVerbose("Adding keyset %q for %s (clobber: %v)", label, username, clobber)
		if code := store.Keysets.AddKeyset(cmd.Context(), newCreds, reference, clobber); code != types.ErrorCodeNotSet {
			handleError(codeMessage("add", code))
			return
		}

		if err := printer.PrintSuccess(fmt.Sprintf("Added keyset %q for %s", label, username)); err != nil {
			handleError(err)
		}
	},
}

// addInitial creates the user's first keyset with fresh filesystem keys
func addInitial(cmd *cobra.Command, store *Store, printer *Printer, username string, keyData types.KeyData) {
	passkey, err := readNewPasskey("New passkey for " + keyData.Label + ": ")
	if err != nil {
		handleError(err)
		return
	}
	defer passkey.Clear()

	fsk, err := types.NewRandomFileSystemKeyset()
	if err != nil {
		handleError(err)
		return
	}
	defer fsk.Clear()

	creds := &types.Credentials{Username: username, Passkey: passkey, KeyData: keyData}
	printVerbose("Creating initial keyset %q for %s", keyData.Label, username)
	if !store.Keysets.AddInitialKeyset(cmd.Context(), creds, fsk) {
		handleError(fmt.Errorf("failed to create the initial keyset"))
		return
	}

	if err := printer.PrintSuccess(fmt.Sprintf("Created initial keyset %q for %s", keyData.Label, username)); err != nil {
		handleError(err)
	}
}

func init() {
	addCmd.Flags().String("label", "", "label for the new keyset (required)")
	addCmd.Flags().String("auth-label", "", "label of the existing keyset authorizing the add")
	addCmd.Flags().Bool("pin", false, "protect the new keyset with a rate-limited PIN")
	addCmd.Flags().Bool("clobber", false, "replace an existing keyset carrying the same label")
	_ = addCmd.MarkFlagRequired("label")
}
