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

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/lecredential"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

// leCmd groups rate-limited credential operations
var leCmd = &cobra.Command{
	Use:   "le",
	Short: "Manage rate-limited (PIN) credentials",
	Long:  `Inspect and reset the rate-limiting state of PIN keysets`,
}

// leStatusCmd shows the rate-limiting state of a user's PIN keysets
var leStatusCmd = &cobra.Command{
	Use:   "status <username>",
	Short: "Show rate-limiting state",
	Long:  `Show the wrong-attempt counter and lockout state of the user's PIN keysets`,
	Args:  cobra.ExactArgs(1),
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

		statuses, err := leStatuses(store, username, label)
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintLEStatuses(username, statuses); err != nil {
			handleError(err)
		}
	},
}

// leResetCmd clears the lockout state of a user's PIN keysets
var leResetCmd = &cobra.Command{
	Use:   "reset <username>",
	Short: "Reset rate-limiting state",
	Long: `Clear the wrong-attempt counters and lockouts of the user's PIN
keysets. The reset must be authorized by a password keyset; a
rate-limited credential cannot authorize its own reset.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		username := args[0]
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		authLabel, _ := cmd.Flags().GetString("auth-label")

		store, err := cfg.OpenStore()
		if err != nil {
			handleError(err)
			return
		}
		defer store.Close()

		prompt := "Passkey: "
		if authLabel != "" {
			prompt = "Passkey for " + authLabel + ": "
		}
		passkey, err := readPasskey(prompt)
		if err != nil {
			handleError(err)
			return
		}
		defer passkey.Clear()

		creds := &types.Credentials{
			Username: username,
			Passkey:  passkey,
			KeyData:  types.KeyData{Label: authLabel},
		}
		store.Keysets.ResetLECredentials(cmd.Context(), creds)

		// The reset validates lazily and logs refusals; the counters
		// below show whether it took effect.
		statuses, err := leStatuses(store, username, "")
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintLEStatuses(username, statuses); err != nil {
			handleError(err)
		}
	},
}

// leStatuses collects the rate-limiting state of the user's PIN
// keysets, all of them or just the labeled one.
func leStatuses(store *Store, username, label string) ([]LEStatus, error) {
	user := store.Keysets.SanitizeUserName(username)
	labels, err := store.Keysets.GetVaultKeysetLabels(user)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate keysets: %w", err)
	}

	statuses := make([]LEStatus, 0, len(labels))
	for _, l := range labels {
		if label != "" && l != label {
			continue
		}
		vk := store.Keysets.GetVaultKeyset(user, l)
		if vk == nil || !vk.IsLECredential() {
			continue
		}
		leaf, has := vk.LELabel()
		if !has {
			continue
		}
		attempts, err := store.LE.GetWrongAuthAttempts(leaf)
		if err != nil {
			return nil, fmt.Errorf("failed to read leaf %d: %w", leaf, err)
		}
		delay, err := store.LE.GetDelayInSeconds(leaf)
		if err != nil {
			return nil, fmt.Errorf("failed to read leaf %d: %w", leaf, err)
		}
		statuses = append(statuses, LEStatus{
			Label:         vk.Label(),
			LeafLabel:     leaf,
			WrongAttempts: attempts,
			DelaySeconds:  delay,
			Locked:        delay == lecredential.LockoutDelay,
		})
	}

	if label != "" && len(statuses) == 0 {
		return nil, fmt.Errorf("no rate-limited keyset with label %q", label)
	}
	return statuses, nil
}

func init() {
	leStatusCmd.Flags().String("label", "", "show only the keyset with this label")
	leResetCmd.Flags().String("auth-label", "", "label of the password keyset authorizing the reset")
	leCmd.AddCommand(leStatusCmd)
	leCmd.AddCommand(leResetCmd)
}
