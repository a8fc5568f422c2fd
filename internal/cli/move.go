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
	"strconv"

	"github.com/spf13/cobra"
)

// moveCmd moves a keyset between slots
var moveCmd = &cobra.Command{
	Use:   "move <username> <src-index> <dst-index>",
	Short: "Move a keyset to another slot",
	Long:  `Move the keyset at src-index to the free slot dst-index`,
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		username := args[0]
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		src, err := strconv.Atoi(args[1])
		if err != nil {
			handleError(fmt.Errorf("invalid src-index %q", args[1]))
			return
		}
		dst, err := strconv.Atoi(args[2])
		if err != nil {
			handleError(fmt.Errorf("invalid dst-index %q", args[2]))
			return
		}

		store, err := cfg.OpenStore()
		if err != nil {
			handleError(err)
			return
		}
		defer store.Close()

		user := store.Keysets.SanitizeUserName(username)
		printVerbose("Moving keyset %d -> %d for %s", src, dst, username)
		if !store.Keysets.MoveKeyset(user, src, dst) {
			handleError(fmt.Errorf("failed to move keyset from slot %d to slot %d", src, dst))
			return
		}

		if err := printer.PrintSuccess(fmt.Sprintf("Moved keyset from slot %d to slot %d for %s", src, dst, username)); err != nil {
			handleError(err)
		}
	},
}
