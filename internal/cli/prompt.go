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
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/secret"
)

// stdinReader is shared across prompts so piped input is not lost to a
// previous call's buffer.
var stdinReader = bufio.NewReader(os.Stdin)

// readPasskey prompts for a secret without echoing it. When stdin is
// not a terminal (pipes, tests) it reads one line instead, so the tool
// stays scriptable.
func readPasskey(prompt string) (*secret.Blob, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := stdinReader.ReadString('\n')
		if err != nil && line == "" {
			return nil, fmt.Errorf("failed to read passkey: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		blob := secret.FromString(line)
		return blob, nil
	}

	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passkey: %w", err)
	}
	blob := secret.New(raw)
	secret.Zero(raw)
	return blob, nil
}

// readNewPasskey prompts twice and requires both entries to match.
func readNewPasskey(prompt string) (*secret.Blob, error) {
	first, err := readPasskey(prompt)
	if err != nil {
		return nil, err
	}
	// Non-interactive input has no second entry to compare.
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return first, nil
	}
	defer first.Clear()

	second, err := readPasskey("Confirm: ")
	if err != nil {
		return nil, err
	}
	defer second.Clear()

	if !first.Equal(second) {
		return nil, fmt.Errorf("entries do not match")
	}
	return first.Clone(), nil
}
