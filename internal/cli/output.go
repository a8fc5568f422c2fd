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
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// KeysetRow is one keyset in a listing.
type KeysetRow struct {
	Index      int    `json:"index"`
	Label      string `json:"label"`
	Type       string `json:"type"`
	Protection string `json:"protection"`
	ResetSeed  bool   `json:"reset_seed"`
}

// LEStatus is the rate-limiting state of one PIN keyset.
type LEStatus struct {
	Label         string `json:"label"`
	LeafLabel     uint64 `json:"leaf_label"`
	WrongAttempts uint32 `json:"wrong_attempts"`
	DelaySeconds  uint32 `json:"delay_seconds"`
	Locked        bool   `json:"locked"`
}

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintKeysetList prints a user's keysets
func (p *Printer) PrintKeysetList(username string, rows []KeysetRow) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"username": username,
			"keysets":  rows,
		})
	case OutputFormatText:
		if len(rows) == 0 {
			fmt.Fprintln(p.writer, "No keysets found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-6s %-24s %-10s %-10s %-10s\n", "INDEX", "LABEL", "TYPE", "WRAPPING", "RESETSEED")
		fmt.Fprintln(p.writer, strings.Repeat("-", 64))
		for _, r := range rows {
			fmt.Fprintf(p.writer, "%-6d %-24s %-10s %-10s %-10t\n", r.Index, r.Label, r.Type, r.Protection, r.ResetSeed)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintLabels prints a user's keyset labels
func (p *Printer) PrintLabels(username string, labels []string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"username": username,
			"labels":   labels,
		})
	case OutputFormatText:
		if len(labels) == 0 {
			fmt.Fprintln(p.writer, "No keysets found")
			return nil
		}
		for _, l := range labels {
			fmt.Fprintf(p.writer, "  - %s\n", l)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintLEStatuses prints the rate-limiting state of PIN keysets
func (p *Printer) PrintLEStatuses(username string, statuses []LEStatus) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"username": username,
			"statuses": statuses,
		})
	case OutputFormatText:
		if len(statuses) == 0 {
			fmt.Fprintln(p.writer, "No rate-limited keysets found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-24s %-12s %-9s %s\n", "LABEL", "LEAF", "ATTEMPTS", "STATE")
		fmt.Fprintln(p.writer, strings.Repeat("-", 64))
		for _, st := range statuses {
			state := "available"
			switch {
			case st.Locked:
				state = "locked (reset required)"
			case st.DelaySeconds > 0:
				state = fmt.Sprintf("delayed (%d seconds)", st.DelaySeconds)
			}
			fmt.Fprintf(p.writer, "%-24s %-12d %-9d %s\n", st.Label, st.LeafLabel, st.WrongAttempts, state)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// printJSON prints data as indented JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
