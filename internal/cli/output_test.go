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
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestPrintKeysetList_Text(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter("text", &buf)

	rows := []KeysetRow{
		{Index: 0, Label: "password", Type: "password", Protection: "tpm_pcr", ResetSeed: true},
		{Index: 1, Label: "pin", Type: "pin", Protection: "pinweaver", ResetSeed: false},
	}
	if err := p.PrintKeysetList("alice", rows); err != nil {
		t.Fatalf("PrintKeysetList() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"INDEX", "password", "tpm_pcr", "pinweaver"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintKeysetList_TextEmpty(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter("text", &buf)

	if err := p.PrintKeysetList("alice", nil); err != nil {
		t.Fatalf("PrintKeysetList() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No keysets found") {
		t.Errorf("output = %q, want no-keysets message", buf.String())
	}
}

func TestPrintKeysetList_JSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter("json", &buf)

	rows := []KeysetRow{
		{Index: 2, Label: "backup", Type: "password", Protection: "scrypt", ResetSeed: true},
	}
	if err := p.PrintKeysetList("bob", rows); err != nil {
		t.Fatalf("PrintKeysetList() error = %v", err)
	}

	var decoded struct {
		Username string      `json:"username"`
		Keysets  []KeysetRow `json:"keysets"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, buf.String())
	}
	if decoded.Username != "bob" {
		t.Errorf("username = %q, want %q", decoded.Username, "bob")
	}
	if len(decoded.Keysets) != 1 || decoded.Keysets[0] != rows[0] {
		t.Errorf("keysets = %+v, want %+v", decoded.Keysets, rows)
	}
}

func TestPrintLabels(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter("text", &buf)

	if err := p.PrintLabels("alice", []string{"password", "pin"}); err != nil {
		t.Fatalf("PrintLabels() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "- password") || !strings.Contains(out, "- pin") {
		t.Errorf("output missing labels:\n%s", out)
	}
}

func TestPrintLEStatuses_Text(t *testing.T) {
	tests := []struct {
		name   string
		status LEStatus
		want   string
	}{
		{
			"available",
			LEStatus{Label: "pin", LeafLabel: 7, WrongAttempts: 0},
			"available",
		},
		{
			"delayed",
			LEStatus{Label: "pin", LeafLabel: 7, WrongAttempts: 3, DelaySeconds: 30},
			"delayed (30 seconds)",
		},
		{
			"locked",
			LEStatus{Label: "pin", LeafLabel: 7, WrongAttempts: 5, DelaySeconds: ^uint32(0), Locked: true},
			"locked (reset required)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := NewPrinter("text", &buf)
			if err := p.PrintLEStatuses("alice", []LEStatus{tt.status}); err != nil {
				t.Fatalf("PrintLEStatuses() error = %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want substring %q", buf.String(), tt.want)
			}
		})
	}
}

func TestPrintLEStatuses_JSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter("json", &buf)

	st := LEStatus{Label: "pin", LeafLabel: 12, WrongAttempts: 2, DelaySeconds: 15}
	if err := p.PrintLEStatuses("alice", []LEStatus{st}); err != nil {
		t.Fatalf("PrintLEStatuses() error = %v", err)
	}

	var decoded struct {
		Statuses []LEStatus `json:"statuses"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, buf.String())
	}
	if len(decoded.Statuses) != 1 || decoded.Statuses[0] != st {
		t.Errorf("statuses = %+v, want [%+v]", decoded.Statuses, st)
	}
}

func TestPrintError_JSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter("json", &buf)

	if err := p.PrintError(errors.New("boom")); err != nil {
		t.Fatalf("PrintError() error = %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, buf.String())
	}
	if decoded["status"] != "error" || decoded["error"] != "boom" {
		t.Errorf("decoded = %v, want status=error error=boom", decoded)
	}
}

func TestPrinter_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter("xml", &buf)

	if err := p.PrintSuccess("ok"); err == nil {
		t.Error("PrintSuccess() with unknown format did not fail")
	}
}
