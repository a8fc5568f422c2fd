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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/internal/testutil"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

func TestCommonDir(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want string
	}{
		{"same path", "/home/.shadow", "/home/.shadow", "/home/.shadow"},
		{"child under root", "/home/.shadow", "/home/.shadow/salt", "/home/.shadow"},
		{"sibling paths", "/home/.shadow", "/home/salt", "/home"},
		{"disjoint roots", "/home/.shadow", "/var/lib/salt", "/"},
		{"trailing slash", "/home/.shadow/", "/home/.shadow/salt", "/home/.shadow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commonDir(tt.a, tt.b); got != tt.want {
				t.Errorf("commonDir(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestConfigPath_Explicit(t *testing.T) {
	cfg := &Config{ConfigFile: "/tmp/custom.yaml"}
	if got := cfg.configPath(); got != "/tmp/custom.yaml" {
		t.Errorf("configPath() = %q, want %q", got, "/tmp/custom.yaml")
	}
}

func writeTestConfig(t *testing.T, shadowRoot string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keysetctl.yaml")
	if err := os.WriteFile(path, testutil.ConfigYAML(shadowRoot), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestOpenStore(t *testing.T) {
	shadowRoot := filepath.Join(t.TempDir(), "shadow")
	cfg := &Config{
		ConfigFile:   writeTestConfig(t, shadowRoot),
		OutputFormat: "text",
	}

	store, err := cfg.OpenStore()
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer store.Close()

	if store.Settings.Shadow.Root != shadowRoot {
		t.Errorf("Shadow.Root = %q, want %q", store.Settings.Shadow.Root, shadowRoot)
	}
	if _, err := os.Stat(filepath.Join(shadowRoot, "salt")); err != nil {
		t.Errorf("system salt was not created: %v", err)
	}
	if store.Hwsec != nil {
		t.Error("hardware frontend created with hardware disabled")
	}

	// The wired stack must support a full keyset lifecycle.
	fsk, err := types.NewRandomFileSystemKeyset()
	if err != nil {
		t.Fatalf("NewRandomFileSystemKeyset() error = %v", err)
	}
	defer fsk.Clear()

	creds := testutil.PasswordCredentials("alice", []byte("secret"), "password")
	defer creds.Passkey.Clear()

	if !store.Keysets.AddInitialKeyset(context.Background(), creds, fsk) {
		t.Fatal("AddInitialKeyset() = false, want true")
	}

	user := store.Keysets.SanitizeUserName("alice")
	labels, err := store.Keysets.GetVaultKeysetLabels(user)
	if err != nil {
		t.Fatalf("GetVaultKeysetLabels() error = %v", err)
	}
	if len(labels) != 1 || labels[0] != "password" {
		t.Errorf("labels = %v, want [password]", labels)
	}
}

func TestOpenStore_ShadowRootFlagOverride(t *testing.T) {
	configured := filepath.Join(t.TempDir(), "configured")
	override := filepath.Join(t.TempDir(), "override")
	cfg := &Config{
		ConfigFile:   writeTestConfig(t, configured),
		ShadowRoot:   override,
		OutputFormat: "text",
	}

	store, err := cfg.OpenStore()
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer store.Close()

	if store.Settings.Shadow.Root != override {
		t.Errorf("Shadow.Root = %q, want %q", store.Settings.Shadow.Root, override)
	}
	if _, err := os.Stat(filepath.Join(override, "salt")); err != nil {
		t.Errorf("salt did not follow the overridden root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(configured, "salt")); !os.IsNotExist(err) {
		t.Errorf("salt created under the configured root, err = %v", err)
	}
}
