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

// Package testutil provides shared fixtures for tests that need a fully
// wired keyset stack on real storage.
package testutil

import (
	"fmt"
	"path/filepath"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/authblock"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/hwsec"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/keyset"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/lecredential"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/storage"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/storage/file"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/vaultkeyset"
)

// TestStack is a keyset stack wired on file storage under one directory
type TestStack struct {
	// Platform is the file storage backend rooted at the stack directory
	Platform storage.Platform
	// Hwsec is the software security module, nil when hardware is off
	Hwsec *hwsec.SoftwareFrontend
	// LE is the low-entropy credential manager over a bbolt database
	LE lecredential.Manager
	// Crypto is the auth block factory
	Crypto *authblock.Factory
	// Keysets is the keyset management layer under test
	Keysets *keyset.Management
	// Salt is the system salt generated for the stack
	Salt []byte
}

// Close releases the stack's credential database
func (s *TestStack) Close() error {
	if s.LE != nil {
		return s.LE.Close()
	}
	return nil
}

// NewTestStack wires a complete keyset stack under dir: file platform,
// system salt, optional software security module, low-entropy credential
// store, auth block factory, and keyset management. The shadow root is
// dir/shadow and the credential database dir/le.db.
//
// Parameters:
//   - dir: The directory holding all stack state, typically t.TempDir()
//   - hardware: Whether to simulate a security module
//
// Returns:
//   - *TestStack: The wired stack; callers Close it when done
//   - error: Any error encountered during wiring
func NewTestStack(dir string, hardware bool) (*TestStack, error) {
	platform, err := file.New(dir)
	if err != nil {
		return nil, fmt.Errorf("creating platform: %w", err)
	}

	salt, err := keyset.GetOrCreateSalt(platform, filepath.Join(dir, "salt"))
	if err != nil {
		return nil, fmt.Errorf("creating salt: %w", err)
	}

	var frontend *hwsec.SoftwareFrontend
	if hardware {
		frontend, err = hwsec.NewSoftwareFrontend(hwsec.Config{Enabled: true})
		if err != nil {
			return nil, fmt.Errorf("creating frontend: %w", err)
		}
	}

	le, err := lecredential.New(lecredential.Config{
		DBPath: filepath.Join(dir, "le.db"),
	})
	if err != nil {
		return nil, fmt.Errorf("opening credential database: %w", err)
	}

	factoryCfg := authblock.FactoryConfig{
		LE:       le,
		LEPolicy: lecredential.DefaultPolicy(),
	}
	if frontend != nil {
		factoryCfg.Hwsec = frontend
	}
	crypto := authblock.NewFactory(factoryCfg)

	vkFactory, err := vaultkeyset.NewFactory(platform, crypto, nil)
	if err != nil {
		_ = le.Close()
		return nil, fmt.Errorf("creating keyset factory: %w", err)
	}

	km, err := keyset.NewKeysetManagement(platform, vkFactory, crypto, keyset.Config{
		ShadowRoot: filepath.Join(dir, "shadow"),
		SystemSalt: salt,
	}, nil)
	if err != nil {
		_ = le.Close()
		return nil, fmt.Errorf("creating keyset management: %w", err)
	}

	return &TestStack{
		Platform: platform,
		Hwsec:    frontend,
		LE:       le,
		Crypto:   crypto,
		Keysets:  km,
		Salt:     salt,
	}, nil
}

// PasswordCredentials builds password credentials for the given label
func PasswordCredentials(username string, passkey []byte, label string) *types.Credentials {
	return types.NewCredentials(username, passkey, types.KeyData{
		Label: label,
		Type:  types.KeyTypePassword,
	})
}

// PinCredentials builds rate-limited PIN credentials for the given label
func PinCredentials(username string, passkey []byte, label string) *types.Credentials {
	return types.NewCredentials(username, passkey, types.KeyData{
		Label: label,
		Type:  types.KeyTypePin,
		Policy: types.KeyDataPolicy{
			LowEntropyCredential: true,
		},
	})
}

// ConfigYAML renders a minimal configuration file pointing the stack at
// the given shadow root, with hardware and metrics off
func ConfigYAML(shadowRoot string) []byte {
	return []byte(fmt.Sprintf("shadow:\n  root: %s\nmetrics:\n  enabled: false\n", shadowRoot))
}
