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
	"path/filepath"
	"strings"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/internal/config"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/authblock"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/hwsec"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/keyset"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/lecredential"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/logging"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/metrics"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/storage"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/storage/file"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/vaultkeyset"
)

// defaultConfigFile is consulted when --config is not given.
const defaultConfigFile = "/etc/keysetctl.yaml"

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the configuration file
	ConfigFile string

	// ShadowRoot overrides the configured shadow root when non-empty
	ShadowRoot string

	// OutputFormat controls output formatting (text, json)
	OutputFormat string

	// Verbose enables verbose logging
	Verbose bool
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
		Verbose:      false,
	}
}

// configPath resolves the configuration file to load. An explicit
// --config always wins; otherwise the system default is used when it
// exists, and an empty path falls back to built-in defaults.
func (c *Config) configPath() string {
	if c.ConfigFile != "" {
		return c.ConfigFile
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

// Store is the wired keyset stack a command operates on. Close releases
// the low-entropy credential database.
type Store struct {
	Settings *config.Config
	Platform storage.Platform
	Hwsec    hwsec.Frontend
	LE       lecredential.Manager
	Crypto   *authblock.Factory
	Keysets  *keyset.Management

	logger *logging.Logger
}

// Close releases resources held by the store
func (s *Store) Close() error {
	if s.LE != nil {
		return s.LE.Close()
	}
	return nil
}

// OpenStore loads the configuration and wires the full keyset stack:
// file platform, system salt, hardware frontend, low-entropy credential
// manager, auth block factory, and keyset management.
func (c *Config) OpenStore() (*Store, error) {
	cfg, err := config.LoadOrDefault(c.configPath())
	if err != nil {
		return nil, err
	}
	cfg.SetShadowRoot(c.ShadowRoot)

	level := cfg.Logging.Level
	if c.Verbose {
		level = "debug"
	}
	logger := logging.New(level, cfg.Logging.Format)

	if cfg.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	platform, err := file.New(commonDir(cfg.Shadow.Root, cfg.Shadow.SaltFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage platform: %w", err)
	}

	salt, err := keyset.GetOrCreateSalt(platform, cfg.Shadow.SaltFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load system salt: %w", err)
	}

	var frontend hwsec.Frontend
	if cfg.Hardware.Enabled {
		sf, err := hwsec.NewSoftwareFrontend(hwsec.Config{
			Enabled:   true,
			StatePath: cfg.Hardware.StatePath,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize hardware frontend: %w", err)
		}
		frontend = sf
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LECredential.DBPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential database directory: %w", err)
	}
	le, err := lecredential.New(lecredential.Config{
		DBPath:    cfg.LECredential.DBPath,
		BindToPcr: cfg.LECredential.BindToPcr,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential database: %w", err)
	}

	crypto := authblock.NewFactory(authblock.FactoryConfig{
		Hwsec:     frontend,
		LE:        le,
		LEPolicy:  cfg.LECredential.Policy,
		PreferEcc: cfg.Hardware.PreferEcc,
		Logger:    logger,
	})

	vkFactory, err := vaultkeyset.NewFactory(platform, crypto, logger)
	if err != nil {
		_ = le.Close()
		return nil, err
	}

	km, err := keyset.NewKeysetManagement(platform, vkFactory, crypto, keyset.Config{
		ShadowRoot: cfg.Shadow.Root,
		SystemSalt: salt,
	}, logger)
	if err != nil {
		_ = le.Close()
		return nil, err
	}

	return &Store{
		Settings: cfg,
		Platform: platform,
		Hwsec:    frontend,
		LE:       le,
		Crypto:   crypto,
		Keysets:  km,
		logger:   logger,
	}, nil
}

// commonDir returns the deepest directory containing both paths. The
// file platform is rooted there so the shadow tree and the salt file
// are reachable even when the salt sits outside the shadow root.
func commonDir(a, b string) string {
	a = filepath.Clean(a)
	b = filepath.Clean(b)
	sep := string(filepath.Separator)
	for !strings.HasPrefix(b+sep, a+sep) {
		parent := filepath.Dir(a)
		if parent == a {
			break
		}
		a = parent
	}
	return a
}
