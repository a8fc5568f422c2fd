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

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/lecredential"
)

// Config represents the complete tool configuration
type Config struct {
	Shadow       ShadowConfig       `yaml:"shadow"`
	Hardware     HardwareConfig     `yaml:"hardware"`
	LECredential LECredentialConfig `yaml:"le_credential"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// ShadowConfig locates the on-disk keyset store
type ShadowConfig struct {
	// Root holds one directory per obfuscated username.
	Root string `yaml:"root"`

	// SaltFile stores the device-wide salt that obfuscates account
	// names. Defaults to <root>/salt.
	SaltFile string `yaml:"salt_file"`
}

// HardwareConfig controls the hardware security frontend
type HardwareConfig struct {
	Enabled bool `yaml:"enabled"`

	// StatePath persists the sealing key across restarts. Empty means an
	// ephemeral key, which orphans hardware-bound keysets on restart.
	StatePath string `yaml:"state_path"`

	// PreferEcc selects the ECC sealing variant for new keysets.
	PreferEcc bool `yaml:"prefer_ecc"`
}

// LECredentialConfig controls the rate-limited credential store
type LECredentialConfig struct {
	// DBPath locates the device-wide leaf database. Defaults to
	// <shadow root>/low_entropy_creds/le.db.
	DBPath string `yaml:"db_path"`

	// BindToPcr marks new leaves as bound to platform configuration.
	BindToPcr bool `yaml:"bind_to_pcr"`

	// Policy is the lockout policy applied to new leaves.
	Policy lecredential.Policy `yaml:"policy"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls metrics recording
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the stock configuration. Paths derived from the
// shadow root are left empty until finalization.
func Default() *Config {
	return &Config{
		Shadow: ShadowConfig{
			Root: "/home/.shadow",
		},
		LECredential: LECredentialConfig{
			Policy: lecredential.DefaultPolicy(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration from a YAML file, applies environment
// variable overrides, and validates the result
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load when path names a file and the finalized stock
// configuration when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	cfg := Default()
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finalize() error {
	applyEnvOverrides(c)
	c.applyDerivedDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyDerivedDefaults fills the paths that hang off the shadow root.
func (c *Config) applyDerivedDefaults() {
	if c.Shadow.SaltFile == "" && c.Shadow.Root != "" {
		c.Shadow.SaltFile = filepath.Join(c.Shadow.Root, "salt")
	}
	if c.LECredential.DBPath == "" && c.Shadow.Root != "" {
		c.LECredential.DBPath = filepath.Join(c.Shadow.Root, "low_entropy_creds", "le.db")
	}
}

// SetShadowRoot points the configuration at a different shadow root
// after loading. Paths still sitting at their derived defaults follow
// the new root; paths pinned explicitly stay put.
func (c *Config) SetShadowRoot(root string) {
	if root == "" || root == c.Shadow.Root {
		return
	}
	if c.Shadow.SaltFile == filepath.Join(c.Shadow.Root, "salt") {
		c.Shadow.SaltFile = filepath.Join(root, "salt")
	}
	if c.LECredential.DBPath == filepath.Join(c.Shadow.Root, "low_entropy_creds", "le.db") {
		c.LECredential.DBPath = filepath.Join(root, "low_entropy_creds", "le.db")
	}
	c.Shadow.Root = root
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if root := os.Getenv("KEYSETCTL_SHADOW_ROOT"); root != "" {
		cfg.Shadow.Root = root
		// Derived paths follow the root unless pinned explicitly.
		cfg.Shadow.SaltFile = ""
		cfg.LECredential.DBPath = ""
	}
	if saltFile := os.Getenv("KEYSETCTL_SALT_FILE"); saltFile != "" {
		cfg.Shadow.SaltFile = saltFile
	}
	if dbPath := os.Getenv("KEYSETCTL_LE_DB"); dbPath != "" {
		cfg.LECredential.DBPath = dbPath
	}

	if hardware := os.Getenv("KEYSETCTL_HARDWARE"); hardware != "" {
		enabled, err := strconv.ParseBool(hardware)
		if err != nil {
			log.Printf("Warning: invalid KEYSETCTL_HARDWARE value %q, using default %t: %v",
				hardware, cfg.Hardware.Enabled, err)
		} else {
			cfg.Hardware.Enabled = enabled
		}
	}
	if statePath := os.Getenv("KEYSETCTL_HARDWARE_STATE"); statePath != "" {
		cfg.Hardware.StatePath = statePath
	}

	if level := os.Getenv("KEYSETCTL_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("KEYSETCTL_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if metricsEnv := os.Getenv("KEYSETCTL_METRICS"); metricsEnv != "" {
		enabled, err := strconv.ParseBool(metricsEnv)
		if err != nil {
			log.Printf("Warning: invalid KEYSETCTL_METRICS value %q, using default %t: %v",
				metricsEnv, cfg.Metrics.Enabled, err)
		} else {
			cfg.Metrics.Enabled = enabled
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Shadow.Root == "" {
		return fmt.Errorf("shadow root must be specified")
	}
	if c.Shadow.SaltFile == "" {
		return fmt.Errorf("shadow salt_file must be specified")
	}
	if c.LECredential.DBPath == "" {
		return fmt.Errorf("le_credential db_path must be specified")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	for attempts, delay := range c.LECredential.Policy.DelaySchedule {
		if attempts == 0 && delay != 0 {
			return fmt.Errorf("le_credential delay_schedule cannot delay the zeroth attempt")
		}
	}

	return nil
}
