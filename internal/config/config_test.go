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
	"os"
	"path/filepath"
	"testing"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/lecredential"
)

// TestLoad_Success tests successful loading of a valid config file
func TestLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
shadow:
  root: "/var/lib/keysets"

hardware:
  enabled: true
  state_path: "/var/lib/keysets/device_key"
  prefer_ecc: false

le_credential:
  bind_to_pcr: true
  policy:
    attempt_threshold: 3

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: false
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}

	if cfg.Shadow.Root != "/var/lib/keysets" {
		t.Errorf("Shadow.Root = %v, want /var/lib/keysets", cfg.Shadow.Root)
	}
	if cfg.Shadow.SaltFile != "/var/lib/keysets/salt" {
		t.Errorf("Shadow.SaltFile = %v, want /var/lib/keysets/salt", cfg.Shadow.SaltFile)
	}
	if !cfg.Hardware.Enabled {
		t.Error("Hardware.Enabled = false, want true")
	}
	if cfg.Hardware.StatePath != "/var/lib/keysets/device_key" {
		t.Errorf("Hardware.StatePath = %v, want /var/lib/keysets/device_key", cfg.Hardware.StatePath)
	}
	if cfg.LECredential.DBPath != "/var/lib/keysets/low_entropy_creds/le.db" {
		t.Errorf("LECredential.DBPath = %v, want /var/lib/keysets/low_entropy_creds/le.db", cfg.LECredential.DBPath)
	}
	if !cfg.LECredential.BindToPcr {
		t.Error("LECredential.BindToPcr = false, want true")
	}
	if cfg.LECredential.Policy.AttemptThreshold != 3 {
		t.Errorf("LECredential.Policy.AttemptThreshold = %v, want 3", cfg.LECredential.Policy.AttemptThreshold)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %v, want json", cfg.Logging.Format)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() error = nil, want error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("shadow: [not: valid"), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "loud"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error = nil, want validation error")
	}
}

func TestLoadOrDefault_EmptyPath(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v, want nil", err)
	}

	if cfg.Shadow.Root != "/home/.shadow" {
		t.Errorf("Shadow.Root = %v, want /home/.shadow", cfg.Shadow.Root)
	}
	if cfg.Shadow.SaltFile != "/home/.shadow/salt" {
		t.Errorf("Shadow.SaltFile = %v, want /home/.shadow/salt", cfg.Shadow.SaltFile)
	}
	if cfg.LECredential.DBPath != "/home/.shadow/low_entropy_creds/le.db" {
		t.Errorf("LECredential.DBPath = %v, want /home/.shadow/low_entropy_creds/le.db", cfg.LECredential.DBPath)
	}
	if cfg.Hardware.Enabled {
		t.Error("Hardware.Enabled = true, want false")
	}
	if cfg.LECredential.Policy.AttemptThreshold != lecredential.DefaultAttemptThreshold {
		t.Errorf("Policy.AttemptThreshold = %v, want %v",
			cfg.LECredential.Policy.AttemptThreshold, lecredential.DefaultAttemptThreshold)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "shadow root override rederives paths",
			env:  map[string]string{"KEYSETCTL_SHADOW_ROOT": "/tmp/shadow"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Shadow.Root != "/tmp/shadow" {
					t.Errorf("Shadow.Root = %v, want /tmp/shadow", cfg.Shadow.Root)
				}
				if cfg.Shadow.SaltFile != "/tmp/shadow/salt" {
					t.Errorf("Shadow.SaltFile = %v, want /tmp/shadow/salt", cfg.Shadow.SaltFile)
				}
				if cfg.LECredential.DBPath != "/tmp/shadow/low_entropy_creds/le.db" {
					t.Errorf("LECredential.DBPath = %v, want /tmp/shadow/low_entropy_creds/le.db", cfg.LECredential.DBPath)
				}
			},
		},
		{
			name: "explicit salt file wins over derivation",
			env: map[string]string{
				"KEYSETCTL_SHADOW_ROOT": "/tmp/shadow",
				"KEYSETCTL_SALT_FILE":   "/etc/keyset.salt",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Shadow.SaltFile != "/etc/keyset.salt" {
					t.Errorf("Shadow.SaltFile = %v, want /etc/keyset.salt", cfg.Shadow.SaltFile)
				}
			},
		},
		{
			name: "le db override",
			env:  map[string]string{"KEYSETCTL_LE_DB": "/var/cred/le.db"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.LECredential.DBPath != "/var/cred/le.db" {
					t.Errorf("LECredential.DBPath = %v, want /var/cred/le.db", cfg.LECredential.DBPath)
				}
			},
		},
		{
			name: "hardware toggle",
			env:  map[string]string{"KEYSETCTL_HARDWARE": "true"},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Hardware.Enabled {
					t.Error("Hardware.Enabled = false, want true")
				}
			},
		},
		{
			name: "invalid hardware toggle keeps default",
			env:  map[string]string{"KEYSETCTL_HARDWARE": "maybe"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Hardware.Enabled {
					t.Error("Hardware.Enabled = true, want false")
				}
			},
		},
		{
			name: "logging overrides",
			env: map[string]string{
				"KEYSETCTL_LOG_LEVEL":  "warn",
				"KEYSETCTL_LOG_FORMAT": "json",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "warn" {
					t.Errorf("Logging.Level = %v, want warn", cfg.Logging.Level)
				}
				if cfg.Logging.Format != "json" {
					t.Errorf("Logging.Format = %v, want json", cfg.Logging.Format)
				}
			},
		},
		{
			name: "metrics toggle",
			env:  map[string]string{"KEYSETCTL_METRICS": "false"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Metrics.Enabled {
					t.Error("Metrics.Enabled = true, want false")
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for key, value := range tc.env {
				t.Setenv(key, value)
			}
			cfg, err := LoadOrDefault("")
			if err != nil {
				t.Fatalf("LoadOrDefault() error = %v, want nil", err)
			}
			tc.check(t, cfg)
		})
	}
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
shadow:
  root: "/from/file"
logging:
  level: "error"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	t.Setenv("KEYSETCTL_SHADOW_ROOT", "/from/env")
	t.Setenv("KEYSETCTL_LOG_LEVEL", "debug")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg.Shadow.Root != "/from/env" {
		t.Errorf("Shadow.Root = %v, want /from/env", cfg.Shadow.Root)
	}
	if cfg.Shadow.SaltFile != "/from/env/salt" {
		t.Errorf("Shadow.SaltFile = %v, want /from/env/salt", cfg.Shadow.SaltFile)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.applyDerivedDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{
			name:    "stock config is valid",
			mutate:  func(cfg *Config) {},
			wantErr: false,
		},
		{
			name:    "missing shadow root",
			mutate:  func(cfg *Config) { cfg.Shadow.Root = "" },
			wantErr: true,
		},
		{
			name:    "missing salt file",
			mutate:  func(cfg *Config) { cfg.Shadow.SaltFile = "" },
			wantErr: true,
		},
		{
			name:    "missing le db path",
			mutate:  func(cfg *Config) { cfg.LECredential.DBPath = "" },
			wantErr: true,
		},
		{
			name:    "bad log level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "loud" },
			wantErr: true,
		},
		{
			name:    "level is case insensitive",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "DEBUG" },
			wantErr: false,
		},
		{
			name:    "bad log format",
			mutate:  func(cfg *Config) { cfg.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name: "delay on zeroth attempt",
			mutate: func(cfg *Config) {
				cfg.LECredential.Policy.DelaySchedule = map[uint32]uint32{0: 30}
			},
			wantErr: true,
		},
		{
			name: "custom delay schedule",
			mutate: func(cfg *Config) {
				cfg.LECredential.Policy.DelaySchedule = map[uint32]uint32{4: 30, 5: lecredential.LockoutDelay}
			},
			wantErr: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("Validate() error = nil, want error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}
