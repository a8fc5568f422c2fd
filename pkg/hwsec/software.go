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

package hwsec

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/cryptoutil"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/secret"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

// FaultMode makes the software frontend simulate a hardware failure
// class on every sealing operation. Zero value is no fault.
type FaultMode int

const (
	FaultNone FaultMode = iota
	FaultCommError
	FaultDefendLock
	FaultNeedsReboot
)

// Config configures the software frontend.
type Config struct {
	// Enabled simulates module presence. A disabled frontend refuses all
	// sealing operations.
	Enabled bool

	// StatePath persists the device sealing key across restarts. Empty
	// means an ephemeral key.
	StatePath string
}

// SoftwareFrontend implements Frontend without hardware: sealing is
// AES-GCM under a device key, gated on a simulated PCR bank. It stands in
// for the module on platforms that lack one and carries the fault knobs
// the tests drive.
type SoftwareFrontend struct {
	mu        sync.RWMutex
	enabled   bool
	ready     bool
	deviceKey *secret.Blob
	pcrBank   map[uint][]byte
	fault     FaultMode
}

// NewSoftwareFrontend creates the software frontend, loading or creating
// the device key when a state path is configured.
func NewSoftwareFrontend(cfg Config) (*SoftwareFrontend, error) {
	f := &SoftwareFrontend{
		enabled: cfg.Enabled,
		pcrBank: make(map[uint][]byte),
	}
	if !cfg.Enabled {
		return f, nil
	}
	key, err := loadOrCreateDeviceKey(cfg.StatePath)
	if err != nil {
		return nil, err
	}
	f.deviceKey = key
	f.ready = true
	return f, nil
}

func loadOrCreateDeviceKey(statePath string) (*secret.Blob, error) {
	if statePath == "" {
		return secret.NewRandom(cryptoutil.AESKeySize)
	}
	data, err := os.ReadFile(statePath)
	if err == nil {
		raw, decErr := hex.DecodeString(string(data))
		if decErr != nil || len(raw) != cryptoutil.AESKeySize {
			return nil, fmt.Errorf("hwsec: corrupt device key state at %q", statePath)
		}
		b := secret.New(raw)
		secret.Zero(raw)
		return b, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("hwsec: reading device key state: %w", err)
	}
	key, err := secret.NewRandom(cryptoutil.AESKeySize)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(statePath), 0700); err != nil {
		return nil, fmt.Errorf("hwsec: creating state directory: %w", err)
	}
	if err := os.WriteFile(statePath, []byte(hex.EncodeToString(key.Bytes())), 0600); err != nil {
		return nil, fmt.Errorf("hwsec: persisting device key state: %w", err)
	}
	return key, nil
}

// IsEnabled reports whether the simulated module is present.
func (f *SoftwareFrontend) IsEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled
}

// IsReady reports whether sealing operations can proceed.
func (f *SoftwareFrontend) IsReady() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled && f.ready
}

// SetFaultMode switches the simulated failure class for subsequent
// sealing operations.
func (f *SoftwareFrontend) SetFaultMode(mode FaultMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fault = mode
}

// ExtendPCR folds data into the selected PCR the way a measured-boot
// event would: value' = SHA-256(value || SHA-256(data)).
func (f *SoftwareFrontend) ExtendPCR(index uint, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	measurement := sha256.Sum256(data)
	current := f.pcrValueLocked(index)
	next := sha256.Sum256(append(current, measurement[:]...))
	f.pcrBank[index] = next[:]
}

func (f *SoftwareFrontend) pcrValueLocked(index uint) []byte {
	if v, ok := f.pcrBank[index]; ok {
		return v
	}
	return make([]byte, sha256.Size)
}

func (f *SoftwareFrontend) checkOperational() error {
	switch f.fault {
	case FaultCommError:
		return fmt.Errorf("hwsec: command transport failed: %w", types.CryptoErrorTPMCommError)
	case FaultDefendLock:
		return fmt.Errorf("hwsec: dictionary attack defense engaged: %w", types.CryptoErrorTPMDefendLock)
	case FaultNeedsReboot:
		return fmt.Errorf("hwsec: module requires reboot: %w", types.CryptoErrorTPMReboot)
	}
	if !f.enabled || !f.ready {
		return fmt.Errorf("hwsec: module not ready: %w", types.CryptoErrorTPMFatal)
	}
	return nil
}

// GetPublicKeyHash returns a stable hash identifying the sealing key.
func (f *SoftwareFrontend) GetPublicKeyHash() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := f.checkOperational(); err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write([]byte("srk-public"))
	h.Write(f.deviceKey.Bytes())
	return h.Sum(nil), nil
}

// GetRandom returns n bytes from the RNG.
func (f *SoftwareFrontend) GetRandom(n int) ([]byte, error) {
	return cryptoutil.GetSecureRandom(n)
}

// SealToPcr seals plaintext gated on authValue and the selected PCR's
// current value.
func (f *SoftwareFrontend) SealToPcr(plaintext, authValue *secret.Blob, sel PcrSelection) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := f.checkOperational(); err != nil {
		return nil, err
	}
	sealKey, err := f.sealingKeyLocked(authValue, sel)
	if err != nil {
		return nil, err
	}
	defer sealKey.Clear()
	sealed, err := cryptoutil.EncryptAESGCM(sealKey, plaintext.Bytes())
	if err != nil {
		return nil, fmt.Errorf("hwsec: sealing: %w", types.CryptoErrorTPMFatal)
	}
	return sealed, nil
}

// UnsealWithAuthorization reverses SealToPcr.
func (f *SoftwareFrontend) UnsealWithAuthorization(sealed []byte, authValue *secret.Blob, sel PcrSelection) (*secret.Blob, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := f.checkOperational(); err != nil {
		return nil, err
	}
	sealKey, err := f.sealingKeyLocked(authValue, sel)
	if err != nil {
		return nil, err
	}
	defer sealKey.Clear()
	plaintext, err := cryptoutil.DecryptAESGCM(sealKey, sealed)
	if err != nil {
		// Wrong auth value or changed platform configuration.
		return nil, fmt.Errorf("hwsec: unsealing: %w", types.CryptoErrorOtherCrypto)
	}
	b := secret.New(plaintext)
	secret.Zero(plaintext)
	return b, nil
}

// sealingKeyLocked derives the per-operation AEAD key from the device
// key, the PCR digest, and the caller's auth value.
func (f *SoftwareFrontend) sealingKeyLocked(authValue *secret.Blob, sel PcrSelection) (*secret.Blob, error) {
	pcrDigest := sha256.New()
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(sel.Index))
	pcrDigest.Write(idx[:])
	pcrDigest.Write(f.pcrValueLocked(sel.Index))

	info := append([]byte("seal-to-pcr:"), authValue.Bytes()...)
	defer secret.Zero(info)
	return cryptoutil.DeriveHKDFKey(f.deviceKey, pcrDigest.Sum(nil), info, cryptoutil.AESKeySize)
}

// GetEccAuthValue derives the module-bound ECC auth value.
func (f *SoftwareFrontend) GetEccAuthValue(salt []byte, passkeyDerived *secret.Blob) (*secret.Blob, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := f.checkOperational(); err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, f.deviceKey.Bytes())
	mac.Write([]byte("ecc-auth-value"))
	mac.Write(salt)
	mac.Write(passkeyDerived.Bytes())
	out := mac.Sum(nil)
	b := secret.New(out)
	secret.Zero(out)
	return b, nil
}

// Verify interface compliance at compile time
var _ Frontend = (*SoftwareFrontend)(nil)
