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

package authblock

import (
	"fmt"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/hwsec"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/lecredential"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/logging"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

// FactoryConfig wires the backends the variants depend on. Hwsec and LE
// may be nil when the platform lacks them; selection degrades
// accordingly.
type FactoryConfig struct {
	Hwsec hwsec.Frontend

	LE       lecredential.Manager
	LEPolicy lecredential.Policy

	// PreferEcc selects the ECC variant over the PCR-bound one when the
	// hardware module is available.
	PreferEcc bool

	Logger *logging.Logger
}

// Factory selects the strongest variant available for new keysets and
// dispatches derivation from persisted state tags.
type Factory struct {
	hwsec     hwsec.Frontend
	le        lecredential.Manager
	lePolicy  lecredential.Policy
	preferEcc bool
	logger    *logging.Logger
}

// NewFactory creates the variant factory.
func NewFactory(cfg FactoryConfig) *Factory {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Factory{
		hwsec:     cfg.Hwsec,
		le:        cfg.LE,
		lePolicy:  cfg.LEPolicy,
		preferEcc: cfg.PreferEcc,
		logger:    logger,
	}
}

// HardwareReady reports whether a hardware security module is wired,
// enabled, and finished initializing. Re-save policy consults this to
// decide when a software envelope can be upgraded.
func (f *Factory) HardwareReady() bool {
	return f.hwsec != nil && f.hwsec.IsEnabled() && f.hwsec.IsReady()
}

// LEBackend returns the low entropy credential backend, or nil when the
// platform has none.
func (f *Factory) LEBackend() lecredential.Manager {
	return f.le
}

// ForCreation picks the variant for a new keyset: rate-limited for low
// entropy policies, hardware-sealed when the module is ready, scrypt
// otherwise.
func (f *Factory) ForCreation(keyData types.KeyData) (AuthBlock, error) {
	if keyData.Policy.LowEntropyCredential {
		if f.le == nil {
			return nil, fmt.Errorf("authblock: rate-limited keysets require a credential backend")
		}
		return NewPinWeaverAuthBlock(f.le, f.lePolicy), nil
	}
	if f.HardwareReady() {
		if f.preferEcc {
			f.logger.Debug("selected auth block", "variant", VariantTpmBoundToEcc)
			return NewTpmEccAuthBlock(f.hwsec), nil
		}
		f.logger.Debug("selected auth block", "variant", VariantTpmBoundToPcr)
		return NewTpmBoundToPcrAuthBlock(f.hwsec), nil
	}
	f.logger.Debug("selected auth block", "variant", VariantScryptOnly)
	return NewScryptOnlyAuthBlock(), nil
}

// ForDerivation picks the variant named by the persisted state.
func (f *Factory) ForDerivation(state *State) (AuthBlock, error) {
	if state == nil {
		return nil, fmt.Errorf("authblock: nil state: %w", types.CryptoErrorOtherFatal)
	}
	variant, err := state.Variant()
	if err != nil {
		return nil, fmt.Errorf("authblock: %v: %w", err, types.CryptoErrorOtherFatal)
	}
	switch variant {
	case VariantTpmBoundToPcr:
		if f.hwsec == nil {
			return nil, fmt.Errorf("authblock: sealed keyset without a hardware module: %w", types.CryptoErrorTPMFatal)
		}
		return NewTpmBoundToPcrAuthBlock(f.hwsec), nil
	case VariantTpmBoundToEcc:
		if f.hwsec == nil {
			return nil, fmt.Errorf("authblock: sealed keyset without a hardware module: %w", types.CryptoErrorTPMFatal)
		}
		return NewTpmEccAuthBlock(f.hwsec), nil
	case VariantScryptOnly:
		return NewScryptOnlyAuthBlock(), nil
	case VariantPinWeaver:
		if f.le == nil {
			return nil, fmt.Errorf("authblock: rate-limited keyset without a credential backend: %w", types.CryptoErrorOtherFatal)
		}
		return NewPinWeaverAuthBlock(f.le, f.lePolicy), nil
	}
	return nil, fmt.Errorf("authblock: unknown variant %q: %w", variant, types.CryptoErrorOtherFatal)
}
