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

package vaultkeyset

import (
	"errors"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/authblock"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/logging"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/storage"
)

// Factory constructs empty records bound to their collaborators. Tests
// substitute it to hand management doctored records.
type Factory interface {
	New() *VaultKeyset
}

type factory struct {
	platform storage.Platform
	crypto   *authblock.Factory
	logger   *logging.Logger
}

// NewFactory creates the production record factory.
func NewFactory(platform storage.Platform, crypto *authblock.Factory, logger *logging.Logger) (Factory, error) {
	if platform == nil {
		return nil, errors.New("vaultkeyset: platform required")
	}
	if crypto == nil {
		return nil, errors.New("vaultkeyset: auth block factory required")
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &factory{
		platform: platform,
		crypto:   crypto,
		logger:   logger,
	}, nil
}

func (f *factory) New() *VaultKeyset {
	vk := &VaultKeyset{}
	vk.Initialize(f.platform, f.crypto, f.logger)
	return vk
}

// Verify interface compliance at compile time
var _ Factory = (*factory)(nil)
