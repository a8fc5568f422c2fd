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

package keyset

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/cryptoutil"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/storage"
)

// SystemSaltSize is the length of the device-wide salt that obfuscates
// account names. The salt is not secret, only stable.
const SystemSaltSize = 32

const saltFilePerms = 0644

// GetOrCreateSalt returns the system salt at path, generating and
// persisting a fresh one on first use. A salt file of unexpected size
// is an error rather than a regeneration, because replacing the salt
// would orphan every existing user directory.
func GetOrCreateSalt(platform storage.Platform, path string) ([]byte, error) {
	salt, err := platform.ReadFile(path)
	if err == nil {
		if len(salt) != SystemSaltSize {
			return nil, fmt.Errorf("keyset: salt file %s holds %d bytes, want %d", path, len(salt), SystemSaltSize)
		}
		return salt, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("keyset: reading salt file %s: %w", path, err)
	}

	salt, err = cryptoutil.GetSecureRandom(SystemSaltSize)
	if err != nil {
		return nil, fmt.Errorf("keyset: generating system salt: %w", err)
	}
	if err := platform.CreateDirectory(filepath.Dir(path), keysetDirPerms); err != nil {
		return nil, fmt.Errorf("keyset: creating salt directory: %w", err)
	}
	if err := platform.WriteFileAtomicDurable(path, salt, saltFilePerms); err != nil {
		return nil, fmt.Errorf("keyset: writing salt file %s: %w", path, err)
	}
	return salt, nil
}
