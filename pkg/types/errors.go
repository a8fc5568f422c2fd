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

package types

import "errors"

// ErrorCode is the status returned by keyset mutation operations.
// ErrorCodeNotSet means success; the remaining values classify the
// failure so callers can decide whether a retry can help.
type ErrorCode int

const (
	ErrorCodeNotSet ErrorCode = iota
	ErrorCodeKeyLabelExists
	ErrorCodeKeyNotFound
	ErrorCodeKeyQuotaExceeded
	ErrorCodeAuthorizationKeyNotFound
	ErrorCodeAuthorizationKeyFailed
	ErrorCodeBackingStoreFailure
)

// String returns the wire name of the code.
func (e ErrorCode) String() string {
	switch e {
	case ErrorCodeNotSet:
		return "NOT_SET"
	case ErrorCodeKeyLabelExists:
		return "KEY_LABEL_EXISTS"
	case ErrorCodeKeyNotFound:
		return "KEY_NOT_FOUND"
	case ErrorCodeKeyQuotaExceeded:
		return "KEY_QUOTA_EXCEEDED"
	case ErrorCodeAuthorizationKeyNotFound:
		return "AUTHORIZATION_KEY_NOT_FOUND"
	case ErrorCodeAuthorizationKeyFailed:
		return "AUTHORIZATION_KEY_FAILED"
	case ErrorCodeBackingStoreFailure:
		return "BACKING_STORE_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// MountError classifies authentication outcomes for the mount layer.
type MountError int

const (
	MountErrorNone MountError = iota
	MountErrorKeyFailure
	MountErrorTPMCommError
	MountErrorTPMDefendLock
	MountErrorTPMNeedsReboot
	MountErrorVaultUnrecoverable
)

// String returns the wire name of the mount error.
func (e MountError) String() string {
	switch e {
	case MountErrorNone:
		return "NONE"
	case MountErrorKeyFailure:
		return "KEY_FAILURE"
	case MountErrorTPMCommError:
		return "TPM_COMM_ERROR"
	case MountErrorTPMDefendLock:
		return "TPM_DEFEND_LOCK"
	case MountErrorTPMNeedsReboot:
		return "TPM_NEEDS_REBOOT"
	case MountErrorVaultUnrecoverable:
		return "VAULT_UNRECOVERABLE"
	default:
		return "UNKNOWN"
	}
}

// CryptoError classifies failures inside the cryptographic envelope
// layer. It implements error so AuthBlocks can wrap a value of this type
// with %w and callers can recover it with CryptoErrorFromError.
type CryptoError int

const (
	// CryptoErrorNone is the zero value; it never travels inside an error.
	CryptoErrorNone CryptoError = iota

	// CryptoErrorTPMFatal: the security module rejected the operation in
	// a way that will not heal (wrong owner, cleared chip).
	CryptoErrorTPMFatal

	// CryptoErrorOtherFatal: an unrecoverable non-hardware failure, such
	// as a corrupted envelope that cannot be parsed.
	CryptoErrorOtherFatal

	// CryptoErrorTPMCommError: transient communication failure with the
	// security module.
	CryptoErrorTPMCommError

	// CryptoErrorTPMDefendLock: the module's dictionary-attack defense is
	// engaged; retrying now cannot succeed.
	CryptoErrorTPMDefendLock

	// CryptoErrorTPMReboot: the module demands a reboot before further
	// operations.
	CryptoErrorTPMReboot

	// CryptoErrorScryptCrypto: key-stretching verification failed, which
	// for a software envelope means a wrong passkey.
	CryptoErrorScryptCrypto

	// CryptoErrorOtherCrypto: any other envelope failure, wrong passkey
	// included.
	CryptoErrorOtherCrypto

	// CryptoErrorLEInvalidSecret: the hash-tree backend rejected the
	// low-entropy secret.
	CryptoErrorLEInvalidSecret
)

// Error implements the error interface.
func (e CryptoError) Error() string {
	return "crypto error: " + e.String()
}

// String returns the wire name of the crypto error.
func (e CryptoError) String() string {
	switch e {
	case CryptoErrorNone:
		return "NONE"
	case CryptoErrorTPMFatal:
		return "TPM_FATAL"
	case CryptoErrorOtherFatal:
		return "OTHER_FATAL"
	case CryptoErrorTPMCommError:
		return "TPM_COMM_ERROR"
	case CryptoErrorTPMDefendLock:
		return "TPM_DEFEND_LOCK"
	case CryptoErrorTPMReboot:
		return "TPM_REBOOT"
	case CryptoErrorScryptCrypto:
		return "SCRYPT_CRYPTO"
	case CryptoErrorOtherCrypto:
		return "OTHER_CRYPTO"
	case CryptoErrorLEInvalidSecret:
		return "LE_INVALID_SECRET"
	default:
		return "UNKNOWN"
	}
}

// CryptoErrorFromError recovers the CryptoError classification from a
// wrapped error chain. Unclassified errors count as CryptoErrorOtherCrypto;
// nil maps to CryptoErrorNone.
func CryptoErrorFromError(err error) CryptoError {
	if err == nil {
		return CryptoErrorNone
	}
	var ce CryptoError
	if errors.As(err, &ce) {
		return ce
	}
	return CryptoErrorOtherCrypto
}

// MountErrorFromCryptoError maps envelope failures onto the mount-layer
// taxonomy: fatal classes surface as an unrecoverable vault, hardware
// conditions pass through, and everything else is a key failure the
// caller may retry with different credentials.
func MountErrorFromCryptoError(ce CryptoError) MountError {
	switch ce {
	case CryptoErrorNone:
		return MountErrorNone
	case CryptoErrorTPMFatal, CryptoErrorOtherFatal:
		return MountErrorVaultUnrecoverable
	case CryptoErrorTPMCommError:
		return MountErrorTPMCommError
	case CryptoErrorTPMDefendLock:
		return MountErrorTPMDefendLock
	case CryptoErrorTPMReboot:
		return MountErrorTPMNeedsReboot
	default:
		return MountErrorKeyFailure
	}
}
