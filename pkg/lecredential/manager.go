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

// Package lecredential rate-limits low entropy secrets such as PINs. Each
// credential is a leaf in a device-wide store: the high entropy payload is
// sealed under a key derived from the low entropy secret, guesses move a
// wrong-attempt counter, and exhausting the policy threshold locks the
// leaf until a reset secret clears it.
package lecredential

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	bolt "go.etcd.io/bbolt"

	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/cryptoutil"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/logging"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/metrics"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/secret"
	"github.com/ArthurSonzogni/chromiumos-platform2-sub031/pkg/types"
)

// Bucket names
var (
	leavesBucket = []byte("le_leaves")
	metaBucket   = []byte("le_meta")
)

// Meta keys
var (
	metaVersion  = []byte("version")
	metaPcrBound = []byte("pcr_bound")
)

const (
	// DefaultAttemptThreshold is the wrong-attempt budget applied when a
	// policy does not set one.
	DefaultAttemptThreshold uint32 = 5

	// LockoutDelay is the delay value meaning locked until reset.
	LockoutDelay uint32 = math.MaxUint32

	leafSaltSize = 16
)

// Policy is the per-credential rate limiting policy. The threshold and
// schedule are configuration owned by this backend, not fixed constants.
type Policy struct {
	// AttemptThreshold is the number of consecutive wrong attempts after
	// which the leaf locks. Zero selects DefaultAttemptThreshold.
	AttemptThreshold uint32 `json:"attempt_threshold" yaml:"attempt_threshold"`

	// DelaySchedule maps a wrong-attempt count to the delay in seconds
	// enforced once that count is reached. A LockoutDelay entry means
	// locked until reset.
	DelaySchedule map[uint32]uint32 `json:"delay_schedule,omitempty" yaml:"delay_schedule,omitempty"`
}

// DefaultPolicy returns the stock PIN policy: five attempts, then locked
// until reset.
func DefaultPolicy() Policy {
	return Policy{
		AttemptThreshold: DefaultAttemptThreshold,
		DelaySchedule: map[uint32]uint32{
			DefaultAttemptThreshold: LockoutDelay,
		},
	}
}

func (p Policy) normalized() Policy {
	if p.AttemptThreshold == 0 {
		p.AttemptThreshold = DefaultAttemptThreshold
	}
	if p.DelaySchedule == nil {
		p.DelaySchedule = map[uint32]uint32{p.AttemptThreshold: LockoutDelay}
	}
	return p
}

// Manager is the low entropy credential contract consumed by keyset
// management.
type Manager interface {
	// InsertCredential stores a new leaf and returns its label.
	InsertCredential(leSecret, heSecret, resetSecret *secret.Blob, policy Policy) (uint64, error)

	// CheckCredential attempts to release the leaf's payload. A locked
	// leaf fails with ErrCredentialLocked without being checked, and a
	// mismatch fails with ErrInvalidLESecret after moving the counter.
	CheckCredential(label uint64, leSecret *secret.Blob) (*types.KeyBlobs, error)

	// ResetCredential zeroes the wrong-attempt counter and clears the
	// lock. A mismatched reset secret changes nothing.
	ResetCredential(label uint64, resetSecret *secret.Blob) error

	// RemoveCredential deletes the leaf.
	RemoveCredential(label uint64) error

	// GetWrongAuthAttempts returns the leaf's wrong-attempt counter.
	GetWrongAuthAttempts(label uint64) (uint32, error)

	// GetDelayInSeconds returns the delay currently enforced on the leaf
	// per its schedule, LockoutDelay when locked.
	GetDelayInSeconds(label uint64) (uint32, error)

	// NeedsPcrBinding reports whether existing leaves predate the
	// platform binding this device now requires.
	NeedsPcrBinding() bool

	// Close releases the backing store.
	Close() error
}

// Config configures the credential store.
type Config struct {
	// DBPath locates the device-wide credential database.
	DBPath string

	// BindToPcr marks new leaves as bound to platform configuration.
	BindToPcr bool

	Logger *logging.Logger
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("lecredential: database path required")
	}
	return nil
}

type boltManager struct {
	db              *bolt.DB
	bindToPcr       bool
	needsPcrBinding bool
	logger          *logging.Logger
}

// New opens or creates the credential store.
func New(cfg Config) (Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	db, err := bolt.Open(cfg.DBPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrHashTree, err)
	}

	m := &boltManager{
		db:        db,
		bindToPcr: cfg.BindToPcr,
		logger:    logger,
	}
	if err := m.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *boltManager) initialize() error {
	return m.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{leavesBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("%w: creating bucket %s: %v", ErrHashTree, bucket, err)
			}
		}
		meta := tx.Bucket(metaBucket)
		if meta.Get(metaVersion) == nil {
			if err := meta.Put(metaVersion, []byte("1")); err != nil {
				return fmt.Errorf("%w: %v", ErrHashTree, err)
			}
		}
		stored := meta.Get(metaPcrBound)
		if stored == nil {
			// New store: record the binding mode it was created with.
			v := []byte{0}
			if m.bindToPcr {
				v[0] = 1
			}
			if err := meta.Put(metaPcrBound, v); err != nil {
				return fmt.Errorf("%w: %v", ErrHashTree, err)
			}
			stored = v
		}
		m.needsPcrBinding = m.bindToPcr && stored[0] == 0
		return nil
	})
}

// Close closes the database.
func (m *boltManager) Close() error {
	return m.db.Close()
}

// leafRecord is the persisted form of one credential leaf.
type leafRecord struct {
	Salt              []byte            `json:"salt"`
	SealedPayload     []byte            `json:"sealed_payload"`
	ResetCommitment   []byte            `json:"reset_commitment"`
	WrongAuthAttempts uint32            `json:"wrong_auth_attempts"`
	AuthLocked        bool              `json:"auth_locked"`
	AttemptThreshold  uint32            `json:"attempt_threshold"`
	DelaySchedule     map[uint32]uint32 `json:"delay_schedule,omitempty"`
	PcrBound          bool              `json:"pcr_bound"`
}

// leafPayload is the plaintext sealed inside a leaf.
type leafPayload struct {
	HESecret    []byte `json:"he_secret"`
	ResetSecret []byte `json:"reset_secret"`
}

func labelKey(label uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, label)
	return key
}

// sealingKey derives the leaf's AEAD key from the low entropy secret and
// the per-leaf salt.
func sealingKey(leSecret *secret.Blob, salt []byte) (*secret.Blob, error) {
	return cryptoutil.DeriveHKDFKey(leSecret, salt, []byte("le-credential-leaf"), cryptoutil.AESKeySize)
}

func resetCommitment(resetSecret *secret.Blob, salt []byte) []byte {
	mac := hmac.New(sha256.New, resetSecret.Bytes())
	mac.Write([]byte("le-credential-reset"))
	mac.Write(salt)
	return mac.Sum(nil)
}

// InsertCredential stores a new leaf and returns its label.
func (m *boltManager) InsertCredential(leSecret, heSecret, resetSecret *secret.Blob, policy Policy) (uint64, error) {
	if leSecret.IsEmpty() {
		return 0, errors.New("lecredential: low entropy secret required")
	}
	if heSecret.IsEmpty() {
		return 0, errors.New("lecredential: high entropy secret required")
	}
	if resetSecret.IsEmpty() {
		return 0, errors.New("lecredential: reset secret required")
	}
	policy = policy.normalized()

	salt, err := cryptoutil.GetSecureRandom(leafSaltSize)
	if err != nil {
		return 0, err
	}
	key, err := sealingKey(leSecret, salt)
	if err != nil {
		return 0, err
	}
	defer key.Clear()

	payload, err := json.Marshal(leafPayload{
		HESecret:    heSecret.Bytes(),
		ResetSecret: resetSecret.Bytes(),
	})
	if err != nil {
		return 0, fmt.Errorf("lecredential: encoding leaf payload: %w", err)
	}
	defer secret.Zero(payload)

	sealed, err := cryptoutil.EncryptAESGCM(key, payload)
	if err != nil {
		return 0, fmt.Errorf("lecredential: sealing leaf: %w", err)
	}

	record, err := json.Marshal(leafRecord{
		Salt:             salt,
		SealedPayload:    sealed,
		ResetCommitment:  resetCommitment(resetSecret, salt),
		AttemptThreshold: policy.AttemptThreshold,
		DelaySchedule:    policy.DelaySchedule,
		PcrBound:         m.bindToPcr,
	})
	if err != nil {
		return 0, fmt.Errorf("lecredential: encoding leaf: %w", err)
	}

	var label uint64
	err = m.db.Update(func(tx *bolt.Tx) error {
		leaves := tx.Bucket(leavesBucket)
		seq, seqErr := leaves.NextSequence()
		if seqErr != nil {
			return fmt.Errorf("%w: allocating label: %v", ErrHashTree, seqErr)
		}
		label = seq
		return leaves.Put(labelKey(label), record)
	})
	if err != nil {
		if errors.Is(err, ErrHashTree) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: storing leaf: %v", ErrHashTree, err)
	}

	m.logger.Debug("inserted le credential", "label", label, "threshold", policy.AttemptThreshold)
	return label, nil
}

func getLeaf(tx *bolt.Tx, label uint64) (*leafRecord, error) {
	leaves := tx.Bucket(leavesBucket)
	if leaves == nil {
		return nil, fmt.Errorf("%w: leaves bucket missing", ErrHashTree)
	}
	data := leaves.Get(labelKey(label))
	if data == nil {
		return nil, ErrLabelNotFound
	}
	var leaf leafRecord
	if err := json.Unmarshal(data, &leaf); err != nil {
		return nil, fmt.Errorf("%w: decoding leaf %d: %v", ErrHashTree, label, err)
	}
	return &leaf, nil
}

func putLeaf(tx *bolt.Tx, label uint64, leaf *leafRecord) error {
	data, err := json.Marshal(leaf)
	if err != nil {
		return fmt.Errorf("%w: encoding leaf %d: %v", ErrHashTree, label, err)
	}
	return tx.Bucket(leavesBucket).Put(labelKey(label), data)
}

// CheckCredential attempts to release the leaf's payload.
func (m *boltManager) CheckCredential(label uint64, leSecret *secret.Blob) (*types.KeyBlobs, error) {
	var blobs *types.KeyBlobs
	err := m.db.Update(func(tx *bolt.Tx) error {
		leaf, err := getLeaf(tx, label)
		if err != nil {
			return err
		}
		// A locked leaf fails before any check so the counter cannot
		// move again until a reset.
		if leaf.AuthLocked {
			return ErrCredentialLocked
		}

		key, err := sealingKey(leSecret, leaf.Salt)
		if err != nil {
			return err
		}
		defer key.Clear()

		plaintext, err := cryptoutil.DecryptAESGCM(key, leaf.SealedPayload)
		if err != nil {
			leaf.WrongAuthAttempts++
			if leaf.WrongAuthAttempts >= leaf.AttemptThreshold {
				leaf.WrongAuthAttempts = leaf.AttemptThreshold
				leaf.AuthLocked = true
				metrics.RecordLELockout()
				m.logger.Warn("le credential locked out", "label", label, "attempts", leaf.WrongAuthAttempts)
			}
			if putErr := putLeaf(tx, label, leaf); putErr != nil {
				return putErr
			}
			return ErrInvalidLESecret
		}
		defer secret.Zero(plaintext)

		if leaf.WrongAuthAttempts != 0 {
			leaf.WrongAuthAttempts = 0
			if putErr := putLeaf(tx, label, leaf); putErr != nil {
				return putErr
			}
		}

		var payload leafPayload
		if err := json.Unmarshal(plaintext, &payload); err != nil {
			return fmt.Errorf("%w: decoding leaf payload %d: %v", ErrHashTree, label, err)
		}
		blobs = &types.KeyBlobs{
			VkkKey:      secret.New(payload.HESecret),
			ResetSecret: secret.New(payload.ResetSecret),
		}
		secret.Zero(payload.HESecret)
		secret.Zero(payload.ResetSecret)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blobs, nil
}

// ResetCredential zeroes the wrong-attempt counter and clears the lock.
func (m *boltManager) ResetCredential(label uint64, resetSecret *secret.Blob) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		leaf, err := getLeaf(tx, label)
		if err != nil {
			return err
		}
		want := resetCommitment(resetSecret, leaf.Salt)
		if !hmac.Equal(want, leaf.ResetCommitment) {
			return ErrInvalidResetSecret
		}
		leaf.WrongAuthAttempts = 0
		leaf.AuthLocked = false
		if err := putLeaf(tx, label, leaf); err != nil {
			return err
		}
		m.logger.Debug("le credential reset", "label", label)
		return nil
	})
}

// RemoveCredential deletes the leaf.
func (m *boltManager) RemoveCredential(label uint64) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		if _, err := getLeaf(tx, label); err != nil {
			return err
		}
		return tx.Bucket(leavesBucket).Delete(labelKey(label))
	})
}

// GetWrongAuthAttempts returns the leaf's wrong-attempt counter.
func (m *boltManager) GetWrongAuthAttempts(label uint64) (uint32, error) {
	var attempts uint32
	err := m.db.View(func(tx *bolt.Tx) error {
		leaf, err := getLeaf(tx, label)
		if err != nil {
			return err
		}
		attempts = leaf.WrongAuthAttempts
		return nil
	})
	return attempts, err
}

// GetDelayInSeconds returns the delay currently enforced on the leaf.
func (m *boltManager) GetDelayInSeconds(label uint64) (uint32, error) {
	var delay uint32
	err := m.db.View(func(tx *bolt.Tx) error {
		leaf, err := getLeaf(tx, label)
		if err != nil {
			return err
		}
		if leaf.AuthLocked {
			delay = LockoutDelay
			return nil
		}
		// The schedule entry with the largest attempt count not above
		// the current counter applies.
		var bestAttempts uint32
		for attempts, d := range leaf.DelaySchedule {
			if attempts <= leaf.WrongAuthAttempts && attempts >= bestAttempts {
				bestAttempts = attempts
				delay = d
			}
		}
		return nil
	})
	return delay, err
}

// NeedsPcrBinding reports whether existing leaves predate the platform
// binding this device now requires.
func (m *boltManager) NeedsPcrBinding() bool {
	return m.needsPcrBinding
}

// Verify interface compliance at compile time
var _ Manager = (*boltManager)(nil)
