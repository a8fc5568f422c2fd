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

// Package metrics provides Prometheus instrumentation for keyset management
// operations. It exposes operation counters, latency histograms, and failure
// counters keyed by the mount error taxonomy.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all keyset metrics
	Namespace = "keyset"

	// Label names
	LabelOperation  = "operation"
	LabelStatus     = "status"
	LabelMountError = "mount_error"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpGetValidKeyset      = "get_valid_keyset"
	OpAddInitialKeyset    = "add_initial_keyset"
	OpAddKeyset           = "add_keyset"
	OpUpdateKeyset        = "update_keyset"
	OpRemoveKeyset        = "remove_keyset"
	OpForceRemoveKeyset   = "force_remove_keyset"
	OpMoveKeyset          = "move_keyset"
	OpResaveKeyset        = "resave_keyset"
	OpListKeysets         = "list_keysets"
	OpListLabels          = "list_labels"
	OpResetLECredentials  = "reset_le_credentials"
	OpRemoveLECredentials = "remove_le_credentials"
)

var (
	// OperationsTotal tracks the total number of keyset management operations
	// by type and status. Use RecordOperation to increment this counter with
	// the appropriate labels.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of keyset management operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks the duration of keyset management operations in
	// seconds. Buckets cover both fast metadata reads and slow key derivations.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of keyset management operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelOperation},
	)

	// AuthFailuresTotal tracks failed keyset authentications by mount error.
	// Use the types.MountError string form for the mount_error label.
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of failed keyset authentications by mount error",
		},
		[]string{LabelMountError},
	)

	// LELockoutsTotal tracks the number of low entropy credentials driven into
	// the locked state by repeated wrong attempts.
	LELockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "le_lockouts_total",
			Help:      "Total number of low entropy credentials locked out",
		},
	)

	// ResavesTotal tracks keyset re-save attempts by status. A re-save rewraps
	// an existing keyset under a stronger envelope.
	ResavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "resaves_total",
			Help:      "Total number of keyset re-save attempts by status",
		},
		[]string{LabelStatus},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordOperation records a keyset management operation with its duration and
// status. This is the primary function for tracking operational metrics.
//
// Parameters:
//   - operation: The operation name (use Op* constants)
//   - status: The operation status (use Status* constants)
//   - duration: The operation duration in seconds
//
// Example:
//
//	start := time.Now()
//	vk, code := km.GetValidKeyset(creds)
//	duration := time.Since(start).Seconds()
//	if code != types.MountErrorNone {
//	    RecordOperation(OpGetValidKeyset, StatusError, duration)
//	} else {
//	    RecordOperation(OpGetValidKeyset, StatusSuccess, duration)
//	}
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordAuthFailure records a failed keyset authentication with the mount
// error it mapped to (e.g. "KEY_FAILURE", "TPM_DEFEND_LOCK").
func RecordAuthFailure(mountError string) {
	if !enabled.Load() {
		return
	}
	AuthFailuresTotal.WithLabelValues(mountError).Inc()
}

// RecordLELockout records a low entropy credential entering the locked state.
func RecordLELockout() {
	if !enabled.Load() {
		return
	}
	LELockoutsTotal.Inc()
}

// RecordResave records a keyset re-save attempt.
//
// Parameters:
//   - status: The re-save status (use Status* constants)
func RecordResave(status string) {
	if !enabled.Load() {
		return
	}
	ResavesTotal.WithLabelValues(status).Inc()
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
