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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEnabled(t *testing.T) {
	// Metrics should be enabled by default
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}

	// Test disabling
	Disable()
	if IsEnabled() {
		t.Error("Expected metrics to be disabled after Disable()")
	}

	// Test enabling
	Enable()
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled after Enable()")
	}
}

func TestRecordOperation(t *testing.T) {
	Enable()

	// Reset counters before test
	OperationsTotal.Reset()
	OperationDuration.Reset()

	// Record a successful operation
	RecordOperation(OpGetValidKeyset, StatusSuccess, 0.5)

	// Verify counter incremented
	count := testutil.CollectAndCount(OperationsTotal)
	if count != 1 {
		t.Errorf("Expected 1 operation recorded, got %d", count)
	}

	// Verify histogram updated
	histCount := testutil.CollectAndCount(OperationDuration)
	if histCount != 1 {
		t.Errorf("Expected 1 histogram sample, got %d", histCount)
	}

	// Record an error operation
	RecordOperation(OpAddKeyset, StatusError, 0.1)

	// Verify counter incremented again
	count = testutil.CollectAndCount(OperationsTotal)
	if count != 2 {
		t.Errorf("Expected 2 operations recorded, got %d", count)
	}
}

func TestRecordOperationWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	// Reset counters
	OperationsTotal.Reset()

	// Record operation while disabled
	RecordOperation(OpGetValidKeyset, StatusSuccess, 0.5)

	// Verify nothing was recorded
	count := testutil.CollectAndCount(OperationsTotal)
	if count != 0 {
		t.Errorf("Expected 0 operations when disabled, got %d", count)
	}
}

func TestRecordAuthFailure(t *testing.T) {
	Enable()

	// Reset counters
	AuthFailuresTotal.Reset()

	// Record a failed authentication
	RecordAuthFailure("KEY_FAILURE")

	// Verify the labeled counter value
	value := testutil.ToFloat64(AuthFailuresTotal.WithLabelValues("KEY_FAILURE"))
	if value != 1 {
		t.Errorf("Expected 1 auth failure recorded, got %f", value)
	}

	// Record a lockout-mapped failure
	RecordAuthFailure("TPM_DEFEND_LOCK")

	count := testutil.CollectAndCount(AuthFailuresTotal)
	if count != 2 {
		t.Errorf("Expected 2 mount error labels, got %d", count)
	}
}

func TestRecordLELockout(t *testing.T) {
	Enable()

	before := testutil.ToFloat64(LELockoutsTotal)
	RecordLELockout()
	after := testutil.ToFloat64(LELockoutsTotal)

	if after != before+1 {
		t.Errorf("Expected lockout counter to increment by 1, got %f -> %f", before, after)
	}
}

func TestRecordResave(t *testing.T) {
	Enable()

	// Reset counters
	ResavesTotal.Reset()

	RecordResave(StatusSuccess)
	RecordResave(StatusError)
	RecordResave(StatusSuccess)

	value := testutil.ToFloat64(ResavesTotal.WithLabelValues(StatusSuccess))
	if value != 2 {
		t.Errorf("Expected 2 successful resaves, got %f", value)
	}

	value = testutil.ToFloat64(ResavesTotal.WithLabelValues(StatusError))
	if value != 1 {
		t.Errorf("Expected 1 failed resave, got %f", value)
	}
}
