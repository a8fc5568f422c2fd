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

// Package correlation tags multi-step keyset operations with a unique ID
// so the individual file and hash-tree actions of one logical operation
// can be tied together in the logs.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// OperationIDKey is the context key for storing operation IDs
const OperationIDKey contextKey = "operation-id"

// WithOperationID adds an operation ID to the context.
func WithOperationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, OperationIDKey, id)
}

// GetOperationID retrieves the operation ID from context.
// Returns an empty string if no operation ID is found.
func GetOperationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(OperationIDKey).(string); ok {
		return id
	}
	return ""
}

// NewID generates a new UUID v4 operation ID.
func NewID() string {
	return uuid.New().String()
}

// GetOrGenerate retrieves an existing operation ID from context or
// generates a new one if none exists. Multi-step operations call this
// once at their entry point so every sub-step logs the same ID.
func GetOrGenerate(ctx context.Context) string {
	if id := GetOperationID(ctx); id != "" {
		return id
	}
	return NewID()
}
