// Copyright 2025 Certen Protocol
//
// Errors specific to mempool admission and scheduling, layered on the
// shared rolluperr taxonomy so a Validation/Transient/Conflict/Fatal
// classification is always available to callers.

package mempool

import "github.com/miden-node/rollup/pkg/rolluperr"

// Re-exported for call sites that only import pkg/mempool.
var (
	ErrMalformed                  = rolluperr.ErrMalformed
	ErrExpired                    = rolluperr.ErrExpired
	ErrAccountStateMismatch       = rolluperr.ErrAccountStateMismatch
	ErrDoubleSpend                = rolluperr.ErrDoubleSpend
	ErrUnknownUnauthenticatedNote = rolluperr.ErrUnknownUnauthenticatedNote
	ErrLimitExceeded              = rolluperr.ErrLimitExceeded
	ErrStoreUnavailable           = rolluperr.ErrStoreUnavailable
	ErrProverUnavailable          = rolluperr.ErrProverUnavailable
	ErrInvariantViolation         = rolluperr.ErrInvariantViolation
)

// ErrUnknownTransaction is returned by operations referencing a
// transaction id the mempool has no record of (e.g. a revert request
// that races with a competing commit).
var ErrUnknownTransaction = rolluperr.Wrap(rolluperr.ErrMalformed, "unknown mempool transaction")
