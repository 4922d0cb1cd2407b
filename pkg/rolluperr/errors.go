// Copyright 2025 Certen Protocol
//
// Package rolluperr defines the failure taxonomy shared by the Store and
// the Block Producer. Every error that crosses the internal RPC boundary
// is classified into one of four kinds so callers on either side can
// decide whether to retry, revert, or abort without string-matching.
package rolluperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry/revert/abort decisions.
type Kind string

const (
	// KindValidation means the input itself is invalid; retrying with the
	// same input will never succeed.
	KindValidation Kind = "validation"
	// KindTransient means the operation may succeed if retried, typically
	// after a backoff (a dependency was briefly unavailable).
	KindTransient Kind = "transient"
	// KindConflict means the operation raced with another state change and
	// the caller should re-derive its inputs and retry.
	KindConflict Kind = "conflict"
	// KindFatal means an invariant was violated; the process must not
	// continue operating on the affected state.
	KindFatal Kind = "fatal"
)

// Sentinel errors, one per named failure in the admission/apply taxonomy.
var (
	ErrMalformed                  = errors.New("malformed input")
	ErrExpired                    = errors.New("transaction expired")
	ErrAccountStateMismatch       = errors.New("account state mismatch")
	ErrDoubleSpend                = errors.New("nullifier already spent in mempool")
	ErrUnknownUnauthenticatedNote = errors.New("unauthenticated note not found")
	ErrLimitExceeded              = errors.New("resource limit exceeded")

	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrProverUnavailable = errors.New("prover unavailable")
	ErrTimeout           = errors.New("operation timed out")

	ErrStaleBlock              = errors.New("stale block reference")
	ErrNullifierAlreadyConsumed = errors.New("nullifier already consumed on chain")
	ErrInvalidBlock             = errors.New("invalid block")

	ErrInvariantViolation = errors.New("invariant violation")
	ErrCorruptState       = errors.New("corrupt state")
)

var kindOf = map[error]Kind{
	ErrMalformed:                  KindValidation,
	ErrExpired:                    KindValidation,
	ErrAccountStateMismatch:       KindValidation,
	ErrDoubleSpend:                KindValidation,
	ErrUnknownUnauthenticatedNote: KindValidation,
	ErrLimitExceeded:              KindValidation,

	ErrStoreUnavailable:  KindTransient,
	ErrProverUnavailable: KindTransient,
	ErrTimeout:           KindTransient,

	ErrStaleBlock:               KindConflict,
	ErrNullifierAlreadyConsumed: KindConflict,
	ErrInvalidBlock:             KindValidation,

	ErrInvariantViolation: KindFatal,
	ErrCorruptState:       KindFatal,
}

// Classify returns the Kind of err, walking the error chain so a wrapped
// sentinel is still recognized. Unrecognized errors classify as
// KindValidation, the conservative choice: never automatically retried.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var rem *Remote
	if errors.As(err, &rem) {
		return rem.Kind
	}
	for sentinel, kind := range kindOf {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindValidation
}

// Remote is an error reconstructed on the caller's side of the RPC
// boundary: the original message plus its classification survive the
// trip, the concrete sentinel does not.
type Remote struct {
	Kind   Kind
	Detail string
}

func (r *Remote) Error() string { return r.Detail }

// Violation wraps a named sentinel with a formatted detail message while
// preserving errors.Is against the sentinel.
type Violation struct {
	Sentinel error
	Detail   string
}

func (v *Violation) Error() string {
	if v.Detail == "" {
		return v.Sentinel.Error()
	}
	return fmt.Sprintf("%s: %s", v.Sentinel.Error(), v.Detail)
}

func (v *Violation) Unwrap() error { return v.Sentinel }

// Wrap builds a Violation for sentinel with a formatted detail.
func Wrap(sentinel error, format string, args ...any) error {
	return &Violation{Sentinel: sentinel, Detail: fmt.Sprintf(format, args...)}
}

// Invariants accumulates named invariant check failures and produces a
// single aggregated error, mirroring the accumulate-then-join pattern used
// throughout this codebase's precondition checks.
type Invariants struct {
	violations []string
}

// Add records a violation message if cond is false.
func (i *Invariants) Add(cond bool, format string, args ...any) {
	if !cond {
		i.violations = append(i.violations, fmt.Sprintf(format, args...))
	}
}

// Err returns an aggregated ErrInvariantViolation, or nil if nothing was
// recorded.
func (i *Invariants) Err() error {
	if len(i.violations) == 0 {
		return nil
	}
	msg := i.violations[0]
	for _, v := range i.violations[1:] {
		msg += "; " + v
	}
	return Wrap(ErrInvariantViolation, "%d violation(s): %s", len(i.violations), msg)
}
