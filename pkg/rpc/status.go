// Copyright 2025 Certen Protocol

package rpc

import "github.com/miden-node/rollup/pkg/rolluperr"

// Status is a transport-agnostic status code a gateway would translate
// into its own wire format (HTTP status, gRPC code, ...). The gateway
// itself is out of scope for this repository; StatusFor exists so the
// mapping from rolluperr.Kind to "what a caller should do" lives in one
// place rather than being reinvented at the boundary.
type Status string

const (
	StatusOK              Status = "ok"
	StatusInvalidArgument Status = "invalid_argument"
	StatusUnavailable     Status = "unavailable"
	StatusAborted         Status = "aborted"
	StatusInternal        Status = "internal"
)

// StatusFor classifies err via rolluperr.Classify into the status a
// gateway would surface to its caller (§7 "the gateway translates
// Validation errors into explicit RPC status codes; transient and
// Conflict errors become retryable status codes").
func StatusFor(err error) Status {
	if err == nil {
		return StatusOK
	}
	switch rolluperr.Classify(err) {
	case rolluperr.KindValidation:
		return StatusInvalidArgument
	case rolluperr.KindTransient:
		return StatusUnavailable
	case rolluperr.KindConflict:
		return StatusAborted
	case rolluperr.KindFatal:
		return StatusInternal
	default:
		return StatusInternal
	}
}
