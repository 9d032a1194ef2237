//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package common provides shared types and utilities used across the
// policy gateway packages.
//
// # Error Handling
//
// The [GatewayError] type provides structured error information for the
// enforcement pipeline, including reason codes that the HTTP boundary
// matches exhaustively to produce one response shape per failure class.
package common

import (
	"errors"
	"fmt"
)

// ReasonCode is the machine-readable classification of a gateway failure.
type ReasonCode int

// Failure classes recognized by the enforcement pipeline.
const (
	// ReasonUnknown is the zero value and indicates an unclassified error.
	ReasonUnknown ReasonCode = iota

	// ReasonInvalidInput indicates a malformed subject/action/resource tuple.
	// This is a caller bug and is never retried against the engine.
	ReasonInvalidInput

	// ReasonMissingIdentity indicates no verified identity was available
	// where one is required. Surfaced as authentication-required, which is
	// deliberately distinct from an authorization denial.
	ReasonMissingIdentity

	// ReasonEngineUnavailable indicates the policy engine could not produce
	// a decision after retries were exhausted. Resolved internally to a
	// fail-closed deny; callers never observe it as a distinct status.
	ReasonEngineUnavailable

	// ReasonInternal indicates an unexpected failure in the pipeline.
	ReasonInternal
)

// String returns the symbolic name of the reason code.
func (c ReasonCode) String() string {
	switch c {
	case ReasonInvalidInput:
		return "INVALID_INPUT"
	case ReasonMissingIdentity:
		return "MISSING_IDENTITY"
	case ReasonEngineUnavailable:
		return "ENGINE_UNAVAILABLE"
	case ReasonInternal:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// GatewayError represents a classified error encountered in the enforcement
// pipeline.
//
// GatewayError carries both a machine-readable reason code and a
// human-readable message. It is returned by the decision client and request
// mapper instead of the bare error interface so that the enforcement filter
// can match failure classes exhaustively at the boundary.
type GatewayError struct {
	// ReasonCode is the machine-readable error classification.
	ReasonCode ReasonCode
	// Reason is a human-readable description of the error.
	Reason string
}

// Error implements the error interface, returning a formatted string
// containing both the reason message and the reason code.
func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s(code-%s)", e.Reason, e.ReasonCode)
}

// NewError creates a new [GatewayError] with the specified reason code and message.
func NewError(code ReasonCode, msg string) *GatewayError {
	return &GatewayError{ReasonCode: code, Reason: msg}
}

// NewErrorf creates a new [GatewayError] with a formatted message.
func NewErrorf(code ReasonCode, format string, args ...interface{}) *GatewayError {
	return &GatewayError{ReasonCode: code, Reason: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the reason code from an error. Errors that are not a
// [GatewayError] classify as [ReasonInternal]; a nil error returns
// [ReasonUnknown].
func CodeOf(err error) ReasonCode {
	if err == nil {
		return ReasonUnknown
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.ReasonCode
	}
	return ReasonInternal
}
