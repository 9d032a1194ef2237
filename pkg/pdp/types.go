//
//  Copyright © Manetu Inc. All rights reserved.
//

package pdp

import (
	"strings"
	"time"

	"github.com/manetu/policygateway/pkg/common"
)

// Request is the subject/action/resource tuple submitted to the policy
// engine. The JSON field names match the engine's input document, so a
// Request marshals directly into the wire contract.
type Request struct {
	Subject  string `json:"user"`
	Action   string `json:"action"`
	Resource string `json:"resource"`
}

// Validate checks that all three fields are non-empty after trimming.
// A failure classifies as [common.ReasonInvalidInput]: it is the caller's
// bug, is never retried, and never counts toward the circuit breaker.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Subject) == "" {
		return common.NewError(common.ReasonInvalidInput, "subject must not be empty")
	}
	if strings.TrimSpace(r.Action) == "" {
		return common.NewError(common.ReasonInvalidInput, "action must not be empty")
	}
	if strings.TrimSpace(r.Resource) == "" {
		return common.NewError(common.ReasonInvalidInput, "resource must not be empty")
	}
	return nil
}

// Source identifies where a decision came from.
type Source int

const (
	// SourceEngine indicates the decision was produced by the policy engine.
	SourceEngine Source = iota

	// SourceFallback indicates the engine was unreachable and the fail-closed
	// fallback produced the decision.
	SourceFallback
)

// String returns the symbolic name of the source.
func (s Source) String() string {
	if s == SourceFallback {
		return "fallback"
	}
	return "engine"
}

// Result is the outcome of a decision call. It is immutable once produced.
//
// A Result with Allowed=true is never produced when the engine was
// unreachable; the fallback is unconditionally deny.
type Result struct {
	Allowed bool
	Latency time.Duration
	Source  Source
}
