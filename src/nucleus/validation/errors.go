// Package validation builds validation packages and runs the entry
// validation pipeline: structural checks, provenance checks, and dispatch
// into the zome's WASM validation callbacks.
package validation

import (
	"fmt"
	"strings"

	"github.com/dynaput247/holochain-sub000/src/core"
)

// Outcome classifies a validation failure.
type Outcome int

const (
	// OutcomeFail is a definite rejection with a reason.
	OutcomeFail Outcome = iota
	// OutcomeUnresolvedDependencies means required addresses could not be
	// resolved yet; the validation should be parked and retried.
	OutcomeUnresolvedDependencies
	// OutcomeNotImplemented means no validator exists for the entry type.
	OutcomeNotImplemented
	// OutcomeError is an infrastructure fault; the attempt may be retried.
	OutcomeError
)

// Error is the validation pipeline's error type.
type Error struct {
	Outcome      Outcome
	Reason       string
	Dependencies []core.Address
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Outcome {
	case OutcomeFail:
		return fmt.Sprintf("validation failed: %s", e.Reason)
	case OutcomeUnresolvedDependencies:
		deps := make([]string, len(e.Dependencies))
		for i, d := range e.Dependencies {
			deps[i] = string(d)
		}
		return fmt.Sprintf("unresolved dependencies: %s", strings.Join(deps, ", "))
	case OutcomeNotImplemented:
		return "validation not implemented for entry type"
	}
	return fmt.Sprintf("validation error: %s", e.Reason)
}

// Fail builds a definite rejection.
func Fail(reason string) *Error {
	return &Error{Outcome: OutcomeFail, Reason: reason}
}

// Unresolved builds a retryable missing-dependency error.
func Unresolved(deps ...core.Address) *Error {
	return &Error{Outcome: OutcomeUnresolvedDependencies, Dependencies: deps}
}

// NotImplemented marks an entry type without a validator.
func NotImplemented() *Error {
	return &Error{Outcome: OutcomeNotImplemented}
}

// Infra builds an infrastructure fault.
func Infra(reason string) *Error {
	return &Error{Outcome: OutcomeError, Reason: reason}
}

// OutcomeOf extracts the outcome of a validation error; infrastructure
// fault for foreign error types.
func OutcomeOf(err error) Outcome {
	if verr, ok := err.(*Error); ok {
		return verr.Outcome
	}
	return OutcomeError
}
