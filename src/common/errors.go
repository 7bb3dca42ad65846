package common

import "fmt"

// ErrType classifies the failure modes that can surface from the core. The
// zome API converts these into tagged error envelopes; workflows use them to
// decide between aborting and retrying.
type ErrType uint32

const (
	// ErrGeneric is an unclassified failure with a free-form message.
	ErrGeneric ErrType = iota
	// ErrNotImplemented signals a missing validator or unimplemented call.
	ErrNotImplemented
	// ErrConfig is a configuration error, fatal at startup.
	ErrConfig
	// ErrSerialization is a failure to encode or decode content.
	ErrSerialization
	// ErrIO is a storage or filesystem failure.
	ErrIO
	// ErrValidationFailed is a definite rejection by a validation routine.
	ErrValidationFailed
	// ErrRibosomeFailed is a guest-code failure inside the WASM sandbox.
	ErrRibosomeFailed
	// ErrTimeout is an expired application-level wait.
	ErrTimeout
	// ErrInvalidOperationOnSysEntry guards system entries against deletion
	// and other app-level mutations.
	ErrInvalidOperationOnSysEntry
	// ErrDoesNotHaveCapabilityToken rejects calls lacking a grant.
	ErrDoesNotHaveCapabilityToken
)

// HcError is the error type shared across the core. The Kind is stable and
// testable; Message carries context for logs and API envelopes.
type HcError struct {
	kind    ErrType
	message string
}

// NewHcError wraps a message in an HcError of the given kind.
func NewHcError(kind ErrType, message string) HcError {
	return HcError{kind: kind, message: message}
}

// Errorf builds an ErrGeneric HcError from a format string.
func Errorf(format string, args ...interface{}) HcError {
	return HcError{kind: ErrGeneric, message: fmt.Sprintf(format, args...)}
}

// NewHcErrorf builds an HcError of the given kind from a format string.
func NewHcErrorf(kind ErrType, format string, args ...interface{}) HcError {
	return HcError{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Kind returns the error's classification.
func (e HcError) Kind() ErrType {
	return e.kind
}

// Error implements the error interface.
func (e HcError) Error() string {
	m := ""
	switch e.kind {
	case ErrGeneric:
		m = "Error"
	case ErrNotImplemented:
		m = "Not Implemented"
	case ErrConfig:
		m = "Configuration Error"
	case ErrSerialization:
		m = "Serialization Error"
	case ErrIO:
		m = "IO Error"
	case ErrValidationFailed:
		m = "Validation Failed"
	case ErrRibosomeFailed:
		m = "Ribosome Failed"
	case ErrTimeout:
		m = "Timeout"
	case ErrInvalidOperationOnSysEntry:
		m = "Invalid Operation On System Entry"
	case ErrDoesNotHaveCapabilityToken:
		m = "Does Not Have Capability Token"
	}
	if e.message == "" {
		return m
	}
	return fmt.Sprintf("%s: %s", m, e.message)
}

// IsKind checks that an error is an HcError of the given kind.
func IsKind(err error, t ErrType) bool {
	hcErr, ok := err.(HcError)
	return ok && hcErr.kind == t
}
