package core

import (
	"fmt"
)

// Error codes for propagation and ledger operations
const (
	// Input validation
	ErrCodeInvalidCoordinate = "INVALID_COORDINATE"
	ErrCodeInvalidAmplitude  = "INVALID_AMPLITUDE"
	ErrCodeDecode            = "DECODE_FAILED"

	// Delivery
	ErrCodePeerUnreachable = "PEER_UNREACHABLE"
	ErrCodeCircuitOpen     = "CIRCUIT_OPEN"
	ErrCodeRateLimited     = "RATE_LIMITED"

	// Propagation
	ErrCodeCascadeSuppressed = "CASCADE_SUPPRESSED"
	ErrCodeTopologyMismatch  = "TOPOLOGY_MISMATCH"
	ErrCodeDuplicateNode     = "DUPLICATE_NODE"
)

// Sentinels for errors.Is matching. Only the code is compared.
var (
	ErrInvalidCoordinate = &Error{Code: ErrCodeInvalidCoordinate}
	ErrInvalidAmplitude  = &Error{Code: ErrCodeInvalidAmplitude}
	ErrDecode            = &Error{Code: ErrCodeDecode}
	ErrPeerUnreachable   = &Error{Code: ErrCodePeerUnreachable}
	ErrCircuitOpen       = &Error{Code: ErrCodeCircuitOpen}
	ErrRateLimited       = &Error{Code: ErrCodeRateLimited}
	ErrCascadeSuppressed = &Error{Code: ErrCodeCascadeSuppressed}
	ErrTopologyMismatch  = &Error{Code: ErrCodeTopologyMismatch}
	ErrDuplicateNode     = &Error{Code: ErrCodeDuplicateNode}
)

// Error is a coded error carrying context for logs and programmatic handling.
type Error struct {
	Code    string                 // Error code for programmatic handling
	Message string                 // Human-readable message
	Context map[string]interface{} // Additional context
	Cause   error                  // Underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewError creates a new coded error
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a code
func WrapError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func ErrInvalidCoordinateValue(c Coordinate) *Error {
	return NewError(ErrCodeInvalidCoordinate, "coordinate has non-finite component").
		WithContext("coordinate", c.String())
}

func ErrInvalidAmplitudeValue(amplitude float64) *Error {
	return NewError(ErrCodeInvalidAmplitude, "amplitude must be finite").
		WithContext("amplitude", amplitude)
}

func ErrDecodeFailed(what string, cause error) *Error {
	return WrapError(ErrCodeDecode, "failed to decode "+what, cause)
}

func ErrPeerUnreachableCause(peerID string, cause error) *Error {
	return WrapError(ErrCodePeerUnreachable, "peer unreachable", cause).
		WithContext("peer_id", peerID)
}

func ErrCircuitOpenFor(peerID string) *Error {
	return NewError(ErrCodeCircuitOpen, "circuit breaker open").
		WithContext("peer_id", peerID)
}

func ErrRateLimitedPeer(peerID string) *Error {
	return NewError(ErrCodeRateLimited, "peer rate limited").
		WithContext("peer_id", peerID)
}

func ErrCascadeSuppressedBy(reason, parentID string) *Error {
	return NewError(ErrCodeCascadeSuppressed, "cascade suppressed").
		WithContext("reason", reason).
		WithContext("parent_id", parentID)
}
