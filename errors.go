package steward

import (
	"errors"
	"fmt"
	"net/http"
)

// Store sentinel errors. Stores return these; handlers wrap them into
// classified errors before they reach the idempotency layer.
var (
	ErrNoStore            = errors.New("steward: no store configured")
	ErrStoreClosed        = errors.New("steward: store closed")
	ErrRecordNotFound     = errors.New("steward: idempotency record not found")
	ErrKeyReserved        = errors.New("steward: idempotency key already reserved")
	ErrRunNotFound        = errors.New("steward: workflow run not found")
	ErrRunExists          = errors.New("steward: workflow run already exists")
	ErrWorkOrderNotFound  = errors.New("steward: work order not found")
	ErrServiceJobNotFound = errors.New("steward: service job not found")
	ErrViolationNotFound  = errors.New("steward: violation not found")
)

// Kind classifies an error for the idempotency layer's cache-or-retry
// decision. Business kinds (NotFound, Validation, IllegalTransition) are
// completed and cached so identical retries reproduce the same error.
// Conflict is surfaced but never cached. Infrastructure leaves the
// idempotency record reserved so a retry resumes the run.
type Kind int

const (
	// KindInfrastructure is the zero value: any unclassified error is
	// treated as an infrastructure failure and stays retryable.
	KindInfrastructure Kind = iota
	KindNotFound
	KindValidation
	KindIllegalTransition
	KindConflict
)

// String returns the stable wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindIllegalTransition:
		return "illegal_transition"
	case KindConflict:
		return "conflict"
	default:
		return "infrastructure"
	}
}

// KindFromString parses a stable wire name back into a Kind.
func KindFromString(s string) Kind {
	switch s {
	case "not_found":
		return KindNotFound
	case "validation":
		return KindValidation
	case "illegal_transition":
		return KindIllegalTransition
	case "conflict":
		return KindConflict
	default:
		return KindInfrastructure
	}
}

// HTTPStatus maps the kind to the status code cached alongside the
// response payload.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindIllegalTransition:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// Error is a classified error. Handlers return it so the engine and the
// idempotency layer can tell handled business failures apart from
// transient infrastructure failures without string matching.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound returns a NotFound business error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation returns a Validation business error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// IllegalTransition returns an IllegalTransition business error.
func IllegalTransition(format string, args ...any) *Error {
	return &Error{Kind: KindIllegalTransition, Message: fmt.Sprintf(format, args...)}
}

// Conflict returns a Conflict error (duplicate concurrent request).
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Infra wraps a transient infrastructure failure.
func Infra(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInfrastructure, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the classification from err. Unclassified errors are
// infrastructure failures: the safe default keeps them retryable.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// IsBusiness reports whether err is a handled business error, one whose
// outcome the idempotency layer caches.
func IsBusiness(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindValidation, KindIllegalTransition:
		return true
	default:
		return false
	}
}
