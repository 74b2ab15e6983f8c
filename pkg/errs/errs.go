// Package errs defines the eight error kinds of spec §7 and the wrapped
// error type components use to carry them, grounded on the teacher's
// sentinel-plus-wrapped-struct style (pkg/config/errors.go, pkg/services/errors.go).
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the eight error kinds enumerated in spec §7.
type Kind string

const (
	NotFound         Kind = "not_found"
	Conflict         Kind = "conflict"
	Validation       Kind = "validation"
	Timeout          Kind = "timeout"
	External         Kind = "external"
	Unreachable      Kind = "unreachable"
	PermissionDenied Kind = "permission_denied"
	Internal         Kind = "internal"
)

// Error is the structured error every component layer returns once it has
// translated a raw store/transport error. The dispatch layer (C11) reads
// Kind and Remediation straight into the {success:false, error, recommendation}
// envelope (spec §7).
type Error struct {
	Kind        Kind
	Message     string
	Remediation string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind with no remediation.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Remediate attaches a remediation hint the caller can act on (spec §7:
// "attach remediation strings where the user will act on them").
func (e *Error) Remediate(hint string) *Error {
	e.Remediation = hint
	return e
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise it returns Internal, matching spec §7's instruction that
// unclassified programmer-detectable errors should never escape un-kinded.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
