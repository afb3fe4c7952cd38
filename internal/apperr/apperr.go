// Package apperr carries the structured error taxonomy shared by the storage
// and update engine. Every failure a caller can see is an *Error with a Kind
// the delivery layer maps to a transport status without re-deriving semantics.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindConcurrentModification: the stored last-modified timestamp moved
	// past the client's last read, or the conditional update hit zero rows.
	KindConcurrentModification
	KindPermission
	KindNotFound
	KindMandatoryField
	KindValidation
	// KindTruncated: a string value exceeded a storage column's capacity;
	// Fields names the offending attributes.
	KindTruncated
	KindInfrastructure
	// KindEventDelivery: a post-commit notification failed; the persisted
	// change stands.
	KindEventDelivery
)

func (k Kind) String() string {
	switch k {
	case KindConcurrentModification:
		return "concurrent_modification"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindMandatoryField:
		return "mandatory_field"
	case KindValidation:
		return "validation"
	case KindTruncated:
		return "truncated"
	case KindInfrastructure:
		return "infrastructure"
	case KindEventDelivery:
		return "event_delivery"
	}
	return "unknown"
}

// Error is the single structured error type of the engine. Code is a stable
// machine-readable identifier within the kind (e.g. "NO_PRIVATE_DELEGATE").
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  []string // offending attribute names, for KindTruncated
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Truncated builds a KindTruncated error naming the overflowing attributes.
func Truncated(err error, fields []string) *Error {
	return &Error{
		Kind:    KindTruncated,
		Code:    "DATA_TRUNCATION",
		Message: "value too long for storage column",
		Fields:  fields,
		Err:     err,
	}
}

// KindOf extracts the taxonomy kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given taxonomy kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
