package common

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the order integration core.
type Kind string

const (
	KindInternal              Kind = "INTERNAL"
	KindConfigurationMissing  Kind = "CONFIGURATION_MISSING"
	KindTransientConnectivity Kind = "TRANSIENT_CONNECTIVITY"
	KindPartialFailure        Kind = "PARTIAL_FAILURE"
	KindValidationConflict    Kind = "VALIDATION_CONFLICT"
	KindIdentifierExhaustion  Kind = "IDENTIFIER_EXHAUSTION"
	KindNotFound              Kind = "NOT_FOUND"
	KindForbidden             Kind = "FORBIDDEN"
	KindInvalidInput          Kind = "INVALID_INPUT"
)

// Sentinels for errors.Is matching.
var (
	ErrConfigurationMissing  = &Error{Kind: KindConfigurationMissing}
	ErrTransientConnectivity = &Error{Kind: KindTransientConnectivity}
	ErrPartialFailure        = &Error{Kind: KindPartialFailure}
	ErrValidationConflict    = &Error{Kind: KindValidationConflict}
	ErrIdentifierExhaustion  = &Error{Kind: KindIdentifierExhaustion}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrInvalidInput          = &Error{Kind: KindInvalidInput}
)

// Error is a classified failure. Op names the operation, Message is user-facing.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels compare by kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a classified error.
func NewError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func ConfigurationMissing(op, message string) error {
	return NewError(KindConfigurationMissing, op, message, nil)
}

func TransientConnectivity(op string, err error) error {
	return NewError(KindTransientConnectivity, op, "external store unreachable", err)
}

func ValidationConflict(op, message string) error {
	return NewError(KindValidationConflict, op, message, nil)
}

func NotFound(op, resource string) error {
	return NewError(KindNotFound, op, resource+" not found", nil)
}

func Forbidden(op, message string) error {
	return NewError(KindForbidden, op, message, nil)
}

func InvalidInput(op, message string) error {
	return NewError(KindInvalidInput, op, message, nil)
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
