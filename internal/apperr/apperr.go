package apperr

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable error category carried on failure envelopes.
type Kind string

const (
	KindValidation         Kind = "validation_failed"
	KindInvalidCredentials Kind = "auth_invalid_credentials"
	KindUnauthorized       Kind = "auth_unauthorized"
	KindNotFound           Kind = "not_found"
	KindAlreadyExists      Kind = "already_exists"
	KindPermissionDenied   Kind = "permission_denied"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindAdNotAvailable     Kind = "ad_not_available"
	KindDuplicateAd        Kind = "duplicate_ad"
	KindCaptchaRequired    Kind = "captcha_required"
	KindCaptchaInvalid     Kind = "captcha_invalid"
	KindRateLimited        Kind = "rate_limit_exceeded"
	KindDatabase           Kind = "database_error"
	KindInternal           Kind = "internal_error"
	KindInvalidJSON        Kind = "invalid_json"
	KindInvalidPayload     Kind = "invalid_payload"
)

// StatusCode maps a kind to the numeric status carried on the envelope.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation, KindCaptchaRequired, KindCaptchaInvalid, KindInvalidJSON, KindInvalidPayload, KindDuplicateAd:
		return 400
	case KindInvalidCredentials, KindUnauthorized:
		return 401
	case KindInsufficientFunds:
		return 402
	case KindPermissionDenied:
		return 403
	case KindNotFound:
		return 404
	case KindAlreadyExists, KindAdNotAvailable:
		return 409
	case KindRateLimited:
		return 429
	default:
		return 500
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from err, defaulting to internal_error for
// anything that was not classified at a service boundary.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message for err.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "an internal error occurred"
}
