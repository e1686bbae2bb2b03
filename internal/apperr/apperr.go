// Package apperr defines the error codes shared by the gateway, the query
// handlers and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"

	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

type Code string

const (
	CodeInvalidFile      Code = "INVALID_FILE"
	CodeInvalidOptions   Code = "INVALID_OPTIONS"
	CodeInvalidJobID     Code = "INVALID_JOB_ID"
	CodeProcessingError  Code = "PROCESSING_ERROR"
	CodeStatusCheckError Code = "STATUS_CHECK_ERROR"
	CodeResultFetchError Code = "RESULT_FETCH_ERROR"
	CodeJobNotFound      Code = "JOB_NOT_FOUND"
	CodeNotFound         Code = "NOT_FOUND"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeInternal         Code = "INTERNAL_ERROR"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindTransport  Kind = "transport"
	KindNotFound   Kind = "not_found"
	KindAuth       Kind = "auth"
	KindInternal   Kind = "internal"
)

func (c Code) Kind() Kind {
	switch c {
	case CodeInvalidFile, CodeInvalidOptions, CodeInvalidJobID:
		return KindValidation
	case CodeProcessingError, CodeStatusCheckError, CodeResultFetchError:
		return KindTransport
	case CodeJobNotFound, CodeNotFound:
		return KindNotFound
	case CodeUnauthorized:
		return KindAuth
	}
	return KindInternal
}

// Error is a coded failure surfaced to callers in the response envelope.
type Error struct {
	Code    Code
	Message string
	Details []schema.Violation
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Body renders e for the response envelope. The cause stays server side.
func (e *Error) Body() *schema.ErrorBody {
	return &schema.ErrorBody{Code: string(e.Code), Message: e.Message, Details: e.Details}
}

func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Invalid(code Code, message string, details []schema.Violation) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// FromBody rebuilds an Error from a decoded envelope.
func FromBody(b *schema.ErrorBody) *Error {
	if b == nil {
		return New(CodeInternal, "missing error body", nil)
	}
	return &Error{Code: Code(b.Code), Message: b.Message, Details: b.Details}
}

// CodeOf returns the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// As is errors.As for *Error; it wraps anything else as CodeInternal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(CodeInternal, "internal error", err)
}
