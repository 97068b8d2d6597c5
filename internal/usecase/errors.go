package usecase

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a dispatcher failure for the transport shells.
type ErrorCode string

const (
	ErrorMissingInput   ErrorCode = "MISSING_INPUT"
	ErrorDecodeFailure  ErrorCode = "DECODE_FAILURE"
	ErrorGatewayFailure ErrorCode = "GATEWAY_FAILURE"
	ErrorInternal       ErrorCode = "INTERNAL_ERROR"
)

const (
	reasonEmptyQuestion = "empty_question"
	reasonMissingImage  = "missing_image"
)

// Error is returned by Dispatcher operations. Reason is a short machine
// readable detail; Err is the underlying cause, if any.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the usecase code carried by err, or ErrorInternal.
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ErrorInternal
}

// UserMessage renders err for display next to the input that caused it.
// Gateway failures are shown verbatim.
func UserMessage(err error) string {
	var ue *Error
	if !errors.As(err, &ue) {
		return "Something went wrong. Please try again."
	}
	switch ue.Code {
	case ErrorMissingInput:
		if ue.Reason == reasonMissingImage {
			return "Please upload an image."
		}
		return "Please enter a question."
	case ErrorDecodeFailure:
		return "The uploaded file is not a valid JPEG or PNG image."
	case ErrorGatewayFailure:
		if ue.Err != nil {
			return ue.Err.Error()
		}
		return "The model service request failed."
	default:
		return "Something went wrong. Please try again."
	}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// UpstreamStatusCode reports the HTTP status the model gateway answered with,
// when err carries one.
func UpstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
