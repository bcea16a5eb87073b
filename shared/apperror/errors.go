package apperror

import (
	"errors"
	"net/http"
)

type Code string

const (
	CodeUnknownModel          Code = "UNKNOWN_MODEL"
	CodeMissingCredential     Code = "MISSING_CREDENTIAL"
	CodeTranscriptUnavailable Code = "TRANSCRIPT_UNAVAILABLE"
	CodeTranscriptNotFound    Code = "TRANSCRIPT_NOT_FOUND"
	CodeTranscriptFetch       Code = "TRANSCRIPT_FETCH_ERROR"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNoVideo               Code = "NO_VIDEO"
	CodeConflict              Code = "CONFLICT"
	CodeInternal              Code = "INTERNAL"
)

// Error is the error contract shared by every layer. Message is safe to show
// to the user; Err keeps the underlying cause for logs and errors.Is.
type Error struct {
	Code    Code
	Op      string // operation name, ex: "Pipeline.StartChat"
	Message string
	Err     error
}

// Error returns the user-facing message. The operation and cause are left
// out so the text can be surfaced as-is.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func E(code Code, op, msg string, err error) error {
	return &Error{Code: code, Op: op, Message: msg, Err: err}
}

// Is reports whether any error in err's chain is an *Error with code.
func Is(err error, code Code) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument, CodeUnknownModel, CodeMissingCredential:
		return http.StatusBadRequest
	case CodeNoVideo, CodeTranscriptNotFound:
		return http.StatusNotFound
	case CodeTranscriptUnavailable:
		return http.StatusUnprocessableEntity
	case CodeConflict:
		return http.StatusConflict
	case CodeTranscriptFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
