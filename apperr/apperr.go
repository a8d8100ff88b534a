// Package apperr is the error taxonomy shared by every layer of the service.
// Errors carry a machine readable code, the stage that failed and a message
// that is safe to show to the caller.
package apperr

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Code classifies an error.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeMissingFields     Code = "MISSING_FIELDS"
	CodeNotFound          Code = "NOT_FOUND"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNoActiveAccess    Code = "NO_ACTIVE_ACCESS"
	CodeDuplicateRequest  Code = "DUPLICATE_REQUEST"
	CodeConflict          Code = "CONFLICT"
	CodePageOutOfRange    Code = "PAGE_OUT_OF_RANGE"
	CodeLedgerUnavailable Code = "LEDGER_UNAVAILABLE"
	CodeLedgerRejected    Code = "LEDGER_REJECTED"
	CodeDecrypt           Code = "DECRYPT_ERROR"
	CodeDatabase          Code = "DATABASE_ERROR"
	CodePartialFailure    Code = "PARTIAL_FAILURE"
	CodeInternal          Code = "INTERNAL"
)

// Stages reported with ledger backed failures.
const (
	StageFetch       = "fetch"
	StageDecrypt     = "decrypt"
	StageEncode      = "encode"
	StageLedgerWrite = "ledger-write"
)

// Error is the tagged failure returned across package boundaries.
type Error struct {
	Code    Code   `json:"code"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`

	cause error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Stage != "" {
		msg += " [" + e.Stage + "]"
	}
	msg += ": " + e.Message
	if e.Detail != "" {
		msg += " - " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error carrying the same code, so the package level
// sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is checks.
var (
	ErrValidation        = &Error{Code: CodeValidation}
	ErrMissingFields     = &Error{Code: CodeMissingFields}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrUnauthorized      = &Error{Code: CodeUnauthorized}
	ErrForbidden         = &Error{Code: CodeForbidden}
	ErrNoActiveAccess    = &Error{Code: CodeNoActiveAccess}
	ErrDuplicateRequest  = &Error{Code: CodeDuplicateRequest}
	ErrConflict          = &Error{Code: CodeConflict}
	ErrPageOutOfRange    = &Error{Code: CodePageOutOfRange}
	ErrLedgerUnavailable = &Error{Code: CodeLedgerUnavailable}
	ErrLedgerRejected    = &Error{Code: CodeLedgerRejected}
	ErrDecrypt           = &Error{Code: CodeDecrypt}
	ErrDatabase          = &Error{Code: CodeDatabase}
	ErrPartialFailure    = &Error{Code: CodePartialFailure}
)

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags cause with code and stage. The cause text becomes the detail, so
// callers must not wrap errors whose text may contain secrets or payloads.
func Wrap(cause error, code Code, stage, message string) *Error {
	e := &Error{Code: code, Stage: stage, Message: message, cause: cause}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// WithStage returns a copy of e attributed to stage.
func (e *Error) WithStage(stage string) *Error {
	c := *e
	c.Stage = stage
	return &c
}

// WithDetail returns a copy of e with detail set.
func (e *Error) WithDetail(detail string) *Error {
	c := *e
	c.Detail = detail
	return &c
}

// Validation is shorthand for a VALIDATION_ERROR.
func Validation(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// MissingFields reports the names of absent required fields.
func MissingFields(fields ...string) *Error {
	e := New(CodeMissingFields, "Missing required fields")
	if len(fields) > 0 {
		e.Detail = joinFields(fields)
	}
	return e
}

func NotFound(format string, args ...any) *Error {
	return Newf(CodeNotFound, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return Newf(CodeForbidden, format, args...)
}

// Database tags a persistence failure.
func Database(cause error, message string) *Error {
	return Wrap(cause, CodeDatabase, "", message)
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns err's code, or CodeInternal for untagged errors.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code onto the response status used by the API.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeMissingFields, CodePageOutOfRange:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeNoActiveAccess:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateRequest:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeLedgerUnavailable:
		return http.StatusServiceUnavailable
	case CodeLedgerRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func joinFields(fields []string) string {
	out := fields[0]
	for _, f := range fields[1:] {
		out += ", " + f
	}
	return out
}
