// Package streamerr defines the stable error taxonomy shared by the video
// cache, the sidecar codec, and the adaptive sender. Each sentinel carries a
// numeric code for log correlation and maps to exactly one recovery policy,
// per the error handling design: variant-level errors are absorbed inside
// the cache, request-level errors propagate to the HTTP layer, and anything
// past the first byte of the response body just ends the session.
package streamerr

import "fmt"

// Code is the stable integer used in structured logs.
type Code int

const (
	CodeInvalidPath Code = iota + 1
	CodeMissingSidecar
	CodeMalformedSidecar
	CodeMissingVariant
	CodeInvalidOffsets
	CodeNoStreamsAvailable
	CodeInvalidSignature
	CodeClientDisconnect
	CodeOutOfMemory
)

// Error wraps a sentinel with its stable code and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func new(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Sentinels matched with errors.Is by callers.
var (
	ErrInvalidPath        = new(CodeInvalidPath, "invalid path")
	ErrMissingSidecar     = new(CodeMissingSidecar, "missing sidecar")
	ErrMalformedSidecar   = new(CodeMalformedSidecar, "malformed sidecar")
	ErrMissingVariant     = new(CodeMissingVariant, "missing variant")
	ErrInvalidOffsets     = new(CodeInvalidOffsets, "invalid iframe offsets")
	ErrNoStreamsAvailable = new(CodeNoStreamsAvailable, "no streams available")
	ErrInvalidSignature   = new(CodeInvalidSignature, "invalid signature")
	ErrClientDisconnect   = new(CodeClientDisconnect, "client disconnected")
	ErrOutOfMemory        = new(CodeOutOfMemory, "out of memory")
)

// Wrap attaches a cause to a sentinel while keeping it matchable with
// errors.Is(result, ErrXxx).
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Code: sentinel.Code, Message: sentinel.Message, Cause: cause}
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}
