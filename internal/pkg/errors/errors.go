// Package errors provides the typed error used across the render pipeline.
// Errors carry a code that decides how a failure is handled (fatal, job
// failure, or ignored) together with the failing operation and a short stack.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Code categorizes a failure.
type Code string

const (
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeConfig        Code = "CONFIG_ERROR"
	CodeFetch         Code = "FETCH_FAILED"
	CodeRender        Code = "RENDER_FAILED"
	CodeRenderTimeout Code = "RENDER_TIMEOUT"
	CodeNoOutput      Code = "NO_OUTPUT"
	CodeProbe         Code = "PROBE_FAILED"
	CodeUpload        Code = "UPLOAD_FAILED"
	CodeStatusUpdate  Code = "STATUS_UPDATE_FAILED"
	CodeLocked        Code = "LOCKED"
	CodeConflict      Code = "CONFLICT"
	CodeNotFound      Code = "NOT_FOUND"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeBadRequest    Code = "BAD_REQUEST"
	CodeUnavailable   Code = "UNAVAILABLE"
)

// Error is a custom error type with additional context.
type Error struct {
	// Code is the error code for categorization.
	Code Code
	// Message is the human-readable error message.
	Message string
	// Op is the operation that failed (e.g., "storage.put").
	Op string
	// Err is the underlying error.
	Err error
	// Fields contains additional context fields.
	Fields map[string]any
	// Stack contains the stack trace at error creation.
	Stack []Frame
}

// Frame represents a single stack frame.
type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (e *Error) Error() string {
	var b strings.Builder

	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Code != "" {
		b.WriteString("[")
		b.WriteString(string(e.Code))
		b.WriteString("] ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithField adds a field to the error.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// StackTrace returns the stack trace as a formatted string.
func (e *Error) StackTrace() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

// New creates a new error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps err with an operation and message. The code of an *Error found
// in the chain is preserved; anything else becomes CodeInternal.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}

	code := CodeInternal
	var fields map[string]any
	var e *Error
	if errors.As(err, &e) {
		code = e.Code
		fields = copyFields(e.Fields)
	}

	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
		Fields:  fields,
		Stack:   captureStack(2),
	}
}

// WrapWithCode wraps an error with a specific code. Fields of a wrapped
// *Error are kept.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}

	var fields map[string]any
	var e *Error
	if errors.As(err, &e) {
		fields = copyFields(e.Fields)
	}

	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
		Fields:  fields,
		Stack:   captureStack(2),
	}
}

// FromHTTPStatus builds an error for a non-2xx response of the database or
// storage REST endpoints. body is truncated to keep log lines short.
func FromHTTPStatus(status int, op string, body string) *Error {
	code := CodeInternal
	switch {
	case status == http.StatusConflict:
		code = CodeConflict
	case status == http.StatusNotFound:
		code = CodeNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		code = CodeUnauthorized
	case status == http.StatusBadRequest:
		code = CodeBadRequest
	case status >= 500:
		code = CodeUnavailable
	}

	body = strings.TrimSpace(body)
	if len(body) > 300 {
		body = body[:300]
	}

	msg := fmt.Sprintf("http %d", status)
	if body != "" {
		msg += ": " + body
	}

	return (&Error{
		Code:    code,
		Message: msg,
		Op:      op,
		Stack:   captureStack(2),
	}).WithField("status", status)
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// GetFields extracts fields from an error.
func GetFields(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) && e.Fields != nil {
		return e.Fields
	}
	return nil
}

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// ExitCode maps an error that ends the run to the process exit status.
// A held run lock is not a failure: the other run does the work.
func ExitCode(err error) int {
	if err == nil || IsCode(err, CodeLocked) {
		return 0
	}
	return 1
}

// copyFields keeps a wrapper's WithField from writing into its cause.
func copyFields(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func captureStack(skip int) []Frame {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])

	frames := make([]Frame, 0, n)
	callersFrames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := callersFrames.Next()

		if strings.Contains(frame.File, "runtime/") {
			if !more {
				break
			}
			continue
		}

		frames = append(frames, Frame{
			File:     frame.File,
			Line:     frame.Line,
			Function: frame.Function,
		})

		if !more || len(frames) >= 10 {
			break
		}
	}

	return frames
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a convenience wrapper for errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
