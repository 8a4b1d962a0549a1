// Package errors defines the structured error taxonomy shared by the
// live-sync engine. Per-request failures carry a Kind and Code so the broker
// can turn them into contained status messages for the originating viewer,
// while startup failures are the only ones treated as fatal.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind groups error codes by the component boundary they cross.
type Kind string

const (
	KindRender    Kind = "render"
	KindReconcile Kind = "reconcile"
	KindSave      Kind = "save"
	KindExecution Kind = "execution"
	KindTransport Kind = "transport"
	KindConfig    Kind = "config"
	KindStartup   Kind = "startup"
)

// Code identifies a specific failure condition.
type Code string

const (
	CodeRenderFailed        Code = "RENDER_FAILED"
	CodeReconcileFailed     Code = "RECONCILE_FAILED"
	CodeSaveFailed          Code = "SAVE_FAILED"
	CodeUnsupportedLanguage Code = "UNSUPPORTED_LANGUAGE"
	CodeTimeout             Code = "TIMEOUT"
	CodeNonZeroExit         Code = "NON_ZERO_EXIT"
	CodeSpawnFailure        Code = "SPAWN_FAILURE"
	CodeConnectionDropped   Code = "CONNECTION_DROPPED"
	CodeConfigInvalid       Code = "CONFIG_INVALID"
	CodeSourceNotFound      Code = "SOURCE_NOT_FOUND"
	CodePortInUse           Code = "PORT_IN_USE"
)

var codeKinds = map[Code]Kind{
	CodeRenderFailed:        KindRender,
	CodeReconcileFailed:     KindReconcile,
	CodeSaveFailed:          KindSave,
	CodeUnsupportedLanguage: KindExecution,
	CodeTimeout:             KindExecution,
	CodeNonZeroExit:         KindExecution,
	CodeSpawnFailure:        KindExecution,
	CodeConnectionDropped:   KindTransport,
	CodeConfigInvalid:       KindConfig,
	CodeSourceNotFound:      KindStartup,
	CodePortInUse:           KindStartup,
}

// LiveError is a structured error with a kind, a code and an optional cause.
type LiveError struct {
	Kind    Kind
	Code    Code
	Message string
	Cause   error
	Details map[string]interface{}
}

// Error implements the error interface.
func (e *LiveError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *LiveError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a LiveError with the same kind and code.
func (e *LiveError) Is(target error) bool {
	var t *LiveError
	if errors.As(target, &t) {
		return e.Kind == t.Kind && e.Code == t.Code
	}
	return false
}

// WithDetail attaches a key/value pair to the error.
func (e *LiveError) WithDetail(key string, value interface{}) *LiveError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a LiveError for code. The kind is derived from the code.
func New(code Code, message string) *LiveError {
	return &LiveError{
		Kind:    kindFor(code),
		Code:    code,
		Message: message,
	}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...interface{}) *LiveError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps cause in a LiveError for code.
func Wrap(cause error, code Code, message string) *LiveError {
	return &LiveError{
		Kind:    kindFor(code),
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Is reports whether any error in err's chain carries code.
func Is(err error, code Code) bool {
	var le *LiveError
	for err != nil {
		if errors.As(err, &le) {
			if le.Code == code {
				return true
			}
			err = le.Cause
			continue
		}
		return false
	}
	return false
}

// CodeOf returns the code of the first LiveError in err's chain.
func CodeOf(err error) Code {
	var le *LiveError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// KindOf returns the kind of the first LiveError in err's chain.
func KindOf(err error) Kind {
	var le *LiveError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// IsFatal reports whether err should terminate the process. Only
// configuration and startup failures are fatal; everything else degrades to
// a status message at the requesting viewer.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindConfig, KindStartup:
		return true
	default:
		return false
	}
}

func kindFor(code Code) Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	return KindStartup
}
