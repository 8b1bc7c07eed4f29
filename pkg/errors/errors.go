// Package errors provides coded, field-carrying errors used across metatool.
//
// Every error produced by the pipeline carries an ErrorCode. Callers branch on
// the code with Is (against the exported sentinels) or CodeOf, and attach
// diagnostic context with WithFields:
//
//	return errors.WithFields(
//		errors.Wrap(err, errors.RetrievalFailed, "failed to embed query"),
//		errors.Fields{"query": q},
//	)
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrorCode classifies an error.
type ErrorCode int

const (
	Unknown ErrorCode = iota
	InvalidInput
	// InvalidResponse marks a malformed or out-of-contract model response.
	// It is the only code pipeline stages retry.
	InvalidResponse
	ResourceNotFound
	// LLMGenerationFailed marks a transport failure of a completion or
	// embedding backend.
	LLMGenerationFailed
	ValidationFailed
	ClassifyFailed
	RewriteFailed
	DispatchFailed
	ExtractFailed
	ReflectFailed
	RetrievalFailed
	ExecutionFailed
	RecursionLimitExceeded
	ToolMismatch
	// GenerateFailed marks a rule the generator could not turn into an
	// approved tool within its round budget.
	GenerateFailed
)

var codeNames = map[ErrorCode]string{
	Unknown:                "Unknown",
	InvalidInput:           "InvalidInput",
	InvalidResponse:        "InvalidResponse",
	ResourceNotFound:       "ResourceNotFound",
	LLMGenerationFailed:    "LLMGenerationFailed",
	ValidationFailed:       "ValidationFailed",
	ClassifyFailed:         "ClassifyError",
	RewriteFailed:          "RewriteError",
	DispatchFailed:         "DispatchError",
	ExtractFailed:          "ExtractError",
	ReflectFailed:          "ReflectError",
	RetrievalFailed:        "RetrievalError",
	ExecutionFailed:        "ExecutionError",
	RecursionLimitExceeded: "RecursionLimitError",
	ToolMismatch:           "ToolMismatch",
	GenerateFailed:         "GenerateError",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Fields holds structured context attached to an error.
type Fields map[string]any

// Error is the concrete error type of this package.
type Error struct {
	code     ErrorCode
	message  string
	original error
	fields   Fields
}

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrClassify       = New(ClassifyFailed, "retry budget exhausted for stage classify")
	ErrRewrite        = New(RewriteFailed, "retry budget exhausted for stage rewrite")
	ErrDispatch       = New(DispatchFailed, "retry budget exhausted for stage dispatch")
	ErrExtract        = New(ExtractFailed, "retry budget exhausted for stage extract")
	ErrReflect        = New(ReflectFailed, "retry budget exhausted for stage reflect")
	ErrRetrieval      = New(RetrievalFailed, "retrieval failed")
	ErrExecution      = New(ExecutionFailed, "tool execution failed")
	ErrRecursionLimit = New(RecursionLimitExceeded, "recursion limit exceeded")
	ErrParse          = New(InvalidResponse, "unparseable model response")
	ErrTransport      = New(LLMGenerationFailed, "model backend call failed")
	ErrToolMismatch   = New(ToolMismatch, "resolved tool does not match expected tool")
	ErrGenerate       = New(GenerateFailed, "tool generation was not approved")
)

// New creates an error with the given code.
func New(code ErrorCode, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap annotates err with a code and message. Wrap(nil, ...) returns nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, message: message, original: err}
}

// WithFields returns err with fields merged into its context. Errors that
// are not *Error are wrapped with the Unknown code.
func WithFields(err error, fields Fields) error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if !ok {
		return &Error{code: CodeOf(err), message: "error", original: err, fields: maps.Clone(fields)}
	}
	merged := make(Fields, len(e.fields)+len(fields))
	maps.Copy(merged, e.fields)
	maps.Copy(merged, fields)
	return &Error{code: e.code, message: e.message, original: e.original, fields: merged}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.code.String())
	b.WriteString(": ")
	b.WriteString(e.message)
	if len(e.fields) > 0 {
		keys := slices.Sorted(maps.Keys(e.fields))
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.fields[k])
		}
		b.WriteString("]")
	}
	if e.original != nil {
		b.WriteString(": ")
		b.WriteString(e.original.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.original }

// Code returns the error's code.
func (e *Error) Code() ErrorCode { return e.code }

// Message returns the message without code, fields or cause.
func (e *Error) Message() string { return e.message }

// Fields returns a copy of the attached fields.
func (e *Error) Fields() Fields { return maps.Clone(e.fields) }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.code == e.code
}

// CodeOf returns the code of the outermost *Error in err's chain, or Unknown.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.code
	}
	return Unknown
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As is errors.As from the standard library.
func As(err error, target any) bool { return stderrors.As(err, target) }
