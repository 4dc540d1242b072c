// Package errors defines the taxonomy of error codes returned to callers of
// the pipeline, and a single wrapped-error type used to carry them.
package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, user-facing error taxonomy string. Stages never return
// raw exception text to a caller; they classify into one of these.
type Code string

const (
	// CodeRateLimited — request denied by L0 quota.
	CodeRateLimited Code = "rate_limited"
	// CodeInputTooLong — L0 or L1 size reject.
	CodeInputTooLong Code = "input_too_long"
	// CodeBlockedInput — L1 pattern, L2 classifier, or homoglyph-normalized
	// pattern reject.
	CodeBlockedInput Code = "blocked_input"
	// CodeSafetyFailed — L8 rejected the draft.
	CodeSafetyFailed Code = "safety_failed"
	// CodeInternal — unexpected exception or unrecoverable LLM error in a
	// critical stage.
	CodeInternal Code = "internal_error"

	// Internal-only refinements of CodeInputTooLong / CodeBlockedInput; they
	// carry extra detail through logging but collapse to the public
	// taxonomy before reaching an HTTP response (see Public()).
	codeInvalidContentType Code = "invalid_content_type"
	codeRequestTooLarge    Code = "request_too_large"
	codeMissingMessage     Code = "missing_message"
	codeEmptyInput         Code = "empty_input"
	codeBlockedPattern     Code = "blocked_pattern"
)

// PipelineError is the single error type stages return. It always carries a
// public Code plus a human-safe message; Reason and Err are for logging only
// and must never be serialized to the caller.
type PipelineError struct {
	Code    Code
	Message string
	Reason  string // internal detail, e.g. the matched pattern's reason tag
	Stage   string // which stage produced this, e.g. "L1", "L2"
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Stage, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Stage, e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Public maps an internal-only refinement code to the public taxonomy code
// safe to serialize in an HTTP response.
func (e *PipelineError) Public() Code {
	switch e.Code {
	case codeInvalidContentType, codeRequestTooLarge, codeEmptyInput, codeMissingMessage:
		return CodeInputTooLong
	case codeBlockedPattern:
		return CodeBlockedInput
	default:
		return e.Code
	}
}

func New(stage string, code Code, message string) *PipelineError {
	return &PipelineError{Stage: stage, Code: code, Message: message}
}

func Wrap(stage string, code Code, message string, cause error) *PipelineError {
	return &PipelineError{Stage: stage, Code: code, Message: message, Err: cause}
}

func NewRateLimited(stage, message string) *PipelineError {
	return New(stage, CodeRateLimited, message)
}

func NewInvalidContentType(stage, message string) *PipelineError {
	return New(stage, codeInvalidContentType, message)
}

func NewRequestTooLarge(stage, message string) *PipelineError {
	return New(stage, codeRequestTooLarge, message)
}

func NewMissingMessage(stage, message string) *PipelineError {
	return New(stage, codeMissingMessage, message)
}

func NewEmptyInput(stage, message string) *PipelineError {
	return New(stage, codeEmptyInput, message)
}

func NewBlockedPattern(stage, message, reason string) *PipelineError {
	return &PipelineError{Stage: stage, Code: codeBlockedPattern, Message: message, Reason: reason}
}

func NewBlockedInput(stage, message, reason string) *PipelineError {
	return &PipelineError{Stage: stage, Code: CodeBlockedInput, Message: message, Reason: reason}
}

func NewSafetyFailed(stage, message, reason string) *PipelineError {
	return &PipelineError{Stage: stage, Code: CodeSafetyFailed, Message: message, Reason: reason}
}

func NewInternal(stage, message string, cause error) *PipelineError {
	return &PipelineError{Stage: stage, Code: CodeInternal, Message: message, Err: cause}
}

// Is reports whether err is a *PipelineError with the given public code.
func Is(err error, code Code) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Public() == code
	}
	return false
}
