package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode classifies a stage failure for retry decisions and reporting.
type ErrorCode string

const (
	CodeTimeout            ErrorCode = "timeout"
	CodeRateLimit          ErrorCode = "rate_limit"
	CodeServiceUnavailable ErrorCode = "service_unavailable"
	CodeCancelled          ErrorCode = "cancelled"
	CodeBadInput           ErrorCode = "bad_input"
	CodeAuth               ErrorCode = "auth"
	CodeEmptyResult        ErrorCode = "empty_result"
	CodeInvariant          ErrorCode = "invariant"
	CodeProcessing         ErrorCode = "processing_error"
)

// retryableCodes are the transient classes worth retrying with backoff.
// Client errors (bad input, auth, quota exhaustion that is not rate limiting)
// propagate immediately.
var retryableCodes = map[ErrorCode]bool{
	CodeTimeout:            true,
	CodeRateLimit:          true,
	CodeServiceUnavailable: true,
}

// StageError is a structured error for pipeline stage failures. It records
// which stage failed so a caller can decide where a retry may resume.
type StageError struct {
	Stage    string
	Code     ErrorCode
	Message  string
	Duration time.Duration
	Cause    error
}

func (e *StageError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Stage, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure is transient and worth retrying.
func (e *StageError) Retryable() bool {
	return retryableCodes[e.Code]
}

// Classify inspects an error and returns a *StageError with the appropriate
// code. Known sentinels map to fixed codes; transport errors are matched on
// message patterns; anything else becomes CodeProcessing.
func Classify(err error, stage string) *StageError {
	if err == nil {
		return nil
	}

	var existing *StageError
	if errors.As(err, &existing) {
		return existing
	}

	out := &StageError{Stage: stage, Cause: err, Message: err.Error()}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Code = CodeTimeout
		return out
	case errors.Is(err, context.Canceled):
		out.Code = CodeCancelled
		return out
	case errors.Is(err, ErrUnsupportedFormat):
		out.Code = CodeBadInput
		return out
	case errors.Is(err, ErrSegmentationInvariant):
		out.Code = CodeInvariant
		return out
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "429"),
		strings.Contains(lower, "too many requests"),
		strings.Contains(lower, "resource_exhausted"):
		out.Code = CodeRateLimit
	case strings.Contains(lower, "unavailable"),
		strings.Contains(lower, "503"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "no such host"):
		out.Code = CodeServiceUnavailable
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "deadline"):
		out.Code = CodeTimeout
	case strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "401"),
		strings.Contains(lower, "403"),
		strings.Contains(lower, "invalid api key"),
		strings.Contains(lower, "quota exceeded"):
		out.Code = CodeAuth
	case strings.Contains(lower, "empty"):
		out.Code = CodeEmptyResult
	default:
		out.Code = CodeProcessing
	}

	return out
}

// IsRetryable reports whether err classifies as a transient failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return Classify(err, "").Retryable()
}
