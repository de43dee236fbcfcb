// Package client provides HTTP adapters for the external transcription,
// generation, and embedding services. Each adapter is provider-agnostic:
// it speaks a small JSON (or multipart) surface, applies a bounded per-call
// timeout, and retries transient failures with exponential backoff. Client
// errors propagate immediately.
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lecternlabs/lectern/config"
	lcerrors "github.com/lecternlabs/lectern/pkg/errors"
	"github.com/lecternlabs/lectern/pkg/logging"
)

// Options configures one service adapter.
type Options struct {
	// BaseURL is the service endpoint root.
	BaseURL string

	// Model names the remote model to invoke.
	Model string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// CallTimeout bounds each individual HTTP call.
	CallTimeout time.Duration

	// Retry controls backoff for transient failures.
	Retry config.RetryConfig

	Logger logging.Logger
}

func (o *Options) normalize() {
	if o.CallTimeout <= 0 {
		o.CallTimeout = 2 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = logging.NewNopLogger()
	}
}

// httpError maps a non-2xx response to a classified stage error so the
// retry loop can tell transient failures from client mistakes.
func httpError(stage string, status int, body []byte) error {
	msg := fmt.Sprintf("HTTP %d: %s", status, truncate(body, 300))
	code := lcerrors.CodeProcessing
	switch {
	case status == http.StatusTooManyRequests:
		code = lcerrors.CodeRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = lcerrors.CodeAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		code = lcerrors.CodeTimeout
	case status >= 500:
		code = lcerrors.CodeServiceUnavailable
	case status >= 400:
		code = lcerrors.CodeBadInput
	}
	return &lcerrors.StageError{Stage: stage, Code: code, Message: msg}
}

func truncate(body []byte, n int) string {
	if len(body) > n {
		body = body[:n]
	}
	return string(body)
}

// withRetry runs fn under the retry policy: transient failures back off and
// retry up to the configured attempt count, anything else returns at once.
// Each attempt gets its own timeout derived from callTimeout.
func withRetry(ctx context.Context, stage string, opts *Options, fn func(ctx context.Context) error) error {
	var lastErr error
	attempts := opts.Retry.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := opts.Retry.Backoff(attempt)
			opts.Logger.Debug("retrying service call",
				logging.F("stage", stage),
				logging.F("attempt", attempt),
				logging.F("backoff", backoff.String()))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return lcerrors.Classify(ctx.Err(), stage)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}

		lastErr = lcerrors.Classify(err, stage)
		if ctx.Err() != nil {
			return lcerrors.Classify(ctx.Err(), stage)
		}
		if !lcerrors.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func setAuth(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}
