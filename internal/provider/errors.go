package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

var (
	// ErrTimeout means the model did not answer before the turn deadline.
	ErrTimeout = errors.New("model call timed out")
	// ErrMalformedResponse means the model answered with nothing usable.
	ErrMalformedResponse = errors.New("malformed model response")
)

// ProviderError is a failure reported by the vendor API or the transport to it.
type ProviderError struct {
	Provider   string
	StatusCode int // 0 when the failure happened below HTTP
	Message    string
	// Transient reports whether the same request could succeed later
	// (rate limits, overload, 5xx, network resets).
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// classifyError maps an adapter error onto ErrTimeout or *ProviderError.
func classifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrMalformedResponse) {
		return err
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	pe = &ProviderError{Provider: provider, Message: err.Error(), Err: err}

	var oaErr *openai.Error
	var anErr *anthropic.Error
	var gErr genai.APIError
	switch {
	case errors.As(err, &oaErr):
		pe.StatusCode = oaErr.StatusCode
		if oaErr.Message != "" {
			pe.Message = oaErr.Message
		}
	case errors.As(err, &anErr):
		pe.StatusCode = anErr.StatusCode
	case errors.As(err, &gErr):
		pe.StatusCode = gErr.Code
		if gErr.Message != "" {
			pe.Message = gErr.Message
		}
	}

	pe.Transient = isTransient(pe.StatusCode, err)
	return pe
}

// isTransient reports whether err looks like rate limiting, overload, a
// server error or a dropped connection.
func isTransient(status int, err error) bool {
	switch {
	case status == 429, status == 529, status >= 500:
		return true
	case status >= 400:
		return false
	}
	msg := err.Error()

	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") {
		return true
	}
	if strings.Contains(msg, "529") || strings.Contains(msg, "overloaded") {
		return true
	}
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "temporary failure")
}
