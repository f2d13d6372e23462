package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/hrygo/calbook/plugin/ai/metrics"
	"github.com/hrygo/calbook/plugin/ai/schedule"
	"github.com/hrygo/calbook/plugin/ai/timeout"
)

// ErrorClass represents the category of error for retry decisions.
type ErrorClass int

const (
	// ErrorClassTransient indicates a temporary error that should be retried.
	// Examples: network timeout, 5xx, rate limiting
	ErrorClassTransient ErrorClass = iota

	// ErrorClassPermanent indicates a non-retryable error.
	// Examples: permission denied, not found, invalid request, quota
	ErrorClassPermanent
)

// String returns the string representation of ErrorClass.
func (e ErrorClass) String() string {
	switch e {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with its classification.
type ClassifiedError struct {
	Class    ErrorClass
	Original error
	// Timeout is set when the call ran out of time.
	Timeout bool
}

// Error returns a formatted error message.
func (c *ClassifiedError) Error() string {
	if c.Original == nil {
		return fmt.Sprintf("classified error: class=%s", c.Class)
	}
	return fmt.Sprintf("%s: %v", c.Class, c.Original)
}

// Unwrap returns the original error for errors.Is/As.
func (c *ClassifiedError) Unwrap() error {
	return c.Original
}

// IsTransient returns true if the error is temporary and should be retried.
func (c *ClassifiedError) IsTransient() bool {
	return c.Class == ErrorClassTransient
}

// IsPermanent returns true if the error is non-retryable.
func (c *ClassifiedError) IsPermanent() bool {
	return c.Class == ErrorClassPermanent
}

// ClassifyError analyzes an error and determines whether a retry may help.
// Backend errors carry their own classification; anything else is judged by
// its type and message. Unknown errors are permanent.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	// 1. Cancellation by the caller is never retried.
	if errors.Is(err, context.Canceled) {
		return &ClassifiedError{Class: ErrorClassPermanent, Original: err}
	}

	// 2. Backend errors know whether they are transient.
	var be *schedule.BackendError
	if errors.As(err, &be) {
		return &ClassifiedError{Class: classOf(be.Transient), Original: err, Timeout: be.Timeout}
	}
	var de *schedule.Error
	if errors.As(err, &de) && de.Kind == schedule.ErrorBackendTimeout {
		return &ClassifiedError{Class: ErrorClassTransient, Original: err, Timeout: true}
	}
	if de != nil && de.Kind != schedule.ErrorBackend {
		// Domain errors such as NoSuchEvent are answers, not failures.
		return &ClassifiedError{Class: ErrorClassPermanent, Original: err}
	}
	if de != nil && de.Transient {
		return &ClassifiedError{Class: ErrorClassTransient, Original: err}
	}

	// 3. Timeouts
	if errors.Is(err, context.DeadlineExceeded) || isTimeoutError(err) {
		return &ClassifiedError{Class: ErrorClassTransient, Original: err, Timeout: true}
	}

	// 4. Network errors
	if isNetworkError(err) {
		return &ClassifiedError{Class: ErrorClassTransient, Original: err}
	}

	// Default to permanent for unknown errors (fail safe)
	return &ClassifiedError{Class: ErrorClassPermanent, Original: err}
}

func classOf(transient bool) ErrorClass {
	if transient {
		return ErrorClassTransient
	}
	return ErrorClassPermanent
}

// isNetworkError checks if an error is network-related (transient).
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"network is unreachable",
		"no such host",
		"temporary failure",
		"dial tcp",
		"unexpected eof",
		"connection lost",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

// isTimeoutError checks if an error is timeout-related (transient).
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	timeoutPatterns := []string{
		"timeout",
		"deadline exceeded",
		"i/o timeout",
		"operation timed out",
	}
	for _, pattern := range timeoutPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

// ShouldRetry returns true if the error warrants a retry attempt.
func ShouldRetry(err error) bool {
	classified := ClassifyError(err)
	return classified != nil && classified.IsTransient()
}

// outcomeOf labels a backend call result for metrics.
func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	classified := ClassifyError(err)
	switch {
	case classified.Timeout:
		return metrics.OutcomeTimeout
	case classified.IsTransient():
		return metrics.OutcomeTransient
	default:
		return metrics.OutcomeTerminal
	}
}

// truncateUtterance shortens user text for logs.
func truncateUtterance(s string) string {
	return truncateString(s, timeout.MaxTruncateLength)
}
