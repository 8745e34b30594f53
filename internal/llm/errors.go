package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrUnavailable is returned when a backend answers with a 5xx or its breaker is open
	ErrUnavailable = errors.New("llm unavailable")
	// ErrEmptyResponse is returned when a backend answers without any text
	ErrEmptyResponse = errors.New("llm empty response")
)

// RateLimitedError is returned when a backend refuses a call for quota or rate reasons
type RateLimitedError struct {
	Model   string
	Message string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("model %q rate limited: %s", e.Model, e.Message)
}

// UnsupportedParameterError is returned when a backend rejects a request parameter
// or value. Param is empty when the backend did not name it.
type UnsupportedParameterError struct {
	Model   string
	Param   string
	Message string
}

func (e *UnsupportedParameterError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("model %q rejected a request parameter: %s", e.Model, e.Message)
	}
	return fmt.Sprintf("model %q does not support parameter %q: %s", e.Model, e.Param, e.Message)
}

// TimeoutError is returned when a call exceeds its deadline or the caller cancels
type TimeoutError struct {
	Model   string
	Timeout time.Duration
	Cause   error
}

func (e *TimeoutError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("call cancelled: %v", e.Cause)
	}
	if e.Timeout > 0 {
		return fmt.Sprintf("model %q call timed out after %s", e.Model, e.Timeout)
	}
	return fmt.Sprintf("model %q call cancelled: %v", e.Model, e.Cause)
}

// Unwrap returns the underlying context error
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

var (
	unsupportedParamEscaped = regexp.MustCompile(`Unsupported (?:parameter|value): '\\'([^\\']+)\\'`)
	unsupportedParam        = regexp.MustCompile(`Unsupported (?:parameter|value): '([^']+)'`)

	rateLimitMarkers = []string{
		"429",
		"rate limit",
		"rate_limit",
		"too many requests",
		"quota",
		"requests per day",
		"requests per min",
		"tokens per min",
	}
)

// IsRateLimitMessage reports whether a backend error text describes a rate limit
func IsRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ParseUnsupportedParameter extracts the parameter name from an
// "Unsupported parameter: 'x'" style message
func ParseUnsupportedParameter(msg string) (string, bool) {
	if m := unsupportedParamEscaped.FindStringSubmatch(msg); m != nil {
		return m[1], true
	}
	if m := unsupportedParam.FindStringSubmatch(msg); m != nil {
		return m[1], true
	}
	return "", false
}

// classify turns a non-2xx backend answer into a typed error
func classify(model string, status int, body string) error {
	if status == 429 || IsRateLimitMessage(body) {
		return &RateLimitedError{Model: model, Message: truncate(body, 500)}
	}
	if param, ok := ParseUnsupportedParameter(body); ok {
		return &UnsupportedParameterError{Model: model, Param: param, Message: truncate(body, 500)}
	}
	if status == 400 && strings.Contains(strings.ToLower(body), "unsupported") {
		return &UnsupportedParameterError{Model: model, Message: truncate(body, 500)}
	}
	if status >= 500 {
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, status, truncate(body, 500))
	}
	return fmt.Errorf("model %q returned status %d: %s", model, status, truncate(body, 500))
}

// IsRateLimited reports whether err is a rate-limit failure
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
