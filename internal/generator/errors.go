package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"celebSnap/internal/prompts"
)

// Error kinds surfaced to callers. Every failure returned by Client.Render
// matches exactly one of them with errors.Is.
var (
	ErrQuota    = errors.New("upstream quota exceeded")
	ErrTimeout  = errors.New("upstream timeout")
	ErrUpstream = errors.New("upstream error")
)

// ErrNoImage is returned when the model answered without an image part.
var ErrNoImage = fmt.Errorf("%w: response contained no image", ErrUpstream)

// Error describes a failed scene render.
type Error struct {
	Kind     error
	Scene    prompts.Scene
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("scene %s: %v after %d attempt(s): %v", e.Scene, e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindOf returns the machine readable name of the error kind, or "" if err is
// not a model client error.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrQuota):
		return "quota-exceeded"
	case errors.Is(err, ErrTimeout):
		return "upstream-timeout"
	case errors.Is(err, ErrUpstream):
		return "upstream-error"
	default:
		return ""
	}
}

// Classify maps a backend error to one of the kinds.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrQuota, ErrTimeout, ErrUpstream} {
		if errors.Is(err, kind) {
			return kind
		}
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, apiErr.Status)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyStatus(apiErrPtr.Code, apiErrPtr.Status)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	// Transport failures carry addresses and ports, never a quota status.
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrTimeout
		}
		return ErrUpstream
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrUpstream
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "resource_exhausted"),
		quotaCode.MatchString(msg),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "quota"):
		return ErrQuota
	case strings.Contains(msg, "deadline_exceeded"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "timeout"):
		return ErrTimeout
	}
	return ErrUpstream
}

// quotaCode matches 429 as a status token, not as part of a port or byte count.
var quotaCode = regexp.MustCompile(`(^|[^\w.:])429\b|"code":\s*429\b`)

func classifyStatus(code int, status string) error {
	switch {
	case code == http.StatusTooManyRequests, strings.EqualFold(status, "RESOURCE_EXHAUSTED"):
		return ErrQuota
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout, strings.EqualFold(status, "DEADLINE_EXCEEDED"):
		return ErrTimeout
	default:
		return ErrUpstream
	}
}
