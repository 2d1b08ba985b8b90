package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// SDKError is the base error type for all unified LLM errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// InvalidInputError reports a request that violates the calling contract.
// It is returned before any provider is contacted.
type InvalidInputError struct{ SDKError }

// ConfigurationError reports an unusable Config or config file.
type ConfigurationError struct{ SDKError }

// NoObjectGeneratedError is returned by ParseInto when the serving provider
// produced output that did not decode into the requested type.
type NoObjectGeneratedError struct {
	SDKError
	Text string
}

func invalidInput(format string, args ...interface{}) error {
	return &InvalidInputError{SDKError{Message: fmt.Sprintf(format, args...)}}
}

// SkippedProvider records a model specifier that produced no adapter.
type SkippedProvider struct {
	Specifier string
	Provider  ProviderIdentity
	Reason    string
}

// NoUsableProvidersError is returned by New when every specifier was skipped.
type NoUsableProvidersError struct {
	SDKError
	Skipped []SkippedProvider
}

func newNoUsableProvidersError(skipped []SkippedProvider) *NoUsableProvidersError {
	var b strings.Builder
	b.WriteString("no usable providers")
	for i, s := range skipped {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s (%s): %s", s.Specifier, s.Provider, s.Reason)
	}
	return &NoUsableProvidersError{SDKError: SDKError{Message: b.String()}, Skipped: skipped}
}

// ProviderFailure is one failed attempt during a fallback sequence. Err is
// the provider's error exactly as returned.
type ProviderFailure struct {
	Provider ProviderIdentity
	Model    string
	Kind     ErrorKind
	Err      error
}

// AllProvidersFailedError is returned when every adapter failed an operation.
// Failures are in attempt order. Interrupted is set when the context ended
// before every adapter had been tried.
type AllProvidersFailedError struct {
	Operation   string
	Failures    []ProviderFailure
	Interrupted error
}

func (e *AllProvidersFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all providers failed %s", e.Operation)
	for i, f := range e.Failures {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "[%s %s] %v", f.Provider, f.Model, f.Err)
	}
	if e.Interrupted != nil {
		fmt.Fprintf(&b, " (interrupted: %v)", e.Interrupted)
	}
	return b.String()
}

// Unwrap exposes every provider error to errors.Is and errors.As.
func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	if e.Interrupted != nil {
		errs = append(errs, e.Interrupted)
	}
	return errs
}

// Last returns the final failure, or nil when there were none.
func (e *AllProvidersFailedError) Last() *ProviderFailure {
	if len(e.Failures) == 0 {
		return nil
	}
	return &e.Failures[len(e.Failures)-1]
}

// ErrorKind is a coarse classification of a provider failure, used for logs
// and metrics. Provider errors are never rewrapped into it.
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindAccessDenied   ErrorKind = "access_denied"
	KindNotFound       ErrorKind = "not_found"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindContextLength  ErrorKind = "context_length"
	KindQuotaExceeded  ErrorKind = "quota_exceeded"
	KindContentFilter  ErrorKind = "content_filter"
	KindRateLimit      ErrorKind = "rate_limit"
	KindServer         ErrorKind = "server"
	KindTimeout        ErrorKind = "timeout"
	KindNetwork        ErrorKind = "network"
	KindCanceled       ErrorKind = "canceled"
	KindUnknown        ErrorKind = "unknown"
)

// KindFromStatusCode maps an HTTP status code to an ErrorKind.
func KindFromStatusCode(statusCode int) ErrorKind {
	switch statusCode {
	case 400, 422:
		return KindInvalidRequest
	case 401:
		return KindAuthentication
	case 403:
		return KindAccessDenied
	case 404:
		return KindNotFound
	case 408:
		return KindTimeout
	case 413:
		return KindContextLength
	case 429:
		return KindRateLimit
	}
	if statusCode >= 500 && statusCode <= 599 {
		return KindServer
	}
	return KindUnknown
}

// ClassifyError inspects a provider error and reports its kind. Status codes
// from the OpenAI and Anthropic SDKs are used when present; other errors fall
// back to message heuristics.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var oaiErr *openai.APIError
	if errors.As(err, &oaiErr) && oaiErr.HTTPStatusCode != 0 {
		return KindFromStatusCode(oaiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode != 0 {
			return KindFromStatusCode(reqErr.HTTPStatusCode)
		}
		return KindNetwork
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) && antErr.StatusCode != 0 {
		return KindFromStatusCode(antErr.StatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return classifyMessage(err.Error())
}

// classifyMessage covers SDKs (gollm) that only surface error text.
func classifyMessage(msg string) ErrorKind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "401") || strings.Contains(m, "unauthorized") || strings.Contains(m, "invalid api key") || strings.Contains(m, "authentication"):
		return KindAuthentication
	case strings.Contains(m, "403") || strings.Contains(m, "forbidden") || strings.Contains(m, "permission"):
		return KindAccessDenied
	case strings.Contains(m, "429") || strings.Contains(m, "rate limit") || strings.Contains(m, "too many requests"):
		return KindRateLimit
	case strings.Contains(m, "quota") || strings.Contains(m, "billing"):
		return KindQuotaExceeded
	case strings.Contains(m, "context length") || strings.Contains(m, "too many tokens") || strings.Contains(m, "maximum context"):
		return KindContextLength
	case strings.Contains(m, "content filter") || strings.Contains(m, "safety"):
		return KindContentFilter
	case strings.Contains(m, "404") || strings.Contains(m, "not found") || strings.Contains(m, "does not exist"):
		return KindNotFound
	case strings.Contains(m, "timeout") || strings.Contains(m, "deadline"):
		return KindTimeout
	case strings.Contains(m, "connection refused") || strings.Contains(m, "no such host") || strings.Contains(m, "eof"):
		return KindNetwork
	case strings.Contains(m, "500") || strings.Contains(m, "502") || strings.Contains(m, "503") || strings.Contains(m, "504") || strings.Contains(m, "server error") || strings.Contains(m, "overloaded"):
		return KindServer
	case strings.Contains(m, "400") || strings.Contains(m, "invalid") || strings.Contains(m, "bad request"):
		return KindInvalidRequest
	}
	return KindUnknown
}

// Transient reports whether a failure of this kind might succeed if tried
// again later. The router uses it only to pick a log level.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindRateLimit, KindServer, KindTimeout, KindNetwork, KindUnknown:
		return true
	}
	return false
}
