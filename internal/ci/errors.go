package ci

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type ErrorKind string

const (
	ErrorKindRateLimit      ErrorKind = "rate_limit"
	ErrorKindNetwork        ErrorKind = "network"
	ErrorKindUpstream       ErrorKind = "upstream"
	ErrorKindParse          ErrorKind = "parse"
	ErrorKindTimeout        ErrorKind = "timeout"
	ErrorKindUnavailable    ErrorKind = "unavailable"
	ErrorKindInvalidRequest ErrorKind = "invalid_request"
)

type ProviderError struct {
	Kind       ErrorKind
	Operation  string
	Location   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "fetch error"
	}

	base := fmt.Sprintf("fetch %s error", e.Kind)
	if e.Operation != "" {
		base = fmt.Sprintf("%s during %s", base, e.Operation)
	}
	if e.Location != "" {
		base = fmt.Sprintf("%s for location %s", base, e.Location)
	}
	if e.StatusCode > 0 {
		base = fmt.Sprintf("%s (status %d)", base, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", base, e.Err)
	}
	return base
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewProviderError(kind ErrorKind, operation string, location string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{
		Kind:      kind,
		Operation: operation,
		Location:  location,
		Err:       err,
	}
}

func NewProviderStatusError(kind ErrorKind, operation string, location string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{
		Kind:       kind,
		Operation:  operation,
		Location:   location,
		StatusCode: statusCode,
		Err:        err,
	}
}

func IsKind(err error, kind ErrorKind) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of the outermost ProviderError, classifying bare
// context and network errors the same way the fetcher does.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Kind
	}
	return classifyTransportError(err)
}

func classifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}
	return ErrorKindNetwork
}

// HTTPStatusError carries a non-2xx response from the data source.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d", e.StatusCode)
	}
	if e.Body == "" {
		return "status: " + status
	}
	return fmt.Sprintf("status: %s: %s", status, e.Body)
}

func statusKind(statusCode int) ErrorKind {
	switch {
	case statusCode == 429:
		return ErrorKindRateLimit
	case statusCode >= 500:
		return ErrorKindUpstream
	default:
		return ErrorKindInvalidRequest
	}
}
