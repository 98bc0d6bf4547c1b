package fallback

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a provider call failed.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindTransport   ErrorKind = "transport"
	KindMalformed   ErrorKind = "malformed"
	KindRejected    ErrorKind = "rejected"
	KindUnavailable ErrorKind = "unavailable"
)

// ProviderError is the failure of one provider call. The chain absorbs it.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Errorf builds a ProviderError of kind for provider.
func Errorf(kind ErrorKind, provider, format string, args ...any) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Err: fmt.Errorf(format, args...)}
}

// classify wraps err as a ProviderError, keeping the kind of an existing one.
func classify(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		out := *pe
		if out.Provider == "" {
			out.Provider = provider
		}
		return &out
	}
	kind := KindTransport
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}
