package llm

import (
	"context"
	"errors"
)

// Provider is a response backend. Implementations may be remote (hosted
// models) or local; they must honour ctx cancellation.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt, language string) (string, error)
}

// AvailabilityChecker is optionally implemented by providers that can
// cheaply tell they are down. The answer is advisory: a provider reporting
// true may still fail in Generate.
type AvailabilityChecker interface {
	IsAvailable(ctx context.Context) bool
}

var (
	ErrTimeout     = errors.New("provider timed out")
	ErrUnavailable = errors.New("provider unavailable")
	ErrMalformed   = errors.New("provider returned a malformed response")
)

// ProviderFunc adapts a function to Provider.
type ProviderFunc struct {
	ProviderName string
	Fn           func(ctx context.Context, prompt, language string) (string, error)
}

func (p ProviderFunc) Name() string { return p.ProviderName }

func (p ProviderFunc) Generate(ctx context.Context, prompt, language string) (string, error) {
	if p.Fn == nil {
		return "", ErrUnavailable
	}
	return p.Fn(ctx, prompt, language)
}
