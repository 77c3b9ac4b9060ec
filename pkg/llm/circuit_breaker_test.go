package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/agrichat/pkg/metrics"
	"github.com/harunnryd/agrichat/pkg/resilience"
)

func failingProvider(calls *int) ProviderFunc {
	return ProviderFunc{ProviderName: "flaky", Fn: func(ctx context.Context, prompt, language string) (string, error) {
		*calls++
		return "", errors.New("503")
	}}
}

func TestBreakerProviderOpensAndDenies(t *testing.T) {
	calls := 0
	obs := metrics.NewMemoryObserver()
	p := NewCircuitBreakerProvider(failingProvider(&calls), resilience.NewCircuitBreaker(2, time.Minute))
	p.SetObserver(obs)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := p.Generate(ctx, "p", "en"); err == nil {
			t.Fatalf("expected failure")
		}
	}
	if p.IsAvailable(ctx) {
		t.Fatalf("expected unavailable after threshold")
	}
	if _, err := p.Generate(ctx, "p", "en"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable while open, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("inner provider should not be called while open, calls=%d", calls)
	}
	if obs.Count(metrics.EventBreakerOpen) != 1 || obs.Count(metrics.EventBreakerDenied) != 1 {
		t.Fatalf("unexpected events %+v", obs.Events())
	}
	if p.State() != resilience.BreakerOpen {
		t.Fatalf("expected open state, got %s", p.State())
	}
}

func TestBreakerProviderIgnoresCancellation(t *testing.T) {
	p := NewCircuitBreakerProvider(ProviderFunc{ProviderName: "slow", Fn: func(ctx context.Context, prompt, language string) (string, error) {
		return "", ctx.Err()
	}}, resilience.NewCircuitBreaker(1, time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = p.Generate(ctx, "p", "en")
	if !p.IsAvailable(context.Background()) {
		t.Fatalf("cancellation must not trip the breaker")
	}
}

func TestBreakerProviderPassesThroughSuccess(t *testing.T) {
	p := NewCircuitBreakerProvider(ProviderFunc{ProviderName: "ok", Fn: func(ctx context.Context, prompt, language string) (string, error) {
		return "Akwaaba", nil
	}}, nil)
	got, err := p.Generate(context.Background(), "p", "tw")
	if err != nil || got != "Akwaaba" {
		t.Fatalf("unexpected result %q %v", got, err)
	}
	if p.Name() != "ok" {
		t.Fatalf("expected inner name")
	}
}
