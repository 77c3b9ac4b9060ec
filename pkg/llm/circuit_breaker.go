package llm

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/agrichat/pkg/metrics"
	"github.com/harunnryd/agrichat/pkg/resilience"
)

// CircuitBreakerProvider guards a remote provider with a breaker and
// exposes the breaker through IsAvailable, so a chain can skip a backend
// that has just been failing without waiting for its timeout.
type CircuitBreakerProvider struct {
	inner   Provider
	breaker *resilience.CircuitBreaker
	obs     metrics.Observer
	open    bool
	mu      sync.Mutex
}

func NewCircuitBreakerProvider(inner Provider, breaker *resilience.CircuitBreaker) *CircuitBreakerProvider {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(3, 30*time.Second)
	}
	return &CircuitBreakerProvider{inner: inner, breaker: breaker, obs: metrics.NoopObserver{}}
}

func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

// SetObserver allows metrics emission for breaker events.
func (p *CircuitBreakerProvider) SetObserver(obs metrics.Observer) { p.obs = metrics.OrNoop(obs) }

// IsAvailable is false while the breaker is open or when the wrapped
// provider reports itself down.
func (p *CircuitBreakerProvider) IsAvailable(ctx context.Context) bool {
	if !p.breaker.Allow() {
		p.setOpen(true)
		return false
	}
	if checker, ok := p.inner.(AvailabilityChecker); ok {
		return checker.IsAvailable(ctx)
	}
	return true
}

func (p *CircuitBreakerProvider) Generate(ctx context.Context, prompt, language string) (string, error) {
	if !p.breaker.Allow() {
		p.setOpen(true)
		p.record(metrics.EventBreakerDenied)
		return "", ErrUnavailable
	}
	text, err := p.inner.Generate(ctx, prompt, language)
	if err != nil {
		// A cancelled turn says nothing about the backend's health.
		if ctx.Err() == nil || ctx.Err() == context.DeadlineExceeded {
			p.breaker.OnError(err)
		}
		if !p.breaker.Allow() {
			p.setOpen(true)
		}
		return "", err
	}
	p.breaker.OnSuccess()
	p.setOpen(false)
	return text, nil
}

// State exposes the breaker position for health endpoints.
func (p *CircuitBreakerProvider) State() resilience.BreakerState {
	return p.breaker.State()
}

func (p *CircuitBreakerProvider) record(name string) {
	p.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: map[string]string{
			"provider":  p.inner.Name(),
			"component": "llm",
		},
	})
}

func (p *CircuitBreakerProvider) setOpen(open bool) {
	p.mu.Lock()
	changed := p.open != open
	p.open = open
	p.mu.Unlock()
	if !changed {
		return
	}
	if open {
		p.record(metrics.EventBreakerOpen)
		return
	}
	p.record(metrics.EventBreakerClose)
}

var _ AvailabilityChecker = (*CircuitBreakerProvider)(nil)
