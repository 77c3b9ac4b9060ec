// Package mock provides a scripted response provider for local runs and
// tests.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/harunnryd/agrichat/pkg/llm"
)

type Config struct {
	Name         string
	ResponseText string
	// Fail makes every call return llm.ErrUnavailable.
	Fail bool
	// Delay is applied before answering; the call still honours ctx.
	Delay time.Duration
	// Unavailable is reported through IsAvailable.
	Unavailable bool
}

type Provider struct {
	cfg   Config
	calls atomic.Int64
}

func New(cfg Config) *Provider {
	if cfg.Name == "" {
		cfg.Name = "mock"
	}
	if cfg.ResponseText == "" {
		cfg.ResponseText = "mock response ({language})"
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) Name() string { return p.cfg.Name }

// Generate returns ResponseText with "{language}" replaced by the reply
// language code.
func (p *Provider) Generate(ctx context.Context, prompt, language string) (string, error) {
	p.calls.Add(1)
	if p.cfg.Delay > 0 {
		timer := time.NewTimer(p.cfg.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", llm.ErrTimeout, ctx.Err())
		}
	}
	if p.cfg.Fail {
		return "", llm.ErrUnavailable
	}
	return strings.ReplaceAll(p.cfg.ResponseText, "{language}", language), nil
}

func (p *Provider) IsAvailable(context.Context) bool { return !p.cfg.Unavailable }

// Calls reports how many times Generate ran.
func (p *Provider) Calls() int64 { return p.calls.Load() }

var (
	_ llm.Provider            = (*Provider)(nil)
	_ llm.AvailabilityChecker = (*Provider)(nil)
)
