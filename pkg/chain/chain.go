// Package chain resolves a reply by walking an ordered list of response
// providers, ending in a local catalog lookup that cannot fail.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/harunnryd/agrichat/pkg/catalog"
	"github.com/harunnryd/agrichat/pkg/errorsx"
	"github.com/harunnryd/agrichat/pkg/intent"
	"github.com/harunnryd/agrichat/pkg/llm"
	"github.com/harunnryd/agrichat/pkg/logging"
	"github.com/harunnryd/agrichat/pkg/metrics"
	"github.com/harunnryd/agrichat/pkg/redact"
)

// FallbackName is the provider name reported when the catalog answered.
const FallbackName = "catalog"

const DefaultTimeout = 8 * time.Second

// Descriptor places a provider in the chain. Lower Priority runs first.
type Descriptor struct {
	Provider llm.Provider
	Priority int
}

// Attempt records what happened to one provider during a turn.
type Attempt struct {
	Provider string
	Outcome  errorsx.ReasonCode
	Latency  time.Duration
}

// Result is the resolved reply. Provider names the source that produced Text.
type Result struct {
	Text     string
	Provider string
	Attempts []Attempt
}

// LanguageNamer resolves a language code to the name used in prompts.
type LanguageNamer interface {
	DisplayName(code string) string
}

type Config struct {
	Timeout  time.Duration
	Catalog  *catalog.Catalog
	Names    LanguageNamer
	Observer metrics.Observer
	Logger   *slog.Logger
}

// Chain is immutable after New and safe for concurrent Resolve calls.
type Chain struct {
	providers []llm.Provider
	fallback  *catalogProvider
	timeout   time.Duration
	names     LanguageNamer
	obs       metrics.Observer
	logger    *slog.Logger
}

// New sorts the descriptors by priority (stable, so equal priorities keep
// their given order) and appends the catalog fallback last.
func New(cfg Config, descriptors ...Descriptor) (*Chain, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("chain: catalog is required")
	}
	sorted := make([]Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Provider == nil {
			continue
		}
		if d.Provider.Name() == FallbackName {
			return nil, fmt.Errorf("chain: provider name %q is reserved", FallbackName)
		}
		sorted = append(sorted, d)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	c := &Chain{
		fallback: &catalogProvider{catalog: cfg.Catalog},
		timeout:  cfg.Timeout,
		names:    cfg.Names,
		obs:      metrics.OrNoop(cfg.Observer),
		logger:   logging.NewComponentLogger(cfg.Logger, "chain"),
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	for _, d := range sorted {
		c.providers = append(c.providers, d.Provider)
	}
	return c, nil
}

// Providers lists the provider names in the order Resolve tries them,
// including the fallback.
func (c *Chain) Providers() []string {
	out := make([]string, 0, len(c.providers)+1)
	for _, p := range c.providers {
		out = append(out, p.Name())
	}
	return append(out, FallbackName)
}

// Resolve never fails. Each remote provider gets one call bounded by the
// chain timeout; any error, timeout or blank reply moves on to the next one.
// If ctx itself is done the remaining providers are skipped and the catalog
// answers, so callers always get a text.
func (c *Chain) Resolve(ctx context.Context, in intent.Intent, lang, rawText string) Result {
	var res Result
	prompt := BuildPrompt(in, c.languageName(lang), rawText)

	for _, p := range c.providers {
		if ctx.Err() != nil {
			break
		}
		if checker, ok := p.(llm.AvailabilityChecker); ok && !checker.IsAvailable(ctx) {
			res.Attempts = append(res.Attempts, Attempt{Provider: p.Name(), Outcome: errorsx.ReasonProviderSkipped})
			c.obs.RecordEvent(metrics.MetricsEvent{
				Name: metrics.EventProviderSkipped,
				Time: time.Now(),
				Tags: map[string]string{"provider": p.Name()},
			})
			continue
		}

		start := time.Now()
		text, err := c.call(ctx, p, prompt, lang)
		latency := time.Since(start)
		outcome := errorsx.ReasonCode("ok")
		if err != nil {
			outcome = errorsx.Reason(err)
		}
		res.Attempts = append(res.Attempts, Attempt{Provider: p.Name(), Outcome: outcome, Latency: latency})
		if outcome == errorsx.ReasonProviderCancelled {
			c.logger.Debug("provider_cancelled", "provider", p.Name(), "latency_ms", latency.Milliseconds())
			break
		}
		c.obs.RecordEvent(metrics.MetricsEvent{
			Name:  metrics.EventProviderAttempt,
			Time:  time.Now(),
			Value: latency.Seconds(),
			Tags:  map[string]string{"provider": p.Name(), "outcome": string(outcome)},
		})
		if err == nil {
			res.Text = text
			res.Provider = p.Name()
			return res
		}
		c.logger.Warn("provider_failed",
			"provider", p.Name(),
			"reason", outcome,
			"latency_ms", latency.Milliseconds(),
			"error", err,
			"text", redact.Snippet(rawText, 80),
		)
	}

	key := in.CatalogKey()
	if !c.fallback.catalog.Has(key, lang) {
		c.logger.Info("catalog_missing_key", "key", key, "language", lang)
		c.obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventCatalogMissingKey,
			Time: time.Now(),
			Tags: map[string]string{"key": key, "language": lang},
		})
	}
	res.Text = c.fallback.lookup(in, lang)
	res.Provider = FallbackName
	res.Attempts = append(res.Attempts, Attempt{Provider: FallbackName, Outcome: "ok"})
	return res
}

type generateResult struct {
	text string
	err  error
}

// call runs Generate in its own goroutine so a provider that ignores its
// context cannot hold the turn past the timeout. The buffered channel lets
// the abandoned goroutine finish without a reader.
func (c *Chain) call(ctx context.Context, p llm.Provider, prompt, lang string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan generateResult, 1)
	go func() {
		text, err := p.Generate(callCtx, prompt, lang)
		done <- generateResult{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.Canceled) {
			return "", errorsx.Wrap(ctx.Err(), errorsx.ReasonProviderCancelled)
		}
		return classify(callCtx, r.text, r.err)
	case <-callCtx.Done():
		// Cancelling the caller's ctx is a teardown, not a slow provider.
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", errorsx.Wrap(ctx.Err(), errorsx.ReasonProviderCancelled)
		}
		return "", errorsx.Wrap(llm.ErrTimeout, errorsx.ReasonProviderTimeout)
	}
}

func classify(ctx context.Context, text string, err error) (string, error) {
	if err != nil {
		if errors.Is(err, llm.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return "", errorsx.Wrap(err, errorsx.ReasonProviderTimeout)
		}
		if errors.Is(err, llm.ErrMalformed) {
			return "", errorsx.Wrap(err, errorsx.ReasonProviderMalformed)
		}
		return "", errorsx.Wrap(err, errorsx.ReasonProviderUnavailable)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errorsx.Wrap(llm.ErrMalformed, errorsx.ReasonProviderMalformed)
	}
	return text, nil
}

func (c *Chain) languageName(lang string) string {
	if c.names == nil {
		return lang
	}
	if name := c.names.DisplayName(lang); name != "" {
		return name
	}
	return lang
}
