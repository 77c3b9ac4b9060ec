package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harunnryd/agrichat/pkg/agrodata"
	"github.com/harunnryd/agrichat/pkg/catalog"
	"github.com/harunnryd/agrichat/pkg/chain"
	"github.com/harunnryd/agrichat/pkg/language"
	"github.com/harunnryd/agrichat/pkg/llm"
	"github.com/harunnryd/agrichat/pkg/metrics"
	"github.com/harunnryd/agrichat/pkg/notify/twilio"
)

type harness struct {
	orch    *Orchestrator
	catalog *catalog.Catalog
	obs     *metrics.MemoryObserver
}

type harnessOptions struct {
	providers []llm.Provider
	source    agrodata.Source
	pager     ExpertPager
	timeout   time.Duration
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	set, err := language.Builtin()
	require.NoError(t, err)
	cat, err := catalog.Builtin()
	require.NoError(t, err)
	obs := metrics.NewMemoryObserver()

	if opts.timeout == 0 {
		opts.timeout = time.Second
	}
	ds := make([]chain.Descriptor, 0, len(opts.providers))
	for i, p := range opts.providers {
		ds = append(ds, chain.Descriptor{Provider: p, Priority: i})
	}
	ch, err := chain.New(chain.Config{Timeout: opts.timeout, Catalog: cat, Names: set, Observer: obs}, ds...)
	require.NoError(t, err)

	orch, err := NewOrchestrator(Options{
		Matcher:         language.NewMatcher(set),
		Chain:           ch,
		Catalog:         cat,
		Source:          opts.source,
		Pager:           opts.pager,
		DefaultLocation: "kumasi",
		Observer:        obs,
	})
	require.NoError(t, err)
	return &harness{orch: orch, catalog: cat, obs: obs}
}

// echoProvider replies with a fixed prefix plus the farmer's text. Messages
// containing "slow" wait before answering; it always honours ctx.
type echoProvider struct {
	delay   time.Duration
	started chan struct{}
	once    sync.Once
}

func (p *echoProvider) Name() string { return "echo" }

func (p *echoProvider) Generate(ctx context.Context, prompt, lang string) (string, error) {
	if p.started != nil {
		p.once.Do(func() { close(p.started) })
	}
	text := prompt[strings.LastIndex(prompt, "Farmer: ")+len("Farmer: "):]
	if strings.Contains(text, "slow") {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "echo[" + lang + "]: " + text, nil
}

// blockingProvider blocks until ctx ends.
type blockingProvider struct {
	started chan struct{}
	once    sync.Once
}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) Generate(ctx context.Context, prompt, lang string) (string, error) {
	p.once.Do(func() { close(p.started) })
	<-ctx.Done()
	return "", ctx.Err()
}

type failingProvider struct{ name string }

func (p failingProvider) Name() string { return p.name }

func (p failingProvider) Generate(context.Context, string, string) (string, error) {
	return "", errors.New("upstream 503")
}

type failingSource struct{ agrodata.Source }

func (failingSource) Weather(context.Context, string) (agrodata.WeatherData, error) {
	return agrodata.WeatherData{}, errors.New("weather api down")
}

type recordingPager struct {
	mu    sync.Mutex
	pages []twilio.Page
	err   error
}

func (r *recordingPager) Send(ctx context.Context, page twilio.Page) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, page)
	if r.err != nil {
		return "", r.err
	}
	return "SM1", nil
}

func (r *recordingPager) Pages() []twilio.Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]twilio.Page(nil), r.pages...)
}

// stuckPager ignores ctx and does not return until released, like a
// Twilio call on a hung connection.
type stuckPager struct {
	started chan struct{}
	done    chan struct{}
	once    sync.Once
	stop    sync.Once
}

func newStuckPager() *stuckPager {
	return &stuckPager{started: make(chan struct{}), done: make(chan struct{})}
}

func (p *stuckPager) Send(context.Context, twilio.Page) (string, error) {
	p.once.Do(func() { close(p.started) })
	<-p.done
	return "SMstuck", nil
}

func (p *stuckPager) release() { p.stop.Do(func() { close(p.done) }) }

func floatPtr(v float64) *float64 { return &v }
