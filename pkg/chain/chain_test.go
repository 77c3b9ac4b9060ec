package chain

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harunnryd/agrichat/pkg/catalog"
	"github.com/harunnryd/agrichat/pkg/errorsx"
	"github.com/harunnryd/agrichat/pkg/intent"
	"github.com/harunnryd/agrichat/pkg/language"
	"github.com/harunnryd/agrichat/pkg/llm"
	"github.com/harunnryd/agrichat/pkg/metrics"
)

type stubProvider struct {
	name      string
	text      string
	err       error
	delay     time.Duration
	ignoreCtx bool
	available *bool
	calls     atomic.Int32
	prompt    atomic.Value
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Generate(ctx context.Context, prompt, language string) (string, error) {
	s.calls.Add(1)
	s.prompt.Store(prompt)
	if s.delay > 0 {
		if s.ignoreCtx {
			time.Sleep(s.delay)
		} else {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return s.text, s.err
}

type availableStub struct {
	*stubProvider
}

func (a availableStub) IsAvailable(context.Context) bool { return *a.available }

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Builtin()
	require.NoError(t, err)
	return cat
}

func testChain(t *testing.T, obs metrics.Observer, timeout time.Duration, ds ...Descriptor) *Chain {
	t.Helper()
	set, err := language.Builtin()
	require.NoError(t, err)
	c, err := New(Config{Timeout: timeout, Catalog: testCatalog(t), Names: set, Observer: obs}, ds...)
	require.NoError(t, err)
	return c
}

func TestResolveFallsBackToCatalogWhenAllFail(t *testing.T) {
	cat := testCatalog(t)
	for _, lang := range []string{"en", "tw", "ee", "ga", "ha"} {
		c := testChain(t, nil, 50*time.Millisecond,
			Descriptor{Provider: &stubProvider{name: "a", err: errors.New("boom")}, Priority: 1},
			Descriptor{Provider: &stubProvider{name: "b", text: "   "}, Priority: 2},
		)
		res := c.Resolve(context.Background(), intent.Market, lang, "maize price")
		require.Equal(t, FallbackName, res.Provider)
		require.Equal(t, cat.Lookup("chat_market_response", lang), res.Text)
		require.Len(t, res.Attempts, 3)
		require.Equal(t, errorsx.ReasonProviderUnavailable, res.Attempts[0].Outcome)
		require.Equal(t, errorsx.ReasonProviderMalformed, res.Attempts[1].Outcome)
	}
}

func TestResolveWithNoRemoteProviders(t *testing.T) {
	c := testChain(t, nil, 0)
	res := c.Resolve(context.Background(), intent.Weather, "tw", "nsuo bɛtɔ?")
	require.Equal(t, FallbackName, res.Provider)
	require.NotEmpty(t, res.Text)
	require.Equal(t, []string{FallbackName}, c.Providers())
}

func TestResolveFirstSuccessWins(t *testing.T) {
	first := &stubProvider{name: "first", text: " Plant after the first rains. "}
	second := &stubProvider{name: "second", text: "unused"}
	c := testChain(t, nil, time.Second,
		Descriptor{Provider: second, Priority: 5},
		Descriptor{Provider: first, Priority: 1},
	)
	res := c.Resolve(context.Background(), intent.Seed, "en", "when do I plant")
	require.Equal(t, "first", res.Provider)
	require.Equal(t, "Plant after the first rains.", res.Text)
	require.EqualValues(t, 0, second.calls.Load())

	prompt, _ := first.prompt.Load().(string)
	require.Contains(t, prompt, "English")
	require.Contains(t, prompt, "when do I plant")
}

func TestProvidersSortedStablyByPriority(t *testing.T) {
	c := testChain(t, nil, 0,
		Descriptor{Provider: &stubProvider{name: "c"}, Priority: 2},
		Descriptor{Provider: &stubProvider{name: "a"}, Priority: 1},
		Descriptor{Provider: &stubProvider{name: "b"}, Priority: 2},
	)
	require.Equal(t, []string{"a", "c", "b", FallbackName}, c.Providers())
}

func TestReservedFallbackName(t *testing.T) {
	_, err := New(Config{Catalog: testCatalog(t)}, Descriptor{Provider: &stubProvider{name: FallbackName}})
	require.Error(t, err)
	_, err = New(Config{})
	require.Error(t, err)
}

func TestSlowProviderTimesOutAndChainAdvances(t *testing.T) {
	slow := &stubProvider{name: "slow", text: "late", delay: 2 * time.Second, ignoreCtx: true}
	fast := &stubProvider{name: "fast", text: "on time"}
	c := testChain(t, nil, 30*time.Millisecond,
		Descriptor{Provider: slow, Priority: 1},
		Descriptor{Provider: fast, Priority: 2},
	)
	start := time.Now()
	res := c.Resolve(context.Background(), intent.Pest, "en", "armyworm")
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, "fast", res.Provider)
	require.Equal(t, errorsx.ReasonProviderTimeout, res.Attempts[0].Outcome)
}

func TestCancelledAttemptIsNotATimeout(t *testing.T) {
	hung := &stubProvider{name: "hung", text: "late", delay: time.Minute}
	next := &stubProvider{name: "next", text: "never asked"}
	obs := metrics.NewMemoryObserver()
	c := testChain(t, obs, time.Minute,
		Descriptor{Provider: hung, Priority: 1},
		Descriptor{Provider: next, Priority: 2},
	)
	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(30*time.Millisecond, cancel)
	defer timer.Stop()

	res := c.Resolve(ctx, intent.Pest, "en", "armyworm")
	require.Equal(t, FallbackName, res.Provider)
	require.Equal(t, errorsx.ReasonProviderCancelled, res.Attempts[0].Outcome)
	require.EqualValues(t, 0, next.calls.Load())
	require.Equal(t, 0, obs.Count(metrics.EventProviderAttempt))
}

func TestAvailabilityIsAdvisory(t *testing.T) {
	up := true
	down := false
	skipped := availableStub{&stubProvider{name: "down", text: "never", available: &down}}
	lying := availableStub{&stubProvider{name: "lying", err: errors.New("503"), available: &up}}
	obs := metrics.NewMemoryObserver()
	c := testChain(t, obs, time.Second,
		Descriptor{Provider: skipped, Priority: 1},
		Descriptor{Provider: lying, Priority: 2},
	)
	res := c.Resolve(context.Background(), intent.Subsidy, "ha", "tallafi")
	require.Equal(t, FallbackName, res.Provider)
	require.EqualValues(t, 0, skipped.calls.Load())
	require.EqualValues(t, 1, lying.calls.Load())
	require.Equal(t, errorsx.ReasonProviderSkipped, res.Attempts[0].Outcome)
	require.Equal(t, 1, obs.Count(metrics.EventProviderSkipped))
	require.Equal(t, 1, obs.Count(metrics.EventProviderAttempt))
}

func TestNoRetries(t *testing.T) {
	p := &stubProvider{name: "once", err: llm.ErrUnavailable}
	c := testChain(t, nil, time.Second, Descriptor{Provider: p})
	c.Resolve(context.Background(), intent.Harvest, "en", "when to harvest")
	require.EqualValues(t, 1, p.calls.Load())
}

func TestCancelledContextStillAnswers(t *testing.T) {
	p := &stubProvider{name: "remote", text: "hi"}
	c := testChain(t, nil, time.Second, Descriptor{Provider: p})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.Resolve(ctx, intent.Default, "ee", "")
	require.Equal(t, FallbackName, res.Provider)
	require.EqualValues(t, 0, p.calls.Load())
}

func TestMissingCatalogKeyIsRecorded(t *testing.T) {
	cat, err := catalog.New("en", catalog.Entry{Key: "chat_weather_response", Texts: map[string]string{"en": "Sunny."}})
	require.NoError(t, err)
	obs := metrics.NewMemoryObserver()
	c, err := New(Config{Catalog: cat, Observer: obs})
	require.NoError(t, err)

	res := c.Resolve(context.Background(), intent.Weather, "tw", "")
	require.Equal(t, "Sunny.", res.Text)
	res = c.Resolve(context.Background(), intent.Market, "en", "")
	require.Equal(t, "chat_market_response", res.Text)
	require.Equal(t, 2, obs.Count(metrics.EventCatalogMissingKey))
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(intent.Weather, "Twi", "  Nsuo bɛtɔ ɔkyena?  ")
	require.True(t, strings.HasSuffix(p, "Farmer: Nsuo bɛtɔ ɔkyena?"))
	require.Contains(t, p, "Reply in Twi")
	require.Contains(t, p, intent.Weather.Topic())
}

func TestFallbackDirect(t *testing.T) {
	c := testChain(t, nil, 0)
	res := c.Fallback(context.Background(), intent.ExpertRequest, "ga")
	require.Equal(t, FallbackName, res.Provider)
	require.Equal(t, testCatalog(t).Lookup("chat_expert_request_response", "ga"), res.Text)
}
