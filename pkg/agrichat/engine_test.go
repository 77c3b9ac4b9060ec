package agrichat

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/agrichat/pkg/agrodata"
	"github.com/harunnryd/agrichat/pkg/chat"
	"github.com/harunnryd/agrichat/pkg/intent"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Providers = []ProviderConfig{
		{Name: "backup", Type: "mock", Priority: 2, Settings: map[string]any{"response_text": "backup {language}"}},
		{Name: "primary", Type: "mock", Priority: 1, Settings: map[string]any{"fail": true}},
		{Name: "off", Type: "mock", Disabled: true},
	}
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), EngineOptions{Config: cfg, LogOutput: io.Discard, Banner: io.Discard})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func submit(t *testing.T, e *Engine, in chat.Input) chat.Output {
	t.Helper()
	conv := e.Hub().Open()
	defer conv.Close()
	_, err := conv.Submit(context.Background(), in)
	require.NoError(t, err)
	select {
	case out := <-conv.Results():
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for turn")
		return chat.Output{}
	}
}

func TestEngineOrdersProvidersAndSkipsDisabled(t *testing.T) {
	e := newTestEngine(t, testConfig(t))
	require.Equal(t, []string{"primary", "backup", "catalog"}, e.Chain().Providers())
}

func TestEngineProcessesTurnEndToEnd(t *testing.T) {
	e := newTestEngine(t, testConfig(t))
	out := submit(t, e, chat.Input{Text: "What is the maize price in the market?"})
	require.Equal(t, "backup", out.Provider)
	require.Equal(t, "backup en", out.ResponseText)
	require.Equal(t, intent.Market, out.Intent)
	require.Equal(t, agrodata.KindMarket, out.PayloadKind)
	require.NotNil(t, out.StructuredPayload)
}

func TestEngineDefaultLanguageFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Languages.Default = "ha"
	cfg.Providers = nil
	e := newTestEngine(t, cfg)
	out := submit(t, e, chat.Input{Text: ""})
	require.Equal(t, "ha", out.DetectedLanguage)
	require.Equal(t, "catalog", out.Provider)
}

func TestEngineRejectsUnsupportedDefaultLanguage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Languages.Default = "fr"
	_, err := NewEngine(context.Background(), EngineOptions{Config: cfg, LogOutput: io.Discard})
	require.ErrorContains(t, err, "languages.default")
}

func TestEngineRedisCacheAndHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	e := newTestEngine(t, cfg)
	require.NoError(t, e.Health(context.Background()))

	out := submit(t, e, chat.Input{Text: "Will it rain tomorrow?", Location: "tamale"})
	require.Equal(t, agrodata.KindWeather, out.PayloadKind)
	require.NotEmpty(t, mr.Keys())

	mr.Close()
	require.Error(t, e.Health(context.Background()))
}

func TestEngineRunServesAndDrains(t *testing.T) {
	e := newTestEngine(t, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return e.runner.State().String() == "running" }, 2*time.Second, 10*time.Millisecond)
	conv := e.Hub().Open()
	require.Equal(t, 1, e.Hub().Len())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
	<-conv.Done()
	require.Equal(t, 0, e.Hub().Len())
}

func TestEngineMetricsRoute(t *testing.T) {
	e := newTestEngine(t, testConfig(t))
	_ = submit(t, e, chat.Input{Text: "How do I treat fall armyworm pests?"})
	e.asyncObs.Close()

	srv := httptest.NewServer(e.transport.(interface{ Handler() http.Handler }).Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "agrichat_provider_attempts_total"))
}
