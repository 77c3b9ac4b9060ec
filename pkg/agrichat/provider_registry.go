package agrichat

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/harunnryd/agrichat/pkg/configutil"
	"github.com/harunnryd/agrichat/pkg/llm"
	"github.com/harunnryd/agrichat/pkg/providers/gemini"
	"github.com/harunnryd/agrichat/pkg/providers/mock"
	"github.com/harunnryd/agrichat/pkg/providers/openai"
)

// ProviderFactory builds a response provider from its config entry.
type ProviderFactory func(ctx context.Context, cfg ProviderConfig) (llm.Provider, error)

type ProviderRegistry struct {
	factories map[string]ProviderFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{factories: make(map[string]ProviderFactory)}
}

// DefaultProviderRegistry knows the built-in mock, openai and gemini
// providers.
func DefaultProviderRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	r.Register("mock", newMockProvider)
	r.Register("openai", newOpenAIProvider)
	r.Register("gemini", newGeminiProvider)
	return r
}

func (r *ProviderRegistry) Register(kind string, factory ProviderFactory) {
	r.factories[strings.ToLower(strings.TrimSpace(kind))] = factory
}

func (r *ProviderRegistry) Kinds() []string {
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *ProviderRegistry) Build(ctx context.Context, cfg ProviderConfig) (llm.Provider, error) {
	fn := r.factories[cfg.Kind()]
	if fn == nil {
		return nil, fmt.Errorf("provider not registered: %s", cfg.Kind())
	}
	p, err := fn(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", cfg.Name, err)
	}
	return p, nil
}

type mockSettings struct {
	ResponseText string        `mapstructure:"response_text"`
	Fail         bool          `mapstructure:"fail"`
	Delay        time.Duration `mapstructure:"delay"`
	Unavailable  bool          `mapstructure:"unavailable"`
}

var mockSchema = configutil.Schema{Optional: []string{"response_text", "fail", "delay", "unavailable"}}

func newMockProvider(_ context.Context, cfg ProviderConfig) (llm.Provider, error) {
	var s mockSettings
	if err := configutil.Load(cfg.Settings, mockSchema, &s); err != nil {
		return nil, err
	}
	return mock.New(mock.Config{
		Name:         cfg.Name,
		ResponseText: s.ResponseText,
		Fail:         s.Fail,
		Delay:        s.Delay,
		Unavailable:  s.Unavailable,
	}), nil
}

type openAISettings struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TimeoutMS   int     `mapstructure:"timeout_ms"`
}

var openAISchema = configutil.Schema{
	Required: []string{"api_key"},
	Optional: []string{"model", "base_url", "temperature", "max_tokens", "timeout_ms"},
}

func newOpenAIProvider(_ context.Context, cfg ProviderConfig) (llm.Provider, error) {
	var s openAISettings
	if err := configutil.Load(cfg.Settings, openAISchema, &s); err != nil {
		return nil, err
	}
	p := openai.New(s.APIKey, s.Model)
	p.BaseURL = configutil.StringOr(s.BaseURL, openai.DefaultBaseURL)
	if s.Temperature > 0 {
		p.Temperature = s.Temperature
	}
	if s.MaxTokens > 0 {
		p.MaxTokens = s.MaxTokens
	}
	p.Client = &http.Client{Timeout: configutil.Millis(s.TimeoutMS, 60*time.Second)}
	return namedProvider(cfg.Name, p), nil
}

type geminiSettings struct {
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	Temperature     float32 `mapstructure:"temperature"`
	MaxOutputTokens int32   `mapstructure:"max_output_tokens"`
}

var geminiSchema = configutil.Schema{
	Required: []string{"api_key"},
	Optional: []string{"model", "temperature", "max_output_tokens"},
}

func newGeminiProvider(ctx context.Context, cfg ProviderConfig) (llm.Provider, error) {
	var s geminiSettings
	if err := configutil.Load(cfg.Settings, geminiSchema, &s); err != nil {
		return nil, err
	}
	p, err := gemini.New(ctx, gemini.Config{
		APIKey:          s.APIKey,
		Model:           s.Model,
		Temperature:     s.Temperature,
		MaxOutputTokens: s.MaxOutputTokens,
	})
	if err != nil {
		return nil, err
	}
	return namedProvider(cfg.Name, p), nil
}

// renamed reports a configured name instead of the backend's own, so two
// entries of the same kind stay distinguishable in logs and metrics.
type renamed struct {
	llm.Provider
	name string
}

func (r renamed) Name() string { return r.name }

func namedProvider(name string, p llm.Provider) llm.Provider {
	name = strings.TrimSpace(name)
	if name == "" || name == p.Name() {
		return p
	}
	return renamed{Provider: p, name: name}
}
