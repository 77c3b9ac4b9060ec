// Package gemini answers chat turns with Google's Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/harunnryd/agrichat/pkg/llm"
	"github.com/harunnryd/agrichat/pkg/resilience"
)

const DefaultModel = "gemini-2.0-flash"

// generator is the subset of *genai.Models the provider uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Config struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
}

type Provider struct {
	models generator
	cfg    Config
}

// New builds a Gemini API client. The client is created eagerly so a bad key
// surfaces at startup rather than on the first turn.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newWithGenerator(client.Models, cfg), nil
}

func newWithGenerator(models generator, cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 300
	}
	return &Provider{models: models, cfg: cfg}
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) Generate(ctx context.Context, prompt, language string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: p.cfg.MaxOutputTokens,
	}
	if p.cfg.Temperature > 0 {
		config.Temperature = genai.Ptr(p.cfg.Temperature)
	}
	resp, err := p.models.GenerateContent(ctx, p.cfg.Model, contents, config)
	if err != nil {
		return "", p.mapError(ctx, err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", llm.ErrMalformed)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: no text candidates", llm.ErrMalformed)
	}
	return text, nil
}

func (p *Provider) mapError(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return resilience.RateLimitError{Provider: p.Name(), Message: apiErr.Message}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", llm.ErrTimeout, ctx.Err())
	}
	return fmt.Errorf("%w: %v", llm.ErrUnavailable, err)
}

var _ llm.Provider = (*Provider)(nil)
