package agrodata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPSource reads data from a REST service exposing
// GET /weather, /market, /subsidies and /experts, each taking ?location=.
type HTTPSource struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewHTTPSource(baseURL, apiKey string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Weather(ctx context.Context, location string) (WeatherData, error) {
	var out WeatherData
	err := s.get(ctx, "/weather", location, &out)
	return out, err
}

func (s *HTTPSource) Market(ctx context.Context, location string) ([]MarketData, error) {
	var out []MarketData
	err := s.get(ctx, "/market", location, &out)
	return out, err
}

func (s *HTTPSource) Subsidies(ctx context.Context, location string) ([]SubsidyData, error) {
	var out []SubsidyData
	err := s.get(ctx, "/subsidies", location, &out)
	return out, err
}

func (s *HTTPSource) Expert(ctx context.Context, location string) (ExpertContact, error) {
	var out ExpertContact
	err := s.get(ctx, "/experts", location, &out)
	return out, err
}

func (s *HTTPSource) get(ctx context.Context, path, location string, out any) error {
	u := s.BaseURL + path
	if location != "" {
		u += "?" + url.Values{"location": {location}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("agrodata: %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("agrodata: %s: decode: %w", path, err)
	}
	return nil
}

var _ Source = (*HTTPSource)(nil)
