package agrodata

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed static.yaml
var staticYAML []byte

type staticLocation struct {
	Weather *WeatherData   `yaml:"weather"`
	Market  []MarketData   `yaml:"market"`
	Expert  *ExpertContact `yaml:"expert"`
}

type staticFile struct {
	DefaultLocation string                    `yaml:"default_location"`
	Locations       map[string]staticLocation `yaml:"locations"`
	Subsidies       []SubsidyData             `yaml:"subsidies"`
}

// StaticSource serves bundled sample data. It keeps the chat usable offline
// and in demos. Unknown locations fall back to the default one.
type StaticSource struct {
	data staticFile
}

var (
	builtinOnce   sync.Once
	builtinSource *StaticSource
	builtinErr    error
)

// BuiltinStatic returns the StaticSource parsed from the embedded data.
func BuiltinStatic() (*StaticSource, error) {
	builtinOnce.Do(func() {
		builtinSource, builtinErr = ParseStatic(staticYAML)
	})
	return builtinSource, builtinErr
}

func ParseStatic(data []byte) (*StaticSource, error) {
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("agrodata: parse static data: %w", err)
	}
	locations := make(map[string]staticLocation, len(f.Locations))
	for name, loc := range f.Locations {
		locations[normalizeLocation(name)] = loc
	}
	f.Locations = locations
	f.DefaultLocation = normalizeLocation(f.DefaultLocation)
	if _, ok := f.Locations[f.DefaultLocation]; !ok && len(f.Locations) > 0 {
		return nil, fmt.Errorf("agrodata: default location %q has no data", f.DefaultLocation)
	}
	return &StaticSource{data: f}, nil
}

func (s *StaticSource) location(name string) (staticLocation, bool) {
	if loc, ok := s.data.Locations[normalizeLocation(name)]; ok {
		return loc, true
	}
	loc, ok := s.data.Locations[s.data.DefaultLocation]
	return loc, ok
}

func (s *StaticSource) Weather(ctx context.Context, location string) (WeatherData, error) {
	loc, ok := s.location(location)
	if !ok || loc.Weather == nil {
		return WeatherData{}, ErrNotFound
	}
	return *loc.Weather, nil
}

func (s *StaticSource) Market(ctx context.Context, location string) ([]MarketData, error) {
	loc, ok := s.location(location)
	if !ok || len(loc.Market) == 0 {
		return nil, ErrNotFound
	}
	return append([]MarketData(nil), loc.Market...), nil
}

func (s *StaticSource) Subsidies(ctx context.Context, location string) ([]SubsidyData, error) {
	if len(s.data.Subsidies) == 0 {
		return nil, ErrNotFound
	}
	return append([]SubsidyData(nil), s.data.Subsidies...), nil
}

func (s *StaticSource) Expert(ctx context.Context, location string) (ExpertContact, error) {
	loc, ok := s.location(location)
	if !ok || loc.Expert == nil {
		return ExpertContact{}, ErrNotFound
	}
	return *loc.Expert, nil
}

func normalizeLocation(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var _ Source = (*StaticSource)(nil)
