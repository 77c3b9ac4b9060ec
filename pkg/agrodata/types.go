// Package agrodata fetches the structured data shown next to a reply:
// weather, market prices, subsidy programmes and expert contacts.
package agrodata

import (
	"context"
	"errors"
)

type Kind string

const (
	KindWeather Kind = "weather"
	KindMarket  Kind = "market"
	KindSubsidy Kind = "subsidy"
	KindExpert  Kind = "expert"
)

// ErrNotFound is returned when a source has nothing for a location.
var ErrNotFound = errors.New("agrodata: no data for location")

type ForecastDay struct {
	Day       string  `json:"day" yaml:"day"`
	Condition string  `json:"condition" yaml:"condition"`
	High      float64 `json:"high" yaml:"high"`
	Low       float64 `json:"low" yaml:"low"`
}

type WeatherData struct {
	Temperature float64       `json:"temperature" yaml:"temperature"`
	Condition   string        `json:"condition" yaml:"condition"`
	Humidity    float64       `json:"humidity" yaml:"humidity"`
	WindSpeed   float64       `json:"windSpeed" yaml:"windSpeed"`
	Forecast    []ForecastDay `json:"forecast" yaml:"forecast"`
}

type MarketData struct {
	Crop     string  `json:"crop" yaml:"crop"`
	Price    float64 `json:"price" yaml:"price"`
	Unit     string  `json:"unit" yaml:"unit"`
	Location string  `json:"location" yaml:"location"`
	Trend    string  `json:"trend" yaml:"trend"`
}

type SubsidyData struct {
	Program     string `json:"program" yaml:"program"`
	Description string `json:"description" yaml:"description"`
	Eligibility string `json:"eligibility" yaml:"eligibility"`
	Deadline    string `json:"deadline" yaml:"deadline"`
	Contact     string `json:"contact" yaml:"contact"`
}

type ExpertContact struct {
	Name                 string `json:"name" yaml:"name"`
	Contact              string `json:"contact" yaml:"contact"`
	ResponseTimeEstimate string `json:"responseTimeEstimate" yaml:"responseTimeEstimate"`
}

// Payload carries exactly one of the data shapes, selected by Kind.
type Payload struct {
	Kind      Kind           `json:"kind"`
	Weather   *WeatherData   `json:"weather,omitempty"`
	Market    []MarketData   `json:"market,omitempty"`
	Subsidies []SubsidyData  `json:"subsidies,omitempty"`
	Expert    *ExpertContact `json:"expert,omitempty"`
}

// Source is an external data provider. Implementations must honour ctx.
type Source interface {
	Weather(ctx context.Context, location string) (WeatherData, error)
	Market(ctx context.Context, location string) ([]MarketData, error)
	Subsidies(ctx context.Context, location string) ([]SubsidyData, error)
	Expert(ctx context.Context, location string) (ExpertContact, error)
}

// Data returns the payload's single data shape as-is: WeatherData,
// []MarketData, []SubsidyData or ExpertContact.
func (p *Payload) Data() any {
	if p == nil {
		return nil
	}
	switch p.Kind {
	case KindWeather:
		if p.Weather != nil {
			return *p.Weather
		}
	case KindMarket:
		return p.Market
	case KindSubsidy:
		return p.Subsidies
	case KindExpert:
		if p.Expert != nil {
			return *p.Expert
		}
	}
	return nil
}
