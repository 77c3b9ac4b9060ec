package agrodata

import (
	"context"
	"errors"
	"fmt"

	"github.com/harunnryd/agrichat/pkg/errorsx"
	"github.com/harunnryd/agrichat/pkg/intent"
)

// KindFor maps an intent to the data it is shown with. ok is false for
// intents that carry no payload.
func KindFor(in intent.Intent) (Kind, bool) {
	switch in {
	case intent.Weather:
		return KindWeather, true
	case intent.Market:
		return KindMarket, true
	case intent.Subsidy:
		return KindSubsidy, true
	case intent.ExpertRequest:
		return KindExpert, true
	default:
		return "", false
	}
}

// Fetch loads the payload for in at location. It returns (nil, nil) when the
// intent has no payload. Errors carry errorsx.ReasonFetchFailed.
func Fetch(ctx context.Context, src Source, in intent.Intent, location string) (*Payload, error) {
	kind, ok := KindFor(in)
	if !ok {
		return nil, nil
	}
	if src == nil {
		return nil, errorsx.New(errorsx.ReasonFetchFailed, "agrodata: no source configured")
	}
	p := &Payload{Kind: kind}
	var err error
	switch kind {
	case KindWeather:
		var w WeatherData
		w, err = src.Weather(ctx, location)
		p.Weather = &w
	case KindMarket:
		p.Market, err = src.Market(ctx, location)
	case KindSubsidy:
		p.Subsidies, err = src.Subsidies(ctx, location)
	case KindExpert:
		var e ExpertContact
		e, err = src.Expert(ctx, location)
		p.Expert = &e
	}
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("fetch %s for %q: %w", kind, location, err), errorsx.ReasonFetchFailed)
	}
	return p, nil
}

// IsNotFound reports whether err means the source had no data.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
