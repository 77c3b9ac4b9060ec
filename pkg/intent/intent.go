// Package intent maps a farmer's message to one agricultural topic.
package intent

import "strings"

// Intent is the topic category of a message.
type Intent string

const (
	ExpertRequest Intent = "expert-request"
	Weather       Intent = "weather"
	Market        Intent = "market"
	Subsidy       Intent = "subsidy"
	Fertilizer    Intent = "fertilizer"
	Pest          Intent = "pest"
	Irrigation    Intent = "irrigation"
	Seed          Intent = "seed"
	Harvest       Intent = "harvest"
	Government    Intent = "government"
	Default       Intent = "default"
)

// All lists every intent in classification priority order; Default is last.
var All = []Intent{
	ExpertRequest, Weather, Market, Subsidy, Fertilizer,
	Pest, Irrigation, Seed, Harvest, Government, Default,
}

// Parse returns the intent named s, or Default when s is unknown.
func Parse(s string) Intent {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, in := range All {
		if string(in) == s {
			return in
		}
	}
	return Default
}

// CatalogKey is the response catalog key used when every remote provider
// fails, e.g. "chat_market_response".
func (i Intent) CatalogKey() string {
	return "chat_" + strings.ReplaceAll(string(i), "-", "_") + "_response"
}

// NeedsData reports whether the intent comes with a structured payload
// (forecast, price list, subsidy list or expert contact).
func (i Intent) NeedsData() bool {
	switch i {
	case Weather, Market, Subsidy, ExpertRequest:
		return true
	default:
		return false
	}
}

// Topic is a short English label used in provider prompts.
func (i Intent) Topic() string {
	switch i {
	case ExpertRequest:
		return "connecting the farmer with an agricultural extension officer"
	case Weather:
		return "weather and rainfall for farming"
	case Market:
		return "crop market prices"
	case Subsidy:
		return "farm input subsidies and support programmes"
	case Fertilizer:
		return "fertilizer and soil nutrition"
	case Pest:
		return "pests and crop diseases"
	case Irrigation:
		return "irrigation and water management"
	case Seed:
		return "seeds and planting"
	case Harvest:
		return "harvesting and post-harvest storage"
	case Government:
		return "government agricultural services"
	default:
		return "general farming advice"
	}
}
