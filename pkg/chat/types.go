// Package chat runs farmer chat turns: language detection, topic
// classification, reply generation and structured data, one conversation at
// a time in submission order.
package chat

import (
	"time"

	"github.com/harunnryd/agrichat/pkg/agrodata"
	"github.com/harunnryd/agrichat/pkg/chain"
	"github.com/harunnryd/agrichat/pkg/intent"
	"github.com/harunnryd/agrichat/pkg/language"
)

// Input is one farmer submission.
type Input struct {
	Text string `json:"text"`
	// LanguageHint overrides detection when it names a supported language.
	LanguageHint string `json:"languageHint,omitempty"`
	// TranscriptConfidence is the speech recogniser's confidence in (0,1],
	// for voice input. It scales the reported language confidence.
	TranscriptConfidence *float64 `json:"transcriptConfidence,omitempty"`
	Location             string   `json:"location,omitempty"`
}

// Output is the rendered turn.
type Output struct {
	TurnID           string        `json:"turnId"`
	ResponseText     string        `json:"responseText"`
	DetectedLanguage string        `json:"detectedLanguage"`
	Confidence       float64       `json:"confidence"`
	Intent           intent.Intent `json:"intent"`
	Provider         string        `json:"provider"`
	PayloadKind      agrodata.Kind `json:"payloadKind,omitempty"`
	// StructuredPayload is WeatherData, []MarketData, []SubsidyData or
	// ExpertContact, as returned by the data source.
	StructuredPayload any    `json:"structuredPayload,omitempty"`
	Notice            string `json:"notice,omitempty"`
}

// Turn is the working record of one submission. It is discarded after
// rendering.
type Turn struct {
	ID         string
	Input      Input
	Detection  language.Detection
	Intent     intent.Intent
	Result     chain.Result
	Payload    *agrodata.Payload
	Paged      bool
	StartedAt  time.Time
	RenderedAt time.Time
}

// Render packages t for the caller.
func (t *Turn) Render() Output {
	out := Output{
		TurnID:           t.ID,
		ResponseText:     t.Result.Text,
		DetectedLanguage: t.Detection.Language,
		Confidence:       t.Detection.Confidence,
		Intent:           t.Intent,
		Provider:         t.Result.Provider,
	}
	if t.Payload != nil {
		out.PayloadKind = t.Payload.Kind
		out.StructuredPayload = t.Payload.Data()
	}
	return out
}
