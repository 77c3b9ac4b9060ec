package metrics

import "time"

// Event names emitted by the chat core.
const (
	EventProviderAttempt = "provider_attempt"
	EventProviderSkipped = "provider_skipped"

	EventBreakerOpen   = "breaker_open"
	EventBreakerClose  = "breaker_close"
	EventBreakerDenied = "breaker_denied"

	EventDetectionAmbiguous = "detection_ambiguous"
	EventCatalogMissingKey  = "catalog_missing_key"
	EventFetchFailed        = "fetch_failed"
	EventExpertPaged        = "expert_paged"

	EventTurnRendered = "turn_rendered"
	EventTurnDropped  = "turn_dropped"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Multi fans every event out to each non-nil observer in order.
type Multi []Observer

func (m Multi) RecordEvent(ev MetricsEvent) {
	for _, o := range m {
		if o != nil {
			o.RecordEvent(ev)
		}
	}
}

// OrNoop returns obs, or a NoopObserver when obs is nil.
func OrNoop(obs Observer) Observer {
	if obs == nil {
		return NoopObserver{}
	}
	return obs
}
