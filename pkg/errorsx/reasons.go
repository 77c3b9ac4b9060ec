package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// Detection never fails; an input with no lexicon signal is recorded
	// with this reason and resolved to the default language.
	ReasonDetectionAmbiguous ReasonCode = "detection_ambiguous"

	ReasonProviderTimeout     ReasonCode = "provider_timeout"
	ReasonProviderUnavailable ReasonCode = "provider_unavailable"
	ReasonProviderMalformed   ReasonCode = "provider_malformed"
	ReasonProviderSkipped     ReasonCode = "provider_skipped"
	// The caller gave up on the attempt, usually a conversation teardown.
	ReasonProviderCancelled ReasonCode = "provider_cancelled"

	ReasonCatalogMissingKey ReasonCode = "catalog_missing_key"

	ReasonConversationTornDown ReasonCode = "conversation_torn_down"

	ReasonFetchFailed  ReasonCode = "fetch_failed"
	ReasonNotifyFailed ReasonCode = "notify_failed"

	ReasonTransportSend ReasonCode = "transport_send"
)
