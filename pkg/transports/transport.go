// Package transports defines the network boundary chat conversations are
// served over.
package transports

import "context"

// Transport owns its own network lifecycle. Start must not block.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// ReadyReporter allows transports to expose readiness metadata (e.g. listen
// addresses). Implementations are optional and used for informational
// logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
