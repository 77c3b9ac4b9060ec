package chain

import (
	"context"

	"github.com/harunnryd/agrichat/pkg/catalog"
	"github.com/harunnryd/agrichat/pkg/intent"
)

// catalogProvider is the terminal link. It is deterministic and local.
type catalogProvider struct {
	catalog *catalog.Catalog
}

func (p *catalogProvider) lookup(in intent.Intent, lang string) string {
	return p.catalog.Lookup(in.CatalogKey(), lang)
}

// Fallback answers from the catalog alone, for callers that must reply
// without running any remote provider.
func (c *Chain) Fallback(_ context.Context, in intent.Intent, lang string) Result {
	return Result{
		Text:     c.fallback.lookup(in, lang),
		Provider: FallbackName,
		Attempts: []Attempt{{Provider: FallbackName, Outcome: "ok"}},
	}
}
