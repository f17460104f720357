package provider

import (
	"context"

	"github.com/ricirt/community-digest/internal/domain"
)

// Enricher turns rendered item text into tags and a discussion summary.
// Mocking this interface in tests gives full control over the transform
// without making real HTTP calls.
//
// Errors wrapping domain.ErrUnusableEnrichment mean the service answered but
// the answer could not be used. Any other error means the call itself failed.
type Enricher interface {
	Enrich(ctx context.Context, renderedText string) (domain.Enrichment, error)
}

// EnricherFunc adapts a plain function to Enricher.
type EnricherFunc func(ctx context.Context, renderedText string) (domain.Enrichment, error)

func (f EnricherFunc) Enrich(ctx context.Context, renderedText string) (domain.Enrichment, error) {
	return f(ctx, renderedText)
}
