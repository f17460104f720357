package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/ricirt/community-digest/internal/domain"
)

// BreakerConfig controls when the enrichment circuit opens.
type BreakerConfig struct {
	// Consecutive call failures that open the circuit.
	FailureThreshold uint32
	// How long the circuit stays open before a trial call.
	OpenTimeout time.Duration
}

// BreakerEnricher fails fast with domain.ErrEnrichmentUnavailable while the
// wrapped enricher is failing. An unusable answer does not count as a failure:
// the service responded.
type BreakerEnricher struct {
	next Enricher
	cb   *gobreaker.CircuitBreaker[domain.Enrichment]
}

func NewBreakerEnricher(next Enricher, cfg BreakerConfig, logger *zap.Logger) *BreakerEnricher {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        "enrichment",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrUnusableEnrichment) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &BreakerEnricher{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[domain.Enrichment](settings),
	}
}

func (b *BreakerEnricher) Enrich(ctx context.Context, renderedText string) (domain.Enrichment, error) {
	enr, err := b.cb.Execute(func() (domain.Enrichment, error) {
		return b.next.Enrich(ctx, renderedText)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.Enrichment{}, fmt.Errorf("%w: %v", domain.ErrEnrichmentUnavailable, err)
	}
	return enr, err
}

// State reports the breaker state for logging and health output.
func (b *BreakerEnricher) State() string {
	return b.cb.State().String()
}

var _ Enricher = (*BreakerEnricher)(nil)
