package ratelimiter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Upstream names an external API that is called at a bounded rate.
type Upstream string

const (
	UpstreamSource     Upstream = "source"
	UpstreamEnrichment Upstream = "enrichment"
)

// Limiters holds one token bucket limiter per upstream API.
// Burst equals the rate so no saved-up burst above the per-second maximum is allowed.
type Limiters struct {
	limiters map[Upstream]*rate.Limiter
}

// New creates a Limiters with the given tokens per second for each upstream.
// A rate of zero or less leaves that upstream unthrottled.
func New(perSec map[Upstream]float64) *Limiters {
	l := &Limiters{limiters: make(map[Upstream]*rate.Limiter, len(perSec))}
	for name, r := range perSec {
		if r <= 0 {
			l.limiters[name] = rate.NewLimiter(rate.Inf, 0)
			continue
		}
		burst := int(r)
		if burst < 1 {
			burst = 1
		}
		l.limiters[name] = rate.NewLimiter(rate.Limit(r), burst)
	}
	return l
}

// Wait blocks until the upstream's limiter grants a token.
// Returns a non-nil error if ctx is cancelled while waiting or the upstream is unknown.
func (l *Limiters) Wait(ctx context.Context, u Upstream) error {
	lim, ok := l.limiters[u]
	if !ok {
		return fmt.Errorf("no rate limiter for upstream %q", u)
	}
	return lim.Wait(ctx)
}
