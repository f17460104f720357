package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidCommunities    = errors.New("communities must contain 1 to 10 non-empty names")
	ErrInvalidTimeWindow     = errors.New("time window must be between 1 and 168 hours")
	ErrMalformedEnvelope     = errors.New("malformed envelope")
	ErrUnsupportedVersion    = errors.New("unsupported envelope schema version")
	ErrUnusableEnrichment    = errors.New("enrichment output is not usable")
	ErrEnrichmentUnavailable = errors.New("enrichment service unavailable")
	ErrBrokerUnavailable     = errors.New("message broker unavailable")
)
