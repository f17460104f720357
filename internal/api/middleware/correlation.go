package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// CorrelationHeader carries the request's trace id in both directions.
const CorrelationHeader = "X-Correlation-ID"

const maxCorrelationIDLen = 128

// CorrelationID reuses a caller-supplied X-Correlation-ID or generates a UUID,
// stores it on the request context and echoes it on the response. Oversized
// ids are replaced so they cannot bloat log lines.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" || len(id) > maxCorrelationIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, id)
		ctx := context.WithValue(r.Context(), correlationIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCorrelationID retrieves the correlation ID stored by the middleware.
// Returns an empty string if the middleware was not applied.
func GetCorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}
