package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/idot-digital/eventsource/internal/metrics"
)

// Metrics wraps an HTTP handler with Prometheus duration and status counters.
func Metrics(next http.HandlerFunc, operation string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w}
		next(rw, r)

		duration := time.Since(start).Seconds()
		metrics.EventOperationDuration.WithLabelValues(operation).Observe(duration)
		metrics.EventOperations.WithLabelValues(operation, fmt.Sprintf("%d", rw.statusCode)).Inc()
	}
}
