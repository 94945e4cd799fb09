package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type accessEntryKey struct{}

// accessEntry collects fields set further down the chain.
type accessEntry struct {
	userID string
}

// Logger writes one access log line per request: error level for 5xx, warn
// for 4xx, info otherwise. Successful requests to quiet paths, such as load
// balancer health checks, drop to debug.
func Logger(log zerolog.Logger, quiet ...string) func(http.Handler) http.Handler {
	quietPaths := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		quietPaths[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &accessEntry{userID: GetUserID(r.Context())}
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), accessEntryKey{}, entry)))

			level := zerolog.InfoLevel
			switch _, isQuiet := quietPaths[r.URL.Path]; {
			case rec.statusCode >= 500:
				level = zerolog.ErrorLevel
			case rec.statusCode >= 400:
				level = zerolog.WarnLevel
			case isQuiet:
				level = zerolog.DebugLevel
			}

			event := log.WithLevel(level).
				Str("request_id", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", routePattern(r)).
				Int("status", rec.statusCode).
				Int64("bytes", rec.written).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent())
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				event.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
			}
			if entry.userID != "" {
				event.Str("user_id", entry.userID)
			}
			event.Msg("request completed")
		})
	}
}
