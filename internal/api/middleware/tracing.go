package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/saferoute/saferoute/internal/api/middleware"

// Tracing starts a server span per request, continuing any W3C trace context
// sent by the caller. The span is named after the chi route pattern once
// routing has run, and is marked as an error for 5xx responses.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	name := serviceName
	if name == "" {
		name = tracerName
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			attrs := []attribute.KeyValue{
				attribute.String("http.request.method", r.Method),
				attribute.String("url.scheme", scheme(r)),
				attribute.String("url.path", r.URL.Path),
				attribute.String("server.address", r.Host),
				attribute.String("user_agent.original", r.UserAgent()),
			}
			if r.URL.RawQuery != "" {
				attrs = append(attrs, attribute.String("url.query", r.URL.RawQuery))
			}
			if r.ContentLength > 0 {
				attrs = append(attrs, attribute.Int64("http.request.body.size", r.ContentLength))
			}
			if id := GetRequestID(ctx); id != "" {
				attrs = append(attrs, attribute.String("request.id", id))
			}

			ctx, span := otel.Tracer(name).Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			rec := newStatusRecorder(w)
			traced := r.WithContext(ctx)
			next.ServeHTTP(rec, traced)

			route := routePattern(traced)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", rec.statusCode),
				attribute.Int64("http.response.body.size", rec.written),
			)
			if rec.statusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.statusCode))
			}
		})
	}
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}
