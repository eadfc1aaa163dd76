package middleware

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Tracing instruments handlers with the chi route pattern as the span name,
// keeping span cardinality bounded. The active trace id is echoed back in a
// response header so clients can cite it when reporting a failed sync.
func Tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rctx := chi.RouteContext(r.Context())
			var operation string
			if rctx != nil && rctx.RoutePattern() != "" {
				operation = fmt.Sprintf("%s %s", r.Method, rctx.RoutePattern())
			} else {
				operation = fmt.Sprintf("%s %s", r.Method, r.URL.Path)
			}
			traced := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
					w.Header().Set("X-Trace-Id", sc.TraceID().String())
				}
				next.ServeHTTP(w, r)
			})
			otelhttp.NewHandler(traced, operation).ServeHTTP(w, r)
		})
	}
}
