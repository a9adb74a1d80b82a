package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

const tracingOperation = "http.request"

// Tracing starts a server span per request, named "METHOD /route/{pattern}"
// once chi has matched the route. otelhttp only renames the span itself when
// r.Pattern reached its copy of the request, which middleware that clones the
// request (Timeout) prevents, so the handler renames it as well.
func Tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			trace.SpanFromContext(r.Context()).SetName(spanName(tracingOperation, r))
		})
		return otelhttp.NewHandler(named, tracingOperation, otelhttp.WithSpanNameFormatter(spanName))
	}
}

func spanName(operation string, r *http.Request) string {
	if p := routePattern(r); p != "unmatched" {
		return r.Method + " " + p
	}
	return operation
}
