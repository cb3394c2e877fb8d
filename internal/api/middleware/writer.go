package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// routePattern returns the matched chi pattern, which keeps session ids out
// of span names and metric attributes. It falls back to the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// Route surfaces, used to group telemetry.
const (
	SurfaceWebhook  = "webhook"
	SurfaceSessions = "sessions"
	SurfaceOps      = "ops"
	SurfaceOther    = "other"
)

// Surface maps a route pattern to the API surface that serves it.
func Surface(route string) string {
	switch {
	case route == "/webhook":
		return SurfaceWebhook
	case strings.HasPrefix(route, "/v1/sessions/"):
		return SurfaceSessions
	case strings.HasPrefix(route, "/v1/ops/"):
		return SurfaceOps
	default:
		return SurfaceOther
	}
}
