package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/airvoice/internal/api/middleware"
)

func TestMetrics_MiddlewarePassesThrough(t *testing.T) {
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"ok", http.StatusOK, "OK"},
		{"accepted", http.StatusAccepted, ""},
		{"bad request", http.StatusBadRequest, `{"title":"Validation error"}`},
		{"server error", http.StatusInternalServerError, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", http.NoBody))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.body, w.Body.String())
		})
	}
}

func TestMetrics_DefaultStatusCode(t *testing.T) {
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("response"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSurface(t *testing.T) {
	tests := []struct {
		route string
		want  string
	}{
		{"/webhook", middleware.SurfaceWebhook},
		{"/v1/sessions/{sessionId}/transcriptions", middleware.SurfaceSessions},
		{"/v1/sessions/{sessionId}/", middleware.SurfaceSessions},
		{"/v1/ops/health", middleware.SurfaceOps},
		{"/favicon.ico", middleware.SurfaceOther},
		{"/webhooks", middleware.SurfaceOther},
	}

	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			assert.Equal(t, tt.want, middleware.Surface(tt.route))
		})
	}
}
