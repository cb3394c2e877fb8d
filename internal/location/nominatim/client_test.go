package nominatim_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/airvoice/internal/geo"
	"github.com/breatheroute/airvoice/internal/location/nominatim"
)

func newClient(t *testing.T, body string, status int) *nominatim.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return nominatim.NewClient(nominatim.ClientConfig{
		BaseURL:    server.URL,
		UserAgent:  "test-agent",
		HTTPClient: http.DefaultClient,
	})
}

func TestClient_PlaceName(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"city", `{"display_name":"Dam, Amsterdam, Netherlands","address":{"road":"Dam","city":"Amsterdam"}}`, "Amsterdam"},
		{"town before village", `{"address":{"town":"Zandvoort","village":"Bentveld"}}`, "Zandvoort"},
		{"village", `{"address":{"village":"Giethoorn","state":"Overijssel"}}`, "Giethoorn"},
		{"display name fallback", `{"display_name":"Noordzee, Nederland","address":{}}`, "Noordzee"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, tt.body, http.StatusOK)

			name, err := client.PlaceName(context.Background(), geo.Coordinate{Lat: 52.37, Lon: 4.89})
			require.NoError(t, err)
			assert.Equal(t, tt.want, name)
		})
	}
}

func TestClient_PlaceNameFailures(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"unable to geocode", `{"error":"Unable to geocode"}`, http.StatusOK},
		{"empty", `{}`, http.StatusOK},
		{"server error", `oops`, http.StatusInternalServerError},
		{"malformed", `{"address":`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, tt.body, tt.status)

			name, err := client.PlaceName(context.Background(), geo.Coordinate{Lat: 10, Lon: 10})
			assert.Error(t, err)
			assert.Empty(t, name)
		})
	}
}

func TestClient_EmptyResponseIsErrNoPlace(t *testing.T) {
	client := newClient(t, `{"address":{}}`, http.StatusOK)

	_, err := client.PlaceName(context.Background(), geo.Coordinate{Lat: 10, Lon: 10})
	assert.ErrorIs(t, err, nominatim.ErrNoPlace)
}
