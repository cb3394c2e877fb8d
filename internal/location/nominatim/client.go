// Package nominatim provides a reverse geocoder backed by OpenStreetMap Nominatim.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/breatheroute/airvoice/internal/geo"
	"github.com/breatheroute/airvoice/internal/location"
	"github.com/breatheroute/airvoice/internal/provider/resilience"
)

const (
	// ProviderName identifies this provider.
	ProviderName = "nominatim"

	// DefaultBaseURL is the public Nominatim instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// DefaultTimeout bounds a reverse lookup.
	DefaultTimeout = 2 * time.Second

	// DefaultUserAgent identifies us as the Nominatim usage policy requires.
	DefaultUserAgent = "airvoice/1.0"
)

// ErrNoPlace is returned when the response carries no usable name.
var ErrNoPlace = errors.New("no place name in reverse geocoding response")

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Nominatim client.
type ClientConfig struct {
	BaseURL    string
	UserAgent  string
	Language   string
	HTTPClient HTTPDoer
	Timeout    time.Duration
	Registry   *resilience.Registry
}

// Client reverse-geocodes coordinates.
type Client struct {
	baseURL    string
	userAgent  string
	language   string
	httpClient HTTPDoer
}

var _ location.ReverseGeocoder = (*Client)(nil)

// NewClient creates a new Nominatim client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		clientCfg := resilience.ProviderClientConfig(ProviderName, timeout)
		clientCfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userAgent:  userAgent,
		language:   cfg.Language,
		httpClient: httpClient,
	}
}

type reverseResponse struct {
	Error       string         `json:"error"`
	DisplayName string         `json:"display_name"`
	Address     map[string]any `json:"address"`
}

// addressKeys are tried in order, most specific settlement first.
var addressKeys = []string{"city", "town", "village", "suburb", "municipality", "county", "state"}

// PlaceName returns a short human-readable name for coord.
func (c *Client) PlaceName(ctx context.Context, coord geo.Coordinate) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", fmt.Sprintf("%f", coord.Lat))
	q.Set("lon", fmt.Sprintf("%f", coord.Lon))
	q.Set("zoom", "14")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from reverse endpoint", resp.StatusCode)
	}

	var result reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode reverse response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("reverse geocode: %s", result.Error)
	}

	for _, key := range addressKeys {
		if name, ok := result.Address[key].(string); ok && name != "" {
			return name, nil
		}
	}

	if first, _, _ := strings.Cut(result.DisplayName, ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first), nil
	}
	return "", ErrNoPlace
}
