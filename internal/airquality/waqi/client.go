// Package waqi provides a client for the World Air Quality Index feed API.
package waqi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/breatheroute/airvoice/internal/airquality"
	"github.com/breatheroute/airvoice/internal/geo"
	"github.com/breatheroute/airvoice/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the WAQI API.
	DefaultBaseURL = "https://api.waqi.info"

	// ProviderName identifies this provider.
	ProviderName = "waqi"

	// DefaultTimeout bounds a single feed request.
	DefaultTimeout = 4 * time.Second
)

// ClientConfig holds configuration for the WAQI client.
type ClientConfig struct {
	// Token is the WAQI API token (required).
	Token string

	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use.
	// If nil, a single-attempt resilient client is created.
	HTTPClient HTTPDoer

	// Timeout for a feed request (default: 4s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a WAQI API client. It implements airquality.Fetcher.
type Client struct {
	token      string
	baseURL    string
	httpClient HTTPDoer
	timeout    time.Duration
	now        func() time.Time
}

var _ airquality.Fetcher = (*Client)(nil)

// NewClient creates a new WAQI client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.ProviderClientConfig(ProviderName, timeout)
		clientCfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(clientCfg)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		token:      cfg.Token,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		timeout:    timeout,
		now:        now,
	}
}

// API response types.

type feedResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type feedData struct {
	AQI  json.RawMessage `json:"aqi"`
	City *feedCity       `json:"city"`
}

type feedCity struct {
	Name string    `json:"name"`
	Geo  []float64 `json:"geo"`
}

// Fetch retrieves the nearest station's AQI for coord.
func (c *Client) Fetch(ctx context.Context, coord geo.Coordinate) (*airquality.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/feed/geo:%f;%f/?token=%s",
		c.baseURL, coord.Lat, coord.Lon, url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, c.providerError("create request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if resilience.IsTimeout(ctx, err) {
			return nil, &airquality.TimeoutError{Provider: ProviderName, Timeout: c.timeout, Err: err}
		}
		return nil, c.providerError("fetch feed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.providerError(fmt.Sprintf("unexpected status %d from feed endpoint", resp.StatusCode), nil)
	}

	var result feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if resilience.IsTimeout(ctx, err) {
			return nil, &airquality.TimeoutError{Provider: ProviderName, Timeout: c.timeout, Err: err}
		}
		return nil, c.providerError("decode feed response", err)
	}

	return c.toReading(coord, &result)
}

// toReading validates the feed payload and converts it to a Reading.
func (c *Client) toReading(query geo.Coordinate, result *feedResponse) (*airquality.Reading, error) {
	if result.Status != "ok" {
		reason := "status " + result.Status
		var msg string
		if json.Unmarshal(result.Data, &msg) == nil && msg != "" {
			reason += ": " + msg
		}
		return nil, c.providerError(reason, nil)
	}

	var data feedData
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return nil, c.providerError("malformed data", err)
	}

	// WAQI reports "-" when a station has no current value
	var index *float64
	if len(data.AQI) == 0 || json.Unmarshal(data.AQI, &index) != nil || index == nil {
		return nil, c.providerError("missing or non-numeric aqi", nil)
	}
	if *index < 0 {
		return nil, c.providerError(fmt.Sprintf("negative aqi %v", *index), nil)
	}

	if data.City == nil || len(data.City.Geo) != 2 {
		return nil, c.providerError("missing station geo", nil)
	}
	station := geo.Coordinate{Lat: data.City.Geo[0], Lon: data.City.Geo[1]}

	return &airquality.Reading{
		Index:          int(*index + 0.5),
		StationName:    data.City.Name,
		Station:        station,
		Query:          query,
		DistanceMeters: geo.Distance(query, station),
		FetchedAt:      c.now(),
		Provider:       ProviderName,
	}, nil
}

func (c *Client) providerError(reason string, err error) error {
	return &airquality.ProviderError{Provider: ProviderName, Reason: reason, Err: err}
}
