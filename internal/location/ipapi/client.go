// Package ipapi provides an IP geolocation client for the ip-api.com JSON API.
package ipapi

import (
	"context"
	"encoding/json"
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
	ProviderName = "ipapi"

	// DefaultBaseURL is the ip-api.com JSON endpoint.
	DefaultBaseURL = "http://ip-api.com/json"

	// DefaultTimeout bounds a lookup.
	DefaultTimeout = 2500 * time.Millisecond
)

const fields = "status,message,lat,lon,city,regionName,country"

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the ip-api client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient HTTPDoer

	// Timeout is the request timeout (default: 2.5s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry
}

// Client looks up approximate locations by IP.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
}

var _ location.IPLocator = (*Client)(nil)

// NewClient creates a new ip-api client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
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
		httpClient: httpClient,
	}
}

type lookupResponse struct {
	Status     string   `json:"status"`
	Message    string   `json:"message"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	City       string   `json:"city"`
	RegionName string   `json:"regionName"`
	Country    string   `json:"country"`
}

// Locate estimates the location of ip. An empty ip locates the caller.
func (c *Client) Locate(ctx context.Context, ip string) (*location.Estimate, error) {
	endpoint := c.baseURL
	if ip != "" {
		endpoint += "/" + url.PathEscape(ip)
	}
	endpoint += "?fields=" + fields

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ip lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from ip lookup", resp.StatusCode)
	}

	var result lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode ip lookup response: %w", err)
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("ip lookup failed: %s", result.Message)
	}
	// Absent fields are a failure, not null island
	if result.Lat == nil || result.Lon == nil {
		return nil, fmt.Errorf("ip lookup response missing coordinates")
	}

	return &location.Estimate{
		Coordinate: geo.Coordinate{Lat: *result.Lat, Lon: *result.Lon},
		PlaceName:  placeName(result),
	}, nil
}

func placeName(r lookupResponse) string {
	switch {
	case r.City != "" && r.Country != "":
		return r.City + ", " + r.Country
	case r.City != "":
		return r.City
	case r.RegionName != "":
		return r.RegionName
	default:
		return r.Country
	}
}
