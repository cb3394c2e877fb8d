// Package webhook renders text on the host display through its HTTP API.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/breatheroute/airvoice/internal/host"
	"github.com/breatheroute/airvoice/internal/provider/resilience"
)

// ProviderName identifies the display endpoint in the provider registry.
const ProviderName = "host-display"

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DisplayConfig holds configuration for the display client.
type DisplayConfig struct {
	// URL is the host's display endpoint (required).
	URL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient HTTPDoer

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry
}

// DisplayClient posts text walls to the host.
type DisplayClient struct {
	url        string
	apiKey     string
	httpClient HTTPDoer
}

var _ host.Display = (*DisplayClient)(nil)

// NewDisplayClient creates a display client. Unlike third-party providers,
// the host endpoint is retried on transient failures.
func NewDisplayClient(cfg DisplayConfig) *DisplayClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = 2 * time.Second
		clientCfg.MaxRetries = 2
		clientCfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(clientCfg)
	}
	return &DisplayClient{
		url:        strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

type layout struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type displayRequest struct {
	SessionID  string `json:"sessionId"`
	View       string `json:"view"`
	Layout     layout `json:"layout"`
	DurationMs int64  `json:"durationMs"`
}

// ShowText renders text on the session's main view for duration.
func (c *DisplayClient) ShowText(ctx context.Context, sessionID, text string, duration time.Duration) error {
	body, err := json.Marshal(displayRequest{
		SessionID:  sessionID,
		View:       "main",
		Layout:     layout{Type: "text_wall", Text: text},
		DurationMs: duration.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("encode display request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post display: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("display endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
