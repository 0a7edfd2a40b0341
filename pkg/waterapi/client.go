// Package waterapi is the HTTP client of the hardwater data API, shared by the
// analytics service, the dashboard and the reading generator.
package waterapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"procodus.dev/hardwater/pkg/water"
)

// DefaultTimeout bounds every request made by a Client.
const DefaultTimeout = 10 * time.Second

// Observer is told about every finished request. status is "success",
// "empty" or "error".
type Observer func(endpoint, status string, elapsed time.Duration)

// Config holds the configuration for the Client.
type Config struct {
	Logger *slog.Logger

	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client
	Observer   Observer

	// BaseURL of the data API, e.g. http://127.0.0.1:5000.
	BaseURL string

	// Secret is sent as a bearer token on ingest calls.
	Secret string

	// Timeout applies when HTTPClient is nil. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Client talks to the data API.
type Client struct {
	logger   *slog.Logger
	http     *http.Client
	observer Observer
	baseURL  string
	secret   string
}

// History is the decoded /get_history response.
type History struct {
	Area        string                  `json:"area"`
	Data        []water.EnrichedReading `json:"data"`
	RecordCount int                     `json:"record_count"`
}

// IngestResult is the decoded /ingest response.
type IngestResult struct {
	Message   string          `json:"message"`
	Timestamp water.Timestamp `json:"timestamp"`
	Area      string          `json:"area"`
	Key       string          `json:"key"`
}

// New creates a new Client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("waterapi config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid data API URL %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	observer := cfg.Observer
	if observer == nil {
		observer = func(string, string, time.Duration) {}
	}

	return &Client{
		logger:   cfg.Logger,
		http:     httpClient,
		observer: observer,
		baseURL:  base.String(),
		secret:   cfg.Secret,
	}, nil
}

// BaseURL returns the normalized data API URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Areas lists the display names of monitored areas.
func (c *Client) Areas(ctx context.Context) ([]string, error) {
	var out struct {
		Areas []string `json:"areas"`
	}
	if err := c.get(ctx, "/get_areas", nil, &out); err != nil {
		return nil, err
	}
	if out.Areas == nil {
		out.Areas = []string{}
	}
	return out.Areas, nil
}

// Latest returns the newest enriched reading per area. A "no data" answer
// yields an empty map.
func (c *Client) Latest(ctx context.Context) (map[string]water.EnrichedReading, error) {
	var raw map[string]json.RawMessage
	if err := c.get(ctx, "/get_latest", nil, &raw); err != nil {
		return nil, err
	}

	latest := make(map[string]water.EnrichedReading, len(raw))
	if msg, ok := raw["message"]; ok && len(msg) > 0 && msg[0] == '"' {
		return latest, nil
	}

	for area, body := range raw {
		var r water.EnrichedReading
		if err := json.Unmarshal(body, &r); err != nil {
			c.logger.Warn("skipping undecodable latest reading", "area", area, "error", err)
			continue
		}
		latest[area] = r
	}
	return latest, nil
}

// History fetches up to limit readings of area, oldest first.
func (c *Client) History(ctx context.Context, area string, limit int) (History, error) {
	params := url.Values{"area": {area}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var out History
	if err := c.get(ctx, "/get_history", params, &out); err != nil {
		return History{}, err
	}
	return out, nil
}

// Ingest posts one reading with the configured bearer secret.
func (c *Client) Ingest(ctx context.Context, r water.Reading) (IngestResult, error) {
	body, err := json.Marshal(IngestPayload(r))
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to encode reading: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ingest", bytes.NewReader(body))
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	var out IngestResult
	if err := c.do(req, "/ingest", &out); err != nil {
		return IngestResult{}, err
	}
	return out, nil
}

// IngestPayload flattens a reading into the wire form expected by /ingest.
func IngestPayload(r water.Reading) map[string]any {
	payload := make(map[string]any, len(water.RequiredFields)+len(r.Extra))
	for k, v := range r.Extra {
		payload[k] = v
	}
	payload["area"] = r.Area
	payload["TDS"] = r.TDS
	payload["Ca"] = r.Ca
	payload["Mg"] = r.Mg
	payload["pH"] = r.PH
	payload["turbidity"] = r.Turbidity
	payload["chlorine"] = r.Chlorine
	return payload
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	target := c.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, endpoint, out)
}

func (c *Client) do(req *http.Request, endpoint string, out any) error {
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		c.observer(endpoint, "error", time.Since(start))
		return fmt.Errorf("%w: %s %s: %w", water.ErrUpstreamUnavailable, req.Method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		c.observer(endpoint, "error", time.Since(start))
		return fmt.Errorf("%w: read %s: %w", water.ErrUpstreamUnavailable, endpoint, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		status := "error"
		if resp.StatusCode == http.StatusNotFound {
			status = "empty"
		}
		c.observer(endpoint, status, time.Since(start))
		return statusError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.observer(endpoint, "error", time.Since(start))
		return fmt.Errorf("%w: decode %s: %w", water.ErrUpstreamUnavailable, endpoint, err)
	}

	c.observer(endpoint, "success", time.Since(start))
	return nil
}

func statusError(code int, body []byte) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)

	msg := payload.Error
	if msg == "" {
		msg = payload.Message
	}
	if msg == "" {
		msg = http.StatusText(code)
	}

	switch {
	case code == http.StatusUnauthorized:
		return water.Errorf(water.ErrAuthentication, "%s", msg)
	case code == http.StatusNotFound:
		return water.Errorf(water.ErrNotFound, "%s", msg)
	case code < http.StatusInternalServerError:
		return water.Errorf(water.ErrValidation, "%s", msg)
	default:
		return water.Errorf(water.ErrUpstreamUnavailable, "data API answered %d: %s", code, msg)
	}
}
