// Package astro is a thin typed client for the external astrology
// computation API. All chart math (ephemeris, house systems, aspects) is
// delegated to that service; this package only shapes requests and decodes
// responses.
package astro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ChartRequest describes the moment and place a natal chart is cast for.
type ChartRequest struct {
	Datetime  time.Time `json:"datetime"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`

	// HouseSystem selects the house division method, e.g. "placidus".
	// Empty uses the API's default.
	HouseSystem string `json:"houseSystem,omitempty"`
}

// Placement is one body's computed position.
type Placement struct {
	Body   string  `json:"body"`
	Sign   string  `json:"sign"`
	Degree float64 `json:"degree"`
	House  int     `json:"house"`
}

// Chart is the computed natal chart.
type Chart struct {
	Placements []Placement `json:"placements"`
	Houses     []float64   `json:"houses"`
	Ascendant  float64     `json:"ascendant"`
	Midheaven  float64     `json:"midheaven"`
}

// Client calls the astrology API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the astrology API at baseURL,
// authenticating with apiKey.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client and returns c.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// NatalChart computes the natal chart for the given moment and place.
func (c *Client) NatalChart(ctx context.Context, req ChartRequest) (Chart, error) {
	var chart Chart

	encoded, err := json.Marshal(req)
	if err != nil {
		return chart, fmt.Errorf("astro: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/natal-chart", bytes.NewReader(encoded))
	if err != nil {
		return chart, fmt.Errorf("astro: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return chart, fmt.Errorf("astro: natal chart: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return chart, fmt.Errorf("astro: natal chart: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return chart, fmt.Errorf("astro: decode chart: %w", err)
	}
	return chart, nil
}
