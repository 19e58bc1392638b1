package subjects

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orrery-dev/orrery/pkg/query"
)

// APIError is a structured failure returned by the subjects backend. Its
// message is human-readable and is what the UI surfaces verbatim.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Status is the HTTP status the error arrived with.
	Status int `json:"-"`
}

// Error returns the server-provided message.
func (e *APIError) Error() string { return e.Message }

// errorEnvelope is the backend's error response shape.
type errorEnvelope struct {
	Error APIError `json:"error"`
}

// Client is a thin typed client for the subjects backend. It satisfies the
// mutation coordinator's Remote contract.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the request timeout on the underlying client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithAPIKey sends the key as a bearer token on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// NewClient creates a subjects client for the backend at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create persists a new subject and returns the server copy, including the
// server-assigned id.
func (c *Client) Create(ctx context.Context, payload CreatePayload) (Subject, error) {
	var created Subject
	err := c.do(ctx, http.MethodPost, "/api/subjects", payload, &created)
	return created, err
}

// Update applies a partial update and returns the updated server copy.
// Updating an unknown id fails with the backend's not-found error.
func (c *Client) Update(ctx context.Context, id string, patch Patch) (Subject, error) {
	var updated Subject
	err := c.do(ctx, http.MethodPatch, "/api/subjects/"+url.PathEscape(id), patch, &updated)
	return updated, err
}

// Delete removes a subject and returns the deleted id.
func (c *Client) Delete(ctx context.Context, id string) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/subjects/"+url.PathEscape(id), nil, &result)
	return result.ID, err
}

// Get fetches a single subject by id.
func (c *Client) Get(ctx context.Context, id string) (Subject, error) {
	var s Subject
	err := c.do(ctx, http.MethodGet, "/api/subjects/"+url.PathEscape(id), nil, &s)
	return s, err
}

// List fetches the subjects matching filter, newest first.
func (c *Client) List(ctx context.Context, filter Filter) ([]Subject, error) {
	path := "/api/subjects"
	if params := filter.params(); params != nil {
		values := make(url.Values, len(params))
		for name, value := range params {
			values.Set(name, value)
		}
		path += "?" + values.Encode()
	}

	var list []Subject
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Fetcher adapts the client's List to the query store's fetcher contract,
// reconstructing the filter from the cache key.
func (c *Client) Fetcher() query.Fetcher[Subject] {
	return func(ctx context.Context, key query.Key) ([]Subject, error) {
		return c.List(ctx, FilterFromKey(key))
	}
}

// do executes one JSON request/response round trip. Non-2xx responses are
// decoded into *APIError so the server's message reaches the caller.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("subjects: encode request: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("subjects: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("subjects: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("subjects: decode response: %w", err)
	}
	return nil
}

// decodeAPIError extracts the backend's structured error, falling back to a
// generic message when the body is not the expected envelope.
func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr := envelope.Error
		apiErr.Status = resp.StatusCode
		return &apiErr
	}

	return &APIError{
		Code:    "unexpected_status",
		Message: fmt.Sprintf("subjects API returned status %d", resp.StatusCode),
		Status:  resp.StatusCode,
	}
}
