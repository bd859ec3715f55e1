package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/udplabs/omnikey/pkg/telemetry"
)

const (
	fetchPath  = "/identity/get"
	createPath = "/identity/create"

	// notAssigned is the remote convention for "no identity yet".
	notAssigned = "0"

	// maxErrorBody bounds how much of an error response is copied into
	// error messages and logs.
	maxErrorBody = 512
)

// Client talks to the UDP identity endpoints. It is safe for concurrent
// use; per-call deadlines come from the caller's context.
type Client struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *telemetry.Metrics
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHeaders sets headers applied verbatim to every request, on top of
// Content-Type.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClientLogger sets the logger used for request diagnostics.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClientMetrics enables per-request Prometheus metrics.
func WithClientMetrics(metrics *telemetry.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// NewClient creates a client for the identity service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch asks the identity service for the omnikey assigned to the wallet
// address. ok is false when the service answered but no identity is
// assigned yet (sentinel "0", empty, or absent data field).
func (c *Client) Fetch(ctx context.Context, walletAddress string) (id string, ok bool, err error) {
	resp, err := c.post(ctx, fetchPath, walletAddress)
	if err != nil {
		return "", false, err
	}
	defer c.closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", false, c.statusError(fetchPath, resp)
	}

	// data is a pointer so a JSON null and a missing field both decode to
	// nil and normalize into the same not-assigned state.
	var body struct {
		Data *string `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false, fmt.Errorf("decode fetch response: %w", err)
	}

	if body.Data == nil || *body.Data == "" || *body.Data == notAssigned {
		return "", false, nil
	}
	return *body.Data, true, nil
}

// Create asks the identity service to provision an identity for the wallet
// address. Only the status class decides success; the body is logged at
// debug and discarded.
func (c *Client) Create(ctx context.Context, walletAddress string) error {
	resp, err := c.post(ctx, createPath, walletAddress)
	if err != nil {
		return err
	}
	defer c.closeBody(resp)

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("create returned status %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Debug("identity create accepted",
		"status", resp.StatusCode,
		"response", string(body),
	)
	return nil
}

func (c *Client) post(ctx context.Context, path, walletAddress string) (*http.Response, error) {
	payload, err := json.Marshal(map[string]string{"walletAddress": walletAddress})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordRequest(path, 0, time.Since(start))
		}
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	if c.metrics != nil {
		c.metrics.RecordRequest(path, resp.StatusCode, time.Since(start))
	}
	return resp, nil
}

func (c *Client) statusError(path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(body))
}

func (c *Client) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Warn("failed to close response body", "error", err)
	}
}
