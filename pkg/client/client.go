package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// StatusError is returned for non-200 API responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("API error (%d): %s", e.Code, e.Message)
}

// Client talks to the API exposed by `harness serve`
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration // bounds status/stop; start also waits for readiness
	Logger  *slog.Logger  // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new harness API client
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the API is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.Status(ctx)
	if err != nil {
		c.logger.Debug("Harness API unreachable", "error", err)
		return false
	}
	return true
}

// Status returns the supervisor state plus a live probe of the server endpoint
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, c.client, http.MethodGet, c.baseURL+"/status", &st)
	return st, err
}

// Start asks the API to start the server if needed; wait <= 0 uses the server's default.
// The request timeout is extended by wait since the call blocks until the server is ready.
func (c *Client) Start(ctx context.Context, wait time.Duration) (StartResult, error) {
	u := c.baseURL + "/start"
	// without wait the server's own default deadline bounds the call
	hc := &http.Client{}
	if wait > 0 {
		u += "?" + url.Values{"wait": {wait.String()}}.Encode()
		hc.Timeout = c.client.Timeout + wait
	}
	c.logger.Debug("Requesting server start", "url", u)
	var res StartResult
	err := c.do(ctx, hc, http.MethodPost, u, &res)
	return res, err
}

// Stop asks the API to stop a server it started
func (c *Client) Stop(ctx context.Context) error {
	return c.do(ctx, c.client, http.MethodPost, c.baseURL+"/stop", nil)
}

// do performs an HTTP request and decodes a JSON body into out when non-nil
func (c *Client) do(ctx context.Context, hc *http.Client, method, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "url", u)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return &StatusError{Code: resp.StatusCode}
	}
	c.logger.Error("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return &StatusError{Code: resp.StatusCode, Message: errorResp.Error}
}

// IsTimeout reports whether err is a start timeout reported by the API.
func IsTimeout(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusGatewayTimeout
}
