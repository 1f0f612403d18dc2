package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"merchant-connect-layer/internal/domain"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds every provider call. Provider OAuth sessions expire quickly.
const DefaultTimeout = 5 * time.Second

// maxErrorBody caps how much of an error response is kept for logs
const maxErrorBody = 2048

// Request describes one provider call. At most one of Form and JSON is set.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Query  url.Values
	Form   url.Values
	JSON   interface{}
}

// Client performs provider calls and classifies failures into
// domain.TransientProviderError and domain.ProviderError.
type Client struct {
	httpClient *http.Client
	provider   domain.Provider
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewClient creates a provider HTTP client
func NewClient(provider domain.Provider, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		provider:   provider,
		timeout:    timeout,
		logger:     logger.With().Str("provider", string(provider)).Logger(),
	}
}

// HTTPClient exposes the underlying client so SDKs can share the same timeout
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Send executes the request and decodes a JSON answer into out when out is non-nil.
// op names the operation in errors and logs.
func (c *Client) Send(ctx context.Context, op string, r Request, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.build(ctx, r)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Dur("elapsed", time.Since(start)).Msg("Provider call failed")
		return &domain.TransientProviderError{Provider: c.provider, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.TransientProviderError{Provider: c.provider, Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	c.logger.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Provider call completed")

	if err := classify(c.provider, op, resp.StatusCode, body); err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) build(ctx context.Context, r Request) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	target := r.URL
	if len(r.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + r.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case r.Form != nil:
		body = strings.NewReader(r.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case r.JSON != nil:
		data, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func classify(provider domain.Provider, op string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	snippet := string(body)
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody]
	}

	if IsRetryableStatus(status) {
		return &domain.TransientProviderError{
			Provider:   provider,
			Op:         op,
			StatusCode: status,
			Err:        errors.New(snippet),
		}
	}
	return &domain.ProviderError{Provider: provider, Op: op, StatusCode: status, Body: snippet}
}

// IsRetryableStatus reports 5xx, 429 and 408 answers
func IsRetryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
}

// Bearer builds an Authorization header value
func Bearer(token string) string {
	return "Bearer " + token
}
