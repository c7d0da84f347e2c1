package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Default connection pool settings.
const (
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultDialTimeout         = 10 * time.Second
)

// maxErrorBody bounds how much of an error response body is kept in error
// messages.
const maxErrorBody = 2048

// ClientConfig configures the shared HTTP transport.
type ClientConfig struct {
	// MaxIdleConns is the maximum number of idle connections across all hosts
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum number of idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept
	IdleConnTimeout time.Duration

	// DialTimeout bounds connection establishment
	DialTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers. Zero
	// leaves it to the request context, which carries the per-attempt
	// timeout.
	ResponseHeaderTimeout time.Duration
}

func (c *ClientConfig) applyDefaults() {
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.MaxIdleConnsPerHost == 0 {
		c.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = DefaultIdleConnTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
}

// HTTPClient is the base implementation shared by HTTP-based adapters.
// It provides connection pooling and maps upstream failures to the typed
// errors of this package.
//
// HTTPClient performs exactly one HTTP exchange per call. It does not
// retry and keeps no health state: failover belongs to the dispatcher and
// health tracking to the health monitor, both of which need to see every
// attempt.
type HTTPClient struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPClient creates a client with connection pooling.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	cfg.applyDefaults()

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		// Enable HTTP/2
		ForceAttemptHTTP2: true,
	}

	return &HTTPClient{
		// No client-level timeout: streams may legitimately run for
		// minutes. Callers bound each call with their context.
		client: &http.Client{Transport: transport},
		logger: slog.Default().With("component", "providers.http"),
	}
}

// Do performs one HTTP request. A non-2xx status is returned as a typed
// error with the body consumed and closed; on success the caller owns the
// response body.
func (c *HTTPClient) Do(ctx context.Context, channelID, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, &ProviderError{Channel: channelID, Message: "failed to create request", Cause: err}
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("sending request to upstream",
		"channel", channelID,
		"method", method,
		"url", redactURL(url),
	)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, &TimeoutError{Channel: channelID, Elapsed: time.Since(start)}
			}
			return nil, ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &TimeoutError{Channel: channelID, Elapsed: time.Since(start)}
		}
		return nil, &ProviderError{Channel: channelID, Message: "request failed", Cause: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	msg := errorMessage(errorBody)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &AuthError{
			Channel:    channelID,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{
			Channel:    channelID,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    msg,
		}
	default:
		return nil, &ProviderError{
			Channel:    channelID,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}
}

// DoJSON performs a JSON request and decodes the response into respBody.
func (c *HTTPClient) DoJSON(ctx context.Context, channelID, method, url string, reqBody, respBody any, headers map[string]string) error {
	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return &ValidationError{Field: "request", Message: fmt.Sprintf("failed to marshal request: %v", err)}
		}
	}

	resp, err := c.Do(ctx, channelID, method, url, bodyBytes, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return &TimeoutError{Channel: channelID}
			}
			return ctxErr
		}
		return &ParseError{
			Channel: channelID,
			Cause:   fmt.Errorf("failed to read response: %w", err),
		}
	}

	if respBody != nil {
		if len(responseBytes) == 0 {
			return &ParseError{Channel: channelID, Cause: errors.New("empty response body")}
		}
		if err := json.Unmarshal(responseBytes, respBody); err != nil {
			return &ParseError{
				Channel:     channelID,
				RawResponse: truncate(string(responseBytes), maxErrorBody),
				Cause:       fmt.Errorf("failed to unmarshal response: %w", err),
			}
		}
	}

	return nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() {
	c.client.CloseIdleConnections()
}

// NotFoundAsModel converts a 404 from a completion endpoint into a
// ModelNotFoundError for model.
func NotFoundAsModel(err error, channelID, model string) error {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
		return &ModelNotFoundError{Channel: channelID, Model: model}
	}
	return err
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}

// errorMessage extracts the message from the common JSON error envelopes
// ({"error":{"message":...}}, {"error":"..."}, {"message":...}) and falls
// back to the raw body.
func errorMessage(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if len(envelope.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var s string
			if json.Unmarshal(envelope.Error, &s) == nil && s != "" {
				return s
			}
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return truncate(strings.TrimSpace(string(body)), 512)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// redactURL strips the query string, which carries the API key for some
// upstreams.
func redactURL(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i] + "?..."
	}
	return u
}
