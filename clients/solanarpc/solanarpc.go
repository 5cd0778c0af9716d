package solanarpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync/atomic"
	"time"
	"walletwatch/config"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrMalformedResponse is returned when a successful response is missing expected fields.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrRetriesExhausted is returned when every attempt of a call failed.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Client is a JSON-RPC client for a Solana provider. Every call is rate limited and
// retried with exponential backoff.
type Client struct {
	logger     *zap.Logger
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter

	maxRetries    int
	backoffBase   float64
	includeNative bool

	sleep  func(ctx context.Context, d time.Duration) error
	nextID uint64
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxRetries := cfg.Solana.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	backoffBase := cfg.Solana.BackoffBase
	if backoffBase < 1 {
		backoffBase = 2
	}
	limit := rate.Inf
	if cfg.Solana.RateLimit > 0 {
		limit = rate.Limit(cfg.Solana.RateLimit)
	}
	timeout := cfg.Solana.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		logger:   logger,
		endpoint: cfg.Solana.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &apiKeyTransport{
				base:   http.DefaultTransport,
				apiKey: cfg.Solana.APIKey,
			},
		},
		limiter:       rate.NewLimiter(limit, 1),
		maxRetries:    maxRetries,
		backoffBase:   backoffBase,
		includeNative: cfg.Solana.IncludeNative,
		sleep:         sleepContext,
	}
}

// apiKeyTransport sets the JSON content type and appends the provider API key as the
// api-key query parameter.
type apiKeyTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.apiKey != "" {
		q := req.URL.Query()
		q.Set("api-key", t.apiKey)
		req.URL.RawQuery = q.Encode()
	}
	return t.base.RoundTrip(req)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is an error object returned by the provider.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status=%d body=%s", e.StatusCode, e.Body)
}

// Backoff returns the delay slept after the given failed attempt (1-based).
func (c *Client) Backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(c.backoffBase, float64(attempt)) * float64(time.Second))
}

// call performs a JSON-RPC call, retrying transient failures. With the default base of 2
// and 5 attempts the delays between attempts are 2s, 4s, 8s and 16s.
func (c *Client) call(ctx context.Context, method string, params any, dest any) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limit wait: %w", method, err)
		}

		lastErr = c.do(ctx, method, params, dest)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || ctx.Err() != nil {
			return fmt.Errorf("%s: %w", method, lastErr)
		}
		if attempt == c.maxRetries {
			break
		}

		delay := c.Backoff(attempt)
		c.logger.Warn("rpc call failed, retrying",
			zap.String("method", method),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(lastErr),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
	}

	c.logger.Error("rpc call failed, max retries reached",
		zap.String("method", method),
		zap.Int("attempts", c.maxRetries),
		zap.Error(lastErr),
	)
	return fmt.Errorf("%s: %w after %d attempts: %w", method, ErrRetriesExhausted, c.maxRetries, lastErr)
}

func (c *Client) do(ctx context.Context, method string, params any, dest any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddUint64(&c.nextID, 1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	var envelope rpcResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: decode envelope: %v", ErrMalformedResponse, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if dest == nil {
		return nil
	}
	if len(envelope.Result) == 0 {
		return fmt.Errorf("%w: missing result", ErrMalformedResponse)
	}
	if err := json.Unmarshal(envelope.Result, dest); err != nil {
		return fmt.Errorf("%w: decode result: %v", ErrMalformedResponse, err)
	}
	return nil
}

// isRetryable reports whether err is a transient failure. Malformed payloads and
// request-shape errors are returned immediately.
func isRetryable(err error) bool {
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case -32600, -32601, -32602:
			return false
		}
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
