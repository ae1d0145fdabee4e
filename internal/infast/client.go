package infast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"invoicesync/internal/logger"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://api.infast.fr/api/v2"

	// DefaultTimeout bounds every outbound call, token exchange included.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 2048
)

// Credentials identify the OAuth2 client.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Request describes one API call. Body may be a string or []byte, sent as
// is, or any value, sent JSON-encoded.
type Request struct {
	Method  string
	Path    string
	Query   map[string]string
	Headers map[string]string
	Body    any

	// NoRetry disables the single retry on 401.
	NoRetry bool
}

// Client is the authenticated HTTP transport to the INFast API.
type Client struct {
	creds      Credentials
	baseURL    string
	httpClient *http.Client
	tokens     *TokenCache
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the HTTP client used for all calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTokenCache isolates the client from the process-wide token cache.
func WithTokenCache(cache *TokenCache) Option {
	return func(c *Client) {
		c.tokens = cache
	}
}

// WithRateLimit caps outbound API calls to perSecond with the given burst.
// A non-positive rate leaves calls unthrottled.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, burst))
	}
}

// NewClient creates a client for the given credentials.
func NewClient(creds Credentials, opts ...Option) *Client {
	creds.ClientID = strings.TrimSpace(creds.ClientID)
	creds.ClientSecret = strings.TrimSpace(creds.ClientSecret)
	c := &Client{
		creds:      creds,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		tokens:     defaultTokens,
		log:        logger.WithComponent("infast"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req and decodes a JSON response into out when out is non-nil.
// An empty successful body leaves out untouched. A 401 clears the cached
// token and the request is sent once more unless req.NoRetry.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	for {
		token, err := c.AccessToken(ctx)
		if err != nil {
			return err
		}

		status, raw, err := c.send(ctx, req, token)
		if err != nil {
			return err
		}

		if status == http.StatusUnauthorized && !req.NoRetry {
			c.log.Warn().
				Str("method", req.Method).
				Str("path", req.Path).
				Msg("Access token rejected, retrying with a fresh token")
			c.ClearTokenCache()
			req.NoRetry = true
			continue
		}

		return decodeResponse(status, raw, out)
	}
}

func (c *Client) send(ctx context.Context, req Request, token string) (int, []byte, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	op := method + " " + req.Path

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("infast: %s: rate limit: %w", op, err)
		}
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("infast: %s: encode body: %w", op, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.endpoint(req.Path, req.Query), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("infast: %s: build request: %w", op, err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &NetworkError{Op: op, Err: err}
	}

	c.log.Debug().
		Str("method", method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("API call completed")

	return resp.StatusCode, raw, nil
}

func (c *Client) endpoint(path string, query map[string]string) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if qs := encodeQuery(query); qs != "" {
		u += "?" + qs
	}
	return u
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func decodeResponse(status int, raw []byte, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		if status >= http.StatusBadRequest {
			return &APIError{Status: status, Message: http.StatusText(status)}
		}
		return nil
	}

	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return &MalformedResponseError{Status: status, Body: truncate(string(raw), maxErrorBody), Err: err}
	}

	if status >= http.StatusBadRequest {
		return newAPIError(status, decoded)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return &MalformedResponseError{Status: status, Body: truncate(string(raw), maxErrorBody), Err: err}
	}
	return nil
}
