package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/go-identity-client/apierrors"
	"github.com/jrsteele09/go-identity-client/internal/transport"
	"github.com/jrsteele09/go-identity-client/metrics"
	"github.com/jrsteele09/go-identity-client/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// TokenProvider hands out the bearer token for authorized calls. *auth.Manager implements it.
type TokenProvider interface {
	GetValidToken(ctx context.Context) (string, bool, error)
}

// Client makes authorized calls against the resource API. Every non-success response is
// returned as an *apierrors.ResponseError classified against the apierrors sentinels.
type Client struct {
	transport *transport.Client
	tokens    TokenProvider
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	httpClient *http.Client
	userAgent  string
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a Client for baseURL that takes its bearer tokens from tokens.
func New(baseURL string, tokens TokenProvider, options ...ClientOption) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("[apiclient.New] token provider is required")
	}

	c := &Client{tokens: tokens, logger: log.Logger}
	for _, opt := range options {
		opt(c)
	}

	t, err := transport.New(baseURL, c.userAgent, c.httpClient)
	if err != nil {
		return nil, fmt.Errorf("[apiclient.New] %w", err)
	}
	c.transport = t
	return c, nil
}

// Do sends an authorized request and returns the response body of a 2xx response. If no
// valid token is available the call fails with apierrors.ErrSessionExpired without
// touching the network.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	accessToken, ok, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("[Client.Do] %s %s: %w", method, path, err)
	}
	if !ok {
		return nil, fmt.Errorf("[Client.Do] %s %s: %w", method, path, apierrors.ErrSessionExpired)
	}

	req, err := c.transport.NewRequest(ctx, method, path, body, contentType)
	if err != nil {
		return nil, err
	}
	(&oauth2.Token{AccessToken: accessToken, TokenType: token.TypeBearer}).SetAuthHeader(req)

	return c.roundTrip(req)
}

// GetJSON decodes the response of GET path into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.sendJSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON sends in as JSON and decodes any response body into out. out may be nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPost, path, in, out)
}

// PutJSON sends in as JSON and decodes any response body into out. out may be nil.
func (c *Client) PutJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPut, path, in, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.Do(ctx, http.MethodDelete, path, nil, "")
	return err
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("[Client.sendJSON] %w", err)
		}
		body = bytes.NewReader(b)
		contentType = transport.ContentTypeJSON
	}

	respBody, err := c.Do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	return decodeInto(respBody, out)
}

// roundTrip sends req and classifies the response.
func (c *Client) roundTrip(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.transport.Do(req)
	if err != nil {
		c.metrics.Request(req.Method, 0, err, time.Since(start))
		return nil, fmt.Errorf("[Client.Do] %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if err := apierrors.Classify(resp); err != nil {
		c.metrics.Request(req.Method, resp.StatusCode, err, time.Since(start))
		c.logger.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", resp.StatusCode).
			Str("request_id", req.Header.Get(transport.HeaderRequestID)).
			Msg("request failed")
		return nil, fmt.Errorf("[Client.Do] %s %s: %w", req.Method, req.URL.Path, err)
	}

	b, err := io.ReadAll(resp.Body)
	c.metrics.Request(req.Method, resp.StatusCode, err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("[Client.Do] reading response: %w", err)
	}
	return b, nil
}

func decodeInto(b []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("[apiclient] decoding response: %w", err)
	}
	return nil
}
