// Package transport builds and sends requests against the identity API base URL.
package transport

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

	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-Id"
	ContentTypeJSON = "application/json"

	DefaultTimeout = 30 * time.Second
)

// Client joins request paths onto BaseURL and stamps the common headers.
type Client struct {
	BaseURL   string
	UserAgent string
	HTTP      *http.Client
}

// New validates the base URL. A nil httpClient gets one with DefaultTimeout.
func New(baseURL, userAgent string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("[transport.New] invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("[transport.New] base url %q must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
		HTTP:      httpClient,
	}, nil
}

// URL joins path onto the base URL. path may carry a query string.
func (c *Client) URL(path string) string {
	return c.BaseURL + "/" + strings.TrimLeft(path, "/")
}

// NewRequest builds a request with a fresh X-Request-Id.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, fmt.Errorf("[transport.NewRequest] %w", err)
	}
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", ContentTypeJSON)
	req.Header.Set(HeaderRequestID, uuid.NewString())
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	return req, nil
}

// NewJSONRequest builds a request whose body is v encoded as JSON. A nil v sends no body.
func (c *Client) NewJSONRequest(ctx context.Context, method, path string, v any) (*http.Request, error) {
	if v == nil {
		return c.NewRequest(ctx, method, path, nil, "")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("[transport.NewJSONRequest] %w", err)
	}
	return c.NewRequest(ctx, method, path, bytes.NewReader(b), ContentTypeJSON)
}

// Do sends the request.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.HTTP.Do(req)
}

// ServerDate is the response Date header, or fallback when it is missing or unparseable.
func ServerDate(resp *http.Response, fallback time.Time) time.Time {
	if d, err := http.ParseTime(resp.Header.Get("Date")); err == nil {
		return d
	}
	return fallback
}

// IsContextError reports whether err came from a cancelled or timed out context.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
