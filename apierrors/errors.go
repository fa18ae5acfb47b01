package apierrors

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error taxonomy for calls against the identity and resource API.
var (
	// ErrAuthenticationFailed means the credentials or refresh token were rejected (HTTP 401),
	// or a login/refresh returned a success status with an unusable body.
	ErrAuthenticationFailed = errors.New("the login attempt failed")

	// ErrSessionExpired means no valid bearer token could be obtained for an authorized call.
	ErrSessionExpired = errors.New("session expired")

	// ErrThrottled is a 429 carrying a server-supplied retry delay.
	ErrThrottled = errors.New("too many requests")

	// ErrConflict is a 409, a record with the same key already exists.
	ErrConflict = errors.New("conflict")

	// ErrEndpointNotFound is a 404. It is never handled differently from ErrUnexpectedServer.
	ErrEndpointNotFound = errors.New("endpoint not found")

	// ErrUnexpectedServer is any non-success response that is not an authentication failure.
	ErrUnexpectedServer = errors.New("unexpected server error")
)

// maxBodyDetail caps how much of an error response body is kept as diagnostic detail.
const maxBodyDetail = 64 << 10

// ResponseError is a non-success HTTP response. Body is diagnostic only; use errors.Is
// against the sentinels above to discriminate.
type ResponseError struct {
	StatusCode int
	Status     string
	Body       string

	// RetryAfter is the Retry-After delta of a 429. Zero unless HasRetryAfter.
	RetryAfter    time.Duration
	HasRetryAfter bool

	kinds []error
}

func (e *ResponseError) Error() string {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return ErrAuthenticationFailed.Error()
	case e.StatusCode == http.StatusNotFound, strings.TrimSpace(e.Body) == "":
		return fmt.Sprintf("unexpected response status %s", e.statusText())
	}
	return fmt.Sprintf("%s (%s): %s", ErrUnexpectedServer, e.statusText(), e.Body)
}

func (e *ResponseError) Unwrap() []error {
	return e.kinds
}

func (e *ResponseError) statusText() string {
	if e.Status != "" {
		return e.Status
	}
	return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// NewResponseError builds a classified error for a status code, body and Retry-After header value.
func NewResponseError(statusCode int, body string, retryAfter string) *ResponseError {
	e := &ResponseError{StatusCode: statusCode, Body: body}

	switch statusCode {
	case http.StatusUnauthorized:
		e.kinds = []error{ErrAuthenticationFailed}
		return e
	case http.StatusNotFound:
		e.kinds = []error{ErrEndpointNotFound, ErrUnexpectedServer}
		return e
	case http.StatusConflict:
		e.kinds = []error{ErrConflict, ErrUnexpectedServer}
		return e
	case http.StatusTooManyRequests:
		if d, ok := ParseRetryAfter(retryAfter); ok {
			e.RetryAfter = d
			e.HasRetryAfter = true
			e.kinds = []error{ErrThrottled, ErrUnexpectedServer}
			return e
		}
	}
	e.kinds = []error{ErrUnexpectedServer}
	return e
}

// Classify returns nil for a 2xx response and a *ResponseError otherwise. For non-success
// responses the body is consumed; the caller still owns closing it.
func Classify(resp *http.Response) error {
	if IsSuccess(resp.StatusCode) {
		return nil
	}
	var body string
	if resp.Body != nil {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyDetail))
		body = string(b)
	}
	e := NewResponseError(resp.StatusCode, body, resp.Header.Get("Retry-After"))
	e.Status = resp.Status
	return e
}

// IsSuccess reports whether a status code is 2xx.
func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode <= 299
}

// maxRetryAfterSeconds is the largest delta that still fits in a time.Duration.
const maxRetryAfterSeconds = math.MaxInt64 / int64(time.Second)

// ParseRetryAfter reads a Retry-After delta-seconds value. HTTP-date values are not
// accepted, nor are deltas too large to represent as a time.Duration.
func ParseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil || secs < 0 || secs > maxRetryAfterSeconds {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// AsResponseError unwraps err to a *ResponseError, if there is one.
func AsResponseError(err error) (*ResponseError, bool) {
	var re *ResponseError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
