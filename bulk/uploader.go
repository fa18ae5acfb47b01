// Package bulk submits a sequence of records to a resource endpoint one at a time. A
// throttled record is resubmitted after the server's Retry-After delay and a record that
// already exists is skipped.
package bulk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/go-identity-client/apierrors"
	"github.com/jrsteele09/go-identity-client/internal/transport"
	"github.com/jrsteele09/go-identity-client/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Doer sends one authorized request. *apiclient.Client implements it.
type Doer interface {
	Do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error)
}

// WaitFunc blocks for d or until ctx is done, returning ctx.Err() in the latter case.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Result counts what an upload did, including a partial upload that ended in an error.
type Result struct {
	Uploaded  int
	Skipped   int
	Throttled int
	Waited    time.Duration
}

// Total is the number of records the upload got past.
func (r Result) Total() int {
	return r.Uploaded + r.Skipped
}

// BatchError reports the record an upload stopped at. Index is zero based and Record has
// not been uploaded.
type BatchError struct {
	Index  int
	Record []byte
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Uploader drives a RecordSource through a Doer.
type Uploader struct {
	client  Doer
	logger  zerolog.Logger
	metrics *metrics.Metrics
	wait    WaitFunc
	method  string
}

// Option defines a function type to modify the Uploader instance.
type Option func(*Uploader)

func WithLogger(logger zerolog.Logger) Option {
	return func(u *Uploader) {
		u.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(u *Uploader) {
		u.metrics = m
	}
}

// WithWaitFunc replaces the timer used for throttle waits.
func WithWaitFunc(wait WaitFunc) Option {
	return func(u *Uploader) {
		u.wait = wait
	}
}

// WithMethod sets the HTTP method used per record. Default POST.
func WithMethod(method string) Option {
	return func(u *Uploader) {
		u.method = method
	}
}

// NewUploader creates an Uploader that submits records through client.
func NewUploader(client Doer, options ...Option) (*Uploader, error) {
	if client == nil {
		return nil, fmt.Errorf("[bulk.NewUploader] client is required")
	}
	u := &Uploader{
		client: client,
		logger: log.Logger,
		wait:   Sleep,
		method: http.MethodPost,
	}
	for _, opt := range options {
		opt(u)
	}
	return u, nil
}

// Upload submits every record of source to endpoint, in order and one at a time.
//
// A 429 carrying a Retry-After delta is waited out and the same record is resubmitted,
// with no limit on the number of attempts. A 409 is logged and the record skipped. Any
// other failure, including cancellation of ctx during a throttle wait, stops the upload
// and is returned as a *BatchError for the record that was not uploaded.
func (u *Uploader) Upload(ctx context.Context, endpoint string, source RecordSource) (Result, error) {
	var result Result
	if endpoint == "" {
		return result, fmt.Errorf("[Uploader.Upload] endpoint is required")
	}
	if source == nil {
		return result, fmt.Errorf("[Uploader.Upload] record source is required")
	}

	for index := 0; ; index++ {
		record, err := source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("[Uploader.Upload] reading record %d: %w", index, err)
		}

		skipped, err := u.submit(ctx, endpoint, index, record, &result)
		if err != nil {
			u.metrics.BulkRecord(metrics.RecordFailed)
			return result, &BatchError{Index: index, Record: record, Err: err}
		}
		if skipped {
			result.Skipped++
			u.metrics.BulkRecord(metrics.RecordSkipped)
			continue
		}
		result.Uploaded++
		u.metrics.BulkRecord(metrics.RecordUploaded)
	}

	u.logger.Info().
		Str("endpoint", endpoint).
		Int("uploaded", result.Uploaded).
		Int("skipped", result.Skipped).
		Int("throttled", result.Throttled).
		Msg("upload complete")
	return result, nil
}

// submit sends one record until it is accepted, skipped or fails.
func (u *Uploader) submit(ctx context.Context, endpoint string, index int, record []byte, result *Result) (bool, error) {
	for {
		_, err := u.client.Do(ctx, u.method, endpoint, bytes.NewReader(record), transport.ContentTypeJSON)
		if err == nil {
			return false, nil
		}

		switch {
		case errors.Is(err, apierrors.ErrConflict):
			u.logger.Warn().Int("record", index).Msg("a record with this key already exists, skipping")
			return true, nil

		case errors.Is(err, apierrors.ErrThrottled):
			re, _ := apierrors.AsResponseError(err)
			u.logger.Info().Int("record", index).Dur("retry_after", re.RetryAfter).Msg("rate limited, retrying")
			result.Throttled++
			if err := u.wait(ctx, re.RetryAfter); err != nil {
				return false, err
			}
			result.Waited += re.RetryAfter
			u.metrics.ThrottleWait(re.RetryAfter)

		default:
			return false, err
		}
	}
}

// Sleep is the default WaitFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
