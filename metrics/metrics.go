// Package metrics exposes prometheus collectors for the session and upload paths. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jrsteele09/go-identity-client/apierrors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "identity_client"

// Outcome labels.
const (
	OutcomeOK         = "ok"
	OutcomeAuthFailed = "auth_failed"
	OutcomeNotFound   = "not_found"
	OutcomeConflict   = "conflict"
	OutcomeThrottled  = "throttled"
	OutcomeServer     = "server_error"
	OutcomeCanceled   = "canceled"
	OutcomeTransport  = "transport_error"
)

// Bulk record labels.
const (
	RecordUploaded = "uploaded"
	RecordSkipped  = "skipped"
	RecordFailed   = "failed"
)

type Metrics struct {
	logins          *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	bulkRecords     *prometheus.CounterVec
	throttleWaits   prometheus.Counter
	throttleSeconds prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Token refresh round-trips by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Authorized API requests by method, status code and outcome.",
		}, []string{"method", "code", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Authorized API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		bulkRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_records_total",
			Help:      "Bulk upload records by result.",
		}, []string{"result"}),
		throttleWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_waits_total",
			Help:      "Number of Retry-After waits honoured.",
		}),
		throttleSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_wait_seconds_total",
			Help:      "Total time spent waiting on Retry-After.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.logins, m.refreshes, m.requests, m.requestDuration, m.bulkRecords, m.throttleWaits, m.throttleSeconds,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("[metrics.New] %w", err)
		}
	}
	return m, nil
}

// Outcome maps an error from the API layer to a label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case errors.Is(err, apierrors.ErrAuthenticationFailed), errors.Is(err, apierrors.ErrSessionExpired):
		return OutcomeAuthFailed
	case errors.Is(err, apierrors.ErrEndpointNotFound):
		return OutcomeNotFound
	case errors.Is(err, apierrors.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, apierrors.ErrThrottled):
		return OutcomeThrottled
	case errors.Is(err, apierrors.ErrUnexpectedServer):
		return OutcomeServer
	}
	return OutcomeTransport
}

func (m *Metrics) Login(err error) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) Refresh(err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(Outcome(err)).Inc()
}

// Request records one round-trip. statusCode is 0 when no response was received.
func (m *Metrics) Request(method string, statusCode int, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(statusCode), Outcome(err)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) BulkRecord(result string) {
	if m == nil {
		return
	}
	m.bulkRecords.WithLabelValues(result).Inc()
}

func (m *Metrics) ThrottleWait(d time.Duration) {
	if m == nil {
		return
	}
	m.throttleWaits.Inc()
	m.throttleSeconds.Add(d.Seconds())
}
