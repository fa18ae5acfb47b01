package apierrors_test

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-identity-client/apierrors"
	"github.com/stretchr/testify/require"
)

func response(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestClassify_Success(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusNoContent} {
		require.NoError(t, apierrors.Classify(response(status, "", nil)))
	}
}

func TestClassify_Unauthorized(t *testing.T) {
	err := apierrors.Classify(response(http.StatusUnauthorized, "nope", nil))
	require.ErrorIs(t, err, apierrors.ErrAuthenticationFailed)
	require.NotErrorIs(t, err, apierrors.ErrUnexpectedServer)
	require.Equal(t, "the login attempt failed", err.Error())
}

func TestClassify_NotFoundIsGenericFailure(t *testing.T) {
	err := apierrors.Classify(response(http.StatusNotFound, "missing route", nil))
	require.ErrorIs(t, err, apierrors.ErrEndpointNotFound)
	require.ErrorIs(t, err, apierrors.ErrUnexpectedServer)
	require.NotContains(t, err.Error(), "missing route")
}

func TestClassify_ServerErrorCarriesBody(t *testing.T) {
	err := apierrors.Classify(response(http.StatusInternalServerError, "database down", nil))
	require.ErrorIs(t, err, apierrors.ErrUnexpectedServer)

	re, ok := apierrors.AsResponseError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusInternalServerError, re.StatusCode)
	require.Equal(t, "database down", re.Body)
	require.Contains(t, err.Error(), "database down")
}

func TestClassify_Conflict(t *testing.T) {
	err := apierrors.Classify(response(http.StatusConflict, "", nil))
	require.ErrorIs(t, err, apierrors.ErrConflict)
	require.ErrorIs(t, err, apierrors.ErrUnexpectedServer)
}

func TestClassify_Throttled(t *testing.T) {
	err := apierrors.Classify(response(http.StatusTooManyRequests, "", http.Header{"Retry-After": []string{"2"}}))
	require.ErrorIs(t, err, apierrors.ErrThrottled)

	re, ok := apierrors.AsResponseError(err)
	require.True(t, ok)
	require.True(t, re.HasRetryAfter)
	require.Equal(t, 2*time.Second, re.RetryAfter)
}

func TestClassify_ThrottledWithoutDeltaIsNotRetryable(t *testing.T) {
	header := http.Header{"Retry-After": []string{"Wed, 21 Oct 2015 07:28:00 GMT"}}
	err := apierrors.Classify(response(http.StatusTooManyRequests, "slow down", header))
	require.NotErrorIs(t, err, apierrors.ErrThrottled)
	require.ErrorIs(t, err, apierrors.ErrUnexpectedServer)

	err = apierrors.Classify(response(http.StatusTooManyRequests, "", nil))
	require.NotErrorIs(t, err, apierrors.ErrThrottled)
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"0", 0, true},
		{" 5 ", 5 * time.Second, true},
		{"120", 2 * time.Minute, true},
		{"", 0, false},
		{"-1", 0, false},
		{"2s", 0, false},
		{"Fri, 31 Dec 1999 23:59:59 GMT", 0, false},
		{"9223372036", 9223372036 * time.Second, true},
		{"9223372037", 0, false},
		{"9300000000", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := apierrors.ParseRetryAfter(tt.in)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestWrappedResponseErrorStillMatches(t *testing.T) {
	err := fmt.Errorf("[Client.Do] POST /api/reviews: %w", apierrors.NewResponseError(http.StatusBadGateway, "", ""))
	require.True(t, errors.Is(err, apierrors.ErrUnexpectedServer))
	_, ok := apierrors.AsResponseError(err)
	require.True(t, ok)
}
