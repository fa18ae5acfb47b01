// Package storetest holds the behaviour every sessions.Store implementation must share.
package storetest

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-identity-client/sessions"
	"github.com/stretchr/testify/require"
)

// Run exercises a store created fresh by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) sessions.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, sessions.KeyTokens)
		require.ErrorIs(t, err, sessions.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, sessions.KeyTokens, []byte(`{"accessToken":"T"}`)))

		got, err := s.Get(ctx, sessions.KeyTokens)
		require.NoError(t, err)
		require.Equal(t, `{"accessToken":"T"}`, string(got))
	})

	t.Run("set replaces", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, sessions.KeyClaims, []byte("one")))
		require.NoError(t, s.Set(ctx, sessions.KeyClaims, []byte("two")))

		got, err := s.Get(ctx, sessions.KeyClaims)
		require.NoError(t, err)
		require.Equal(t, "two", string(got))
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, sessions.KeyExpiresAt, []byte(`"2026-01-01T00:00:00Z"`)))
		require.NoError(t, s.Delete(ctx, sessions.KeyExpiresAt))

		_, err := s.Get(ctx, sessions.KeyExpiresAt)
		require.ErrorIs(t, err, sessions.ErrNotFound)
	})

	t.Run("delete missing key", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Delete(ctx, "never-set"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, sessions.KeyTokens, []byte("a")))
		require.NoError(t, s.Set(ctx, sessions.KeyClaims, []byte("b")))
		require.NoError(t, s.Delete(ctx, sessions.KeyTokens))

		got, err := s.Get(ctx, sessions.KeyClaims)
		require.NoError(t, err)
		require.Equal(t, "b", string(got))
	})
}
