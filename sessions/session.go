package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-identity-client/claims"
	"github.com/jrsteele09/go-identity-client/token"
)

// Storage keys. The three are always written and removed together.
const (
	KeyTokens    = "session.tokens"
	KeyExpiresAt = "session.expiresAt"
	KeyClaims    = "session.claims"
)

// Keys lists every key a session occupies.
var Keys = []string{KeyTokens, KeyExpiresAt, KeyClaims}

// ErrIncomplete is returned by Load when any of the three values is missing or malformed.
var ErrIncomplete = errors.New("incomplete session")

// State is a signed-in session: the token set, its absolute expiry and the caller's claims.
// Either all three are present or the session does not exist.
type State struct {
	Tokens    token.Set
	ExpiresAt time.Time
	Claims    claims.Set
}

// Validate checks that every part of the state is usable.
func (s State) Validate() error {
	t := s.Tokens
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
	if s.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: missing expiry", ErrIncomplete)
	}
	if !s.Claims.Valid() {
		return fmt.Errorf("%w: missing claims", ErrIncomplete)
	}
	return nil
}

// Load reads the three session values. Any missing or malformed value yields ErrIncomplete,
// storage failures are returned wrapped.
func Load(ctx context.Context, store Store) (State, error) {
	var s State

	if err := getJSON(ctx, store, KeyTokens, &s.Tokens); err != nil {
		return State{}, err
	}
	if err := getJSON(ctx, store, KeyExpiresAt, &s.ExpiresAt); err != nil {
		return State{}, err
	}
	if err := getJSON(ctx, store, KeyClaims, &s.Claims); err != nil {
		return State{}, err
	}
	if err := s.Validate(); err != nil {
		return State{}, err
	}
	return s, nil
}

// Save writes the three session values. If any write fails the keys are cleared so a
// partial session is never left behind.
func Save(ctx context.Context, store Store, s State) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("[sessions.Save] %w", err)
	}

	values := []struct {
		key   string
		value any
	}{
		{KeyTokens, s.Tokens},
		{KeyExpiresAt, s.ExpiresAt},
		{KeyClaims, s.Claims},
	}
	for _, v := range values {
		b, err := json.Marshal(v.value)
		if err == nil {
			err = store.Set(ctx, v.key, b)
		}
		if err != nil {
			return errors.Join(fmt.Errorf("[sessions.Save] %s: %w", v.key, err), Clear(context.WithoutCancel(ctx), store))
		}
	}
	return nil
}

// Clear removes the three session values, attempting every key even when one fails.
func Clear(ctx context.Context, store Store) error {
	var errs []error
	for _, key := range Keys {
		if err := store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("[sessions.Clear] %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func getJSON(ctx context.Context, store Store, key string, out any) error {
	b, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s not set", ErrIncomplete, key)
	}
	if err != nil {
		return fmt.Errorf("[sessions.Load] %s: %w", key, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%w: %s malformed: %v", ErrIncomplete, key, err)
	}
	return nil
}
