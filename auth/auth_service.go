package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/go-identity-client/apierrors"
	"github.com/jrsteele09/go-identity-client/claims"
	"github.com/jrsteele09/go-identity-client/internal/transport"
	"github.com/jrsteele09/go-identity-client/metrics"
	"github.com/jrsteele09/go-identity-client/sessions"
	"github.com/jrsteele09/go-identity-client/token"
	"github.com/jrsteele09/go-identity-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Identity endpoints.
const (
	PathLogin   = "/identity/login?useCookies=false"
	PathRefresh = "/identity/refresh"
	PathMe      = "/api/user/@me"
)

const refreshKey = "refresh"

// Manager owns the session of a single client: it logs in, restores a persisted session,
// hands out a valid bearer token (refreshing when it has expired) and logs out. Every
// change to the signed-in identity is persisted through a sessions.Store and announced to
// subscribers.
type Manager struct {
	client  *transport.Client
	store   sessions.Store
	logger  zerolog.Logger
	metrics *metrics.Metrics
	nowTime func() time.Time // injectable for testing

	httpClient *http.Client
	userAgent  string

	// opLock serializes every commit to the session: the head and tail of a login, logout,
	// restore and the tail of a refresh. It is never held across a network round-trip.
	opLock       sync.Mutex
	refreshGroup singleflight.Group

	lock       sync.RWMutex
	state      State
	session    *sessions.State
	identity   claims.Identity
	restored   bool
	generation uint64 // bumped on every commit so stale refreshes can be detected

	subsLock sync.Mutex
	subs     map[uint64]chan struct{}
	nextSub  uint64
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithHTTPClient(c *http.Client) ManagerOption {
	return func(m *Manager) {
		m.httpClient = c
	}
}

func WithUserAgent(userAgent string) ManagerOption {
	return func(m *Manager) {
		m.userAgent = userAgent
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates an anonymous Manager. Call Restore to pick up a persisted session.
func NewManager(baseURL string, store sessions.Store, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("[NewManager] %w", ErrStoreRequired)
	}

	m := &Manager{
		store:    store,
		logger:   log.Logger,
		nowTime:  time.Now,
		identity: claims.Anonymous,
		subs:     make(map[uint64]chan struct{}),
	}
	for _, opt := range options {
		opt(m)
	}

	client, err := transport.New(baseURL, m.userAgent, m.httpClient)
	if err != nil {
		return nil, fmt.Errorf("[NewManager] %w", err)
	}
	m.client = client
	return m, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state
}

// Identity returns the signed-in identity, or claims.Anonymous.
func (m *Manager) Identity() claims.Identity {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.identity
}

// ExpiresAt returns the access token expiry of the current session.
func (m *Manager) ExpiresAt() (time.Time, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.session == nil {
		return time.Time{}, false
	}
	return m.session.ExpiresAt, true
}

// Restore loads a persisted session. If any stored part is missing or unreadable all of
// it is discarded and the caller stays anonymous. Only the first completed call reads
// storage; later calls return the in-memory identity.
func (m *Manager) Restore(ctx context.Context) (claims.Identity, error) {
	m.opLock.Lock()
	defer m.opLock.Unlock()

	m.lock.RLock()
	restored, identity := m.restored, m.identity
	m.lock.RUnlock()
	if restored {
		return identity, nil
	}

	st, err := sessions.Load(ctx, m.store)
	if err != nil {
		if transport.IsContextError(err) {
			return claims.Anonymous, fmt.Errorf("[Manager.Restore] %w", err)
		}
		if errors.Is(err, sessions.ErrIncomplete) {
			m.logger.Debug().Err(err).Msg("no usable stored session")
		} else {
			m.logger.Err(err).Msg("[Manager.Restore] reading stored session failed, discarding it")
		}
		m.clearStore(ctx)

		m.lock.Lock()
		m.restored = true
		m.lock.Unlock()
		return claims.Anonymous, nil
	}

	identity = m.commit(&st)
	m.notify()
	m.logger.Info().Str("name", identity.Name()).Time("expires_at", st.ExpiresAt).Msg("session restored")
	return identity, nil
}

// Login discards any current session, authenticates against the identity endpoint,
// loads the caller's profile and persists the new session. On any failure the caller is
// left anonymous. A Logout or another Login issued while this one is in flight wins, and
// this call returns ErrLoginSuperseded.
func (m *Manager) Login(ctx context.Context, cred Credential) (identity claims.Identity, err error) {
	defer func() { m.metrics.Login(err) }()

	m.opLock.Lock()
	m.clear(ctx, StateAuthenticating)
	gen := m.currentGeneration()
	m.opLock.Unlock()
	m.notify()

	st, err := m.authenticate(ctx, cred)

	m.opLock.Lock()
	defer m.opLock.Unlock()

	if !m.isCurrent(gen) {
		m.logger.Info().Str("email", cred.Email).Msg("login superseded")
		return claims.Anonymous, fmt.Errorf("[Manager.Login] %w", ErrLoginSuperseded)
	}
	if err != nil {
		m.abandonLogin()
		m.logger.Err(err).Str("email", cred.Email).Msg("login failed")
		return claims.Anonymous, fmt.Errorf("[Manager.Login] %w", err)
	}

	if err := sessions.Save(ctx, m.store, *st); err != nil {
		m.abandonLogin()
		m.logger.Err(err).Msg("[Manager.Login] persisting session failed")
		return claims.Anonymous, fmt.Errorf("[Manager.Login] persisting session: %w", err)
	}

	identity = m.commit(st)
	m.notify()

	event := m.logger.Info().Str("name", identity.Name()).Time("expires_at", st.ExpiresAt)
	if sub, ok := st.Tokens.Subject(); ok {
		event = event.Str("subject", sub)
	}
	event.Msg("logged in")
	return identity, nil
}

// GetValidToken returns an access token that has not yet expired. ok is false, with a nil
// error, when there is no session. An expired token is refreshed; concurrent callers share
// one refresh round-trip. A rejected refresh ends the session.
func (m *Manager) GetValidToken(ctx context.Context) (accessToken string, ok bool, err error) {
	m.lock.RLock()
	sess := m.session
	m.lock.RUnlock()

	if sess == nil {
		return "", false, nil
	}
	if m.nowTime().Before(sess.ExpiresAt) {
		return sess.Tokens.AccessToken, true, nil
	}

	retried := false
	for {
		ch := m.refreshGroup.DoChan(refreshKey, func() (any, error) {
			return m.refresh(ctx)
		})

		select {
		case <-ctx.Done():
			return "", false, fmt.Errorf("[Manager.GetValidToken] %w", ctx.Err())
		case res := <-ch:
			if res.Err != nil {
				// The shared refresh was cancelled by another caller's context.
				if res.Shared && !retried && ctx.Err() == nil && transport.IsContextError(res.Err) {
					retried = true
					continue
				}
				return "", false, res.Err
			}
			accessToken = res.Val.(string)
			return accessToken, accessToken != "", nil
		}
	}
}

// Logout ends the session in memory and in storage. Storage failures are logged.
func (m *Manager) Logout(ctx context.Context) {
	m.opLock.Lock()
	defer m.opLock.Unlock()

	m.clear(ctx, StateAnonymous)
	m.notify()
	m.logger.Info().Msg("logged out")
}

// Subscribe returns a channel that receives a value whenever the session changes. Bursts
// of changes coalesce into one pending value. The returned func unsubscribes and closes
// the channel.
func (m *Manager) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	m.subsLock.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subsLock.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsLock.Lock()
			defer m.subsLock.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

// TokenSource adapts the Manager to oauth2.TokenSource. Token returns
// apierrors.ErrSessionExpired when there is no session.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, m: m}
}

type tokenSource struct {
	ctx context.Context
	m   *Manager
}

var _ oauth2.TokenSource = (*tokenSource)(nil)

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	accessToken, ok, err := ts.m.GetValidToken(ts.ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apierrors.ErrSessionExpired
	}
	expiry, _ := ts.m.ExpiresAt()
	return &oauth2.Token{AccessToken: accessToken, TokenType: token.TypeBearer, Expiry: expiry}, nil
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	m.lock.Lock()
	sess, gen := m.session, m.generation
	if sess == nil {
		m.lock.Unlock()
		return "", nil
	}
	if m.nowTime().Before(sess.ExpiresAt) {
		m.lock.Unlock()
		return sess.Tokens.AccessToken, nil
	}
	m.state = StateRefreshing
	m.lock.Unlock()
	m.notify()

	set, serverDate, err := m.requestTokens(ctx, PathRefresh, refreshRequest{RefreshToken: sess.Tokens.RefreshToken})
	m.metrics.Refresh(err)

	m.opLock.Lock()
	defer m.opLock.Unlock()

	if !m.isCurrent(gen) {
		return "", fmt.Errorf("[Manager.refresh] %w", apierrors.ErrSessionExpired)
	}

	if err != nil {
		if !isRejection(err) {
			m.lock.Lock()
			m.state = StateAuthenticated
			m.lock.Unlock()
			m.notify()
			m.logger.Warn().Err(err).Msg("token refresh did not complete, keeping session")
			return "", fmt.Errorf("[Manager.refresh] %w", err)
		}
		m.logger.Err(err).Msg("token refresh rejected, ending session")
		m.clear(ctx, StateAnonymous)
		m.notify()
		return "", fmt.Errorf("[Manager.refresh] %w", err)
	}

	next := &sessions.State{Tokens: *set, ExpiresAt: set.ExpiresAt(serverDate), Claims: sess.Claims}
	if err := sessions.Save(context.WithoutCancel(ctx), m.store, *next); err != nil {
		m.logger.Err(err).Msg("[Manager.refresh] persisting session failed, ending session")
		m.clear(ctx, StateAnonymous)
		m.notify()
		return "", fmt.Errorf("[Manager.refresh] persisting session: %w", err)
	}

	m.commit(next)
	m.notify()
	m.logger.Debug().Time("expires_at", next.ExpiresAt).Msg("token refreshed")
	return next.Tokens.AccessToken, nil
}

func (m *Manager) authenticate(ctx context.Context, cred Credential) (*sessions.State, error) {
	set, serverDate, err := m.requestTokens(ctx, PathLogin, cred)
	if err != nil {
		return nil, err
	}
	profile, err := m.fetchProfile(ctx, set)
	if err != nil {
		return nil, err
	}
	return &sessions.State{
		Tokens:    *set,
		ExpiresAt: set.ExpiresAt(serverDate),
		Claims:    claims.FromProfile(*profile),
	}, nil
}

// requestTokens posts body to a token endpoint. A success response without a usable token
// set is an authentication failure.
func (m *Manager) requestTokens(ctx context.Context, path string, body any) (*token.Set, time.Time, error) {
	req, err := m.client.NewJSONRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, time.Time{}, err
	}

	now := m.nowTime()
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer resp.Body.Close()

	if err := apierrors.Classify(resp); err != nil {
		return nil, time.Time{}, err
	}
	set, err := token.Decode(resp.Body)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %w", apierrors.ErrAuthenticationFailed, err)
	}
	return set, transport.ServerDate(resp, now), nil
}

func (m *Manager) fetchProfile(ctx context.Context, set *token.Set) (*users.Profile, error) {
	req, err := m.client.NewJSONRequest(ctx, http.MethodGet, PathMe, nil)
	if err != nil {
		return nil, err
	}
	set.OAuth2Token(time.Time{}).SetAuthHeader(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := apierrors.Classify(resp); err != nil {
		return nil, err
	}
	var profile users.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: profile: %w", apierrors.ErrAuthenticationFailed, err)
	}
	return &profile, nil
}

// commit installs a session. Must be called with opLock held.
func (m *Manager) commit(st *sessions.State) claims.Identity {
	identity := claims.NewIdentity(st.Claims)

	m.lock.Lock()
	defer m.lock.Unlock()
	m.session = st
	m.identity = identity
	m.state = StateAuthenticated
	m.restored = true
	m.generation++
	return identity
}

// clear drops the session from memory and storage and moves to next. Must be called with
// opLock held.
func (m *Manager) clear(ctx context.Context, next State) {
	m.lock.Lock()
	m.session = nil
	m.identity = claims.Anonymous
	m.state = next
	m.restored = true
	m.generation++
	m.lock.Unlock()

	m.clearStore(ctx)
}

func (m *Manager) clearStore(ctx context.Context) {
	if err := sessions.Clear(context.WithoutCancel(ctx), m.store); err != nil {
		m.logger.Err(err).Msg("[Manager] clearing stored session failed")
	}
}

func (m *Manager) abandonLogin() {
	m.lock.Lock()
	m.state = StateAnonymous
	m.lock.Unlock()
	m.notify()
}

func (m *Manager) currentGeneration() uint64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.generation
}

func (m *Manager) isCurrent(gen uint64) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.generation == gen
}

func (m *Manager) notify() {
	m.subsLock.Lock()
	defer m.subsLock.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// isRejection reports whether the server answered and refused, as opposed to the request
// not completing.
func isRejection(err error) bool {
	return errors.Is(err, apierrors.ErrAuthenticationFailed) || errors.Is(err, apierrors.ErrUnexpectedServer)
}
