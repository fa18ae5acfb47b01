package auth_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-identity-client/apierrors"
	"github.com/jrsteele09/go-identity-client/auth"
	"github.com/jrsteele09/go-identity-client/claims"
	"github.com/jrsteele09/go-identity-client/identitytest"
	"github.com/jrsteele09/go-identity-client/sessions"
	"github.com/jrsteele09/go-identity-client/sessions/memstore"
	"github.com/jrsteele09/go-identity-client/token"
	"github.com/jrsteele09/go-identity-client/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "jane.doe@example.com"
	testPassword = "Secr3t!pass"
)

var (
	startTime   = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	testProfile = users.Profile{
		FirstName: "Jane",
		LastName:  "Doe",
		Roles:     []string{"Admin", "Editor"},
	}
)

// testFixture holds all test dependencies
type testFixture struct {
	clock   *identitytest.Clock
	server  *identitytest.Server
	store   *memstore.Store
	manager *auth.Manager
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	return setupWithStore(t, memstore.New())
}

func setupWithStore(t *testing.T, store *memstore.Store, options ...auth.ManagerOption) *testFixture {
	t.Helper()

	clock := identitytest.NewClock(startTime)
	server := identitytest.New(t, identitytest.WithNowTime(clock.Now))
	server.AddUser(testEmail, testPassword, testProfile)

	options = append([]auth.ManagerOption{auth.WithNowTime(clock.Now), auth.WithLogger(zerolog.Nop())}, options...)
	m, err := auth.NewManager(server.URL, store, options...)
	require.NoError(t, err)

	return &testFixture{clock: clock, server: server, store: store, manager: m}
}

func (f *testFixture) login(t *testing.T) claims.Identity {
	t.Helper()
	id, err := f.manager.Login(context.Background(), auth.Credential{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	return id
}

func persistedState() sessions.State {
	return sessions.State{
		Tokens:    token.Set{TokenType: token.TypeBearer, AccessToken: "T", RefreshToken: "R", ExpiresIn: 3600},
		ExpiresAt: startTime.Add(time.Hour),
		Claims: claims.Set{
			{Type: claims.TypeName, Value: "Stored User"},
			{Type: claims.TypeRole, Value: "Viewer"},
		},
	}
}

func TestNewManager_Validation(t *testing.T) {
	_, err := auth.NewManager("http://localhost", nil)
	require.ErrorIs(t, err, auth.ErrStoreRequired)

	_, err = auth.NewManager("localhost:5000", memstore.New())
	require.Error(t, err)
}

func TestRestore_Authenticated(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, sessions.Save(ctx, store, persistedState()))
	f := setupWithStore(t, store)

	id, err := f.manager.Restore(ctx)
	require.NoError(t, err)
	require.True(t, id.IsAuthenticated())
	require.Equal(t, persistedState().Claims, id.Claims())
	require.Equal(t, auth.StateAuthenticated, f.manager.State())
	require.Empty(t, f.server.Requests())

	tok, ok, err := f.manager.GetValidToken(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "T", tok)
}

func TestRestore_IncompleteClearsEverything(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(s *memstore.Store)
	}{
		{"nothing stored", func(s *memstore.Store) { _ = sessions.Clear(ctx, s) }},
		{"tokens missing", func(s *memstore.Store) { _ = s.Delete(ctx, sessions.KeyTokens) }},
		{"expiry missing", func(s *memstore.Store) { _ = s.Delete(ctx, sessions.KeyExpiresAt) }},
		{"claims missing", func(s *memstore.Store) { _ = s.Delete(ctx, sessions.KeyClaims) }},
		{"tokens malformed", func(s *memstore.Store) { _ = s.Set(ctx, sessions.KeyTokens, []byte("not json")) }},
		{"expiry malformed", func(s *memstore.Store) { _ = s.Set(ctx, sessions.KeyExpiresAt, []byte("12")) }},
		{"claims malformed", func(s *memstore.Store) { _ = s.Set(ctx, sessions.KeyClaims, []byte(`"x"`)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			require.NoError(t, sessions.Save(ctx, store, persistedState()))
			tt.mutate(store)
			f := setupWithStore(t, store)

			id, err := f.manager.Restore(ctx)
			require.NoError(t, err)
			require.False(t, id.IsAuthenticated())
			require.Equal(t, auth.StateAnonymous, f.manager.State())
			require.Equal(t, 0, store.Len())
		})
	}
}

func TestRestore_OnlyReadsOnce(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	f := setupWithStore(t, store)

	id, err := f.manager.Restore(ctx)
	require.NoError(t, err)
	require.False(t, id.IsAuthenticated())

	require.NoError(t, sessions.Save(ctx, store, persistedState()))
	id, err = f.manager.Restore(ctx)
	require.NoError(t, err)
	require.False(t, id.IsAuthenticated())
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	id := f.login(t)
	require.True(t, id.IsAuthenticated())
	require.Equal(t, "Jane Doe", id.Name())
	require.Equal(t, testEmail, id.Email())
	require.Equal(t, []string{"Admin", "Editor"}, id.Roles())
	require.Equal(t, auth.StateAuthenticated, f.manager.State())

	expiresAt, ok := f.manager.ExpiresAt()
	require.True(t, ok)
	require.True(t, startTime.Add(time.Hour).Equal(expiresAt))

	stored, err := sessions.Load(ctx, f.store)
	require.NoError(t, err)
	require.Equal(t, id.Claims(), stored.Claims)
	require.True(t, expiresAt.Equal(stored.ExpiresAt))

	sub, ok := stored.Tokens.Subject()
	require.True(t, ok)
	profile, _ := f.server.Profile(testEmail)
	require.Equal(t, profile.ID, sub)
}

func TestLogin_ExpiryFromResponseDate(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	date := time.Date(2026, 4, 30, 9, 15, 0, 0, time.UTC)
	profile := users.Profile{FirstName: "A", LastName: "B", Email: "a@b.com", Roles: []string{"User"}}

	f.server.Script(http.MethodPost, identitytest.PathLogin, identitytest.Response{
		Status: http.StatusOK,
		Body:   `{"accessToken":"T","refreshToken":"R","expiresIn":3600}`,
		Header: http.Header{"Date": {date.Format(http.TimeFormat)}},
	})
	f.server.Script(http.MethodGet, identitytest.PathMe, identitytest.Response{
		Status: http.StatusOK,
		Body:   `{"email":"a@b.com","firstName":"A","lastName":"B","roles":["User"]}`,
	})

	_, err := f.manager.Login(ctx, auth.Credential{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)

	expiresAt, ok := f.manager.ExpiresAt()
	require.True(t, ok)
	require.True(t, date.Add(3600*time.Second).Equal(expiresAt))

	stored, err := sessions.Load(ctx, f.store)
	require.NoError(t, err)
	require.Equal(t, claims.FromProfile(profile), stored.Claims)
	require.Equal(t, "T", stored.Tokens.AccessToken)
	require.Equal(t, "R", stored.Tokens.RefreshToken)

	reqs := f.server.Requests()
	require.Len(t, reqs, 2)
	require.Equal(t, "Bearer T", reqs[1].Header.Get("Authorization"))
	require.JSONEq(t, `{"email":"a@b.com","password":"pw"}`, string(reqs[0].Body))
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name   string
		script func(s *identitytest.Server)
		cred   auth.Credential
		is     []error
		isNot  []error
		detail string
	}{
		{
			name: "wrong password",
			cred: auth.Credential{Email: testEmail, Password: "nope"},
			is:   []error{apierrors.ErrAuthenticationFailed},
		},
		{
			name: "not found",
			script: func(s *identitytest.Server) {
				s.Script(http.MethodPost, identitytest.PathLogin, identitytest.Response{Status: http.StatusNotFound, Body: "missing"})
			},
			is:    []error{apierrors.ErrEndpointNotFound, apierrors.ErrUnexpectedServer},
			isNot: []error{apierrors.ErrAuthenticationFailed},
		},
		{
			name: "server error",
			script: func(s *identitytest.Server) {
				s.Script(http.MethodPost, identitytest.PathLogin, identitytest.Response{Status: http.StatusInternalServerError, Body: "database offline"})
			},
			is:     []error{apierrors.ErrUnexpectedServer},
			isNot:  []error{apierrors.ErrAuthenticationFailed},
			detail: "database offline",
		},
		{
			name: "empty success body",
			script: func(s *identitytest.Server) {
				s.Script(http.MethodPost, identitytest.PathLogin, identitytest.Response{Status: http.StatusOK})
			},
			is: []error{apierrors.ErrAuthenticationFailed},
		},
		{
			name: "token set without refresh token",
			script: func(s *identitytest.Server) {
				s.Script(http.MethodPost, identitytest.PathLogin, identitytest.Response{Status: http.StatusOK, Body: `{"accessToken":"T","expiresIn":60}`})
			},
			is: []error{apierrors.ErrAuthenticationFailed, token.ErrInvalidSet},
		},
		{
			name: "profile rejected",
			script: func(s *identitytest.Server) {
				s.Script(http.MethodGet, identitytest.PathMe, identitytest.Response{Status: http.StatusUnauthorized})
			},
			is: []error{apierrors.ErrAuthenticationFailed},
		},
		{
			name: "profile server error",
			script: func(s *identitytest.Server) {
				s.Script(http.MethodGet, identitytest.PathMe, identitytest.Response{Status: http.StatusBadGateway, Body: "upstream"})
			},
			is:     []error{apierrors.ErrUnexpectedServer},
			detail: "upstream",
		},
		{
			name: "blank email",
			cred: auth.Credential{Password: testPassword},
			is:   []error{apierrors.ErrAuthenticationFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			f.login(t)
			if tt.script != nil {
				tt.script(f.server)
			}
			cred := tt.cred
			if cred == (auth.Credential{}) {
				cred = auth.Credential{Email: testEmail, Password: testPassword}
			}

			id, err := f.manager.Login(context.Background(), cred)
			require.Error(t, err)
			for _, target := range tt.is {
				require.ErrorIs(t, err, target)
			}
			for _, target := range tt.isNot {
				require.NotErrorIs(t, err, target)
			}
			if tt.detail != "" {
				require.ErrorContains(t, err, tt.detail)
			}

			require.False(t, id.IsAuthenticated())
			require.False(t, f.manager.Identity().IsAuthenticated())
			require.Equal(t, auth.StateAnonymous, f.manager.State())
			require.Equal(t, 0, f.store.Len())

			_, ok, err := f.manager.GetValidToken(context.Background())
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestLogin_BlankCredentialIsSent(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.Login(context.Background(), auth.Credential{})
	require.ErrorIs(t, err, apierrors.ErrAuthenticationFailed)
	require.Equal(t, 1, f.server.Calls(http.MethodPost, identitytest.PathLogin))
	require.JSONEq(t, `{"email":"","password":""}`, string(f.server.Requests()[0].Body))
}

func TestLogin_LogoutDuringLoginWins(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	gate := make(chan struct{})
	f.server.Script(http.MethodPost, identitytest.PathLogin, identitytest.Response{Wait: gate})

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Login(ctx, auth.Credential{Email: testEmail, Password: testPassword})
		done <- err
	}()
	require.Eventually(t, func() bool {
		return f.server.Calls(http.MethodPost, identitytest.PathLogin) == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.Equal(t, auth.StateAuthenticating, f.manager.State())

	loggedOut := make(chan struct{})
	go func() {
		f.manager.Logout(ctx)
		close(loggedOut)
	}()
	select {
	case <-loggedOut:
	case <-time.After(2 * time.Second):
		t.Fatal("logout blocked behind the login round-trip")
	}
	require.Equal(t, auth.StateAnonymous, f.manager.State())

	close(gate)
	require.ErrorIs(t, <-done, auth.ErrLoginSuperseded)
	require.Equal(t, auth.StateAnonymous, f.manager.State())
	require.False(t, f.manager.Identity().IsAuthenticated())
	require.Equal(t, 0, f.store.Len())
}

type failingStore struct {
	*memstore.Store
	failKey string
}

func (s failingStore) Set(ctx context.Context, key string, value []byte) error {
	if key == s.failKey {
		return errors.New("quota exceeded")
	}
	return s.Store.Set(ctx, key, value)
}

func TestLogin_PersistFailureClearsSession(t *testing.T) {
	clock := identitytest.NewClock(startTime)
	server := identitytest.New(t, identitytest.WithNowTime(clock.Now))
	server.AddUser(testEmail, testPassword, testProfile)

	store := failingStore{Store: memstore.New(), failKey: sessions.KeyClaims}
	m, err := auth.NewManager(server.URL, store, auth.WithNowTime(clock.Now), auth.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = m.Login(context.Background(), auth.Credential{Email: testEmail, Password: testPassword})
	require.ErrorContains(t, err, "quota exceeded")
	require.Equal(t, auth.StateAnonymous, m.State())
	require.Equal(t, 0, store.Len())
}

func TestGetValidToken_NoSession(t *testing.T) {
	f := setupTestFixture(t)

	tok, ok, err := f.manager.GetValidToken(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, tok)
	require.Empty(t, f.server.Requests())
}

func TestGetValidToken_CachedBeforeExpiry(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.login(t)

	stored, err := sessions.Load(ctx, f.store)
	require.NoError(t, err)
	calls := len(f.server.Requests())

	f.clock.Advance(time.Hour - time.Second)
	for range 3 {
		tok, ok, err := f.manager.GetValidToken(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, stored.Tokens.AccessToken, tok)
	}
	require.Len(t, f.server.Requests(), calls)
}

func TestGetValidToken_RefreshesAtExpiry(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.login(t)

	before, err := sessions.Load(ctx, f.store)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	tok, ok, err := f.manager.GetValidToken(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, before.Tokens.AccessToken, tok)
	require.Equal(t, 1, f.server.Calls(http.MethodPost, identitytest.PathRefresh))

	refreshReq := f.server.Requests()[len(f.server.Requests())-1]
	require.JSONEq(t, `{"refreshToken":"`+before.Tokens.RefreshToken+`"}`, string(refreshReq.Body))

	expiresAt, _ := f.manager.ExpiresAt()
	require.True(t, startTime.Add(2*time.Hour).Equal(expiresAt))

	after, err := sessions.Load(ctx, f.store)
	require.NoError(t, err)
	require.Equal(t, tok, after.Tokens.AccessToken)
	require.NotEqual(t, before.Tokens.RefreshToken, after.Tokens.RefreshToken)
	require.True(t, expiresAt.Equal(after.ExpiresAt))
	require.Equal(t, before.Claims, after.Claims)

	again, ok, err := f.manager.GetValidToken(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, tok, again)
	require.Equal(t, 1, f.server.Calls(http.MethodPost, identitytest.PathRefresh))
}

func TestGetValidToken_RefreshRejectedEndsSession(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.login(t)
	f.server.Script(http.MethodPost, identitytest.PathRefresh, identitytest.Response{Status: http.StatusUnauthorized})

	f.clock.Advance(2 * time.Hour)
	_, ok, err := f.manager.GetValidToken(ctx)
	require.ErrorIs(t, err, apierrors.ErrAuthenticationFailed)
	require.False(t, ok)
	require.Equal(t, auth.StateAnonymous, f.manager.State())
	require.False(t, f.manager.Identity().IsAuthenticated())
	require.Equal(t, 0, f.store.Len())

	tok, ok, err := f.manager.GetValidToken(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, tok)
	require.Equal(t, 1, f.server.Calls(http.MethodPost, identitytest.PathRefresh))
}

func TestGetValidToken_RefreshServerErrorEndsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.server.Script(http.MethodPost, identitytest.PathRefresh, identitytest.Response{Status: http.StatusServiceUnavailable, Body: "maintenance"})

	f.clock.Advance(2 * time.Hour)
	_, _, err := f.manager.GetValidToken(context.Background())
	require.ErrorIs(t, err, apierrors.ErrUnexpectedServer)
	require.ErrorContains(t, err, "maintenance")
	require.Equal(t, auth.StateAnonymous, f.manager.State())
	require.Equal(t, 0, f.store.Len())
}

func TestGetValidToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.login(t)

	gate := make(chan struct{})
	f.server.Script(http.MethodPost, identitytest.PathRefresh, identitytest.Response{Wait: gate})
	f.clock.Advance(time.Hour)

	const callers = 8
	tokens := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], _, errs[i] = f.manager.GetValidToken(ctx)
		}(i)
	}

	require.Eventually(t, func() bool {
		return f.server.Calls(http.MethodPost, identitytest.PathRefresh) == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.Equal(t, auth.StateRefreshing, f.manager.State())
	close(gate)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		require.Equal(t, tokens[0], tokens[i])
	}
	require.Equal(t, 1, f.server.Calls(http.MethodPost, identitytest.PathRefresh))
	require.Equal(t, auth.StateAuthenticated, f.manager.State())
}

func TestGetValidToken_CancelledRefreshKeepsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	before, err := sessions.Load(context.Background(), f.store)
	require.NoError(t, err)

	gate := make(chan struct{})
	defer close(gate)
	f.server.Script(http.MethodPost, identitytest.PathRefresh, identitytest.Response{Wait: gate})
	f.clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := f.manager.GetValidToken(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return f.server.Calls(http.MethodPost, identitytest.PathRefresh) == 1
	}, 5*time.Second, 5*time.Millisecond)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	require.Eventually(t, func() bool {
		return f.manager.State() == auth.StateAuthenticated
	}, 5*time.Second, 5*time.Millisecond)
	require.True(t, f.manager.Identity().IsAuthenticated())

	after, err := sessions.Load(context.Background(), f.store)
	require.NoError(t, err)
	require.Equal(t, before.Tokens, after.Tokens)
}

func TestLogout_WinsOverInFlightRefresh(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.login(t)

	gate := make(chan struct{})
	f.server.Script(http.MethodPost, identitytest.PathRefresh, identitytest.Response{Wait: gate})
	f.clock.Advance(time.Hour)

	done := make(chan error, 1)
	go func() {
		_, _, err := f.manager.GetValidToken(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return f.server.Calls(http.MethodPost, identitytest.PathRefresh) == 1
	}, 5*time.Second, 5*time.Millisecond)

	f.manager.Logout(ctx)
	close(gate)

	require.ErrorIs(t, <-done, apierrors.ErrSessionExpired)
	require.Equal(t, auth.StateAnonymous, f.manager.State())
	require.Equal(t, 0, f.store.Len())
	_, ok, err := f.manager.GetValidToken(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.login(t)

	changes, unsubscribe := f.manager.Subscribe()
	defer unsubscribe()

	f.manager.Logout(ctx)
	require.Equal(t, auth.StateAnonymous, f.manager.State())
	require.False(t, f.manager.Identity().IsAuthenticated())
	require.Equal(t, 0, f.store.Len())

	select {
	case <-changes:
	default:
		t.Fatal("expected a change notification")
	}

	_, ok, err := f.manager.GetValidToken(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// Logging out twice is harmless.
	f.manager.Logout(ctx)
}

func TestSubscribe(t *testing.T) {
	f := setupTestFixture(t)

	changes, unsubscribe := f.manager.Subscribe()
	f.login(t)

	// Several transitions coalesce into one pending notification.
	select {
	case <-changes:
	default:
		t.Fatal("expected a change notification")
	}
	select {
	case <-changes:
		t.Fatal("notifications should coalesce")
	default:
	}

	unsubscribe()
	unsubscribe()
	_, open := <-changes
	require.False(t, open)

	f.manager.Logout(context.Background())
}

func TestSubscribe_RefreshTransitions(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	changes, unsubscribe := f.manager.Subscribe()
	defer unsubscribe()

	gate := make(chan struct{})
	f.server.Script(http.MethodPost, identitytest.PathRefresh, identitytest.Response{Wait: gate})
	f.clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, _, err := f.manager.GetValidToken(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return f.manager.State() == auth.StateRefreshing
	}, 5*time.Second, 5*time.Millisecond)
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("expected a notification when the refresh started")
	}

	// A cancelled refresh falls back to the kept session and says so.
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.Eventually(t, func() bool {
		return f.manager.State() == auth.StateAuthenticated
	}, 5*time.Second, 5*time.Millisecond)
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("expected a notification when the refresh was abandoned")
	}
	close(gate)
}

func TestTokenSource(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	_, err := f.manager.TokenSource(ctx).Token()
	require.ErrorIs(t, err, apierrors.ErrSessionExpired)

	f.login(t)
	tok, err := f.manager.TokenSource(ctx).Token()
	require.NoError(t, err)
	require.Equal(t, token.TypeBearer, tok.TokenType)
	require.True(t, startTime.Add(time.Hour).Equal(tok.Expiry))

	req, err := http.NewRequest(http.MethodGet, f.server.URL, nil)
	require.NoError(t, err)
	tok.SetAuthHeader(req)
	require.Equal(t, "Bearer "+tok.AccessToken, req.Header.Get("Authorization"))
}

func TestCredential_StringHidesSecrets(t *testing.T) {
	c := auth.Credential{Email: testEmail, Password: testPassword, TwoFactorCode: "123456"}
	require.NotContains(t, c.String(), testPassword)
	require.NotContains(t, c.String(), "123456")
}

func TestState_String(t *testing.T) {
	require.Equal(t, "anonymous", auth.StateAnonymous.String())
	require.Equal(t, "refreshing", auth.StateRefreshing.String())
	require.Equal(t, "unknown", auth.State(42).String())
}
