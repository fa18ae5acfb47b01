// Package identitytest runs a fake identity and resource API for tests. It issues signed
// HS256 access tokens, rotates refresh tokens, stores /api/{entity} records in memory and
// can be scripted to answer any route with a fixed sequence of responses.
package identitytest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-client/token"
	"github.com/jrsteele09/go-identity-client/users"
	"golang.org/x/crypto/bcrypt"
)

// Route paths served by the fake.
const (
	PathLogin    = "/identity/login"
	PathRefresh  = "/identity/refresh"
	PathRegister = "/identity/register"
	PathMe       = "/api/user/@me"
	PathManage   = "/identity/manage/info"
)

// Response is one scripted answer. Wait, if set, is received from before answering, which
// lets a test hold a request in flight.
type Response struct {
	Status     int
	Body       string
	RetryAfter string
	Header     http.Header
	Wait       <-chan struct{}
}

// Request is a request as the fake received it.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

type account struct {
	hash    []byte
	profile users.Profile
}

// Server is the fake. All methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	secret    []byte
	expiresIn int64
	nowTime   func() time.Time

	lock          sync.Mutex
	accounts      map[string]*account // email -> account
	accessTokens  map[string]string   // access token -> email
	refreshTokens map[string]string   // refresh token -> email
	scripts       map[string][]Response
	requests      []Request
	entities      map[string][]map[string]any
}

// Option configures a Server.
type Option func(*Server)

// WithExpiresIn sets the expiresIn seconds of every issued token set. Default 3600.
func WithExpiresIn(secs int64) Option {
	return func(s *Server) {
		s.expiresIn = secs
	}
}

// WithNowTime sets the clock used for the Date header of token responses.
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

// New starts a fake server that is closed when the test ends.
func New(t testing.TB, options ...Option) *Server {
	t.Helper()

	s := &Server{
		secret:        []byte(uuid.NewString()),
		expiresIn:     3600,
		nowTime:       time.Now,
		accounts:      make(map[string]*account),
		accessTokens:  make(map[string]string),
		refreshTokens: make(map[string]string),
		scripts:       make(map[string][]Response),
		entities:      make(map[string][]map[string]any),
	}
	for _, opt := range options {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathLogin, s.login)
	mux.HandleFunc("POST "+PathRefresh, s.refresh)
	mux.HandleFunc("POST "+PathRegister, s.register)
	mux.HandleFunc("GET "+PathMe, s.authorized(s.getMe))
	mux.HandleFunc("PUT "+PathMe, s.authorized(s.putMe))
	mux.HandleFunc("POST "+PathManage, s.authorized(s.changePassword))
	mux.HandleFunc("PUT /api/user/{id}/roles", s.authorized(s.putRoles))
	mux.HandleFunc("GET /api/{entity}", s.authorized(s.listEntities))
	mux.HandleFunc("POST /api/{entity}", s.authorized(s.insertEntity))
	mux.HandleFunc("GET /api/{entity}/{id}", s.authorized(s.getEntity))
	mux.HandleFunc("PUT /api/{entity}/{id}", s.authorized(s.updateEntity))
	mux.HandleFunc("DELETE /api/{entity}/{id}", s.authorized(s.deleteEntity))

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)
	return s
}

// AddUser registers an account that can log in.
func (s *Server) AddUser(email, password string, profile users.Profile) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("[identitytest.AddUser] %v", err))
	}
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	profile.Email = email

	s.lock.Lock()
	defer s.lock.Unlock()
	s.accounts[strings.ToLower(email)] = &account{hash: hash, profile: profile}
}

// Profile returns the stored profile of an account.
func (s *Server) Profile(email string) (users.Profile, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	a, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return users.Profile{}, false
	}
	return a.profile, true
}

// Script queues responses for "METHOD path". While the queue is non-empty each request to
// that route is answered from it instead of by the fake.
func (s *Server) Script(method, path string, responses ...Response) {
	s.lock.Lock()
	defer s.lock.Unlock()
	key := method + " " + path
	s.scripts[key] = append(s.scripts[key], responses...)
}

// RevokeAccessTokens makes every issued access token unknown, so authorized calls get 401.
func (s *Server) RevokeAccessTokens() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.accessTokens = make(map[string]string)
}

// Requests returns every request received so far, in arrival order.
func (s *Server) Requests() []Request {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Request(nil), s.requests...)
}

// Calls counts the requests received for a route.
func (s *Server) Calls(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Entities returns the records stored for an entity.
func (s *Server) Entities(entity string) []map[string]any {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]map[string]any(nil), s.entities[entity]...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.lock.Lock()
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
		key := r.Method + " " + r.URL.Path
		var scripted *Response
		if q := s.scripts[key]; len(q) > 0 {
			scripted = &q[0]
			s.scripts[key] = q[1:]
		}
		s.lock.Unlock()

		if scripted == nil {
			next.ServeHTTP(w, r)
			return
		}
		if scripted.Wait != nil {
			select {
			case <-scripted.Wait:
			case <-r.Context().Done():
				return
			}
		}
		if scripted.Status == 0 {
			next.ServeHTTP(w, r)
			return
		}
		for k, v := range scripted.Header {
			w.Header()[k] = v
		}
		if scripted.RetryAfter != "" {
			w.Header().Set("Retry-After", scripted.RetryAfter)
		}
		w.WriteHeader(scripted.Status)
		_, _ = io.WriteString(w, scripted.Body)
	})
}

func (s *Server) issue(email, subject string) token.Set {
	claims := jwtlib.MapClaims{
		"sub":   subject,
		"email": email,
		"iat":   s.nowTime().Unix(),
		"exp":   s.nowTime().Add(time.Duration(s.expiresIn) * time.Second).Unix(),
		"jti":   uuid.NewString(),
	}
	access, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("[identitytest.issue] %v", err))
	}
	set := token.Set{
		TokenType:    token.TypeBearer,
		AccessToken:  access,
		ExpiresIn:    s.expiresIn,
		RefreshToken: uuid.NewString(),
	}
	s.accessTokens[set.AccessToken] = email
	s.refreshTokens[set.RefreshToken] = email
	return set
}

func (s *Server) writeTokens(w http.ResponseWriter, set token.Set) {
	w.Header().Set("Date", s.nowTime().UTC().Format(http.TimeFormat))
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Malformed request body.")
		return
	}

	s.lock.Lock()
	a, ok := s.accounts[strings.ToLower(req.Email)]
	s.lock.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(a.hash, []byte(req.Password)) != nil {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	s.lock.Lock()
	set := s.issue(a.profile.Email, a.profile.ID)
	s.lock.Unlock()
	s.writeTokens(w, set)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Malformed request body.")
		return
	}

	s.lock.Lock()
	email, ok := s.refreshTokens[req.RefreshToken]
	if !ok {
		s.lock.Unlock()
		writeProblem(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	delete(s.refreshTokens, req.RefreshToken)
	set := s.issue(email, s.accounts[strings.ToLower(email)].profile.ID)
	s.lock.Unlock()
	s.writeTokens(w, set)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Malformed request body.")
		return
	}

	s.lock.Lock()
	_, exists := s.accounts[strings.ToLower(req.Email)]
	s.lock.Unlock()
	if exists {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"type":   "https://tools.ietf.org/html/rfc9110#section-15.5.1",
			"title":  "One or more validation errors occurred.",
			"status": http.StatusBadRequest,
			"errors": map[string][]string{
				"DuplicateUserName": {fmt.Sprintf("Username '%s' is already taken.", req.Email)},
			},
		})
		return
	}

	s.AddUser(req.Email, req.Password, users.Profile{})
	w.WriteHeader(http.StatusOK)
}

type authorizedHandler func(w http.ResponseWriter, r *http.Request, email string)

func (s *Server) authorized(next authorizedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, err := jwtlib.Parse(raw, func(t *jwtlib.Token) (any, error) {
			return s.secret, nil
		}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithoutClaimsValidation())
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		s.lock.Lock()
		email, ok := s.accessTokens[raw]
		s.lock.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r, email)
	}
}

func (s *Server) getMe(w http.ResponseWriter, _ *http.Request, email string) {
	profile, ok := s.Profile(email)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) putMe(w http.ResponseWriter, r *http.Request, email string) {
	var update users.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeProblem(w, http.StatusBadRequest, "Malformed request body.")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	a, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	a.profile.FirstName = update.FirstName
	a.profile.LastName = update.LastName
	a.profile.Title = update.Title
	a.profile.CompanyName = update.CompanyName
	a.profile.Photo = update.Photo
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request, email string) {
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Malformed request body.")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	a, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if bcrypt.CompareHashAndPassword(a.hash, []byte(req.OldPassword)) != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"title":  "One or more validation errors occurred.",
			"status": http.StatusBadRequest,
			"errors": map[string][]string{"PasswordMismatch": {"Incorrect password."}},
		})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.MinCost)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	a.hash = hash
	writeJSON(w, http.StatusOK, map[string]any{"email": a.profile.Email, "isEmailConfirmed": a.profile.EmailConfirmed})
}

func (s *Server) putRoles(w http.ResponseWriter, r *http.Request, _ string) {
	var roles []string
	if err := json.NewDecoder(r.Body).Decode(&roles); err != nil {
		writeProblem(w, http.StatusBadRequest, "Malformed request body.")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	for _, a := range s.accounts {
		if a.profile.ID == r.PathValue("id") {
			a.profile.Roles = roles
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) listEntities(w http.ResponseWriter, r *http.Request, _ string) {
	records := s.Entities(r.PathValue("entity"))
	if records == nil {
		records = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) insertEntity(w http.ResponseWriter, r *http.Request, _ string) {
	var rec map[string]any
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeProblem(w, http.StatusBadRequest, "Malformed request body.")
		return
	}
	if id, _ := rec["id"].(string); id == "" {
		rec["id"] = uuid.NewString()
	}

	entity := r.PathValue("entity")
	s.lock.Lock()
	if s.indexOf(entity, rec["id"].(string)) >= 0 {
		s.lock.Unlock()
		writeProblem(w, http.StatusConflict, "A record with this key already exists.")
		return
	}
	s.entities[entity] = append(s.entities[entity], rec)
	s.lock.Unlock()
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) getEntity(w http.ResponseWriter, r *http.Request, _ string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	i := s.indexOf(r.PathValue("entity"), r.PathValue("id"))
	if i < 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.entities[r.PathValue("entity")][i])
}

func (s *Server) updateEntity(w http.ResponseWriter, r *http.Request, _ string) {
	var rec map[string]any
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeProblem(w, http.StatusBadRequest, "Malformed request body.")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	entity, id := r.PathValue("entity"), r.PathValue("id")
	i := s.indexOf(entity, id)
	if i < 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	rec["id"] = id
	s.entities[entity][i] = rec
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteEntity(w http.ResponseWriter, r *http.Request, _ string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	entity := r.PathValue("entity")
	i := s.indexOf(entity, r.PathValue("id"))
	if i < 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.entities[entity] = append(s.entities[entity][:i], s.entities[entity][i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

// indexOf must be called with the lock held.
func (s *Server) indexOf(entity, id string) int {
	for i, rec := range s.entities[entity] {
		if v, _ := rec["id"].(string); v == id {
			return i
		}
	}
	return -1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"title": title, "status": status})
}
