// Package testutil runs a fake in-memory Dishpal backend for tests. It speaks
// the real authentication REST contract (login, register, token refresh,
// user-info, user-profile, guest-token) and counts refresh calls so tests can
// assert the single-flight property.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dishpal-ai/dishpal-cli/internal/models"
)

type fakeUser struct {
	user     models.User
	password string
}

type FakeBackend struct {
	srv *httptest.Server

	mu            sync.Mutex
	users         map[string]*fakeUser // keyed by username
	accessTokens  map[string]string    // access token -> username
	refreshTokens map[string]string    // refresh token -> username
	seq           int
	refreshCalls  int
	userInfoCalls int

	// ForceUnauthorized makes every protected endpoint answer 401 even for
	// valid tokens, to exercise the at-most-one-retry path
	ForceUnauthorized bool

	// FailRefresh makes the refresh endpoint answer 401 unconditionally
	FailRefresh bool

	// RefreshHook runs inside the refresh handler after the call is counted
	// and before the response is written. Lets a test hold a refresh cycle
	// in flight.
	RefreshHook func()
}

func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	b := &FakeBackend{
		users:         make(map[string]*fakeUser),
		accessTokens:  make(map[string]string),
		refreshTokens: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/authentication/v1/login/", b.handleLogin)
	mux.HandleFunc("POST /api/authentication/v1/register/", b.handleRegister)
	mux.HandleFunc("POST /api/authentication/v1/token/refresh/", b.handleRefresh)
	mux.HandleFunc("GET /api/authentication/v1/user-info/", b.handleUserInfo)
	mux.HandleFunc("GET /api/authentication/v1/user-profile/", b.handleUserProfile)
	mux.HandleFunc("POST /api/authentication/v1/guest-token/", b.handleGuestToken)

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)

	return b
}

func (b *FakeBackend) URL() string {
	return b.srv.URL
}

// AddUser seeds an account and returns its record.
func (b *FakeBackend) AddUser(username, email, password string) models.User {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	user := models.User{
		ID:         int64(b.seq),
		Username:   username,
		Email:      email,
		Role:       "user",
		IsActive:   true,
		DateJoined: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	b.users[username] = &fakeUser{user: user, password: password}
	return user
}

// IssueTokens mints a valid token pair for a seeded user, for putting the
// client into an authenticated state without going through login.
func (b *FakeBackend) IssueTokens(username string) models.TokenPair {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issuePairLocked(username)
}

// RevokeAccessTokens invalidates every outstanding access token while keeping
// refresh tokens valid, simulating access expiry.
func (b *FakeBackend) RevokeAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accessTokens = make(map[string]string)
}

func (b *FakeBackend) RefreshCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

func (b *FakeBackend) UserInfoCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userInfoCalls
}

func (b *FakeBackend) issuePairLocked(username string) models.TokenPair {
	b.seq++
	pair := models.TokenPair{
		Access:  fmt.Sprintf("access-%d", b.seq),
		Refresh: fmt.Sprintf("refresh-%d", b.seq),
	}
	b.accessTokens[pair.Access] = username
	b.refreshTokens[pair.Refresh] = username
	return pair
}

func (b *FakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for username, fu := range b.users {
		if (username == req.Username || fu.user.Email == req.Email) && fu.password == req.Password {
			now := time.Now().UTC().Truncate(time.Second)
			fu.user.LastLogin = &now
			writeJSON(w, http.StatusOK, b.issuePairLocked(username))
			return
		}
	}
	writeError(w, http.StatusUnauthorized, "User not found")
}

func (b *FakeBackend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username        string `json:"username"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.users[req.Username]; exists {
		writeError(w, http.StatusConflict, "User already exists")
		return
	}

	b.seq++
	b.users[req.Username] = &fakeUser{
		user: models.User{
			ID:         int64(b.seq),
			Username:   req.Username,
			Email:      req.Email,
			Role:       "user",
			IsActive:   true,
			DateJoined: time.Now().UTC().Truncate(time.Second),
		},
		password: req.Password,
	}
	writeJSON(w, http.StatusCreated, b.issuePairLocked(req.Username))
}

func (b *FakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.refreshCalls++
	hook := b.RefreshHook
	fail := b.FailRefresh
	b.mu.Unlock()

	if hook != nil {
		hook()
	}
	if fail {
		writeError(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}

	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	username, ok := b.refreshTokens[req.Refresh]
	if !ok {
		writeError(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}

	// Rotate: the used refresh token is gone
	delete(b.refreshTokens, req.Refresh)
	writeJSON(w, http.StatusOK, b.issuePairLocked(username))
}

func (b *FakeBackend) authenticate(r *http.Request) (*fakeUser, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ForceUnauthorized {
		return nil, false
	}

	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return nil, false
	}

	username, ok := b.accessTokens[header[len(prefix):]]
	if !ok {
		return nil, false
	}
	return b.users[username], true
}

func (b *FakeBackend) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.userInfoCalls++
	b.mu.Unlock()

	fu, ok := b.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
		return
	}
	writeJSON(w, http.StatusOK, fu.user)
}

func (b *FakeBackend) handleUserProfile(w http.ResponseWriter, r *http.Request) {
	fu, ok := b.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
		return
	}
	writeJSON(w, http.StatusOK, models.Profile{User: fu.user, Language: "en", Country: "AT"})
}

func (b *FakeBackend) handleGuestToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": "guest-" + req.Email})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
