package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/contestauth/internal/token"
)

// FakeAPIKey is the key accepted by FakeProvider.
const FakeAPIKey = "test-key"

// FakeProvider is an in-process stand-in for the remote identity REST API.
type FakeProvider struct {
	server   *httptest.Server
	issuer   *token.Issuer
	requests atomic.Int64

	mu        sync.Mutex
	accounts  map[string]*fakeAccount
	refresh   map[string]string
	failWith  string
	expiresIn string
}

type fakeAccount struct {
	uid      string
	email    string
	password string
}

// NewFakeProvider starts a provider that is closed when the test ends.
func NewFakeProvider(t *testing.T) *FakeProvider {
	t.Helper()
	f := &FakeProvider{
		issuer:    token.NewIssuer("fake-provider"),
		accounts:  make(map[string]*fakeAccount),
		refresh:   make(map[string]string),
		expiresIn: "3600",
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// IdentityURL is the base URL of the account endpoints.
func (f *FakeProvider) IdentityURL() string { return f.server.URL + "/v1" }

// TokenURL is the base URL of the token endpoint.
func (f *FakeProvider) TokenURL() string { return f.server.URL + "/token/v1" }

// Requests returns the number of requests served so far.
func (f *FakeProvider) Requests() int { return int(f.requests.Load()) }

// AddAccount registers an account directly and returns its uid.
func (f *FakeProvider) AddAccount(email, password string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc := &fakeAccount{uid: uuid.NewString(), email: email, password: password}
	f.accounts[email] = acc
	return acc.uid
}

// DeleteAccount removes an account out of band.
func (f *FakeProvider) DeleteAccount(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.accounts, email)
}

// Password returns the stored password for email.
func (f *FakeProvider) Password(email string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[email]
	if !ok {
		return "", false
	}
	return acc.password, true
}

// HasAccount reports whether email is registered.
func (f *FakeProvider) HasAccount(email string) bool {
	_, ok := f.Password(email)
	return ok
}

// FailWith makes every endpoint answer with the given provider code. Empty restores normal behaviour.
func (f *FakeProvider) FailWith(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = code
}

// SetExpiresIn changes the token lifetime reported in responses.
func (f *FakeProvider) SetExpiresIn(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiresIn = v
}

func (f *FakeProvider) handle(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)

	if r.URL.Query().Get("key") != FakeAPIKey {
		writeProviderError(w, http.StatusBadRequest, "API_KEY_INVALID")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != "" {
		writeProviderError(w, http.StatusBadRequest, f.failWith)
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, "/accounts:signUp"):
		f.signUp(w, r)
	case strings.HasSuffix(r.URL.Path, "/accounts:signInWithPassword"):
		f.signIn(w, r)
	case strings.HasSuffix(r.URL.Path, "/accounts:update"):
		f.update(w, r)
	case strings.HasSuffix(r.URL.Path, "/accounts:sendOobCode"):
		writeJSON(w, map[string]string{"email": "sent"})
	case strings.HasSuffix(r.URL.Path, "/token"):
		f.token(w, r)
	default:
		http.NotFound(w, r)
	}
}

type fakeCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	IDToken  string `json:"idToken"`
}

func (f *FakeProvider) signUp(w http.ResponseWriter, r *http.Request) {
	var req fakeCredentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProviderError(w, http.StatusBadRequest, "INVALID_JSON")
		return
	}
	if !strings.Contains(req.Email, "@") {
		writeProviderError(w, http.StatusBadRequest, "INVALID_EMAIL")
		return
	}
	if len(req.Password) < 6 {
		writeProviderError(w, http.StatusBadRequest, "WEAK_PASSWORD : Password should be at least 6 characters")
		return
	}
	if _, ok := f.accounts[req.Email]; ok {
		writeProviderError(w, http.StatusBadRequest, "EMAIL_EXISTS")
		return
	}

	acc := &fakeAccount{uid: uuid.NewString(), email: req.Email, password: req.Password}
	f.accounts[req.Email] = acc
	f.writeSession(w, acc)
}

func (f *FakeProvider) signIn(w http.ResponseWriter, r *http.Request) {
	var req fakeCredentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProviderError(w, http.StatusBadRequest, "INVALID_JSON")
		return
	}

	acc, ok := f.accounts[req.Email]
	if !ok {
		writeProviderError(w, http.StatusBadRequest, "EMAIL_NOT_FOUND")
		return
	}
	if acc.password != req.Password {
		writeProviderError(w, http.StatusBadRequest, "INVALID_PASSWORD")
		return
	}
	f.writeSession(w, acc)
}

func (f *FakeProvider) update(w http.ResponseWriter, r *http.Request) {
	var req fakeCredentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProviderError(w, http.StatusBadRequest, "INVALID_JSON")
		return
	}

	claims, err := f.issuer.Verify(req.IDToken)
	if err != nil {
		writeProviderError(w, http.StatusBadRequest, "INVALID_ID_TOKEN")
		return
	}
	acc, ok := f.accounts[claims.Email]
	if !ok {
		writeProviderError(w, http.StatusBadRequest, "USER_NOT_FOUND")
		return
	}

	acc.password = req.Password
	f.writeSession(w, acc)
}

func (f *FakeProvider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
		writeProviderError(w, http.StatusBadRequest, "INVALID_GRANT_TYPE")
		return
	}

	email, ok := f.refresh[r.PostForm.Get("refresh_token")]
	if !ok {
		writeProviderError(w, http.StatusBadRequest, "INVALID_REFRESH_TOKEN")
		return
	}
	acc, ok := f.accounts[email]
	if !ok {
		writeProviderError(w, http.StatusBadRequest, "USER_NOT_FOUND")
		return
	}

	idToken, refreshToken := f.mint(acc)
	writeJSON(w, map[string]string{
		"id_token":      idToken,
		"refresh_token": refreshToken,
		"expires_in":    f.expiresIn,
		"token_type":    "Bearer",
	})
}

// IssueRefreshToken returns a refresh token valid for email without a sign-in.
func (f *FakeProvider) IssueRefreshToken(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt := uuid.NewString()
	f.refresh[rt] = email
	return rt
}

func (f *FakeProvider) writeSession(w http.ResponseWriter, acc *fakeAccount) {
	idToken, refreshToken := f.mint(acc)
	writeJSON(w, map[string]string{
		"idToken":      idToken,
		"refreshToken": refreshToken,
		"localId":      acc.uid,
		"email":        acc.email,
		"expiresIn":    f.expiresIn,
	})
}

func (f *FakeProvider) mint(acc *fakeAccount) (string, string) {
	idToken, err := f.issuer.Issue(acc.uid, acc.email, time.Hour)
	if err != nil {
		panic(err)
	}
	rt := uuid.NewString()
	f.refresh[rt] = acc.email
	return idToken, rt
}

func writeProviderError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
