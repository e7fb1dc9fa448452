package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vendora.dev/internal/auth"
	"vendora.dev/internal/files"
	"vendora.dev/internal/reset"
)

type fakeAuth struct {
	users      map[string]string // email -> password
	identities map[string]auth.Identity
	revoked    []string
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		users:      map[string]string{"alice@example.com": "correct horse"},
		identities: map[string]auth.Identity{"valid-access": {UserID: "u1", Role: auth.RoleCustomer}},
	}
}

func (f *fakeAuth) pair() auth.TokenPair {
	return auth.TokenPair{
		AccessToken:      "valid-access",
		RefreshToken:     "refresh-1",
		AccessExpiresAt:  time.Now().Add(15 * time.Minute),
		RefreshExpiresAt: time.Now().Add(14 * 24 * time.Hour),
	}
}

func (f *fakeAuth) Register(ctx context.Context, email, password string) (auth.TokenPair, *auth.User, error) {
	if _, taken := f.users[auth.NormalizeEmail(email)]; taken {
		return auth.TokenPair{}, nil, auth.ErrAlreadyExists
	}
	if len(password) < 8 {
		return auth.TokenPair{}, nil, auth.ErrInvalidInput
	}
	u := &auth.User{ID: "u2", Email: auth.NormalizeEmail(email), Role: auth.RoleCustomer}
	return f.pair(), u, nil
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (auth.TokenPair, *auth.User, error) {
	if f.users[auth.NormalizeEmail(email)] != password {
		return auth.TokenPair{}, nil, auth.ErrInvalidCredentials
	}
	u := &auth.User{ID: "u1", Email: auth.NormalizeEmail(email), Role: auth.RoleCustomer}
	return f.pair(), u, nil
}

func (f *fakeAuth) Rotate(ctx context.Context, refreshToken string) (auth.TokenPair, *auth.User, error) {
	if refreshToken != "refresh-1" {
		return auth.TokenPair{}, nil, auth.ErrInvalidToken
	}
	return f.pair(), &auth.User{ID: "u1", Role: auth.RoleCustomer}, nil
}

func (f *fakeAuth) RevokeAll(ctx context.Context, userID string) error {
	f.revoked = append(f.revoked, userID)
	return nil
}

func (f *fakeAuth) VerifyAccess(token string) (auth.Identity, error) {
	id, ok := f.identities[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return id, nil
}

type fakeReset struct {
	forgotCalls []string
	resetErr    error
}

func (f *fakeReset) Forgot(ctx context.Context, email, clientIP string) (reset.Outcome, error) {
	f.forgotCalls = append(f.forgotCalls, email)
	if strings.Contains(email, "unknown") {
		return reset.OutcomeUserNotFound, nil
	}
	return reset.OutcomeIssued, nil
}

func (f *fakeReset) Reset(ctx context.Context, token, newPassword, clientIP string) error {
	return f.resetErr
}

type fakeFiles struct {
	listErr error
	linkErr error
}

func (f *fakeFiles) ListFiles(ctx context.Context, id auth.Identity, orderID string) ([]files.FileMeta, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []files.FileMeta{{ID: "f1", Name: "book.pdf", ContentType: "application/pdf"}}, nil
}

func (f *fakeFiles) DownloadLink(ctx context.Context, id auth.Identity, orderID, fileID, clientIP string) (*files.Link, error) {
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	return &files.Link{URL: "https://cdn.test/assets/book.pdf?sig=ok", ExpiresIn: 300}, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) bool { return false }

type testEnv struct {
	api   *API
	auth  *fakeAuth
	reset *fakeReset
	files *fakeFiles
}

func newTestAPI(t *testing.T, limits Limiters) *testEnv {
	t.Helper()
	env := &testEnv{
		auth:  newFakeAuth(),
		reset: &fakeReset{},
		files: &fakeFiles{},
	}
	env.api = New(env.auth, env.reset, env.files, nil, limits, ReadyProbe{}, "test")
	return env
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return m
}

func TestRegisterStatusCodes(t *testing.T) {
	env := newTestAPI(t, Limiters{})
	h := env.api.Handler()

	rr := doJSON(t, h, http.MethodPost, "/v1/auth/register",
		map[string]string{"email": "bob@example.com", "password": "long enough"}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: got %d, want 201: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["access_token"] != "valid-access" || body["refresh_token"] != "refresh-1" {
		t.Fatalf("missing tokens in %v", body)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/auth/register",
		map[string]string{"email": "alice@example.com", "password": "long enough"}, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate: got %d, want 409", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/auth/register",
		map[string]string{"email": "bob@example.com", "password": "short"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("weak password: got %d, want 400", rr.Code)
	}
}

func TestLoginStatusCodes(t *testing.T) {
	env := newTestAPI(t, Limiters{})
	h := env.api.Handler()

	rr := doJSON(t, h, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "alice@example.com", "password": "correct horse"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: got %d, want 200: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/auth/login",
		map[string]string{"email": "alice@example.com", "password": "wrong"}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: got %d, want 401", rr.Code)
	}
	if got := decodeBody(t, rr)["error"]; got != "Invalid email or password" {
		t.Fatalf("unexpected body: %v", got)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	env := newTestAPI(t, Limiters{})
	h := env.api.Handler()

	rr := doJSON(t, h, http.MethodPost, "/v1/auth/refresh",
		map[string]string{"refresh_token": "refresh-1"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: got %d, want 200", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/auth/refresh",
		map[string]string{"refresh_token": "stolen"}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad refresh: got %d, want 401", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/auth/logout", map[string]string{}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous logout: got %d, want 401", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/auth/logout", map[string]string{},
		map[string]string{"Authorization": "Bearer valid-access"})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("logout: got %d, want 204: %s", rr.Code, rr.Body.String())
	}
	if len(env.auth.revoked) != 1 || env.auth.revoked[0] != "u1" {
		t.Fatalf("expected RevokeAll for u1, got %v", env.auth.revoked)
	}
}

func TestForgotPasswordUniformResponse(t *testing.T) {
	env := newTestAPI(t, Limiters{})
	h := env.api.Handler()

	known := doJSON(t, h, http.MethodPost, "/v1/auth/forgot-password",
		map[string]string{"email": "alice@example.com"}, nil)
	unknown := doJSON(t, h, http.MethodPost, "/v1/auth/forgot-password",
		map[string]string{"email": "unknown@example.com"}, nil)

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("expected 200/200, got %d/%d", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Fatalf("responses differ: %q vs %q", known.Body.String(), unknown.Body.String())
	}
	if len(env.reset.forgotCalls) != 2 {
		t.Fatalf("expected 2 service calls, got %d", len(env.reset.forgotCalls))
	}
}

func TestResetPasswordErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		body string
	}{
		{nil, http.StatusOK, "Password has been reset"},
		{reset.ErrInvalidOrExpired, http.StatusBadRequest, "Invalid or expired reset token"},
		{reset.ErrAlreadyUsed, http.StatusBadRequest, "Reset token has already been used"},
		{reset.ErrWeakPassword, http.StatusBadRequest, "Password must be at least 8 characters"},
		{errors.New("pg down"), http.StatusInternalServerError, "password reset failed"},
	}
	for _, tc := range cases {
		env := newTestAPI(t, Limiters{})
		env.reset.resetErr = tc.err
		rr := doJSON(t, env.api.Handler(), http.MethodPost, "/v1/auth/reset-password",
			map[string]string{"token": "id.secret", "new_password": "long enough"}, nil)
		if rr.Code != tc.code {
			t.Fatalf("err=%v: got %d, want %d", tc.err, rr.Code, tc.code)
		}
		body := decodeBody(t, rr)
		msg := body["message"]
		if tc.code != http.StatusOK {
			msg = body["error"]
		}
		if msg != tc.body {
			t.Fatalf("err=%v: got body %v, want %q", tc.err, msg, tc.body)
		}
	}
}

func TestOrdersRoutes(t *testing.T) {
	env := newTestAPI(t, Limiters{})
	h := env.api.Handler()
	authz := map[string]string{"Authorization": "Bearer valid-access"}

	rr := doJSON(t, h, http.MethodGet, "/v1/orders/o1/files", nil, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list: got %d, want 401", rr.Code)
	}

	rr = doJSON(t, h, http.MethodGet, "/v1/orders/o1/files", nil, authz)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: got %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "book.pdf") {
		t.Fatalf("missing file metadata: %s", rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "http") {
		t.Fatalf("listing must not contain URLs: %s", rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodGet, "/v1/orders/o1/files/f1/download", nil, authz)
	if rr.Code != http.StatusOK {
		t.Fatalf("download: got %d, want 200: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["download_url"] != "https://cdn.test/assets/book.pdf?sig=ok" || body["expires_in"] != float64(300) {
		t.Fatalf("unexpected download body: %v", body)
	}

	rr = doJSON(t, h, http.MethodGet, "/v1/orders/o1/unknown", nil, authz)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("bad subpath: got %d, want 404", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/orders/o1/files", nil, authz)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("post: got %d, want 405", rr.Code)
	}
}

func TestOrdersErrorMapping(t *testing.T) {
	authz := map[string]string{"Authorization": "Bearer valid-access"}
	cases := []struct {
		err  error
		code int
	}{
		{files.ErrNotFound, http.StatusNotFound},
		{files.ErrForbidden, http.StatusForbidden},
		{files.ErrSigningFailed, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		env := newTestAPI(t, Limiters{})
		env.files.linkErr = tc.err
		rr := doJSON(t, env.api.Handler(), http.MethodGet, "/v1/orders/o1/files/f1/download", nil, authz)
		if rr.Code != tc.code {
			t.Fatalf("err=%v: got %d, want %d", tc.err, rr.Code, tc.code)
		}
	}
}

func TestRateLimitedRoutesReturn429(t *testing.T) {
	env := newTestAPI(t, Limiters{Forgot: denyLimiter{}})
	h := env.api.Handler()

	rr := doJSON(t, h, http.MethodPost, "/v1/auth/forgot-password",
		map[string]string{"email": "alice@example.com"}, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
	if len(env.reset.forgotCalls) != 0 {
		t.Fatal("limited request must not reach the service")
	}
}

func TestHealthAndInfo(t *testing.T) {
	env := newTestAPI(t, Limiters{})
	h := env.api.Handler()

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		rr := doJSON(t, h, http.MethodGet, path, nil, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: got %d, want 200", path, rr.Code)
		}
	}

	rr := doJSON(t, h, http.MethodGet, "/healthz", nil, nil)
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing security headers")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}
