package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"vendora.dev/internal/audit"
	"vendora.dev/internal/auth"
	"vendora.dev/internal/files"
	"vendora.dev/internal/obs"
	"vendora.dev/internal/ratelimit"
	"vendora.dev/internal/reset"
)

// AuthService is the slice of the token service the HTTP layer needs.
type AuthService interface {
	Register(ctx context.Context, email, password string) (auth.TokenPair, *auth.User, error)
	Login(ctx context.Context, email, password string) (auth.TokenPair, *auth.User, error)
	Rotate(ctx context.Context, refreshToken string) (auth.TokenPair, *auth.User, error)
	RevokeAll(ctx context.Context, userID string) error
	VerifyAccess(token string) (auth.Identity, error)
}

// ResetService handles the forgot/reset password protocol.
type ResetService interface {
	Forgot(ctx context.Context, email, clientIP string) (reset.Outcome, error)
	Reset(ctx context.Context, token, newPassword, clientIP string) error
}

// FileService lists deliverables and mints download references.
type FileService interface {
	ListFiles(ctx context.Context, id auth.Identity, orderID string) ([]files.FileMeta, error)
	DownloadLink(ctx context.Context, id auth.Identity, orderID, fileID, clientIP string) (*files.Link, error)
}

// Limiters holds one limiter per route class. A nil limiter disables
// throttling for that class.
type Limiters struct {
	Login     ratelimit.Limiter
	Refresh   ratelimit.Limiter
	Forgot    ratelimit.Limiter
	Reset     ratelimit.Limiter
	Downloads ratelimit.Limiter
}

// ReadyProbe checks readiness (DB ping when wired).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       AuthService
	reset      ResetService
	files      FileService
	recorder   *audit.Recorder
	limits     Limiters
	readyProbe ReadyProbe
	version    string
}

func New(authSvc AuthService, resetSvc ResetService, fileSvc FileService, recorder *audit.Recorder, limits Limiters, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       authSvc,
		reset:      resetSvc,
		files:      fileSvc,
		recorder:   recorder,
		limits:     limits,
		readyProbe: rp,
		version:    version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.limited(a.limits.Login, "login", a.handleLogin))
	a.mux.HandleFunc("/v1/auth/refresh", a.limited(a.limits.Refresh, "refresh", a.handleRefresh))
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/forgot-password", a.limited(a.limits.Forgot, "forgot_password", a.handleForgotPassword))
	a.mux.HandleFunc("/v1/auth/reset-password", a.limited(a.limits.Reset, "reset_password", a.handleResetPassword))

	// order deliverables
	a.mux.HandleFunc("/v1/orders/", a.limited(a.limits.Downloads, "downloads", a.handleOrders))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = obs.Instrument(h)
	h = RequestID(h)
	h = Logging(h)
	h = SecurityHeaders(h)
	return h
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "vendora-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "vendora-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
