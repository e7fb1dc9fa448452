package httpapi

import (
	"errors"
	"net/http"
	"time"

	"vendora.dev/internal/audit"
	"vendora.dev/internal/auth"
	"vendora.dev/internal/obs"
	"vendora.dev/internal/reset"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type tokenPairResponse struct {
	AccessToken      string        `json:"access_token"`
	RefreshToken     string        `json:"refresh_token"`
	TokenType        string        `json:"token_type"`
	AccessExpiresAt  time.Time     `json:"access_expires_at"`
	RefreshExpiresAt time.Time     `json:"refresh_expires_at"`
	User             *userResponse `json:"user,omitempty"`
}

// forgotMessage is the single body every forgot-password request receives,
// whatever happened internally.
const forgotMessage = "If the email exists, a reset link has been sent"

func pairResponse(pair auth.TokenPair, user *auth.User) tokenPairResponse {
	resp := tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
	if user != nil {
		resp.User = &userResponse{ID: user.ID, Email: user.Email, Role: string(user.Role)}
	}
	return resp
}

func (a *API) record(e audit.Entry) {
	if a.recorder != nil {
		a.recorder.Record(e)
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, user, err := a.auth.Register(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "Email already registered")
		return
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "Invalid email or password")
		return
	default:
		writeError(w, r, http.StatusInternalServerError, "registration failed")
		return
	}

	a.record(audit.Entry{
		Action:   audit.ActionUserRegistered,
		ActorID:  user.ID,
		ClientIP: clientIP(r),
	})
	writeJSON(w, http.StatusCreated, pairResponse(pair, user))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, user, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			a.record(audit.Entry{
				Action:   audit.ActionLoginFailed,
				ClientIP: clientIP(r),
				Metadata: map[string]string{"email": auth.NormalizeEmail(req.Email)},
			})
			writeError(w, r, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	a.record(audit.Entry{
		Action:   audit.ActionLogin,
		ActorID:  user.ID,
		ClientIP: clientIP(r),
	})
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusOK, pairResponse(pair, user))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, user, err := a.auth.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidToken),
			errors.Is(err, auth.ErrRefreshRevoked),
			errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusUnauthorized, "Invalid refresh token")
		default:
			writeError(w, r, http.StatusInternalServerError, "refresh failed")
		}
		return
	}

	a.record(audit.Entry{
		Action:   audit.ActionTokenRefreshed,
		ActorID:  user.ID,
		ClientIP: clientIP(r),
	})
	writeJSON(w, http.StatusOK, pairResponse(pair, nil))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, r, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	if err := a.auth.RevokeAll(r.Context(), id.UserID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}
	a.record(audit.Entry{
		Action:   audit.ActionLogout,
		ActorID:  id.UserID,
		ClientIP: clientIP(r),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req forgotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Whatever the internal outcome, the body below is the only answer. A
	// store failure is logged, never surfaced, to keep the response uniform.
	if _, err := a.reset.Forgot(r.Context(), req.Email, clientIP(r)); err != nil {
		obs.LogError("forgot-password processing failed", map[string]any{
			"error": err.Error(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": forgotMessage})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err := a.reset.Reset(r.Context(), req.Token, req.NewPassword, clientIP(r))
	switch {
	case err == nil:
	case errors.Is(err, reset.ErrAlreadyUsed):
		writeError(w, r, http.StatusBadRequest, "Reset token has already been used")
		return
	case errors.Is(err, reset.ErrInvalidOrExpired):
		writeError(w, r, http.StatusBadRequest, "Invalid or expired reset token")
		return
	case errors.Is(err, reset.ErrWeakPassword):
		writeError(w, r, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	default:
		writeError(w, r, http.StatusInternalServerError, "password reset failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Password has been reset"})
}
