package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"vendora.dev/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// requireIdentity authenticates the request via the bearer access token. On
// failure it writes the 401 itself and reports ok=false. On success the
// identity is also threaded into the returned request's context for downstream
// logging.
func (a *API) requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, *http.Request, bool) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return auth.Identity{}, r, false
	}
	id, err := a.auth.VerifyAccess(token)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return auth.Identity{}, r, false
	}
	return id, r.WithContext(auth.ContextWithIdentity(r.Context(), id)), true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
