package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"vendora.dev/internal/files"
)

type downloadResponse struct {
	DownloadURL string `json:"download_url"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleOrders routes /v1/orders/{orderID}/files and
// /v1/orders/{orderID}/files/{fileID}/download.
func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[1] == "files" && parts[0] != "":
		a.handleListFiles(w, r, parts[0])
	case len(parts) == 4 && parts[1] == "files" && parts[3] == "download" && parts[0] != "" && parts[2] != "":
		a.handleDownload(w, r, parts[0], parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "Not found")
	}
}

func (a *API) handleListFiles(w http.ResponseWriter, r *http.Request, orderID string) {
	id, r, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	metas, err := a.files.ListFiles(r.Context(), id, orderID)
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "Not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "listing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": metas})
}

func (a *API) handleDownload(w http.ResponseWriter, r *http.Request, orderID, fileID string) {
	id, r, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	link, err := a.files.DownloadLink(r.Context(), id, orderID, fileID, clientIP(r))
	switch {
	case err == nil:
	case errors.Is(err, files.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "Not found")
		return
	case errors.Is(err, files.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "Forbidden")
		return
	default:
		// Signing failure and unknown store errors collapse to one body; the
		// cause is already logged server side.
		writeError(w, r, http.StatusInternalServerError, "download link unavailable")
		return
	}

	writeJSON(w, http.StatusOK, downloadResponse{
		DownloadURL: link.URL,
		ExpiresIn:   link.ExpiresIn,
	})
}
