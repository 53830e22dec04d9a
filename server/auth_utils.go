package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/jrsteele09/twill/internal/errors"
	"github.com/rs/zerolog/log"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeRawJSON writes one of the fixed JSON bodies.
func writeRawJSON(w http.ResponseWriter, body string, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// redirectSuccess sends the browser on with a GET.
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// writeTokenError answers a data route whose credential could not be produced.
func writeTokenError(w http.ResponseWriter, err error) {
	switch {
	case apperrors.Is(err, apperrors.ErrCredentialNotFound):
		writeJSONError(w, msgNotAuthenticated, http.StatusUnauthorized)
	case apperrors.Is(err, apperrors.ErrAuthExchangeFailed):
		writeJSONError(w, msgRefreshFailed, http.StatusUnauthorized)
	default:
		writeJSONError(w, msgInternal, http.StatusInternalServerError)
	}
}

// writeUpstreamError maps a failed LMS fetch onto the data route's response.
func writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case apperrors.Is(err, apperrors.ErrUpstreamAuth):
		writeJSONError(w, msgCanvasRejected, http.StatusUnauthorized)
	case apperrors.Is(err, apperrors.ErrUpstreamFetchFailed):
		writeJSONError(w, msgCanvasFailed, http.StatusBadGateway)
	default:
		writeJSONError(w, msgInternal, http.StatusInternalServerError)
	}
}
