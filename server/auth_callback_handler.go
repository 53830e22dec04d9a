package server

import (
	"net/http"

	"github.com/jrsteele09/twill/lifecycle"
	"github.com/rs/zerolog/log"
)

// AuthorizeHandler redirects to the LMS authorization page with a fresh state.
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := launchedSession(r)

		flow := lifecycle.NewFlowAt(lifecycle.Unauthenticated)
		authURL, err := s.lifecycle.BeginAuthorization(flow, sess.NewOAuthState())
		if err != nil {
			log.Err(err).Msg("Failed to begin authorization")
			http.Error(w, msgInternal, http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, authURL, http.StatusSeeOther)
	}
}

// OAuthCallbackHandler trades the authorization code for a stored credential.
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := launchedSession(r)
		state := r.FormValue("state")
		code := r.FormValue("code")

		// Check for authorization errors
		if errorParam := r.FormValue("error"); errorParam != "" {
			log.Error().Str("error", errorParam).Str("description", r.FormValue("error_description")).Msg("Authorization refused")
			http.Error(w, msgAuthFailed, http.StatusInternalServerError)
			return
		}

		if !sess.ConsumeOAuthState(state) {
			log.Error().Msg("OAuth callback state mismatch")
			http.Error(w, msgAuthFailed, http.StatusInternalServerError)
			return
		}

		flow, err := s.lifecycle.Exchange(r.Context(), s.identity(sess), code)
		if err != nil {
			log.Err(err).Str("flow", flow.String()).Msg("Authorization code exchange failed")
			http.Error(w, msgAuthFailed, http.StatusInternalServerError)
			return
		}

		redirectSuccess(w, r, RouteLogin)
	}
}
