package server

import (
	"net/http"

	"github.com/jrsteele09/twill/session"
	"github.com/rs/zerolog/log"
)

// RequireLaunch rejects requests whose session carries no verified LTI launch.
// Must run after SessionMiddleware.
func (s *Server) RequireLaunch(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session.FromContext(r.Context())
		if !ok || !sess.Launch.Valid() {
			log.Warn().Str("path", r.URL.Path).Msg("Access without a valid LTI launch")
			http.Error(w, msgLaunchRequired, http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// launchedSession returns the session RequireLaunch already checked.
func launchedSession(r *http.Request) *session.Session {
	sess, _ := session.FromContext(r.Context())
	return sess
}
