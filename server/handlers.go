package server

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/twill/credentials"
	apperrors "github.com/jrsteele09/twill/internal/errors"
	"github.com/jrsteele09/twill/lifecycle"
	"github.com/jrsteele09/twill/session"
	"github.com/rs/zerolog/log"
)

// LaunchHandler validates an LTI launch POST and records its context in the session.
func (s *Server) LaunchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := session.FromContext(r.Context())

		lc, err := s.launches.Validate(r)
		flow := s.lifecycle.Launch(err)
		if err != nil {
			sess.ClearLaunch()
			log.Err(err).Str("flow", flow.String()).Msg("LTI launch denied")
			if apperrors.Is(err, apperrors.ErrInvalidLTIKey) {
				writeRawJSON(w, msgInvalidLTIKey, http.StatusForbidden)
				return
			}
			writeRawJSON(w, msgInvalidLaunch, http.StatusInternalServerError)
			return
		}

		sess.SetLaunch(lc)
		redirectSuccess(w, r, RouteLogin)
	}
}

// LoginHandler sends a launched user to authorization or to the tool, refreshing
// an expiring token on the way.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := launchedSession(r)

		out, err := s.lifecycle.Login(r.Context(), s.identity(sess))
		if err != nil {
			log.Err(err).Str("flow", out.Flow.String()).Msg("Login failed")
			if apperrors.Is(err, apperrors.ErrAuthExchangeFailed) {
				http.Error(w, msgRefreshFailed, http.StatusInternalServerError)
				return
			}
			http.Error(w, msgInternal, http.StatusInternalServerError)
			return
		}

		log.Debug().Str("flow", out.Flow.String()).Msg("Login")
		switch out.State {
		case lifecycle.Unauthenticated:
			redirectSuccess(w, r, RouteAuthCanvas)
		case lifecycle.Ready:
			redirectSuccess(w, r, RouteTwill)
		default:
			log.Error().Str("state", out.State.String()).Msg("Login ended in an unexpected state")
			http.Error(w, msgInternal, http.StatusInternalServerError)
		}
	}
}

// launchSummary is what the tool page needs to bootstrap the visualization.
type launchSummary struct {
	Title    string `json:"title"`
	Host     string `json:"host"`
	CourseID string `json:"course_id"`
	UserID   string `json:"user_id"`
}

// IndexHandler describes the launch the tool was opened with.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		launch := launchedSession(r).Launch
		writeJSON(w, http.StatusOK, launchSummary{
			Title:    s.config.GetAppName(),
			Host:     launch.LMSInstanceHost,
			CourseID: launch.CourseID,
			UserID:   launch.ExternalUserID,
		})
	}
}

// HealthHandler reports liveness, pinging the credential store when it is remote.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger, ok := s.lifecycle.Store().(credentials.Pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				log.Err(err).Msg("Credential store ping failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
