package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/twill/canvas"
	"github.com/jrsteele09/twill/credentials"
	"github.com/jrsteele09/twill/discussion"
	"github.com/jrsteele09/twill/internal/config"
	"github.com/jrsteele09/twill/lifecycle"
	"github.com/jrsteele09/twill/lti"
	"github.com/jrsteele09/twill/session"
	"github.com/rs/zerolog/log"
)

// Services are the collaborators the HTTP layer drives.
type Services struct {
	Launches    *lti.Provider
	Sessions    *session.Manager
	Lifecycle   *lifecycle.Manager
	Canvas      *canvas.Client
	Discussions *discussion.Aggregator
}

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config

	launches    *lti.Provider
	sessions    *session.Manager
	lifecycle   *lifecycle.Manager
	canvas      *canvas.Client
	discussions *discussion.Aggregator
}

func New(config config.Config, services Services) (*Server, error) {
	if services.Launches == nil || services.Sessions == nil || services.Lifecycle == nil ||
		services.Canvas == nil || services.Discussions == nil {
		return nil, fmt.Errorf("[Server New] missing service: %+v", services)
	}

	s := &Server{
		env:         config.GetEnv(),
		mux:         http.NewServeMux(),
		config:      config,
		launches:    services.Launches,
		sessions:    services.Sessions,
		lifecycle:   services.Lifecycle,
		canvas:      services.Canvas,
		discussions: services.Discussions,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Debug().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}

// identity picks the credential key for the caller: the session for
// session-scoped stores, the LMS user otherwise.
func (s *Server) identity(sess *session.Session) string {
	if s.lifecycle.Store().KeyedBy() == credentials.KeyedBySession {
		return sess.ID
	}
	return sess.Launch.ExternalUserID
}
