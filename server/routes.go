package server

import "net/http"

func (s *Server) initRoutes() {
	// LTI
	s.RegisterRouteHandler("POST "+RouteLTILaunch, ChainMiddleware(s.LaunchHandler(), s.HTMLMiddleWare()...))

	// LOGIN
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.HTMLMiddleWare(s.RequireLaunch)...))
	s.RegisterRouteHandler("GET "+RouteAuthCanvas, ChainMiddleware(s.AuthorizeHandler(), s.HTMLMiddleWare(s.RequireLaunch)...))
	s.RegisterRouteHandler("GET "+RouteAuthCanvasReturn, ChainMiddleware(s.OAuthCallbackHandler(), s.HTMLMiddleWare(s.RequireLaunch)...))

	// Tool data, consumed by the visualization
	s.RegisterRouteHandler("GET "+RouteTwill+"{$}", ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare(s.RequireLaunch)...))
	s.RegisterRouteHandler("GET "+RouteTwillRoster, ChainMiddleware(s.RosterHandler(), s.APIMiddleware(s.RequireLaunch)...))
	s.RegisterRouteHandler("GET "+RouteTwillTopicList, ChainMiddleware(s.TopicListHandler(), s.APIMiddleware(s.RequireLaunch)...))
	s.RegisterRouteHandler("GET "+RouteTwillTopic, ChainMiddleware(s.TopicEntriesHandler(), s.APIMiddleware(s.RequireLaunch)...))
	s.RegisterRouteHandler("GET "+RouteTwillDiscussions, ChainMiddleware(s.DiscussionsHandler(), s.APIMiddleware(s.RequireLaunch)...))

	s.RegisterRouteHandler("OPTIONS "+RouteTwill, ChainMiddleware(preflightHandler, s.LoggingMiddleware, s.CorsMiddleware))

	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.LoggingMiddleware, s.RecoverMiddleware))
}

// preflightHandler answers OPTIONS requests CorsMiddleware did not handle.
func preflightHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
