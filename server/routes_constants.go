package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// LTI entry point, posted by the LMS
	RouteLTILaunch = "/lti_launch"

	// Auth Routes
	RouteLogin            = "/login"
	RouteAuthCanvas       = "/auth/canvas"
	RouteAuthCanvasReturn = "/auth/canvas/callback"

	// Tool Routes
	RouteTwill            = "/twill/"
	RouteTwillRoster      = "/twill/roster"
	RouteTwillTopicList   = "/twill/topicList"
	RouteTwillTopic       = "/twill/topics/{id}"
	RouteTwillDiscussions = "/twill/discussions"

	RouteHealth = "/healthz"
)

// Fixed response bodies
const (
	msgInvalidLTIKey    = `{"error":"Invalid LTI key. Contact your Canvas administrator."}`
	msgInvalidLaunch    = `{"error":"Invalid LTI launch request."}`
	msgLaunchRequired   = "ERROR: This page can only be accessed following a valid LTI launch."
	msgAuthFailed       = "Authentication failed."
	msgRefreshFailed    = "Token refresh failed."
	msgNotAuthenticated = "Not authenticated with Canvas."
	msgCanvasRejected   = "Canvas rejected the stored credential."
	msgCanvasFailed     = "Failed to fetch data from Canvas."
	msgInvalidTopic     = "Invalid topic id."
	msgInternal         = "Internal server error."
)
