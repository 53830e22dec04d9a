package config

import "time"

const (
	clientIDVar         = "CLIENT_ID"
	clientSecretVar     = "CLIENT_SECRET"
	authorizePathVar    = "AUTHORIZE_PATH"
	tokenHostVar        = "TOKEN_HOST"
	tokenPathVar        = "TOKEN_PATH"
	redirectURIVar      = "REDIRECT_URI"
	refreshLookaheadVar = "TOKEN_REFRESH_LOOKAHEAD"
)

type OAuthConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetAuthorizePath() string
	GetTokenHost() string
	GetTokenPath() string
	GetRedirectURI() string
	GetTokenRefreshLookahead() time.Duration
}

type OAuth struct {
	src *source
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetClientID() string {
	return o.src.get(clientIDVar, "")
}

func (o OAuth) GetClientSecret() string {
	return o.src.get(clientSecretVar, "")
}

// GetAuthorizePath returns the LMS authorize path, resolved against the token host
func (o OAuth) GetAuthorizePath() string {
	return o.src.get(authorizePathVar, "/login/oauth2/auth")
}

// GetTokenHost returns the LMS base URL (e.g., "https://canvas.example.edu")
func (o OAuth) GetTokenHost() string {
	return o.src.get(tokenHostVar, "")
}

func (o OAuth) GetTokenPath() string {
	return o.src.get(tokenPathVar, "/login/oauth2/token")
}

func (o OAuth) GetRedirectURI() string {
	return o.src.get(redirectURIVar, "")
}

// GetTokenRefreshLookahead returns how long before expiry a token is refreshed
func (o OAuth) GetTokenRefreshLookahead() time.Duration {
	return o.src.duration(refreshLookaheadVar, 6*time.Minute)
}
