package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/jrsteele09/twill/credentials"
	"github.com/jrsteele09/twill/lti"
)

// Session is the per-browser state carried in the signed session cookie.
type Session struct {
	ID         string                  `json:"id"`
	Launch     *lti.LaunchContext      `json:"launch,omitempty"`
	Credential *credentials.Credential `json:"credential,omitempty"`
	OAuthState string                  `json:"oauth_state,omitempty"`

	isNew bool
	dirty bool
}

func newSession() *Session {
	return &Session{ID: uuid.NewString(), isNew: true}
}

// IsNew reports whether the request carried no valid session cookie.
func (s *Session) IsNew() bool {
	return s.isNew
}

// SetLaunch replaces the launch context. A new launch always starts a fresh OAuth state
// and drops a credential held for a different LMS user.
func (s *Session) SetLaunch(lc lti.LaunchContext) {
	if s.Credential != nil && s.Credential.ExternalUserID != lc.ExternalUserID {
		s.Credential = nil
	}
	s.Launch = &lc
	s.OAuthState = ""
	s.dirty = true
}

func (s *Session) ClearLaunch() {
	if s.Launch == nil {
		return
	}
	s.Launch = nil
	s.dirty = true
}

// NewOAuthState generates and remembers the state parameter for an authorize redirect.
func (s *Session) NewOAuthState() string {
	s.OAuthState = uuid.NewString()
	s.dirty = true
	return s.OAuthState
}

// ConsumeOAuthState reports whether state matches the remembered one and forgets it.
func (s *Session) ConsumeOAuthState(state string) bool {
	want := s.OAuthState
	if want != "" {
		s.OAuthState = ""
		s.dirty = true
	}
	return want != "" && state == want
}

func (s *Session) setCredential(c *credentials.Credential) {
	s.Credential = c
	s.dirty = true
}

type ctxKey struct{}

func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}
