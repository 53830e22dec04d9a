package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/twill/credentials"
	apperrors "github.com/jrsteele09/twill/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const defaultLookahead = 6 * time.Minute

// Outcome is where Login left the caller.
type Outcome struct {
	State State
	Flow  *Flow
}

// Manager drives the credential side of the lifecycle: lookup, code exchange,
// expiry detection and refresh.
type Manager struct {
	store      credentials.Store
	oauth      *oauth2.Config
	lookahead  time.Duration
	nowTime    func() time.Time
	httpClient *http.Client
	refreshes  singleflight.Group
}

type Option func(*Manager)

func WithNowTime(nowTime func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = nowTime
	}
}

// WithLookahead treats tokens expiring within d as already expired
func WithLookahead(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lookahead = d
		}
	}
}

// WithHTTPClient sets the client used for token endpoint calls
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = c
	}
}

func NewManager(store credentials.Store, oauthConfig *oauth2.Config, options ...Option) *Manager {
	m := &Manager{
		store:     store,
		oauth:     oauthConfig,
		lookahead: defaultLookahead,
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// OAuth2Config builds the authorization-code client for an LMS token host.
func OAuth2Config(clientID, clientSecret, tokenHost, authorizePath, tokenPath, redirectURI string) *oauth2.Config {
	host := strings.TrimSuffix(tokenHost, "/")
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  host + "/" + strings.TrimPrefix(authorizePath, "/"),
			TokenURL: host + "/" + strings.TrimPrefix(tokenPath, "/"),
		},
		RedirectURL: redirectURI,
	}
}

// Store returns the credential store the manager reads and writes.
func (m *Manager) Store() credentials.Store {
	return m.store
}

// Launch records the result of launch validation on a new flow.
func (m *Manager) Launch(launchErr error) *Flow {
	flow := NewFlow()
	next := Launched
	if launchErr != nil {
		next = Denied
	}
	_ = flow.To(next)
	return flow
}

// Login decides what a launched caller needs next: authorization when no
// credential exists, a refresh when the token is expiring, or nothing.
// A failed refresh leaves the flow Denied and returns ErrAuthExchangeFailed.
func (m *Manager) Login(ctx context.Context, identity string) (Outcome, error) {
	flow := m.Launch(nil)
	out := func() Outcome { return Outcome{State: flow.Current(), Flow: flow} }

	cred, err := m.store.Load(ctx, identity)
	if errors.Is(err, apperrors.ErrCredentialNotFound) {
		if err := flow.To(Unauthenticated); err != nil {
			return out(), err
		}
		return out(), nil
	}
	if err != nil {
		return out(), apperrors.Wrapf(err, "loading credential")
	}

	if !m.expiring(cred) {
		if err := flow.To(Ready); err != nil {
			return out(), err
		}
		return out(), nil
	}

	if err := steps(flow, Expired, Refreshing); err != nil {
		return out(), err
	}
	if _, err := m.refresh(ctx, identity, cred); err != nil {
		_ = flow.To(Denied)
		return out(), err
	}
	if err := flow.To(Ready); err != nil {
		return out(), err
	}
	return out(), nil
}

// BeginAuthorization moves an unauthenticated flow on and returns the LMS
// authorization URL carrying state.
func (m *Manager) BeginAuthorization(flow *Flow, state string) (string, error) {
	if err := flow.To(Authenticating); err != nil {
		return "", err
	}
	return m.AuthorizeURL(state), nil
}

func (m *Manager) AuthorizeURL(state string) string {
	return m.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a credential and stores it. On
// failure nothing is stored.
func (m *Manager) Exchange(ctx context.Context, identity, code string) (*Flow, error) {
	flow := NewFlowAt(Authenticating)

	if code == "" {
		_ = flow.To(Denied)
		return flow, fmt.Errorf("%w: missing authorization code", apperrors.ErrAuthExchangeFailed)
	}

	tok, err := m.oauth.Exchange(m.clientContext(ctx), code)
	if err != nil {
		_ = flow.To(Denied)
		return flow, fmt.Errorf("%w: %v", apperrors.ErrAuthExchangeFailed, err)
	}

	cred := &credentials.Credential{
		ExternalUserID: identity,
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		ExpiresAt:      tok.Expiry,
	}
	if err := m.store.Save(ctx, identity, cred); err != nil {
		_ = flow.To(Denied)
		return flow, apperrors.Wrapf(err, "storing credential")
	}

	if err := flow.To(Authenticated); err != nil {
		return flow, err
	}
	log.Info().Str("identity", identity).Time("expires_at", cred.ExpiresAt).Msg("OAuth2 code exchanged")
	return flow, nil
}

// AccessToken returns a token for API calls, refreshing it first when it is
// inside the lookahead window.
func (m *Manager) AccessToken(ctx context.Context, identity string) (string, error) {
	cred, err := m.store.Load(ctx, identity)
	if err != nil {
		return "", err
	}
	if !m.expiring(cred) {
		return cred.AccessToken, nil
	}
	refreshed, err := m.refresh(ctx, identity, cred)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (m *Manager) expiring(cred *credentials.Credential) bool {
	return cred.ExpiresWithin(m.nowTime(), m.lookahead)
}

// refresh exchanges the refresh token. Concurrent refreshes of one identity
// share a single token endpoint call. Callers that joined a shared call save
// the result into their own store context as well.
func (m *Manager) refresh(ctx context.Context, identity string, cred *credentials.Credential) (*credentials.Credential, error) {
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", apperrors.ErrAuthExchangeFailed)
	}

	v, err, shared := m.refreshes.Do(identity, func() (interface{}, error) {
		// the first caller may go away while others still wait
		baseCtx := context.WithoutCancel(ctx)

		if latest, err := m.store.Load(baseCtx, identity); err == nil && !m.expiring(latest) {
			return latest, nil
		}

		src := m.oauth.TokenSource(m.clientContext(baseCtx), &oauth2.Token{
			RefreshToken: cred.RefreshToken,
			Expiry:       time.Unix(1, 0),
		})
		tok, err := src.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: refresh: %v", apperrors.ErrAuthExchangeFailed, err)
		}

		refreshToken := tok.RefreshToken
		if refreshToken == "" {
			refreshToken = cred.RefreshToken
		}
		refreshed := &credentials.Credential{
			ExternalUserID: cred.ExternalUserID,
			AccessToken:    tok.AccessToken,
			RefreshToken:   refreshToken,
			ExpiresAt:      tok.Expiry,
		}
		if err := m.store.Save(baseCtx, identity, refreshed); err != nil {
			return nil, apperrors.Wrapf(err, "storing refreshed credential")
		}
		return refreshed, nil
	})
	if err != nil {
		log.Err(err).Str("identity", identity).Msg("Token refresh failed")
		return nil, err
	}

	refreshed := *v.(*credentials.Credential)
	if shared {
		if err := m.store.Save(ctx, identity, &refreshed); err != nil {
			return nil, apperrors.Wrapf(err, "storing refreshed credential")
		}
	}
	log.Info().Str("identity", identity).Bool("shared", shared).Time("expires_at", refreshed.ExpiresAt).Msg("Token refreshed")
	return &refreshed, nil
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func steps(flow *Flow, states ...State) error {
	for _, s := range states {
		if err := flow.To(s); err != nil {
			return err
		}
	}
	return nil
}
