package credentials

import (
	"context"
	"time"
)

// Credential is one user's delegated Canvas access grant.
type Credential struct {
	ExternalUserID string    `json:"external_user_id"`
	AccessToken    string    `json:"access_token"`
	RefreshToken   string    `json:"refresh_token"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// ExpiresWithin reports whether the access token expires no later than now+window.
// A zero ExpiresAt means the LMS gave no lifetime and the token does not expire.
func (c *Credential) ExpiresWithin(now time.Time, window time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !c.ExpiresAt.After(now.Add(window))
}

// Keying says what identity a Store is looked up by.
type Keying int

const (
	// KeyedBySession stores are scoped to the caller's session; the identity is the session id.
	KeyedBySession Keying = iota
	// KeyedByUser stores are shared across sessions; the identity is the LMS user id.
	KeyedByUser
)

// Store persists credentials. Load returns errors.ErrCredentialNotFound when the
// identity has none.
type Store interface {
	Load(ctx context.Context, identity string) (*Credential, error)
	Save(ctx context.Context, identity string, cred *Credential) error
	KeyedBy() Keying
}

// Pinger is implemented by stores backed by an external service.
type Pinger interface {
	Ping(ctx context.Context) error
}

func clone(c *Credential) *Credential {
	cp := *c
	return &cp
}
