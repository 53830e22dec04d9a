package config

import "time"

const sessionKeysVar = "SESSION_KEYS"

type SessionConfig interface {
	GetSessionKeys() []string
	GetSessionMaxAge() time.Duration
	GetSessionCookieName() string
}

type Session struct {
	src *source
}

var _ SessionConfig = Session{}

var devSessionKeys = []string{"dev-session-key-1", "dev-session-key-2"}

// GetSessionKeys returns the cookie signing keys. The first key signs, all keys verify.
func (s Session) GetSessionKeys() []string {
	if keys := s.src.list(sessionKeysVar); len(keys) > 0 {
		return keys
	}
	return devSessionKeys
}

func (s Session) GetSessionMaxAge() time.Duration {
	return s.src.duration("SESSION_MAX_AGE", 180*24*time.Hour)
}

func (s Session) GetSessionCookieName() string {
	return s.src.get("SESSION_COOKIE_NAME", "session")
}
