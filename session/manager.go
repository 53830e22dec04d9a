package session

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/twill/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultCookieName = "session"
	defaultMaxAge     = 180 * 24 * time.Hour
	issuer            = "twill"
)

type claims struct {
	jwt.RegisteredClaims
	Session *Session `json:"twl"`
}

// Manager reads and writes the signed session cookie.
type Manager struct {
	signer     *Signer
	cookieName string
	maxAge     time.Duration
	nowTime    func() time.Time
}

type ManagerOption func(*Manager)

func WithCookieName(name string) ManagerOption {
	return func(m *Manager) {
		if name != "" {
			m.cookieName = name
		}
	}
}

func WithMaxAge(maxAge time.Duration) ManagerOption {
	return func(m *Manager) {
		if maxAge > 0 {
			m.maxAge = maxAge
		}
	}
}

func WithNowTime(nowTime func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowTime
	}
}

func NewManager(keys []string, options ...ManagerOption) (*Manager, error) {
	signer, err := NewSigner(keys)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		signer:     signer,
		cookieName: defaultCookieName,
		maxAge:     defaultMaxAge,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Load returns the request's session. A missing, tampered or expired cookie
// yields a new empty session.
func (m *Manager) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return newSession()
	}
	sess, err := m.Decode(cookie.Value)
	if err != nil {
		log.Warn().Err(err).Msg("Discarding session cookie")
		return newSession()
	}
	return sess
}

// Decode verifies a cookie value and returns the session it carries.
func (m *Manager) Decode(raw string) (*Session, error) {
	c := &claims{}
	if err := m.signer.Parse(raw, c, jwt.WithTimeFunc(m.nowTime), jwt.WithIssuer(issuer), jwt.WithExpirationRequired()); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrSessionInvalid, "%v", err)
	}
	if c.Session == nil || c.Session.ID == "" {
		return nil, apperrors.Wrapf(apperrors.ErrSessionInvalid, "empty session")
	}
	return c.Session, nil
}

// Encode signs the session for use as a cookie value.
func (m *Manager) Encode(sess *Session) (string, error) {
	now := m.nowTime()
	return m.signer.Sign(claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
		},
		Session: sess,
	})
}

// Save writes the session cookie. The cookie is Secure and SameSite=None on
// https so it survives inside the LMS iframe.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, sess *Session) error {
	value, err := m.Encode(sess)
	if err != nil {
		return err
	}
	secure := scheme(r) == "https"
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		MaxAge:   int(m.maxAge.Seconds()),
		Expires:  m.nowTime().Add(m.maxAge),
	})
	sess.isNew = false
	sess.dirty = false
	return nil
}

// Middleware loads the session into the request context and writes the cookie
// back before the response header goes out if the session changed.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.Load(r)
		r = r.WithContext(NewContext(r.Context(), sess))
		sw := &sessionWriter{ResponseWriter: w, flush: func() {
			if !sess.dirty {
				return
			}
			if err := m.Save(w, r, sess); err != nil {
				log.Err(err).Msg("Failed to write session cookie")
			}
		}}
		next.ServeHTTP(sw, r)
		sw.writeCookie()
	})
}

type sessionWriter struct {
	http.ResponseWriter
	flush   func()
	flushed bool
}

func (w *sessionWriter) writeCookie() {
	if w.flushed {
		return
	}
	w.flushed = true
	w.flush()
}

func (w *sessionWriter) WriteHeader(code int) {
	w.writeCookie()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.writeCookie()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func scheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
