package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/twill/credentials"
	apperrors "github.com/jrsteele09/twill/internal/errors"
	"github.com/jrsteele09/twill/lti"
	"github.com/jrsteele09/twill/session"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newManager(t *testing.T, keys []string, options ...session.ManagerOption) *session.Manager {
	t.Helper()
	options = append([]session.ManagerOption{session.WithNowTime(func() time.Time { return testNow })}, options...)
	m, err := session.NewManager(keys, options...)
	require.NoError(t, err)
	return m
}

func requestWithCookies(resp *http.Response) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "http://twill.example.com/login", nil)
	for _, c := range resp.Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestManagerRoundTrip(t *testing.T) {
	m := newManager(t, []string{"k1", "k2"})

	sess := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, sess.IsNew())
	sess.SetLaunch(lti.LaunchContext{ConsumerKeyVerified: true, LMSInstanceHost: "canvas.example.edu", CourseID: "1", ExternalUserID: "2"})

	rec := httptest.NewRecorder()
	require.NoError(t, m.Save(rec, httptest.NewRequest(http.MethodGet, "/", nil), sess))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "session", cookies[0].Name)
	require.True(t, cookies[0].HttpOnly)
	require.Equal(t, 180*24*60*60, cookies[0].MaxAge)

	loaded := m.Load(requestWithCookies(rec.Result()))
	require.False(t, loaded.IsNew())
	require.Equal(t, sess.ID, loaded.ID)
	require.Equal(t, "canvas.example.edu", loaded.Launch.LMSInstanceHost)
	require.True(t, loaded.Launch.Valid())
}

func TestManagerSecureCookieBehindProxy(t *testing.T) {
	m := newManager(t, []string{"k1"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")

	rec := httptest.NewRecorder()
	require.NoError(t, m.Save(rec, req, m.Load(req)))
	cookie := rec.Result().Cookies()[0]
	require.True(t, cookie.Secure)
	require.Equal(t, http.SameSiteNoneMode, cookie.SameSite)
}

func TestManagerKeyRotation(t *testing.T) {
	old := newManager(t, []string{"old-key"})
	sess := old.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	value, err := old.Encode(sess)
	require.NoError(t, err)

	rotated := newManager(t, []string{"new-key", "old-key"})
	decoded, err := rotated.Decode(value)
	require.NoError(t, err)
	require.Equal(t, sess.ID, decoded.ID)

	dropped := newManager(t, []string{"new-key"})
	_, err = dropped.Decode(value)
	require.ErrorIs(t, err, apperrors.ErrSessionInvalid)
}

func TestManagerRejectsBadCookies(t *testing.T) {
	m := newManager(t, []string{"k1"})

	t.Run("tampered", func(t *testing.T) {
		value, err := m.Encode(m.Load(httptest.NewRequest(http.MethodGet, "/", nil)))
		require.NoError(t, err)
		parts := strings.Split(value, ".")
		parts[1] = parts[1] + "x"
		_, err = m.Decode(strings.Join(parts, "."))
		require.ErrorIs(t, err, apperrors.ErrSessionInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		short := newManager(t, []string{"k1"}, session.WithMaxAge(time.Hour))
		value, err := short.Encode(short.Load(httptest.NewRequest(http.MethodGet, "/", nil)))
		require.NoError(t, err)

		later := newManager(t, []string{"k1"}, session.WithNowTime(func() time.Time { return testNow.Add(2 * time.Hour) }))
		_, err = later.Decode(value)
		require.ErrorIs(t, err, apperrors.ErrSessionInvalid)
	})

	t.Run("garbage cookie gives a new session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "session", Value: "not-a-token"})
		require.True(t, m.Load(req).IsNew())
	})

	t.Run("no keys", func(t *testing.T) {
		_, err := session.NewManager(nil)
		require.Error(t, err)
	})
}

func TestMiddlewareWritesChangedSession(t *testing.T) {
	m := newManager(t, []string{"k1"})

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session.FromContext(r.Context())
		require.True(t, ok)
		if r.URL.Path == "/launch" {
			sess.SetLaunch(lti.LaunchContext{ConsumerKeyVerified: true, CourseID: "7"})
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		if sess.Launch == nil {
			http.Error(w, "no launch", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(sess.Launch.CourseID))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/launch", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, requestWithCookies(rec.Result()))
	require.Equal(t, http.StatusOK, rec2.Code)
	require.Equal(t, "7", rec2.Body.String())
	require.Empty(t, rec2.Result().Cookies(), "unchanged session is not rewritten")

	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusForbidden, rec3.Code)
	require.Empty(t, rec3.Result().Cookies())
}

func TestOAuthState(t *testing.T) {
	m := newManager(t, []string{"k1"})
	sess := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))

	require.False(t, sess.ConsumeOAuthState(""))
	state := sess.NewOAuthState()
	require.NotEmpty(t, state)
	require.False(t, sess.ConsumeOAuthState("wrong"))
	require.False(t, sess.ConsumeOAuthState(state), "a state is single use")

	state = sess.NewOAuthState()
	require.True(t, sess.ConsumeOAuthState(state))
}

func TestSessionCredentialStore(t *testing.T) {
	m := newManager(t, []string{"k1"})
	sess := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	ctx := session.NewContext(context.Background(), sess)
	launch := lti.LaunchContext{ConsumerKeyVerified: true, LMSInstanceHost: "canvas.example.edu", CourseID: "1", ExternalUserID: "2"}
	sess.SetLaunch(launch)
	cred := &credentials.Credential{ExternalUserID: "2", AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Add(time.Hour)}

	for name, cipher := range map[string]*credentials.Cipher{"plain": nil, "sealed": credentials.NewCipher("cookie-key")} {
		t.Run(name, func(t *testing.T) {
			store := session.NewCredentialStore(cipher)
			require.Equal(t, credentials.KeyedBySession, store.KeyedBy())

			sess.Credential = nil
			_, err := store.Load(ctx, sess.ID)
			require.ErrorIs(t, err, apperrors.ErrCredentialNotFound)

			require.NoError(t, store.Save(ctx, sess.ID, cred))
			if cipher != nil {
				require.NotEqual(t, "a", sess.Credential.AccessToken)
			}

			got, err := store.Load(ctx, sess.ID)
			require.NoError(t, err)
			require.Equal(t, cred, got)

			_, err = store.Load(ctx, "someone-else")
			require.ErrorIs(t, err, apperrors.ErrCredentialNotFound)
			require.ErrorIs(t, store.Save(ctx, "someone-else", cred), apperrors.ErrSessionInvalid)

			_, err = store.Load(context.Background(), sess.ID)
			require.Error(t, err)
		})
	}

	t.Run("credential is stamped with the launch user", func(t *testing.T) {
		store := session.NewCredentialStore(nil)
		require.NoError(t, store.Save(ctx, sess.ID, &credentials.Credential{ExternalUserID: sess.ID, AccessToken: "a"}))
		got, err := store.Load(ctx, sess.ID)
		require.NoError(t, err)
		require.Equal(t, "2", got.ExternalUserID)
	})

	t.Run("another user's launch drops the credential", func(t *testing.T) {
		store := session.NewCredentialStore(nil)
		require.NoError(t, store.Save(ctx, sess.ID, cred))

		sess.SetLaunch(launch)
		_, err := store.Load(ctx, sess.ID)
		require.NoError(t, err, "relaunching as the same user keeps the credential")

		other := launch
		other.ExternalUserID = "3"
		sess.SetLaunch(other)
		require.Nil(t, sess.Credential)
		_, err = store.Load(ctx, sess.ID)
		require.ErrorIs(t, err, apperrors.ErrCredentialNotFound)

		sess.SetLaunch(launch)
		_, err = store.Load(ctx, sess.ID)
		require.ErrorIs(t, err, apperrors.ErrCredentialNotFound)
	})

	t.Run("credential of another user is not returned", func(t *testing.T) {
		store := session.NewCredentialStore(nil)
		require.NoError(t, store.Save(ctx, sess.ID, cred))
		sess.Launch = &lti.LaunchContext{ConsumerKeyVerified: true, ExternalUserID: "3"}
		_, err := store.Load(ctx, sess.ID)
		require.ErrorIs(t, err, apperrors.ErrCredentialNotFound)

		sess.Launch = nil
		_, err = store.Load(ctx, sess.ID)
		require.ErrorIs(t, err, apperrors.ErrCredentialNotFound)
		require.ErrorIs(t, store.Save(ctx, sess.ID, cred), apperrors.ErrSessionInvalid)
		sess.SetLaunch(launch)
	})

	t.Run("credential survives the cookie", func(t *testing.T) {
		store := session.NewCredentialStore(credentials.NewCipher("cookie-key"))
		require.NoError(t, store.Save(ctx, sess.ID, cred))

		value, err := m.Encode(sess)
		require.NoError(t, err)
		decoded, err := m.Decode(value)
		require.NoError(t, err)

		got, err := store.Load(session.NewContext(context.Background(), decoded), decoded.ID)
		require.NoError(t, err)
		require.Equal(t, "a", got.AccessToken)
		require.True(t, cred.ExpiresAt.Equal(got.ExpiresAt))
	})
}
