package server_test

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/twill/canvas"
	"github.com/jrsteele09/twill/credentials"
	"github.com/jrsteele09/twill/discussion"
	"github.com/jrsteele09/twill/internal/config"
	"github.com/jrsteele09/twill/lifecycle"
	"github.com/jrsteele09/twill/lti"
	"github.com/jrsteele09/twill/lti/ltitest"
	"github.com/jrsteele09/twill/server"
	"github.com/jrsteele09/twill/session"
	"github.com/stretchr/testify/require"
)

const (
	ltiKey    = "twill-key"
	ltiSecret = "twill-secret"
	courseID  = "101"
	userID    = "202"
)

// fakeCanvas serves the token endpoint and the few API listings the tool reads.
type fakeCanvas struct {
	srv          *httptest.Server
	apiStatus    int32
	failRefresh  atomic.Bool
	refreshCalls atomic.Int32
}

func newFakeCanvas(t *testing.T) *fakeCanvas {
	t.Helper()
	fc := &fakeCanvas{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /login/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"canvas-token","refresh_token":"canvas-refresh","token_type":"Bearer","expires_in":3600}`))
		case "refresh_token":
			fc.refreshCalls.Add(1)
			if fc.failRefresh.Load() {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"canvas-token","token_type":"Bearer","expires_in":3600}`))
		}
	})

	api := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if status := atomic.LoadInt32(&fc.apiStatus); status != 0 {
				w.WriteHeader(int(status))
				return
			}
			if r.Header.Get("Authorization") != "Bearer canvas-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			h(w, r)
		}
	}
	base := "/api/v1/courses/" + courseID
	mux.HandleFunc("GET "+base+"/users", api(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`[{"id":2,"short_name":"Bo","sortable_name":"B, Bo"}]`))
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s%s/users?page=2>; rel="next"`, fc.srv.URL, base))
		_, _ = w.Write([]byte(`[{"id":1,"short_name":"Al","sortable_name":"A, Al"}]`))
	}))
	mux.HandleFunc("GET "+base+"/discussion_topics", api(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":1,"title":"Week 1","message":"<p>Intro post</p>","author":{"id":5},"discussion_subentry_count":2},
			{"id":2,"title":"Quiet","message":"","author":{},"discussion_subentry_count":0}
		]`))
	}))
	mux.HandleFunc("GET "+base+"/discussion_topics/1/view", api(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"view":[{"id":11,"user_id":7,"message":"<p>First reply</p>","created_at":"2025-01-01T00:00:00Z",
			"replies":[{"id":12,"user_id":8,"message":"ok"}]}]}`))
	}))

	fc.srv = httptest.NewServer(mux)
	t.Cleanup(fc.srv.Close)
	return fc
}

func (fc *fakeCanvas) host() string {
	return strings.TrimPrefix(fc.srv.URL, "http://")
}

type fixture struct {
	canvas *fakeCanvas
	store  credentials.Store
	app    *httptest.Server
	client *http.Client
}

func setupTestFixture(t *testing.T, store credentials.Store) *fixture {
	t.Helper()
	t.Setenv("FRAME_ANCESTORS", "https://canvas.example.edu")
	t.Setenv("ALLOWED_ORIGINS", "https://canvas.example.edu")
	t.Setenv("APP_NAME", "Twill")

	fc := newFakeCanvas(t)
	sessions, err := session.NewManager([]string{"session-key-1"})
	require.NoError(t, err)

	canvasClient := canvas.NewClient(canvas.WithScheme("http"), canvas.WithHTTPClient(fc.srv.Client()))
	oauthConfig := lifecycle.OAuth2Config("client", "secret", fc.srv.URL, "/login/oauth2/auth", "/login/oauth2/token", "http://twill.test/auth/canvas/callback")

	srv, err := server.New(config.New(), server.Services{
		Launches:    lti.NewProvider(ltiKey, ltiSecret),
		Sessions:    sessions,
		Lifecycle:   lifecycle.NewManager(store, oauthConfig, lifecycle.WithHTTPClient(fc.srv.Client())),
		Canvas:      canvasClient,
		Discussions: discussion.NewAggregator(canvasClient),
	})
	require.NoError(t, err)

	app := httptest.NewServer(srv)
	t.Cleanup(app.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &fixture{
		canvas: fc,
		store:  store,
		app:    app,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (f *fixture) launchParams(nonce string) url.Values {
	return url.Values{
		"oauth_consumer_key":     {ltiKey},
		"oauth_signature_method": {"HMAC-SHA1"},
		"oauth_timestamp":        {strconv.FormatInt(time.Now().Unix(), 10)},
		"oauth_nonce":            {nonce},
		"oauth_version":          {"1.0"},
		"lti_message_type":       {"basic-lti-launch-request"},
		"lti_version":            {"LTI-1p2"},
		"resource_link_id":       {"rl-1"},
		lti.ParamAPIDomain:       {f.canvas.host()},
		lti.ParamCourseID:        {courseID},
		lti.ParamUserID:          {userID},
	}
}

func (f *fixture) postLaunch(t *testing.T, params url.Values, secret string) *http.Response {
	t.Helper()
	launchURL := f.app.URL + server.RouteLTILaunch
	params.Set("oauth_signature", ltitest.Sign(http.MethodPost, launchURL, params, secret))
	resp, err := f.client.PostForm(launchURL, params)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) launch(t *testing.T) {
	t.Helper()
	resp := f.postLaunch(t, f.launchParams(fmt.Sprintf("nonce-%d", time.Now().UnixNano())), ltiSecret)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, server.RouteLogin, resp.Header.Get("Location"))
}

func (f *fixture) get(t *testing.T, path string, headers ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.app.URL+path, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// authorize walks /login -> /auth/canvas -> callback for a launched session.
func (f *fixture) authorize(t *testing.T) {
	t.Helper()
	resp := f.get(t, server.RouteLogin)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, server.RouteAuthCanvas, resp.Header.Get("Location"))

	resp = f.get(t, server.RouteAuthCanvas)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	authURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/login/oauth2/auth", authURL.Path)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	resp = f.get(t, server.RouteAuthCanvasReturn+"?code=good-code&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, server.RouteLogin, resp.Header.Get("Location"))
}

func TestFullFlow(t *testing.T) {
	stores := map[string]func() credentials.Store{
		"user keyed store":    func() credentials.Store { return credentials.NewMemoryStore() },
		"session keyed store": func() credentials.Store { return session.NewCredentialStore(credentials.NewCipher("cookie-secret")) },
	}
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			f := setupTestFixture(t, newStore())
			f.launch(t)
			f.authorize(t)

			resp := f.get(t, server.RouteLogin)
			require.Equal(t, http.StatusSeeOther, resp.StatusCode)
			require.Equal(t, server.RouteTwill, resp.Header.Get("Location"))

			resp = f.get(t, server.RouteTwill)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.JSONEq(t, fmt.Sprintf(`{"title":"Twill","host":%q,"course_id":"101","user_id":"202"}`, f.canvas.host()), readBody(t, resp))

			resp = f.get(t, server.RouteTwillRoster)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var roster []canvas.RosterEntry
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&roster))
			require.Equal(t, []canvas.RosterEntry{
				{ID: 1, ShortName: "Al", SortableName: "A, Al"},
				{ID: 2, ShortName: "Bo", SortableName: "B, Bo"},
			}, roster)

			resp = f.get(t, server.RouteTwillTopicList)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var topics []*discussion.Node
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&topics))
			require.Len(t, topics, 2)
			require.Equal(t, "Week 1", topics[0].Title)

			resp = f.get(t, "/twill/topics/1")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var entries []*discussion.Node
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
			require.Len(t, entries, 1)
			require.Equal(t, "First reply", entries[0].Message)
			require.Len(t, entries[0].Children, 1)

			resp = f.get(t, server.RouteTwillDiscussions)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var root discussion.Node
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&root))
			require.Equal(t, discussion.RootID, root.ID)
			require.Len(t, root.Children, 2)
			require.Equal(t, discussion.NodeID("1"), root.Children[0].ID)
			require.Len(t, root.Children[0].Children, 1)
			require.Empty(t, root.Children[1].Children)
		})
	}
}

func TestLaunchAsAnotherUser(t *testing.T) {
	stores := map[string]func() credentials.Store{
		"user keyed store":    func() credentials.Store { return credentials.NewMemoryStore() },
		"session keyed store": func() credentials.Store { return session.NewCredentialStore(credentials.NewCipher("cookie-secret")) },
	}
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			f := setupTestFixture(t, newStore())
			f.launch(t)
			f.authorize(t)

			resp := f.get(t, server.RouteTwillRoster)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			params := f.launchParams(fmt.Sprintf("nonce-%d", time.Now().UnixNano()))
			params.Set(lti.ParamUserID, "303")
			resp = f.postLaunch(t, params, ltiSecret)
			require.Equal(t, http.StatusSeeOther, resp.StatusCode)

			resp = f.get(t, server.RouteLogin)
			require.Equal(t, http.StatusSeeOther, resp.StatusCode)
			require.Equal(t, server.RouteAuthCanvas, resp.Header.Get("Location"))

			resp = f.get(t, server.RouteTwillRoster)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			require.JSONEq(t, `{"error":"Not authenticated with Canvas."}`, readBody(t, resp))

			// Relaunching as the same user keeps that user's credential.
			f.authorize(t)
			params = f.launchParams(fmt.Sprintf("nonce-%d", time.Now().UnixNano()))
			params.Set(lti.ParamUserID, "303")
			resp = f.postLaunch(t, params, ltiSecret)
			require.Equal(t, http.StatusSeeOther, resp.StatusCode)
			resp = f.get(t, server.RouteTwillRoster)
			require.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestLaunchDenied(t *testing.T) {
	f := setupTestFixture(t, credentials.NewMemoryStore())

	t.Run("wrong key", func(t *testing.T) {
		params := f.launchParams("nonce-key")
		params.Set("oauth_consumer_key", "someone-else")
		resp := f.postLaunch(t, params, ltiSecret)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		require.JSONEq(t, `{"error":"Invalid LTI key. Contact your Canvas administrator."}`, readBody(t, resp))
	})

	t.Run("bad signature", func(t *testing.T) {
		resp := f.postLaunch(t, f.launchParams("nonce-sig"), "wrong-secret")
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.JSONEq(t, `{"error":"Invalid LTI launch request."}`, readBody(t, resp))
	})

	t.Run("replayed nonce", func(t *testing.T) {
		resp := f.postLaunch(t, f.launchParams("nonce-once"), ltiSecret)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		resp = f.postLaunch(t, f.launchParams("nonce-once"), ltiSecret)
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("denied launch clears an earlier one", func(t *testing.T) {
		resp := f.get(t, server.RouteLogin)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestRequiresLaunch(t *testing.T) {
	f := setupTestFixture(t, credentials.NewMemoryStore())

	for _, path := range []string{
		server.RouteLogin, server.RouteAuthCanvas, server.RouteAuthCanvasReturn,
		server.RouteTwill, server.RouteTwillRoster, server.RouteTwillTopicList,
		"/twill/topics/1", server.RouteTwillDiscussions,
	} {
		t.Run(path, func(t *testing.T) {
			resp := f.get(t, path)
			require.Equal(t, http.StatusForbidden, resp.StatusCode)
			require.Equal(t, "ERROR: This page can only be accessed following a valid LTI launch.\n", readBody(t, resp))
		})
	}
}

func TestCallbackFailures(t *testing.T) {
	f := setupTestFixture(t, credentials.NewMemoryStore())
	f.launch(t)

	startAuth := func(t *testing.T) string {
		resp := f.get(t, server.RouteAuthCanvas)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		authURL, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		return authURL.Query().Get("state")
	}

	tests := []struct {
		name  string
		query func(state string) string
	}{
		{"state mismatch", func(string) string { return "?code=good-code&state=forged" }},
		{"rejected code", func(state string) string { return "?code=bad-code&state=" + url.QueryEscape(state) }},
		{"missing code", func(state string) string { return "?state=" + url.QueryEscape(state) }},
		{"access denied", func(state string) string { return "?error=access_denied&state=" + url.QueryEscape(state) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := startAuth(t)
			resp := f.get(t, server.RouteAuthCanvasReturn+tt.query(state))
			require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			require.Equal(t, "Authentication failed.\n", readBody(t, resp))

			_, err := f.store.Load(context.Background(), userID)
			require.Error(t, err)
		})
	}

	t.Run("state is single use", func(t *testing.T) {
		state := startAuth(t)
		resp := f.get(t, server.RouteAuthCanvasReturn+"?code=good-code&state="+url.QueryEscape(state))
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		resp = f.get(t, server.RouteAuthCanvasReturn+"?code=good-code&state="+url.QueryEscape(state))
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestLoginRefresh(t *testing.T) {
	seed := func(t *testing.T, f *fixture) {
		require.NoError(t, f.store.Save(context.Background(), userID, &credentials.Credential{
			ExternalUserID: userID,
			AccessToken:    "stale-token",
			RefreshToken:   "canvas-refresh",
			ExpiresAt:      time.Now().Add(2 * time.Minute),
		}))
	}

	t.Run("refreshes an expiring token", func(t *testing.T) {
		f := setupTestFixture(t, credentials.NewMemoryStore())
		seed(t, f)
		f.launch(t)

		resp := f.get(t, server.RouteLogin)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.Equal(t, server.RouteTwill, resp.Header.Get("Location"))
		require.EqualValues(t, 1, f.canvas.refreshCalls.Load())

		cred, err := f.store.Load(context.Background(), userID)
		require.NoError(t, err)
		require.Equal(t, "canvas-token", cred.AccessToken)
	})

	t.Run("refresh failure", func(t *testing.T) {
		f := setupTestFixture(t, credentials.NewMemoryStore())
		seed(t, f)
		f.canvas.failRefresh.Store(true)
		f.launch(t)

		resp := f.get(t, server.RouteLogin)
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.Equal(t, "Token refresh failed.\n", readBody(t, resp))

		resp = f.get(t, server.RouteTwillRoster)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestDataErrors(t *testing.T) {
	t.Run("no credential", func(t *testing.T) {
		f := setupTestFixture(t, credentials.NewMemoryStore())
		f.launch(t)

		resp := f.get(t, server.RouteTwillDiscussions)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
		require.JSONEq(t, `{"error":"Not authenticated with Canvas."}`, readBody(t, resp))
	})

	upstream := []struct {
		name       string
		apiStatus  int32
		wantStatus int
	}{
		{"canvas failure", http.StatusInternalServerError, http.StatusBadGateway},
		{"canvas rejects token", http.StatusUnauthorized, http.StatusUnauthorized},
	}
	for _, tt := range upstream {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, credentials.NewMemoryStore())
			f.launch(t)
			f.authorize(t)
			atomic.StoreInt32(&f.canvas.apiStatus, tt.apiStatus)

			for _, path := range []string{server.RouteTwillRoster, server.RouteTwillTopicList, "/twill/topics/1", server.RouteTwillDiscussions} {
				resp := f.get(t, path)
				require.Equal(t, tt.wantStatus, resp.StatusCode, path)
				var body map[string]string
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				require.NotEmpty(t, body["error"])
			}
		})
	}

	t.Run("invalid topic id", func(t *testing.T) {
		f := setupTestFixture(t, credentials.NewMemoryStore())
		f.launch(t)
		resp := f.get(t, "/twill/topics/abc")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestMiddleware(t *testing.T) {
	f := setupTestFixture(t, credentials.NewMemoryStore())
	f.launch(t)
	f.authorize(t)

	t.Run("frame ancestors", func(t *testing.T) {
		resp := f.get(t, server.RouteTwill)
		require.Equal(t, "frame-ancestors https://canvas.example.edu", resp.Header.Get("Content-Security-Policy"))
		require.Empty(t, resp.Header.Get("X-Frame-Options"))
	})

	t.Run("gzip", func(t *testing.T) {
		resp := f.get(t, server.RouteTwillRoster, "Accept-Encoding", "gzip")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
		gz, err := gzip.NewReader(resp.Body)
		require.NoError(t, err)
		var roster []canvas.RosterEntry
		require.NoError(t, json.NewDecoder(gz).Decode(&roster))
		require.Len(t, roster, 2)
	})

	t.Run("cors", func(t *testing.T) {
		resp := f.get(t, server.RouteTwillRoster, "Origin", "https://canvas.example.edu")
		require.Equal(t, "https://canvas.example.edu", resp.Header.Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

		resp = f.get(t, server.RouteTwillRoster, "Origin", "https://evil.example.com")
		require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

		req, err := http.NewRequest(http.MethodOptions, f.app.URL+server.RouteTwillRoster, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "https://canvas.example.edu")
		resp, err = f.client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		require.Equal(t, "GET, POST, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	})

	t.Run("health", func(t *testing.T) {
		resp := f.get(t, server.RouteHealth)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"status":"ok"}`, readBody(t, resp))
	})
}
