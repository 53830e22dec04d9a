package ltitest_test

import (
	"io"
	"net/url"
	"testing"

	"github.com/jrsteele09/twill/lti/ltitest"
	"github.com/stretchr/testify/require"
)

func TestSignKnownVector(t *testing.T) {
	params := url.Values{
		"oauth_consumer_key":     {"key"},
		"oauth_nonce":            {"abc"},
		"a-b":                    {"1"},
		"a":                      {"2 q", "1"},
		"oauth_signature_method": {"HMAC-SHA1"},
		"oauth_signature":        {"ignored"},
	}
	require.Equal(t, "7S+vzMpPhXvwEf6pV7lAn6DRsCc=", ltitest.Sign("post", "http://example.com/launch", params, "s e"))
}

func TestNewLaunchRequest(t *testing.T) {
	params := url.Values{"oauth_consumer_key": {"key"}, "resource_link_id": {"rl-1"}}
	req, err := ltitest.NewLaunchRequest("http://twill.example.com/lti_launch", params, "secret")
	require.NoError(t, err)
	require.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	sent, err := url.ParseQuery(string(body))
	require.NoError(t, err)
	require.Equal(t, ltitest.Sign("POST", "http://twill.example.com/lti_launch", sent, "secret"), sent.Get("oauth_signature"))
}
