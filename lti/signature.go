package lti

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/jrsteele09/twill/internal/errors"
	"github.com/mrjones/oauth"
)

const formContentType = "application/x-www-form-urlencoded"

// newVerifier returns an OAuth1 provider accepting requests signed with key and
// secret. oauth_timestamp is left to Validate, which owns the clock.
func newVerifier(key, secret string) *oauth.Provider {
	consumer := oauth.NewConsumer(key, secret, oauth.ServiceProvider{
		IgnoreTimestamp: true,
		SignQueryParams: true,
	})
	return oauth.NewProvider(func(consumerKey string, _ map[string]string) (*oauth.Consumer, error) {
		if consumerKey != key {
			return nil, apperrors.ErrInvalidLTIKey
		}
		return consumer, nil
	})
}

// verifySignature checks the OAuth1 signature of a parsed launch against the
// URL the LMS posted to, which behind a proxy is not r.URL.
func (p *Provider) verifySignature(r *http.Request, form url.Values) error {
	target, err := url.Parse(p.launchURL(r))
	if err != nil {
		return err
	}
	target.RawQuery = r.URL.RawQuery

	// r.Body was consumed by ParseForm
	replay, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	replay.Header.Set("Content-Type", formContentType)

	if _, err := p.verifier.IsAuthorized(replay); err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	return nil
}

// normalizeURL lower-cases scheme and host and drops default ports.
func normalizeURL(scheme, host, path string) string {
	scheme = strings.ToLower(scheme)
	host = strings.ToLower(host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
