// Package ltitest signs LTI 1.x launches the way an LMS does, for tests and
// local tooling that need to post a launch to the tool.
package ltitest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Sign returns the OAuth1 HMAC-SHA1 signature of a form-encoded launch.
// oauth_signature itself is never part of the signed set.
func Sign(method, launchURL string, params url.Values, secret string) string {
	mac := hmac.New(sha1.New, []byte(percentEncode(secret)+"&"))
	mac.Write([]byte(baseString(method, launchURL, params)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// NewLaunchRequest returns a signed, form-encoded POST to launchURL.
func NewLaunchRequest(launchURL string, params url.Values, secret string) (*http.Request, error) {
	params.Set("oauth_signature", Sign(http.MethodPost, launchURL, params, secret))
	req, err := http.NewRequest(http.MethodPost, launchURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

func baseString(method, launchURL string, params url.Values) string {
	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(params))
	for k, vs := range params {
		if k == "oauth_signature" {
			continue
		}
		for _, v := range vs {
			pairs = append(pairs, pair{percentEncode(k), percentEncode(v)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	encoded := make([]string, len(pairs))
	for i, p := range pairs {
		encoded[i] = p.k + "=" + p.v
	}
	return strings.ToUpper(method) + "&" +
		percentEncode(launchURL) + "&" +
		percentEncode(strings.Join(encoded, "&"))
}

// percentEncode applies RFC 3986 encoding: only unreserved characters pass through.
func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}
