package lti

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/jrsteele09/twill/internal/errors"
	"github.com/mrjones/oauth"
	"github.com/rs/zerolog/log"
)

const (
	messageTypeLaunch = "basic-lti-launch-request"
	signatureMethod   = "HMAC-SHA1"
	defaultMaxSkew    = 5 * time.Minute
)

// Canvas custom launch parameters
const (
	ParamAPIDomain = "custom_canvas_api_domain"
	ParamCourseID  = "custom_canvas_course_id"
	ParamUserID    = "custom_canvas_user_id"
)

var supportedVersions = map[string]bool{
	"LTI-1p0": true,
	"LTI-1p2": true,
}

// LaunchContext is the course and user identity carried by a verified launch.
type LaunchContext struct {
	ConsumerKeyVerified bool   `json:"verified"`
	LMSInstanceHost     string `json:"host"`
	CourseID            string `json:"course_id"`
	ExternalUserID      string `json:"user_id"`
}

// Valid reports whether the context came from a verified launch.
func (lc *LaunchContext) Valid() bool {
	return lc != nil && lc.ConsumerKeyVerified
}

// Provider validates LTI 1.x basic launch requests signed with a shared key and secret.
type Provider struct {
	key        string
	secret     string
	nonces     NonceStore
	nowTime    func() time.Time
	maxSkew    time.Duration
	trustProxy bool
	verifier   *oauth.Provider
}

type ProviderOption func(*Provider)

func WithNonceStore(store NonceStore) ProviderOption {
	return func(p *Provider) {
		p.nonces = store
	}
}

func WithNowTime(nowTime func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.nowTime = nowTime
	}
}

// WithMaxSkew sets how far oauth_timestamp may drift from the local clock
func WithMaxSkew(skew time.Duration) ProviderOption {
	return func(p *Provider) {
		if skew > 0 {
			p.maxSkew = skew
		}
	}
}

// WithTrustProxy rebuilds the launch URL from X-Forwarded-Proto and X-Forwarded-Host
func WithTrustProxy(trust bool) ProviderOption {
	return func(p *Provider) {
		p.trustProxy = trust
	}
}

func NewProvider(key, secret string, options ...ProviderOption) *Provider {
	p := &Provider{
		key:     key,
		secret:  secret,
		nowTime: time.Now,
		maxSkew: defaultMaxSkew,
	}
	p.verifier = newVerifier(key, secret)
	for _, opt := range options {
		opt(p)
	}
	if p.nonces == nil {
		p.nonces = NewMemoryNonceStore(p.nowTime)
	}
	return p
}

// Validate checks the consumer key, the launch parameters and the OAuth1 signature.
// A key mismatch yields errors.ErrInvalidLTIKey whatever the signature; every other
// failure yields errors.ErrInvalidLaunch.
func (p *Provider) Validate(r *http.Request) (LaunchContext, error) {
	if err := r.ParseForm(); err != nil {
		return LaunchContext{}, fmt.Errorf("%w: unreadable form: %v", apperrors.ErrInvalidLaunch, err)
	}
	form := r.PostForm

	if p.key == "" || form.Get("oauth_consumer_key") != p.key {
		return LaunchContext{}, apperrors.ErrInvalidLTIKey
	}

	if r.Method != http.MethodPost {
		return LaunchContext{}, invalid("method %s", r.Method)
	}
	if form.Get("lti_message_type") != messageTypeLaunch {
		return LaunchContext{}, invalid("lti_message_type %q", form.Get("lti_message_type"))
	}
	if !supportedVersions[form.Get("lti_version")] {
		return LaunchContext{}, invalid("lti_version %q", form.Get("lti_version"))
	}
	if form.Get("resource_link_id") == "" {
		return LaunchContext{}, invalid("missing resource_link_id")
	}
	if form.Get("oauth_signature_method") != signatureMethod {
		return LaunchContext{}, invalid("oauth_signature_method %q", form.Get("oauth_signature_method"))
	}

	ts, err := strconv.ParseInt(form.Get("oauth_timestamp"), 10, 64)
	if err != nil {
		return LaunchContext{}, invalid("oauth_timestamp %q", form.Get("oauth_timestamp"))
	}
	if skew := p.nowTime().Sub(time.Unix(ts, 0)); skew > p.maxSkew || skew < -p.maxSkew {
		return LaunchContext{}, invalid("oauth_timestamp outside allowed skew")
	}

	if err := p.verifySignature(r, form); err != nil {
		return LaunchContext{}, invalid("%v", err)
	}

	nonce := form.Get("oauth_nonce")
	if nonce == "" {
		return LaunchContext{}, invalid("missing oauth_nonce")
	}
	fresh, err := p.nonces.Claim(r.Context(), p.key+":"+nonce, 2*p.maxSkew)
	if err != nil {
		return LaunchContext{}, fmt.Errorf("%w: nonce store: %v", apperrors.ErrInvalidLaunch, err)
	}
	if !fresh {
		return LaunchContext{}, invalid("oauth_nonce replayed")
	}

	lc := LaunchContext{
		ConsumerKeyVerified: true,
		LMSInstanceHost:     form.Get(ParamAPIDomain),
		CourseID:            form.Get(ParamCourseID),
		ExternalUserID:      form.Get(ParamUserID),
	}
	log.Info().
		Str("host", lc.LMSInstanceHost).
		Str("course_id", lc.CourseID).
		Str("user_id", lc.ExternalUserID).
		Msg("LTI launch verified")
	return lc, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{apperrors.ErrInvalidLaunch}, args...)...)
}

// launchURL is the absolute URL the consumer signed, without its query.
func (p *Provider) launchURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if p.trustProxy {
		if proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto")); proto != "" {
			scheme = proto
		}
		if fwdHost := firstHeaderValue(r.Header.Get("X-Forwarded-Host")); fwdHost != "" {
			host = fwdHost
		}
	}
	return normalizeURL(scheme, host, r.URL.Path)
}
