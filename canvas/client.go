package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/twill/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxPages = 1000
	maxErrorBody    = 512
)

// Canvas advertises further pages as `<uri>; rel="next"` inside a comma separated Link header.
var nextLinkRegEx = regexp.MustCompile(`^<(.*)>; rel="next"$`)

// Shared HTTP client with connection pooling
var sharedHTTPClient = &http.Client{
	Timeout: defaultTimeout,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
}

// PageFunc receives each page body together with the URI it was fetched from.
type PageFunc func(pageURI string, body json.RawMessage) error

// Client issues authenticated GET requests against the Canvas REST API.
type Client struct {
	httpClient *http.Client
	scheme     string
	maxPages   int
}

type ClientOption func(*Client)

// WithHTTPClient replaces the shared pooled client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout uses a dedicated client with the given per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 && timeout != sharedHTTPClient.Timeout {
			c.httpClient = &http.Client{
				Timeout:   timeout,
				Transport: sharedHTTPClient.Transport,
			}
		}
	}
}

// WithScheme sets the scheme used to build course URLs from an instance host
func WithScheme(scheme string) ClientOption {
	return func(c *Client) {
		c.scheme = scheme
	}
}

// WithMaxPages bounds how many pages a single listing may span
func WithMaxPages(maxPages int) ClientOption {
	return func(c *Client) {
		if maxPages > 0 {
			c.maxPages = maxPages
		}
	}
}

func NewClient(options ...ClientOption) *Client {
	c := &Client{
		httpClient: sharedHTTPClient,
		scheme:     "https",
		maxPages:   defaultMaxPages,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// CourseURL builds an API URL below /api/v1/courses/<courseID> on the given instance host.
func (c *Client) CourseURL(host, courseID string, parts ...string) string {
	segments := append([]string{"api", "v1", "courses", url.PathEscape(courseID)}, parts...)
	return fmt.Sprintf("%s://%s/%s", c.scheme, host, strings.Join(segments, "/"))
}

// FetchAllPages follows rel="next" links from startURI and returns every page body in
// arrival order. A failed page fails the whole listing.
func (c *Client) FetchAllPages(ctx context.Context, token, startURI string) ([]json.RawMessage, error) {
	var pages []json.RawMessage
	err := c.ForEachPage(ctx, token, startURI, func(_ string, body json.RawMessage) error {
		pages = append(pages, body)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// ForEachPage walks a paginated listing sequentially, handing each page to fn as it arrives.
func (c *Client) ForEachPage(ctx context.Context, token, startURI string, fn PageFunc) error {
	uri := startURI
	for page := 1; uri != ""; page++ {
		if page > c.maxPages {
			return fmt.Errorf("%w: listing %s exceeded %d pages", apperrors.ErrUpstream, startURI, c.maxPages)
		}

		body, next, err := c.Get(ctx, token, uri)
		if err != nil {
			return err
		}
		if err := fn(uri, body); err != nil {
			return err
		}
		uri = next
	}
	return nil
}

// Get fetches one page and returns its body and the next page URI, if any.
func (c *Client) Get(ctx context.Context, token, uri string) (json.RawMessage, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", apperrors.Wrapf(apperrors.ErrUpstream, "building request for %s: %v", uri, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &NetworkError{URI: uri, Err: err}
	}
	defer resp.Body.Close()

	log.Debug().
		Str("uri", uri).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Canvas request")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, "", &AuthError{URI: uri, StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", &UpstreamError{URI: uri, StatusCode: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &NetworkError{URI: uri, Err: err}
	}
	if !json.Valid(body) {
		return nil, "", &UpstreamError{URI: uri, StatusCode: resp.StatusCode, Body: "response is not valid JSON"}
	}

	return body, NextPage(resp.Header.Get("Link")), nil
}

// NextPage extracts the rel="next" target from a Link header, or "" when there is none.
func NextPage(headerLink string) string {
	next := ""
	if headerLink == "" {
		return next
	}
	for _, link := range strings.Split(headerLink, ",") {
		if matches := nextLinkRegEx.FindStringSubmatch(strings.TrimSpace(link)); matches != nil {
			next = matches[1]
		}
	}
	return next
}
