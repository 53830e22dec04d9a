package discussion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jrsteele09/twill/canvas"
	apperrors "github.com/jrsteele09/twill/internal/errors"
	"github.com/jrsteele09/twill/internal/utils"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultFetchLimit = 8

// Fetcher is the part of the Canvas client the aggregator needs.
type Fetcher interface {
	ForEachPage(ctx context.Context, token, startURI string, fn canvas.PageFunc) error
	Get(ctx context.Context, token, uri string) (json.RawMessage, string, error)
	CourseURL(host, courseID string, parts ...string) string
}

// Aggregator assembles a course's topics and their reply trees.
type Aggregator struct {
	client     Fetcher
	fetchLimit int
}

type AggregatorOption func(*Aggregator)

// WithFetchLimit bounds how many topic views are fetched at once.
func WithFetchLimit(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.fetchLimit = n
		}
	}
}

func NewAggregator(client Fetcher, options ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		client:     client,
		fetchLimit: defaultFetchLimit,
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// TopicList returns the normalized topics of a course in listing order.
func (a *Aggregator) TopicList(ctx context.Context, token, host, courseID string) ([]*Node, error) {
	topics := []*Node{}
	err := a.client.ForEachPage(ctx, token, a.client.CourseURL(host, courseID, "discussion_topics"), func(uri string, body json.RawMessage) error {
		page, err := ParseTopicPage(uri, body)
		if err != nil {
			return fmt.Errorf("%w: decoding topic page %s: %v", apperrors.ErrUpstream, uri, err)
		}
		topics = append(topics, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return topics, nil
}

// Entries returns the normalized entry tree of one topic.
func (a *Aggregator) Entries(ctx context.Context, token, host, courseID, topicID string) ([]*Node, error) {
	uri := a.client.CourseURL(host, courseID, "discussion_topics", topicID, "view")
	body, _, err := a.client.Get(ctx, token, uri)
	if err != nil {
		return nil, err
	}
	entries, err := ParseView(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding topic view %s: %v", apperrors.ErrUpstream, uri, err)
	}
	return entries, nil
}

// BuildCourseTree fetches every topic and, for topics with replies, their entry
// trees, and returns them under the synthetic root. Any failed fetch fails the
// whole tree.
func (a *Aggregator) BuildCourseTree(ctx context.Context, token, host, courseID string) (*Node, error) {
	topics, err := a.TopicList(ctx, token, host, courseID)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.fetchLimit)
	for _, topic := range topics {
		if utils.Value(topic.SubentryCount) <= 0 {
			continue
		}
		g.Go(func() error {
			entries, err := a.Entries(gctx, token, host, courseID, string(topic.ID))
			if err != nil {
				return apperrors.Wrapf(err, "topic %s", topic.ID)
			}
			topic.Children = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Err(err).Str("course_id", courseID).Msg("Building discussion tree failed")
		return nil, err
	}

	log.Debug().Str("course_id", courseID).Int("topics", len(topics)).Msg("Built discussion tree")
	return NewRoot(topics), nil
}
