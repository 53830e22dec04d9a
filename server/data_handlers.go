package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/jrsteele09/twill/lti"
	"github.com/rs/zerolog/log"
)

// fetchFunc loads one data set from the LMS for a launch.
type fetchFunc func(ctx context.Context, token string, launch *lti.LaunchContext, r *http.Request) (interface{}, error)

// dataHandler resolves the caller's access token, runs fetch, and writes the
// result or the classified failure as JSON.
func (s *Server) dataHandler(name string, fetch fetchFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := launchedSession(r)
		ctx := r.Context()

		token, err := s.lifecycle.AccessToken(ctx, s.identity(sess))
		if err != nil {
			log.Err(err).Str("data", name).Msg("No usable credential")
			writeTokenError(w, err)
			return
		}

		body, err := fetch(ctx, token, sess.Launch, r)
		if err != nil {
			log.Err(err).Str("data", name).Str("course_id", sess.Launch.CourseID).Msg("Canvas fetch failed")
			writeUpstreamError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func (s *Server) RosterHandler() http.HandlerFunc {
	return s.dataHandler("roster", func(ctx context.Context, token string, launch *lti.LaunchContext, _ *http.Request) (interface{}, error) {
		return s.canvas.FetchRoster(ctx, token, launch.LMSInstanceHost, launch.CourseID)
	})
}

func (s *Server) TopicListHandler() http.HandlerFunc {
	return s.dataHandler("topicList", func(ctx context.Context, token string, launch *lti.LaunchContext, _ *http.Request) (interface{}, error) {
		return s.discussions.TopicList(ctx, token, launch.LMSInstanceHost, launch.CourseID)
	})
}

func (s *Server) TopicEntriesHandler() http.HandlerFunc {
	entries := s.dataHandler("topic", func(ctx context.Context, token string, launch *lti.LaunchContext, r *http.Request) (interface{}, error) {
		return s.discussions.Entries(ctx, token, launch.LMSInstanceHost, launch.CourseID, r.PathValue("id"))
	})
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := strconv.ParseInt(r.PathValue("id"), 10, 64); err != nil {
			writeJSONError(w, msgInvalidTopic, http.StatusBadRequest)
			return
		}
		entries(w, r)
	}
}

// DiscussionsHandler returns every topic with its reply tree under one root.
func (s *Server) DiscussionsHandler() http.HandlerFunc {
	return s.dataHandler("discussions", func(ctx context.Context, token string, launch *lti.LaunchContext, _ *http.Request) (interface{}, error) {
		return s.discussions.BuildCourseTree(ctx, token, launch.LMSInstanceHost, launch.CourseID)
	})
}
