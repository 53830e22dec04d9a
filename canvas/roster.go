package canvas

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/jrsteele09/twill/internal/errors"
)

// RosterEntry is one course participant.
type RosterEntry struct {
	ID           int64  `json:"id"`
	ShortName    string `json:"short_name"`
	SortableName string `json:"sortable_name"`
}

// FetchRoster returns every user enrolled in the course, in listing order.
func (c *Client) FetchRoster(ctx context.Context, token, host, courseID string) ([]RosterEntry, error) {
	people := []RosterEntry{}
	err := c.ForEachPage(ctx, token, c.CourseURL(host, courseID, "users"), func(uri string, body json.RawMessage) error {
		var page []RosterEntry
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("%w: decoding roster page %s: %v", apperrors.ErrUpstream, uri, err)
		}
		people = append(people, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return people, nil
}
