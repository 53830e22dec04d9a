package discussion

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/jrsteele09/twill/internal/utils"
)

const (
	// RootID identifies the synthetic node holding a course's topics.
	RootID    NodeID = "root"
	RootTitle        = "Discussions"
)

// NodeID is a Canvas object id, or RootID for the synthetic root. Numeric ids
// encode as JSON numbers.
type NodeID string

func (id NodeID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = NodeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = NodeID(n.String())
	return nil
}

// Node is a normalized topic, entry or reply.
type Node struct {
	ID            NodeID  `json:"id"`
	Title         string  `json:"title,omitempty"`
	URL           string  `json:"url,omitempty"`
	AuthorID      *int64  `json:"user_id"`
	Message       string  `json:"message"`
	MessageLength int     `json:"message_length"`
	CreatedAt     *string `json:"created_at,omitempty"`
	SubentryCount *int    `json:"subentry_count,omitempty"`
	Children      []*Node `json:"children,omitempty"`
}

type plainNode Node

// MarshalJSON omits children only when they were never set; an empty reply
// list encodes as [].
func (n Node) MarshalJSON() ([]byte, error) {
	var children *[]*Node
	if n.Children != nil {
		children = &n.Children
	}
	return json.Marshal(struct {
		plainNode
		Children *[]*Node `json:"children,omitempty"`
	}{plainNode(n), children})
}

// RawEntry is an entry or reply as returned by the discussion view endpoint.
type RawEntry struct {
	ID        json.Number `json:"id"`
	UserID    *int64      `json:"user_id"`
	Message   string      `json:"message"`
	CreatedAt string      `json:"created_at"`
	Replies   []RawEntry  `json:"replies"`
}

// RawTopic is one element of the topic listing.
type RawTopic struct {
	ID      json.Number `json:"id"`
	Title   string      `json:"title"`
	Message string      `json:"message"`
	Author  struct {
		ID *int64 `json:"id"`
	} `json:"author"`
	DiscussionSubentryCount int `json:"discussion_subentry_count"`
}

type rawView struct {
	View []RawEntry `json:"view"`
}

// CountWords counts whitespace separated tokens. Blank text counts as one word.
func CountWords(text string) int {
	t := strings.TrimSpace(text)
	if t == "" {
		return 1
	}
	return len(strings.Fields(t))
}

// NormalizeEntry converts an entry and its nested replies.
func NormalizeEntry(raw RawEntry) *Node {
	node := &Node{
		ID:       NodeID(raw.ID.String()),
		AuthorID: raw.UserID,
	}
	setMessage(node, raw.Message)
	if raw.CreatedAt != "" {
		node.CreatedAt = utils.Ptr(raw.CreatedAt)
	}
	if raw.Replies != nil {
		node.Children = make([]*Node, 0, len(raw.Replies))
		for _, reply := range raw.Replies {
			node.Children = append(node.Children, NormalizeEntry(reply))
		}
	}
	return node
}

// NormalizeTopic converts a topic from the listing page fetched from pageURI.
// Children stay nil until the topic's view is fetched.
func NormalizeTopic(raw RawTopic, pageURI string) *Node {
	node := &Node{
		ID:            NodeID(raw.ID.String()),
		Title:         raw.Title,
		URL:           topicURL(pageURI, raw.ID.String()),
		AuthorID:      raw.Author.ID,
		SubentryCount: utils.Ptr(raw.DiscussionSubentryCount),
	}
	setMessage(node, raw.Message)
	return node
}

// ParseTopicPage normalizes one page of the topic listing.
func ParseTopicPage(pageURI string, body []byte) ([]*Node, error) {
	var raw []RawTopic
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	topics := make([]*Node, 0, len(raw))
	for _, t := range raw {
		topics = append(topics, NormalizeTopic(t, pageURI))
	}
	return topics, nil
}

// ParseView normalizes the top level entries of a topic view.
func ParseView(body []byte) ([]*Node, error) {
	var view rawView
	if err := json.Unmarshal(body, &view); err != nil {
		return nil, err
	}
	entries := make([]*Node, 0, len(view.View))
	for _, e := range view.View {
		entries = append(entries, NormalizeEntry(e))
	}
	return entries, nil
}

// NewRoot wraps topics under the synthetic course root.
func NewRoot(topics []*Node) *Node {
	if topics == nil {
		topics = []*Node{}
	}
	return &Node{
		ID:       RootID,
		Title:    RootTitle,
		Children: topics,
	}
}

func setMessage(node *Node, body string) {
	node.Message = ToText(body)
	node.MessageLength = CountWords(node.Message)
}

func topicURL(pageURI, id string) string {
	base := pageURI
	if u, err := url.Parse(pageURI); err == nil {
		u.RawQuery = ""
		u.ForceQuery = false
		u.Fragment = ""
		base = u.String()
	} else if i := strings.IndexByte(pageURI, '?'); i >= 0 {
		base = pageURI[:i]
	}
	return strings.TrimSuffix(base, "/") + "/" + id
}
