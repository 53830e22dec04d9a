package discussion

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ToText converts an HTML message body to plain text. Lines are never wrapped,
// link targets and images are dropped, and block elements start new lines.
func ToText(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		// html.Parse only fails on reader errors
		return strings.TrimSpace(body)
	}
	w := &textWriter{}
	w.walk(doc)
	return strings.TrimSpace(w.b.String())
}

type listState struct {
	ordered bool
	next    int
}

type textWriter struct {
	b             strings.Builder
	pendingSpace  bool
	trailingBreak int
	afterPrefix   bool
	upper         int
	lists         []listState
}

var paragraphAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Blockquote: true, atom.Pre: true, atom.Table: true,
	atom.Ul: true, atom.Ol: true, atom.Hr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

var lineAtoms = map[atom.Atom]bool{
	atom.Div: true, atom.Li: true, atom.Tr: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Dt: true, atom.Dd: true, atom.Figure: true,
}

var headingAtoms = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Head, atom.Script, atom.Style, atom.Img, atom.Noscript, atom.Iframe:
			return
		case atom.Br:
			w.pendingSpace = false
			w.b.WriteByte('\n')
			w.trailingBreak++
			return
		case atom.Td, atom.Th:
			w.pendingSpace = w.trailingBreak == 0 && w.b.Len() > 0
		}
	}

	block := 0
	if n.Type == html.ElementNode {
		switch {
		case paragraphAtoms[n.DataAtom]:
			block = 2
		case lineAtoms[n.DataAtom]:
			block = 1
		}
	}
	if block > 0 {
		w.lineBreak(block)
	}

	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Ul:
			w.lists = append(w.lists, listState{})
			defer w.popList()
		case atom.Ol:
			w.lists = append(w.lists, listState{ordered: true, next: 1})
			defer w.popList()
		case atom.Li:
			w.raw(w.listPrefix())
		}
		if headingAtoms[n.DataAtom] {
			w.upper++
			defer func() { w.upper-- }()
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}

	if block > 0 {
		w.lineBreak(block)
	}
}

func (w *textWriter) popList() {
	w.lists = w.lists[:len(w.lists)-1]
}

func (w *textWriter) listPrefix() string {
	if len(w.lists) == 0 {
		return "* "
	}
	l := &w.lists[len(w.lists)-1]
	if !l.ordered {
		return "* "
	}
	prefix := strconv.Itoa(l.next) + ". "
	l.next++
	return prefix
}

// text writes character data with whitespace runs collapsed to one space.
func (w *textWriter) text(s string) {
	if w.upper > 0 {
		s = strings.ToUpper(s)
	}
	for _, r := range s {
		if unicode.IsSpace(r) {
			if w.b.Len() > 0 && w.trailingBreak == 0 && !w.afterPrefix {
				w.pendingSpace = true
			}
			continue
		}
		if w.pendingSpace {
			w.b.WriteByte(' ')
			w.pendingSpace = false
		}
		w.b.WriteRune(r)
		w.trailingBreak = 0
		w.afterPrefix = false
	}
}

func (w *textWriter) raw(s string) {
	if w.pendingSpace {
		w.b.WriteByte(' ')
		w.pendingSpace = false
	}
	w.b.WriteString(s)
	w.trailingBreak = 0
	w.afterPrefix = true
}

// lineBreak ends the current line and makes sure n line breaks trail the output.
func (w *textWriter) lineBreak(n int) {
	w.pendingSpace = false
	w.afterPrefix = false
	if w.b.Len() == 0 {
		return
	}
	for w.trailingBreak < n {
		w.b.WriteByte('\n')
		w.trailingBreak++
	}
}
