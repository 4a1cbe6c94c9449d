// Turns a rendered content unit (a post) into normalized text and identity metadata.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bluesky-social/veil/dom"
	"github.com/bluesky-social/veil/profile"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// Sentinel used when author or id can not be resolved.
const Unknown = "unknown"

var ErrPanic = errors.New("content unit extraction panicked")

type ContentUnit struct {
	Root   *html.Node
	Text   string
	Author string
	ID     string
}

// Identity key for deduplication. This is the rendered text, not the external id: two posts with identical wording are the same unit.
func (u ContentUnit) Key() string {
	return u.Text
}

func (u ContentUnit) Empty() bool {
	return u.Text == ""
}

// Extracts a ContentUnit from root. Lookup misses degrade to an empty text or the Unknown sentinel; an error is only returned if extraction panicked, in which case the text is empty.
func Normalize(p *profile.Profile, root *html.Node) (u ContentUnit, err error) {
	u = ContentUnit{
		Root:   root,
		Author: "@" + Unknown,
		ID:     Unknown,
	}
	if root == nil || p == nil {
		return u, nil
	}
	defer func() {
		if r := recover(); r != nil {
			u.Text = ""
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	u.Text = Text(p, root)
	if handle := AuthorHandle(p, root); handle != "" {
		u.Author = "@" + handle
	}
	if id := ExternalID(p, root); id != "" {
		u.ID = id
	}
	return u, nil
}

// Joins the trimmed text of every leaf text segment with single spaces, then NFC-normalizes. A text node belongs to its nearest enclosing segment, so a segment with nested segments contributes its own text around theirs. Returns "" when the unit has no text container.
func Text(p *profile.Profile, root *html.Node) string {
	container := p.TextSelector().Query(root)
	if container == nil {
		return ""
	}
	leafSel := p.TextLeafSelector()

	var (
		parts []string
		owner *html.Node
		buf   strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			parts = append(parts, s)
		}
		buf.Reset()
	}
	var walk func(n, seg *html.Node)
	walk = func(n, seg *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				if seg == nil {
					continue
				}
				if seg != owner {
					flush()
					owner = seg
				}
				buf.WriteString(c.Data)
			case html.ElementNode:
				next := seg
				if leafSel.Match(c) {
					next = c
				}
				walk(c, next)
			}
		}
	}
	var top *html.Node
	if leafSel.Match(container) {
		top = container
	}
	walk(container, top)
	flush()

	return norm.NFC.String(strings.Join(parts, " "))
}

// First path segment of the first profile link, without the leading slash.
func AuthorHandle(p *profile.Profile, root *html.Node) string {
	link := p.AuthorSelector().Query(root)
	href, ok := dom.Attr(link, "href")
	if !ok {
		return ""
	}
	seg, _, _ := strings.Cut(strings.TrimPrefix(href, "/"), "/")
	seg, _, _ = strings.Cut(seg, "?")
	return seg
}

// Status id from the first permalink, or "" if there is none or it does not match.
func ExternalID(p *profile.Profile, root *html.Node) string {
	link := p.PermalinkSelector().Query(root)
	href, ok := dom.Attr(link, "href")
	if !ok {
		return ""
	}
	m := p.PermalinkRegexp().FindStringSubmatch(href)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
