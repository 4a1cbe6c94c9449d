package dom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// A compiled CSS selector.
type Selector struct {
	raw string
	sel cascadia.Selector
}

func ParseSelector(raw string) (Selector, error) {
	sel, err := cascadia.Compile(raw)
	if err != nil {
		return Selector{}, fmt.Errorf("invalid selector %q: %w", raw, err)
	}
	return Selector{raw: raw, sel: sel}, nil
}

func MustSelector(raw string) Selector {
	s, err := ParseSelector(raw)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Selector) String() string {
	return s.raw
}

func (s Selector) IsZero() bool {
	return s.sel == nil
}

// Reports whether n itself is an element matching s.
func (s Selector) Match(n *html.Node) bool {
	if s.sel == nil || n == nil || n.Type != html.ElementNode {
		return false
	}
	return s.sel.Match(n)
}

// All matching descendants of n (excluding n), in document order.
func (s Selector) QueryAll(n *html.Node) []*html.Node {
	if s.sel == nil || n == nil {
		return nil
	}
	return goquery.NewDocumentFromNode(n).FindMatcher(s.sel).Nodes
}

// First matching descendant of n, or nil.
func (s Selector) Query(n *html.Node) *html.Node {
	if s.sel == nil || n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := s.sel.MatchFirst(c); m != nil {
			return m
		}
	}
	return nil
}

// Element children of n, skipping text and comment nodes.
func ElementChildren(n *html.Node) []*html.Node {
	if n == nil {
		return nil
	}
	return goquery.NewDocumentFromNode(n).Children().Nodes
}

// Walks up the given number of parent links. Returns nil when the chain runs out.
func Ancestor(n *html.Node, levels int) *html.Node {
	cur := n
	for i := 0; i < levels && cur != nil; i++ {
		cur = cur.Parent
	}
	return cur
}

// Reports whether n is ancestor or equal to descendant.
func Contains(ancestor, descendant *html.Node) bool {
	if ancestor == nil {
		return false
	}
	for cur := descendant; cur != nil; cur = cur.Parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// Concatenated text of all text-node descendants, like the DOM textContent property.
func TextContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	return goquery.NewDocumentFromNode(n).Text()
}

// Text content with surrounding whitespace removed.
func TrimmedText(n *html.Node) string {
	return strings.TrimSpace(TextContent(n))
}
