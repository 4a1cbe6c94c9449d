package visibility

import (
	"errors"
	"fmt"

	"github.com/bluesky-social/veil/dom"
	"github.com/bluesky-social/veil/profile"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var ErrShapeMismatch = errors.New("content unit does not have the expected display container shape")

const (
	// marks nodes created by the warning overlay
	MarkerAttr    = "data-veil"
	MarkerWarning = "warning"
	MarkerReveal  = "reveal"
)

// Returns the unit's display container: the ancestor ContainerDepth levels above the unit's action group, which must lie inside the unit and have more than two element children. Any other shape is reported as absent.
func DisplayContainer(p *profile.Profile, root *html.Node) (*html.Node, bool) {
	group := p.ActionGroupSelector().Query(root)
	if group == nil {
		return nil, false
	}
	container := dom.Ancestor(group, p.ContainerDepth)
	if container == nil || !dom.Contains(root, container) {
		return nil, false
	}
	if len(dom.ElementChildren(container)) <= 2 {
		return nil, false
	}
	return container, true
}

// What it takes to undo a warning.
type Record struct {
	Root      *html.Node
	Container *html.Node
	Warning   *html.Node
	Reveal    *html.Node
	// children hidden by the warning, in document order
	Hidden []*html.Node

	// raw style attributes of every node the warning restyled, in the order they were touched
	prior []styleSnapshot
}

type styleSnapshot struct {
	node    *html.Node
	style   string
	present bool
}

func (r *Record) snapshot(n *html.Node) {
	style, ok := dom.Attr(n, "style")
	r.prior = append(r.prior, styleSnapshot{node: n, style: style, present: ok})
}

// Projects the Warned state on to a unit: hides every element child of the display container except the first and last, inserts the warning overlay right after the first child, and highlights the unit root. On any error the changes made so far are rolled back, so a failed Warn leaves the unit as it found it.
func Warn(tx *dom.Tx, p *profile.Profile, root *html.Node) (_ *Record, err error) {
	container, ok := DisplayContainer(p, root)
	if !ok {
		return nil, ErrShapeMismatch
	}
	children := dom.ElementChildren(container)

	rec := &Record{
		Root:      root,
		Container: container,
	}
	defer func() {
		if err != nil {
			if rerr := rec.Restore(tx); rerr != nil {
				err = fmt.Errorf("%w (rollback: %w)", err, rerr)
			}
		}
	}()

	for _, c := range children[1 : len(children)-1] {
		rec.snapshot(c)
		if err := tx.SetStyle(c, "display", "none"); err != nil {
			return nil, err
		}
		rec.Hidden = append(rec.Hidden, c)
	}

	warning, reveal := newWarning(p)
	if err := tx.InsertBefore(container, warning, children[1]); err != nil {
		return nil, fmt.Errorf("inserting warning: %w", err)
	}
	rec.Warning, rec.Reveal = warning, reveal

	rec.snapshot(root)
	if err := tx.SetStyle(root, "background-color", p.HighlightColor); err != nil {
		return nil, err
	}
	if err := tx.SetStyle(root, "position", "relative"); err != nil {
		return nil, err
	}
	return rec, nil
}

// Undoes Warn: puts back the exact style attribute of every node it restyled and removes the warning overlay (and its listeners).
func (r *Record) Restore(tx *dom.Tx) error {
	for i := len(r.prior) - 1; i >= 0; i-- {
		s := r.prior[i]
		var err error
		if s.present {
			err = tx.SetAttr(s.node, "style", s.style)
		} else {
			err = tx.RemoveAttr(s.node, "style")
		}
		if err != nil {
			return err
		}
	}
	if r.Warning == nil {
		return nil
	}
	if r.Warning.Parent != nil {
		if err := tx.RemoveChild(r.Warning.Parent, r.Warning); err != nil {
			return err
		}
	}
	tx.Forget(r.Warning)
	return nil
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func newWarning(p *profile.Profile) (warning, reveal *html.Node) {
	warning = element(atom.Div,
		html.Attribute{Key: MarkerAttr, Val: MarkerWarning},
		html.Attribute{Key: "style", Val: "padding: 0.75em 1em; display: flex; flex-direction: column; justify-content: center; align-items: center; z-index: 9999"},
	)
	label := element(atom.Section,
		html.Attribute{Key: "style", Val: "width: 100%; padding: 0.75em 1em; background-color: #b33a3a; color: white; border-radius: 8px; font-weight: bold; text-align: center; font-size: 16px; box-shadow: 0 2px 6px rgba(0, 0, 0, 0.2)"},
	)
	label.AppendChild(text(p.WarningText))
	reveal = element(atom.Button,
		html.Attribute{Key: "type", Val: "button"},
		html.Attribute{Key: MarkerAttr, Val: MarkerReveal},
		html.Attribute{Key: "style", Val: "margin-top: 0.5rem; padding: 0.5rem 1rem; background-color: transparent; color: #fff; border: 2px solid transparent; font-weight: bold; cursor: pointer; border-radius: 4px; font-size: 14px"},
	)
	reveal.AppendChild(text(p.RevealText))
	warning.AppendChild(label)
	warning.AppendChild(reveal)
	return warning, reveal
}
