package dom

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	ErrNotChild     = errors.New("node is not a child of the given parent")
	ErrNilNode      = errors.New("nil node")
	ErrNotAnElement = errors.New("node is not an element")
)

// One child-list change, as delivered to observers.
type MutationRecord struct {
	Target       *html.Node
	AddedNodes   []*html.Node
	RemovedNodes []*html.Node
}

type Callback func(records []MutationRecord)

// Runs inside an update, so it may mutate the tree through tx.
type Listener func(tx *Tx) error

type Observer struct {
	doc    *Document
	target *html.Node
	cb     Callback
}

// Stops delivery to this observer. Safe to call from inside the observer's own callback.
func (o *Observer) Disconnect() {
	o.doc.obsMu.Lock()
	defer o.doc.obsMu.Unlock()
	for i, other := range o.doc.observers {
		if other == o {
			o.doc.observers = append(o.doc.observers[:i], o.doc.observers[i+1:]...)
			return
		}
	}
}

type Document struct {
	mu        sync.Mutex
	root      *html.Node
	listeners map[*html.Node]map[string][]Listener

	obsMu     sync.Mutex
	observers []*Observer
}

func New(root *html.Node) *Document {
	return &Document{
		root:      root,
		listeners: make(map[*html.Node]map[string][]Listener),
	}
}

func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	return New(root), nil
}

func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Registers a subtree observer on target (childList + subtree semantics).
func (d *Document) Observe(target *html.Node, cb Callback) *Observer {
	o := &Observer{doc: d, target: target, cb: cb}
	d.obsMu.Lock()
	d.observers = append(d.observers, o)
	d.obsMu.Unlock()
	return o
}

// Gives fn read-only access to the tree, serialized with updates.
func (d *Document) Read(fn func(root *html.Node)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.root)
}

// Runs fn as one mutation batch. Records produced by fn are delivered to observers before Update returns, even when fn fails part way through.
func (d *Document) Update(fn func(tx *Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx := &Tx{doc: d}
	err := fn(tx)
	d.deliver(tx.records)
	return err
}

// Fires a user-level event (eg, "click") at n. Listeners on n and its ancestors run in bubbling order inside one update. Returns whether any listener ran.
func (d *Document) Dispatch(n *html.Node, event string) (bool, error) {
	if n == nil {
		return false, ErrNilNode
	}
	handled := false
	err := d.Update(func(tx *Tx) error {
		for cur := n; cur != nil; cur = cur.Parent {
			for _, l := range d.listeners[cur][event] {
				handled = true
				if err := l(tx); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return handled, err
}

func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

func (d *Document) String() string {
	var sb strings.Builder
	if err := d.Render(&sb); err != nil {
		return ""
	}
	return sb.String()
}

func (d *Document) deliver(records []MutationRecord) {
	if len(records) == 0 {
		return
	}
	d.obsMu.Lock()
	observers := make([]*Observer, len(d.observers))
	copy(observers, d.observers)
	d.obsMu.Unlock()

	for _, o := range observers {
		var batch []MutationRecord
		for _, rec := range records {
			if Contains(o.target, rec.Target) {
				batch = append(batch, rec)
			}
		}
		if len(batch) > 0 {
			o.cb(batch)
		}
	}
}

// Tx is the mutation handle passed to Update and to event listeners. It is only valid for the duration of that call.
type Tx struct {
	doc     *Document
	records []MutationRecord
}

func (tx *Tx) detach(child *html.Node) {
	if child.Parent == nil {
		return
	}
	parent := child.Parent
	parent.RemoveChild(child)
	tx.records = append(tx.records, MutationRecord{Target: parent, RemovedNodes: []*html.Node{child}})
}

func (tx *Tx) AppendChild(parent, child *html.Node) error {
	return tx.InsertBefore(parent, child, nil)
}

// Inserts child before ref; a nil ref appends. An attached child is moved, producing a removal record first.
func (tx *Tx) InsertBefore(parent, child, ref *html.Node) error {
	if parent == nil || child == nil {
		return ErrNilNode
	}
	if ref != nil && ref.Parent != parent {
		return ErrNotChild
	}
	if child == ref {
		return nil
	}
	tx.detach(child)
	parent.InsertBefore(child, ref)
	tx.records = append(tx.records, MutationRecord{Target: parent, AddedNodes: []*html.Node{child}})
	return nil
}

func (tx *Tx) RemoveChild(parent, child *html.Node) error {
	if parent == nil || child == nil {
		return ErrNilNode
	}
	if child.Parent != parent {
		return ErrNotChild
	}
	tx.detach(child)
	return nil
}

// Parses fragment in the context of parent and appends the resulting nodes as a single mutation record. Returns the top-level inserted nodes.
func (tx *Tx) AppendHTML(parent *html.Node, fragment string) ([]*html.Node, error) {
	if parent == nil {
		return nil, ErrNilNode
	}
	fragCtx := parent
	if parent.Type != html.ElementNode {
		fragCtx = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), fragCtx)
	if err != nil {
		return nil, fmt.Errorf("parsing fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	if len(nodes) > 0 {
		tx.records = append(tx.records, MutationRecord{Target: parent, AddedNodes: nodes})
	}
	return nodes, nil
}

func (tx *Tx) SetAttr(n *html.Node, key, val string) error {
	if n == nil || n.Type != html.ElementNode {
		return ErrNotAnElement
	}
	setAttr(n, key, val)
	return nil
}

func (tx *Tx) RemoveAttr(n *html.Node, key string) error {
	if n == nil || n.Type != html.ElementNode {
		return ErrNotAnElement
	}
	removeAttr(n, key)
	return nil
}

// Sets one inline style property; an empty value removes it, like assigning "" through the CSSOM.
func (tx *Tx) SetStyle(n *html.Node, prop, val string) error {
	if n == nil || n.Type != html.ElementNode {
		return ErrNotAnElement
	}
	setStyle(n, prop, val)
	return nil
}

func (tx *Tx) RemoveStyle(n *html.Node, prop string) error {
	return tx.SetStyle(n, prop, "")
}

func (tx *Tx) Listen(n *html.Node, event string, l Listener) error {
	if n == nil {
		return ErrNilNode
	}
	byEvent, ok := tx.doc.listeners[n]
	if !ok {
		byEvent = make(map[string][]Listener)
		tx.doc.listeners[n] = byEvent
	}
	byEvent[event] = append(byEvent[event], l)
	return nil
}

// Drops all listeners registered on n and its descendants.
func (tx *Tx) Forget(n *html.Node) {
	if n == nil {
		return
	}
	delete(tx.doc.listeners, n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		tx.Forget(c)
	}
}
