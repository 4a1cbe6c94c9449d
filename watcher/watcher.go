// Mutation watcher: filters inserted nodes down to candidate content units and forwards each one, in document order, to a handler.
//
// The watcher is level-triggered. It ignores removals and has no memory of what it forwarded before; a unit that is re-inserted is forwarded again, and it is up to the handler (the dedup ledger) to drop it.
package watcher

import (
	"log/slog"

	"github.com/bluesky-social/veil/dom"

	"golang.org/x/net/html"
)

type Handler func(root *html.Node)

type Watcher struct {
	Logger *slog.Logger

	unit     dom.Selector
	handle   Handler
	observer *dom.Observer
}

// Starts observing insertions under target. Runs until Stop.
func Watch(doc *dom.Document, target *html.Node, unit dom.Selector, handle Handler, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		Logger: logger,
		unit:   unit,
		handle: handle,
	}
	w.observer = doc.Observe(target, w.onBatch)
	return w
}

func (w *Watcher) Stop() {
	if w.observer != nil {
		w.observer.Disconnect()
	}
}

func (w *Watcher) onBatch(records []dom.MutationRecord) {
	for _, n := range Candidates(records, w.unit) {
		w.forward(n)
	}
}

// a failing handler must never take the observer down with it
func (w *Watcher) forward(n *html.Node) {
	defer func() {
		if r := recover(); r != nil {
			w.Logger.Error("content unit handler panic", "err", r)
			watcherPanics.Inc()
		}
	}()
	candidatesForwarded.Inc()
	w.handle(n)
}

// Every added element that matches unit, followed by each of its matching descendants, in record order and then document order. Text and comment nodes are skipped.
func Candidates(records []dom.MutationRecord, unit dom.Selector) []*html.Node {
	var out []*html.Node
	for _, rec := range records {
		for _, n := range rec.AddedNodes {
			if n == nil || n.Type != html.ElementNode {
				continue
			}
			if unit.Match(n) {
				out = append(out, n)
			}
			out = append(out, unit.QueryAll(n)...)
		}
	}
	return out
}
