// Request/response messaging between the observing side (which owns the document) and the dispatch side (which talks to the classifier), carried over a websocket.
//
// Every request carries a client-chosen id and is answered at most once, asynchronously, with a response carrying the same id. Responses may arrive in any order.
package bridge

import (
	"errors"
)

const TypeClassify = "classifyTweet"

var (
	ErrClosed      = errors.New("bridge connection closed")
	ErrRemote      = errors.New("bridge peer failed to classify text")
	ErrNoLabel     = errors.New("bridge response has neither label nor error")
	ErrUnknownType = errors.New("unknown bridge request type")
)

type Request struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Label struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Exactly one of Label or Error is set.
type Response struct {
	ID    string `json:"id"`
	Label *Label `json:"label,omitempty"`
	Error bool   `json:"error,omitempty"`
}
