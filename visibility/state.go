// Per-unit visibility state machine.
//
// Each content unit moves through Unprocessed -> PendingClassification -> {NotFlagged | Warned -> Revealed}. The transition function is pure; hiding content and showing the warning (Warn, Record.Restore) is a separate projection of the Warned state on to the document.
package visibility

import (
	"errors"
	"fmt"
)

type State int

const (
	Unprocessed State = iota
	PendingClassification
	NotFlagged
	Warned
	Revealed
)

func (s State) String() string {
	switch s {
	case Unprocessed:
		return "unprocessed"
	case PendingClassification:
		return "pending-classification"
	case NotFlagged:
		return "not-flagged"
	case Warned:
		return "flagged-warned"
	case Revealed:
		return "revealed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal states never transition again.
func (s State) Terminal() bool {
	return s == NotFlagged || s == Revealed
}

type Event int

const (
	// unit passed the dedup ledger and was sent for classification
	Admit Event = iota
	// verdict: not flagged
	Clean
	// classification failed; the unit stays pending
	Fail
	// verdict: flagged, and the warning was rendered
	Flag
	// verdict: flagged, but the unit's shape did not allow a warning
	Unwarnable
	// user asked to see the content
	Reveal
)

func (e Event) String() string {
	switch e {
	case Admit:
		return "admit"
	case Clean:
		return "clean"
	case Fail:
		return "fail"
	case Flag:
		return "flag"
	case Unwarnable:
		return "unwarnable"
	case Reveal:
		return "reveal"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

var ErrInvalidTransition = errors.New("invalid visibility transition")

// Pure transition function.
func Next(s State, e Event) (State, error) {
	switch {
	case s == Unprocessed && e == Admit:
		return PendingClassification, nil
	case s == PendingClassification && e == Clean:
		return NotFlagged, nil
	case s == PendingClassification && e == Fail:
		return PendingClassification, nil
	case s == PendingClassification && e == Flag:
		return Warned, nil
	case s == PendingClassification && e == Unwarnable:
		return NotFlagged, nil
	case s == Warned && e == Reveal:
		return Revealed, nil
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, s)
}
