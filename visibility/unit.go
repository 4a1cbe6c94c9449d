package visibility

import (
	"sync"
)

// Visibility state of one content unit. Units are independent of each other; the verdict goroutine and the reveal listener of the same unit may race, so access is locked.
type Unit struct {
	mu     sync.Mutex
	state  State
	record *Record
}

func NewUnit() *Unit {
	return &Unit{state: Unprocessed}
}

func (u *Unit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Current warning record; nil unless the unit is Warned.
func (u *Unit) Record() *Record {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.record
}

// Applies e. On an invalid transition the state is left unchanged.
func (u *Unit) Apply(e Event) (State, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.apply(e)
}

func (u *Unit) apply(e Event) (State, error) {
	next, err := Next(u.state, e)
	if err != nil {
		return u.state, err
	}
	u.state = next
	transitionCount.WithLabelValues(e.String(), next.String()).Inc()
	if next != Warned {
		u.record = nil
	}
	return next, nil
}

// Enters Warned and attaches rec in one step.
func (u *Unit) Warn(rec *Record) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, err := u.apply(Flag); err != nil {
		return err
	}
	u.record = rec
	return nil
}

// Enters Revealed and hands back the record to restore, exactly once.
func (u *Unit) Reveal() (*Record, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	rec := u.record
	if _, err := u.apply(Reveal); err != nil {
		return nil, err
	}
	return rec, nil
}

// Takes the warning record away from the unit, leaving its state alone. Returns nil if there is none or it was already taken by Detach or Reveal.
func (u *Unit) Detach() *Record {
	u.mu.Lock()
	defer u.mu.Unlock()
	rec := u.record
	u.record = nil
	return rec
}
