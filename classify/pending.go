package classify

import (
	"context"
	"sync"
)

// A verdict that will be resolved at most once, possibly from another goroutine.
type Pending struct {
	once    sync.Once
	done    chan struct{}
	verdict Verdict
	err     error
}

func NewPending() *Pending {
	return &Pending{
		done: make(chan struct{}),
	}
}

// Resolves the pending verdict. Only the first call has any effect; later calls return false.
func (p *Pending) Resolve(v Verdict, err error) bool {
	resolved := false
	p.once.Do(func() {
		p.verdict = v
		p.err = err
		resolved = true
		close(p.done)
	})
	return resolved
}

func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Blocks until resolved.
func (p *Pending) Result() (Verdict, error) {
	<-p.done
	return p.verdict, p.err
}

// Blocks until resolved or ctx is done.
func (p *Pending) Wait(ctx context.Context) (Verdict, error) {
	select {
	case <-p.done:
		return p.verdict, p.err
	case <-ctx.Done():
		return Verdict{}, ctx.Err()
	}
}
