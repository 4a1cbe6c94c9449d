// Dedup ledger: the set of identity keys already dispatched for classification.
//
// A ledger lives exactly as long as the moderation pipeline that owns it (one page session). It never evicts, so a key is admitted at most once over its lifetime.
package ledger

// Not safe for concurrent use. The pipeline only touches it from mutation observer callbacks, which the document serializes.
type Ledger struct {
	keys map[string]struct{}
}

func New() *Ledger {
	return &Ledger{
		keys: make(map[string]struct{}),
	}
}

func (l *Ledger) Seen(key string) bool {
	_, ok := l.keys[key]
	return ok
}

func (l *Ledger) Record(key string) {
	l.keys[key] = struct{}{}
}

// Check-and-set: records key and returns true if it had not been seen before.
func (l *Ledger) Admit(key string) bool {
	if l.Seen(key) {
		return false
	}
	l.Record(key)
	return true
}

func (l *Ledger) Len() int {
	return len(l.keys)
}
