// Pipeline wiring: watches a live document for new content units, dedups them, classifies them in the background and projects flagged verdicts on to the document as dismissible warnings.
//
// Everything up to and including the dedup ledger check runs synchronously inside the document's mutation delivery, so the check-and-set can not race. Classification, persistence and notification run on goroutines, which only touch the document again through Document.Update.
package moderator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bluesky-social/veil/classify"
	"github.com/bluesky-social/veil/dom"
	"github.com/bluesky-social/veil/extract"
	"github.com/bluesky-social/veil/ledger"
	"github.com/bluesky-social/veil/persist"
	"github.com/bluesky-social/veil/profile"
	"github.com/bluesky-social/veil/visibility"
	"github.com/bluesky-social/veil/watcher"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/net/html"
)

var (
	ErrNoClassifier   = errors.New("moderator requires a classifier")
	ErrAlreadyStarted = errors.New("moderator already started")
	ErrNotWarned      = errors.New("content unit is not warned")
)

type Classifier interface {
	Classify(ctx context.Context, text string) (classify.Verdict, error)
}

// Best effort; implementations must not block the caller on the network.
type Persister interface {
	Persist(ctx context.Context, rec persist.Record)
}

type Notifier interface {
	NotifyWarned(ctx context.Context, unit extract.ContentUnit, v classify.Verdict) error
}

type Config struct {
	Profile    *profile.Profile
	Classifier Classifier
	// optional
	Persister Persister
	// optional
	Notifier Notifier
	// also process units already present in the document when Start is called
	ScanExisting bool
	Logger       *slog.Logger
}

type Moderator struct {
	Profile    *profile.Profile
	Classifier Classifier
	Persister  Persister
	Notifier   Notifier
	Logger     *slog.Logger

	scanExisting bool
	ledger       *ledger.Ledger
	units        *xsync.MapOf[*html.Node, *visibility.Unit]

	mu       sync.Mutex
	doc      *dom.Document
	watcher  *watcher.Watcher
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

func New(config Config) (*Moderator, error) {
	if config.Classifier == nil {
		return nil, ErrNoClassifier
	}
	p := config.Profile
	if p == nil {
		p = profile.Default()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Moderator{
		Profile:      p,
		Classifier:   config.Classifier,
		Persister:    config.Persister,
		Notifier:     config.Notifier,
		Logger:       logger.With("component", "moderator", "site", p.Name),
		scanExisting: config.ScanExisting,
		ledger:       ledger.New(),
		units:        xsync.NewMapOf[*html.Node, *visibility.Unit](),
	}, nil
}

// Begins watching the profile's observe target in doc (the document root if the target is missing). A moderator watches one document for its whole life.
func (m *Moderator) Start(ctx context.Context, doc *dom.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc != nil {
		return ErrAlreadyStarted
	}
	m.doc = doc
	m.ctx, m.cancel = context.WithCancel(ctx)

	doc.Read(func(root *html.Node) {
		target := m.Profile.ObserveSelector().Query(root)
		if target == nil {
			m.Logger.Warn("observe target not found, watching whole document", "selector", m.Profile.ObserveSelector().String())
			target = root
		}
		// registered while holding the document, so no batch slips between the scan and the first delivery
		m.watcher = watcher.Watch(doc, target, m.Profile.UnitSelector(), m.handle, m.Logger)
		if m.scanExisting {
			for _, n := range m.Profile.UnitSelector().QueryAll(target) {
				m.handle(n)
			}
		}
	})
	m.Logger.Info("moderator started")
	return nil
}

// Stops observing and cancels in-flight classification. Does not wait; see Wait.
func (m *Moderator) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		m.watcher.Stop()
	}
	if m.cancel != nil {
		m.cancel()
	}
}

// Blocks until every classification started so far has been handled, and any persister that can be drained has been.
func (m *Moderator) Wait() {
	m.inflight.Wait()
	if w, ok := m.Persister.(interface{ Wait() }); ok {
		w.Wait()
	}
}

// Current visibility state of the unit rooted at root.
func (m *Moderator) State(root *html.Node) visibility.State {
	u, ok := m.units.Load(root)
	if !ok {
		return visibility.Unprocessed
	}
	return u.State()
}

// Reports whether key has been admitted for classification.
func (m *Moderator) Seen(key string) bool {
	m.mu.Lock()
	doc := m.doc
	m.mu.Unlock()
	if doc == nil {
		return m.ledger.Seen(key)
	}
	var seen bool
	doc.Read(func(*html.Node) {
		seen = m.ledger.Seen(key)
	})
	return seen
}

// The ledger is only written during mutation delivery; callers must hold the document (Document.Read) or have stopped the moderator.
func (m *Moderator) Ledger() *ledger.Ledger {
	return m.ledger
}

// Same as the user clicking the reveal button of a warned unit.
func (m *Moderator) Reveal(root *html.Node) error {
	u, ok := m.units.Load(root)
	if !ok {
		return ErrNotWarned
	}
	rec := u.Record()
	if rec == nil {
		return ErrNotWarned
	}
	handled, err := m.doc.Dispatch(rec.Reveal, "click")
	if err != nil {
		return err
	}
	if !handled {
		// revealed in the meantime
		return ErrNotWarned
	}
	return nil
}

// Synchronous part, called during mutation delivery with the document held.
func (m *Moderator) handle(root *html.Node) {
	cu, err := extract.Normalize(m.Profile, root)
	if err != nil {
		unitCount.WithLabelValues("unreadable").Inc()
		m.Logger.Error("failed to extract content unit", "err", err)
		return
	}
	if cu.Empty() {
		unitCount.WithLabelValues("empty").Inc()
		return
	}
	if !m.ledger.Admit(cu.Key()) {
		unitCount.WithLabelValues("duplicate").Inc()
		m.Logger.Debug("skipping duplicate content unit", "id", cu.ID, "author", cu.Author)
		return
	}

	// every admitted key is dispatched; a node the host re-rendered with new content starts over as a new unit
	u := visibility.NewUnit()
	if _, err := u.Apply(visibility.Admit); err != nil {
		m.Logger.Error("failed to admit content unit", "id", cu.ID, "err", err)
		return
	}
	prev, recycled := m.units.Load(root)
	m.units.Store(root, u)
	if recycled {
		unitCount.WithLabelValues("recycled").Inc()
		m.Logger.Debug("content unit node re-rendered with new text", "id", cu.ID, "prior_state", prev.State().String())
	}
	unitCount.WithLabelValues("admitted").Inc()

	m.inflight.Add(1)
	go m.moderate(m.ctx, cu, u, prev)
}

func (m *Moderator) moderate(ctx context.Context, cu extract.ContentUnit, u, prev *visibility.Unit) {
	defer m.inflight.Done()
	logger := m.Logger.With("id", cu.ID, "author", cu.Author)
	// similar to an HTTP server, recover any panics from the async part
	defer func() {
		if r := recover(); r != nil {
			logger.Error("content unit moderation exception", "err", r)
		}
	}()

	if prev != nil {
		if err := m.retire(prev); err != nil {
			logger.Warn("failed to take down warning of re-rendered content unit", "err", err)
		}
	}

	v, err := m.Classifier.Classify(ctx, cu.Text)
	if err != nil {
		u.Apply(visibility.Fail)
		unitCount.WithLabelValues("failed").Inc()
		logger.Warn("content unit left pending after classification failure", "err", err)
		return
	}
	logger = logger.With("label", v.Label, "confidence", v.Confidence)

	if m.Persister != nil {
		m.Persister.Persist(ctx, persist.Record{
			ID:     cu.ID,
			Author: cu.Author,
			Text:   cu.Text,
			Label:  v.Label,
		})
	}

	if !v.Flagged {
		u.Apply(visibility.Clean)
		unitCount.WithLabelValues("clean").Inc()
		return
	}

	if err := m.warn(cu.Root, u); err != nil {
		u.Apply(visibility.Unwarnable)
		if errors.Is(err, errSuperseded) {
			unitCount.WithLabelValues("superseded").Inc()
			logger.Debug("content unit node was re-rendered before its verdict arrived, not warning")
			return
		}
		unitCount.WithLabelValues("unwarnable").Inc()
		if errors.Is(err, visibility.ErrShapeMismatch) {
			logger.Warn("flagged content unit has unexpected shape, not warning", "err", err)
		} else {
			logger.Error("failed to warn flagged content unit", "err", err)
		}
		return
	}
	unitCount.WithLabelValues("warned").Inc()
	logger.Info("warned flagged content unit")

	if m.Notifier != nil {
		if err := m.Notifier.NotifyWarned(ctx, cu, v); err != nil {
			logger.Warn("failed to send warn notification", "err", err)
		}
	}
}

var errSuperseded = errors.New("content unit superseded")

func (m *Moderator) warn(root *html.Node, u *visibility.Unit) error {
	return m.doc.Update(func(tx *dom.Tx) error {
		if cur, ok := m.units.Load(root); !ok || cur != u {
			return errSuperseded
		}
		rec, err := visibility.Warn(tx, m.Profile, root)
		if err != nil {
			return err
		}
		if err := u.Warn(rec); err != nil {
			if rerr := rec.Restore(tx); rerr != nil {
				return fmt.Errorf("%w (restore: %w)", err, rerr)
			}
			return err
		}
		return tx.Listen(rec.Reveal, "click", func(tx *dom.Tx) error {
			return m.reveal(tx, u)
		})
	})
}

// Takes down the warning a recycled node still shows for its previous content.
func (m *Moderator) retire(prev *visibility.Unit) error {
	return m.doc.Update(func(tx *dom.Tx) error {
		rec := prev.Detach()
		if rec == nil {
			return nil
		}
		return rec.Restore(tx)
	})
}

// Reveal listener; runs inside the document update that dispatched the click.
func (m *Moderator) reveal(tx *dom.Tx, u *visibility.Unit) error {
	rec, err := u.Reveal()
	if err != nil {
		return err
	}
	if rec == nil {
		// already taken down
		return nil
	}
	if err := rec.Restore(tx); err != nil {
		return err
	}
	unitCount.WithLabelValues("revealed").Inc()
	m.Logger.Debug("revealed warned content unit")
	return nil
}
