package moderator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bluesky-social/veil/classify"
	"github.com/bluesky-social/veil/dom"
	"github.com/bluesky-social/veil/extract"
	"github.com/bluesky-social/veil/fakeengine"
	"github.com/bluesky-social/veil/persist"
	"github.com/bluesky-social/veil/profile"
	"github.com/bluesky-social/veil/visibility"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const emptyPage = `<html><head></head><body><main id="feed"></main></body></html>`

func tweet(id, author, text string) string {
	return fmt.Sprintf(`<article role="article" data-id="%s"><div><div><div class="container">
<div class="head"><a href="/%s" role="link">@%s</a></div>
<div class="body"><div data-testid="tweetText"><span>%s</span></div></div>
<div class="media"><a href="/%s/status/%s">photo</a></div>
<div class="foot"><div><div role="group">reply repost like</div></div></div>
</div></div></div></article>`, id, author, author, text, author, id)
}

// only two children in the display container
func stubTweet(id, text string) string {
	return fmt.Sprintf(`<article role="article" data-id="%s"><div class="container">
<div class="body"><div data-testid="tweetText"><span>%s</span></div></div>
<div><div><div role="group">reply</div></div></div>
</div></article>`, id, text)
}

type harness struct {
	fe   *fakeengine.Engine
	doc  *dom.Document
	mod  *Moderator
	feed *html.Node
}

func engineURL(t *testing.T, fe *fakeengine.Engine) string {
	srv := httptest.NewServer(fe.Echo())
	t.Cleanup(srv.Close)
	return srv.URL
}

func newHarness(t *testing.T, fe *fakeengine.Engine, page string, config Config) *harness {
	url := engineURL(t, fe)
	if config.Classifier == nil {
		config.Classifier = classify.NewDispatcher(classify.Config{Host: url})
	}
	if config.Persister == nil {
		config.Persister = persist.NewForwarder(persist.Config{Host: url})
	}
	mod, err := New(config)
	require.NoError(t, err)

	doc, err := dom.ParseString(page)
	require.NoError(t, err)
	require.NoError(t, mod.Start(context.Background(), doc))
	t.Cleanup(mod.Stop)

	h := &harness{fe: fe, doc: doc, mod: mod}
	doc.Read(func(root *html.Node) {
		h.feed = dom.MustSelector("#feed").Query(root)
	})
	require.NotNil(t, h.feed)
	return h
}

func (h *harness) insert(t *testing.T, fragments ...string) {
	require.NoError(t, h.doc.Update(func(tx *dom.Tx) error {
		for _, f := range fragments {
			if _, err := tx.AppendHTML(h.feed, f); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (h *harness) unit(id string) *html.Node {
	var out *html.Node
	h.doc.Read(func(root *html.Node) {
		out = dom.MustSelector(fmt.Sprintf(`article[data-id="%s"]`, id)).Query(root)
	})
	return out
}

func (h *harness) render(n *html.Node) string {
	var out string
	h.doc.Read(func(*html.Node) {
		var sb strings.Builder
		if err := html.Render(&sb, n); err == nil {
			out = sb.String()
		}
	})
	return out
}

func (h *harness) find(n *html.Node, sel string) *html.Node {
	var out *html.Node
	h.doc.Read(func(*html.Node) {
		out = dom.MustSelector(sel).Query(n)
	})
	return out
}

func classNames(h *harness, root *html.Node) []string {
	var out []string
	h.doc.Read(func(*html.Node) {
		container := dom.MustSelector(".container").Query(root)
		for _, c := range dom.ElementChildren(container) {
			if v, ok := dom.Attr(c, visibility.MarkerAttr); ok {
				out = append(out, v)
				continue
			}
			v, _ := dom.Attr(c, "class")
			out = append(out, v)
		}
	})
	return out
}

type notification struct {
	unit    extract.ContentUnit
	verdict classify.Verdict
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) NotifyWarned(ctx context.Context, unit extract.ContentUnit, v classify.Verdict) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{unit: unit, verdict: v})
	return nil
}

func TestNewRequiresClassifier(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoClassifier)
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t, fakeengine.New(), emptyPage, Config{})
	assert.ErrorIs(t, h.mod.Start(context.Background(), h.doc), ErrAlreadyStarted)
}

func TestFlaggedUnitIsWarned(t *testing.T) {
	assert := assert.New(t)
	notifier := &recordingNotifier{}
	h := newHarness(t, fakeengine.New("worthless"), emptyPage, Config{Notifier: notifier})

	h.insert(t, tweet("20", "jack", "You are worthless"))
	h.mod.Wait()

	root := h.unit("20")
	require.NotNil(t, root)
	assert.Equal(visibility.Warned, h.mod.State(root))
	assert.Equal([]string{"head", visibility.MarkerWarning, "body", "media", "foot"}, classNames(h, root))
	assert.Equal("none", dom.Style(h.find(root, ".body"), "display"))
	assert.Equal("none", dom.Style(h.find(root, ".media"), "display"))
	assert.Equal("", dom.Style(h.find(root, ".foot"), "display"))
	assert.Equal("#b00020", dom.Style(root, "background-color"))

	assert.Equal([]string{"You are worthless"}, h.fe.Predictions())
	rec, ok := h.fe.Record("20")
	assert.True(ok)
	assert.Equal(fakeengine.StoreRequest{ID: "20", Author: "@jack", Text: "You are worthless", Label: "cyberbullying"}, rec)

	require.Len(t, notifier.sent, 1)
	assert.Equal("20", notifier.sent[0].unit.ID)
	assert.True(notifier.sent[0].verdict.Flagged)
}

func TestCleanUnitIsNotTouched(t *testing.T) {
	assert := assert.New(t)
	fe := fakeengine.New("worthless")
	fe.SetLabel("Nice weather today", "neutral")
	h := newHarness(t, fe, emptyPage, Config{})

	h.insert(t, tweet("30", "alice", "Nice weather today"))
	root := h.unit("30")
	before := h.render(root)
	h.mod.Wait()

	assert.Equal(visibility.NotFlagged, h.mod.State(root))
	assert.Equal(before, h.render(root))
	assert.Nil(h.find(root, "[data-veil]"))

	rec, ok := fe.Record("30")
	assert.True(ok)
	assert.Equal("neutral", rec.Label)
	assert.Equal("@alice", rec.Author)
}

func TestDuplicateTextIsClassifiedOnce(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t, fakeengine.New("worthless"), emptyPage, Config{})

	// same batch, then a later batch
	h.insert(t, tweet("1", "a", "Same words"), tweet("2", "b", "Same words"))
	h.mod.Wait()
	h.insert(t, tweet("3", "c", "Same words"))
	h.mod.Wait()

	assert.Equal([]string{"Same words"}, h.fe.Predictions())
	assert.Equal(1, h.fe.Stores())
	assert.Equal(visibility.NotFlagged, h.mod.State(h.unit("1")))
	assert.Equal(visibility.Unprocessed, h.mod.State(h.unit("2")))
	assert.Equal(visibility.Unprocessed, h.mod.State(h.unit("3")))
	assert.True(h.mod.Seen("Same words"))
	assert.Equal(1, h.mod.Ledger().Len())
}

// The identity key is the rendered text, so two distinct posts with identical wording are conflated: only the first is ever classified or stored.
func TestDistinctPostsWithSameTextAreConflated(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t, fakeengine.New("worthless"), emptyPage, Config{})

	h.insert(t, tweet("100", "alice", "You are worthless"))
	h.mod.Wait()
	h.insert(t, tweet("200", "bob", "You are worthless"))
	h.mod.Wait()

	_, ok := h.fe.Record("100")
	assert.True(ok)
	_, ok = h.fe.Record("200")
	assert.False(ok)
	assert.Equal(visibility.Warned, h.mod.State(h.unit("100")))
	assert.Equal(visibility.Unprocessed, h.mod.State(h.unit("200")))
	assert.Nil(h.find(h.unit("200"), "[data-veil]"))
}

func TestEmptyTextIsSkipped(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t, fakeengine.New(), emptyPage, Config{})

	h.insert(t, tweet("5", "a", "  "), `<article role="article" data-id="6"><p>no text container</p></article>`)
	h.mod.Wait()

	assert.Empty(h.fe.Predictions())
	assert.Equal(0, h.mod.Ledger().Len())
	assert.Equal(visibility.Unprocessed, h.mod.State(h.unit("5")))
}

func TestNestedAndNonUnitInsertions(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t, fakeengine.New(), emptyPage, Config{})

	h.insert(t,
		`<div class="timeline"><section>`+tweet("7", "a", "first")+tweet("8", "b", "second")+`</section></div>`,
		`<p>not a unit</p>`,
		`plain text`,
	)
	h.mod.Wait()

	assert.ElementsMatch([]string{"first", "second"}, h.fe.Predictions())
}

// Mimics a virtualized timeline reusing a unit's node: the text changes in place and the node is moved.
func (h *harness) rerender(t *testing.T, root *html.Node, text string) {
	span := h.find(root, `[data-testid="tweetText"] span`)
	require.NotNil(t, span)
	require.NoError(t, h.doc.Update(func(tx *dom.Tx) error {
		span.FirstChild.Data = text
		if err := tx.RemoveChild(h.feed, root); err != nil {
			return err
		}
		return tx.AppendChild(h.feed, root)
	}))
}

func TestRecycledNodeIsModeratedAgain(t *testing.T) {
	assert := assert.New(t)
	fe := fakeengine.New("worthless")
	h := newHarness(t, fe, emptyPage, Config{})

	h.insert(t, tweet("90", "a", "Nice weather today"))
	h.mod.Wait()
	root := h.unit("90")
	require.Equal(t, visibility.NotFlagged, h.mod.State(root))

	h.rerender(t, root, "You are worthless")
	h.mod.Wait()
	assert.Equal([]string{"Nice weather today", "You are worthless"}, fe.Predictions())
	assert.Equal(visibility.Warned, h.mod.State(root))
	assert.True(h.mod.Seen("You are worthless"))

	// the text was dispatched, so a later post repeating it is a plain duplicate
	h.insert(t, tweet("91", "b", "You are worthless"))
	h.mod.Wait()
	assert.Len(fe.Predictions(), 2)
	assert.Equal(visibility.Unprocessed, h.mod.State(h.unit("91")))
}

func TestRecycledWarnedNodeDropsStaleWarning(t *testing.T) {
	assert := assert.New(t)
	fe := fakeengine.New("worthless", "loser")
	h := newHarness(t, fe, emptyPage, Config{})

	h.insert(t, tweet("92", "a", "You are worthless"))
	h.mod.Wait()
	root := h.unit("92")
	require.Equal(t, visibility.Warned, h.mod.State(root))
	stale := h.find(root, `[data-veil="reveal"]`)
	require.NotNil(t, stale)

	// flagged again: exactly one overlay, belonging to the new content
	h.rerender(t, root, "Loser")
	h.mod.Wait()
	assert.Equal(visibility.Warned, h.mod.State(root))
	assert.Equal(1, strings.Count(h.render(root), `data-veil="warning"`))
	handled, err := h.doc.Dispatch(stale, "click")
	assert.NoError(err)
	assert.False(handled)

	// clean: nothing of the warning is left
	h.rerender(t, root, "Nice weather today")
	h.mod.Wait()
	assert.Equal(visibility.NotFlagged, h.mod.State(root))
	assert.Nil(h.find(root, "[data-veil]"))
	assert.Equal("", dom.Style(root, "background-color"))
	assert.Equal("", dom.Style(h.find(root, ".body"), "display"))
}

func TestUnreadableUnitIsSkipped(t *testing.T) {
	assert := assert.New(t)

	// selectors compile before the bad pattern stops Compile, so extraction hits a missing permalink regexp
	d := profile.Default()
	p := &profile.Profile{
		Observe:          d.Observe,
		Unit:             d.Unit,
		Text:             d.Text,
		TextLeaf:         d.TextLeaf,
		Author:           d.Author,
		Permalink:        d.Permalink,
		PermalinkPattern: "(",
		ActionGroup:      d.ActionGroup,
		ContainerDepth:   d.ContainerDepth,
	}
	require.Error(t, p.Compile())
	h := newHarness(t, fakeengine.New("worthless"), emptyPage, Config{Profile: p})

	h.insert(t, tweet("93", "a", "You are worthless"))
	h.mod.Wait()

	assert.Empty(h.fe.Predictions())
	assert.False(h.mod.Seen("You are worthless"))
	assert.Equal(visibility.Unprocessed, h.mod.State(h.unit("93")))
}

func TestUnreachableClassifierLeavesUnitPending(t *testing.T) {
	assert := assert.New(t)

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	fe := fakeengine.New("worthless")
	h := newHarness(t, fe, emptyPage, Config{
		Classifier: classify.NewDispatcher(classify.Config{Host: deadURL}),
	})

	h.insert(t, tweet("40", "a", "You are worthless"))
	h.mod.Wait()

	root := h.unit("40")
	assert.Equal(visibility.PendingClassification, h.mod.State(root))
	assert.Nil(h.find(root, "[data-veil]"))
	assert.Equal(0, fe.Stores())
	// still gated: no second attempt for the same text
	assert.True(h.mod.Seen("You are worthless"))
}

func TestHangingClassifierLeavesUnitPending(t *testing.T) {
	assert := assert.New(t)
	fe := fakeengine.New("worthless")
	h := newHarness(t, fe, emptyPage, Config{})
	release := fe.Hang()
	t.Cleanup(release)

	h.insert(t, tweet("41", "a", "You are worthless"))
	assert.Eventually(func() bool { return len(fe.Predictions()) == 1 }, 5*time.Second, 10*time.Millisecond)

	root := h.unit("41")
	assert.Equal(visibility.PendingClassification, h.mod.State(root))
	assert.Nil(h.find(root, "[data-veil]"))
	assert.Equal(0, fe.Stores())

	// stopping abandons the request; the unit never leaves pending
	h.mod.Stop()
	h.mod.Wait()
	assert.Equal(visibility.PendingClassification, h.mod.State(root))
	assert.Equal(0, fe.Stores())
}

func TestRevealRestoresUnit(t *testing.T) {
	assert := assert.New(t)
	fe := fakeengine.New("worthless")
	h := newHarness(t, fe, emptyPage, Config{})

	release := fe.Hang()
	h.insert(t, tweet("50", "jack", "You are worthless"))
	root := h.unit("50")
	before := h.render(root)
	release()
	h.mod.Wait()
	require.Equal(t, visibility.Warned, h.mod.State(root))

	button := h.find(root, `[data-veil="reveal"]`)
	require.NotNil(t, button)
	handled, err := h.doc.Dispatch(button, "click")
	assert.NoError(err)
	assert.True(handled)

	assert.Equal(visibility.Revealed, h.mod.State(root))
	assert.Equal(before, h.render(root))
	assert.Equal("", dom.Style(root, "background-color"))

	// a second click has nothing left to do
	handled, err = h.doc.Dispatch(button, "click")
	assert.NoError(err)
	assert.False(handled)
	assert.ErrorIs(h.mod.Reveal(root), ErrNotWarned)

	// ledger entry survives the reveal
	h.insert(t, tweet("51", "jack", "You are worthless"))
	h.mod.Wait()
	assert.Len(fe.Predictions(), 1)
	assert.Equal(visibility.Unprocessed, h.mod.State(h.unit("51")))
	assert.Equal(visibility.Revealed, h.mod.State(root))
}

func TestProgrammaticReveal(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t, fakeengine.New("worthless"), emptyPage, Config{})

	h.insert(t, tweet("60", "a", "You are worthless"), tweet("61", "b", "Also worthless"))
	h.mod.Wait()
	first, second := h.unit("60"), h.unit("61")
	require.Equal(t, visibility.Warned, h.mod.State(first))
	require.Equal(t, visibility.Warned, h.mod.State(second))

	assert.NoError(h.mod.Reveal(first))
	assert.Equal(visibility.Revealed, h.mod.State(first))
	// units are independent
	assert.Equal(visibility.Warned, h.mod.State(second))
	assert.NotNil(h.find(second, "[data-veil]"))

	assert.ErrorIs(h.mod.Reveal(h.unit("nope")), ErrNotWarned)
}

func TestUnexpectedShapeIsNotWarned(t *testing.T) {
	assert := assert.New(t)
	fe := fakeengine.New("worthless")
	h := newHarness(t, fe, emptyPage, Config{})

	h.insert(t, stubTweet("70", "You are worthless"))
	root := h.unit("70")
	before := h.render(root)
	h.mod.Wait()

	assert.Equal(visibility.NotFlagged, h.mod.State(root))
	assert.Equal(before, h.render(root))
	// the verdict itself succeeded, so the record is still stored
	rec, ok := fe.Record("70")
	assert.True(ok)
	assert.Equal("cyberbullying", rec.Label)
}

func TestScanExistingUnits(t *testing.T) {
	assert := assert.New(t)
	page := `<html><body><main id="feed">` + tweet("80", "a", "You are worthless") + `</main></body></html>`
	h := newHarness(t, fakeengine.New("worthless"), page, Config{ScanExisting: true})
	h.mod.Wait()

	assert.Equal(visibility.Warned, h.mod.State(h.unit("80")))
}

func TestExistingUnitsIgnoredByDefault(t *testing.T) {
	assert := assert.New(t)
	page := `<html><body><main id="feed">` + tweet("81", "a", "You are worthless") + `</main></body></html>`
	h := newHarness(t, fakeengine.New("worthless"), page, Config{})
	h.mod.Wait()

	assert.Empty(h.fe.Predictions())
	assert.Equal(visibility.Unprocessed, h.mod.State(h.unit("81")))
}

type panickyClassifier struct{}

func (panickyClassifier) Classify(ctx context.Context, text string) (classify.Verdict, error) {
	if text == "boom" {
		panic("classifier exploded")
	}
	return classify.NewVerdict("neutral", 0.5, ""), nil
}

func TestPanicsDoNotStopObservation(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t, fakeengine.New(), emptyPage, Config{Classifier: panickyClassifier{}})

	h.insert(t, tweet("90", "a", "boom"))
	h.mod.Wait()
	h.insert(t, tweet("91", "a", "fine"))
	h.mod.Wait()

	assert.Equal(visibility.PendingClassification, h.mod.State(h.unit("90")))
	assert.Equal(visibility.NotFlagged, h.mod.State(h.unit("91")))
}
