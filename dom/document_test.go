package dom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func body(t *testing.T, d *Document) *html.Node {
	var b *html.Node
	d.Read(func(root *html.Node) {
		b = MustSelector("body").Query(root)
	})
	require.NotNil(t, b)
	return b
}

func TestObserverReceivesBatches(t *testing.T) {
	assert := assert.New(t)

	d, err := ParseString(`<html><body><main id="feed"></main><aside></aside></body></html>`)
	require.NoError(t, err)
	b := body(t, d)
	feed := MustSelector("#feed").Query(b)
	aside := MustSelector("aside").Query(b)

	var batches [][]MutationRecord
	d.Observe(feed, func(records []MutationRecord) {
		batches = append(batches, records)
	})

	assert.NoError(d.Update(func(tx *Tx) error {
		if _, err := tx.AppendHTML(feed, `<p>one</p><p>two</p>`); err != nil {
			return err
		}
		// outside the observed subtree
		_, err := tx.AppendHTML(aside, `<p>three</p>`)
		return err
	}))

	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(feed, batches[0][0].Target)
	assert.Len(batches[0][0].AddedNodes, 2)
	assert.Equal("one", TrimmedText(batches[0][0].AddedNodes[0]))

	// attribute changes are not child-list mutations
	assert.NoError(d.Update(func(tx *Tx) error {
		return tx.SetStyle(feed, "color", "red")
	}))
	assert.Len(batches, 1)
}

func TestMoveProducesRemoveThenAdd(t *testing.T) {
	assert := assert.New(t)

	d, err := ParseString(`<body><div id="a"><span id="x">x</span></div><div id="b"></div></body>`)
	require.NoError(t, err)
	b := body(t, d)
	a := MustSelector("#a").Query(b)
	bb := MustSelector("#b").Query(b)
	x := MustSelector("#x").Query(b)

	var records []MutationRecord
	o := d.Observe(b, func(batch []MutationRecord) {
		records = append(records, batch...)
	})

	assert.NoError(d.Update(func(tx *Tx) error {
		return tx.AppendChild(bb, x)
	}))
	require.Len(t, records, 2)
	assert.Equal(a, records[0].Target)
	assert.Equal([]*html.Node{x}, records[0].RemovedNodes)
	assert.Equal(bb, records[1].Target)
	assert.Equal([]*html.Node{x}, records[1].AddedNodes)

	o.Disconnect()
	assert.NoError(d.Update(func(tx *Tx) error {
		return tx.RemoveChild(bb, x)
	}))
	assert.Len(records, 2)

	assert.ErrorIs(d.Update(func(tx *Tx) error {
		return tx.RemoveChild(a, x)
	}), ErrNotChild)
}

func TestDispatchBubbles(t *testing.T) {
	assert := assert.New(t)

	d, err := ParseString(`<body><div id="outer"><button id="btn">go</button></div></body>`)
	require.NoError(t, err)
	b := body(t, d)
	outer := MustSelector("#outer").Query(b)
	btn := MustSelector("#btn").Query(b)

	var order []string
	assert.NoError(d.Update(func(tx *Tx) error {
		assert.NoError(tx.Listen(outer, "click", func(tx *Tx) error {
			order = append(order, "outer")
			return nil
		}))
		return tx.Listen(btn, "click", func(tx *Tx) error {
			order = append(order, "btn")
			return tx.SetStyle(outer, "display", "none")
		})
	}))

	handled, err := d.Dispatch(btn, "click")
	assert.NoError(err)
	assert.True(handled)
	assert.Equal([]string{"btn", "outer"}, order)
	assert.Equal("none", Style(outer, "display"))

	handled, err = d.Dispatch(btn, "mouseenter")
	assert.NoError(err)
	assert.False(handled)

	assert.NoError(d.Update(func(tx *Tx) error {
		tx.Forget(outer)
		return nil
	}))
	handled, _ = d.Dispatch(btn, "click")
	assert.False(handled)
}

func TestStyleRoundTrip(t *testing.T) {
	assert := assert.New(t)

	d, err := ParseString(`<body><div id="a" style="color: blue"></div><div id="b"></div></body>`)
	require.NoError(t, err)
	b := body(t, d)
	a := MustSelector("#a").Query(b)
	bb := MustSelector("#b").Query(b)

	assert.NoError(d.Update(func(tx *Tx) error {
		assert.NoError(tx.SetStyle(a, "display", "none"))
		return tx.SetStyle(bb, "display", "none")
	}))
	assert.Equal("none", Style(a, "display"))
	assert.Equal("blue", Style(a, "color"))

	assert.NoError(d.Update(func(tx *Tx) error {
		assert.NoError(tx.RemoveStyle(a, "display"))
		return tx.RemoveStyle(bb, "display")
	}))
	v, ok := Attr(a, "style")
	assert.True(ok)
	assert.Equal("color: blue", v)
	_, ok = Attr(bb, "style")
	assert.False(ok)
}

func TestParseStyle(t *testing.T) {
	assert := assert.New(t)

	decls := parseStyle(`background: url("a;b.png") no-repeat; font-family: "x;y", serif;` +
		`width:calc(100% - var(--gap, 4px));/* note; */ COLOR : Red ; broken; : nothing`)
	assert.Equal([]declaration{
		{prop: "background", val: `url("a;b.png") no-repeat`},
		{prop: "font-family", val: `"x;y", serif`},
		{prop: "width", val: "calc(100% - var(--gap, 4px))"},
		{prop: "color", val: "Red"},
	}, decls)

	assert.Empty(parseStyle(""))
	// unterminated string
	assert.Equal([]declaration{{prop: "color", val: "red"}}, parseStyle(`color: red; content: "oops`))
}

func TestQueryHelpers(t *testing.T) {
	assert := assert.New(t)

	d, err := ParseString(`<body><article id="p1"> text <div><span>a</span><span>b</span></div><article id="p2"></article></article></body>`)
	require.NoError(t, err)
	b := body(t, d)
	art := MustSelector("article")
	p1 := MustSelector("#p1").Query(b)

	assert.True(art.Match(p1))
	all := art.QueryAll(p1)
	require.Len(t, all, 1)
	assert.Equal("p2", attrOr(all[0], "id"))
	assert.Equal(all[0], art.Query(p1))

	kids := ElementChildren(p1)
	assert.Len(kids, 2)
	span := MustSelector("span").Query(p1)
	assert.Equal(p1, Ancestor(span, 2))
	assert.Nil(Ancestor(span, 50))
	assert.True(Contains(p1, span))
	assert.False(Contains(span, p1))
	assert.Equal("text ab", strings.TrimSpace(TextContent(p1)))

	_, err = ParseSelector("div[")
	assert.Error(err)
}

func attrOr(n *html.Node, key string) string {
	v, _ := Attr(n, key)
	return v
}
