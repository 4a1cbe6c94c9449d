package dom

import (
	"strings"

	"github.com/gorilla/css/scanner"
	"golang.org/x/net/html"
)

type declaration struct {
	prop string
	val  string
}

// Splits an inline style attribute into declarations. Tokenizing keeps separators inside strings, url() and
// function arguments (data URIs, for one) part of the value.
func parseStyle(s string) []declaration {
	var (
		out   []declaration
		prop  string
		colon bool
		depth int
		buf   strings.Builder
	)
	flush := func() {
		p := strings.ToLower(strings.TrimSpace(prop))
		if colon && p != "" {
			out = append(out, declaration{prop: p, val: strings.TrimSpace(buf.String())})
		}
		prop, colon = "", false
		buf.Reset()
	}

	sc := scanner.New(s)
	for {
		tok := sc.Next()
		switch tok.Type {
		case scanner.TokenEOF:
			flush()
			return out
		case scanner.TokenError:
			// unterminated string or comment: the declaration in progress is dropped
			return out
		case scanner.TokenComment:
			continue
		case scanner.TokenFunction:
			depth++
		case scanner.TokenChar:
			switch tok.Value {
			case "(", "[":
				depth++
			case ")", "]":
				if depth > 0 {
					depth--
				}
			case ";":
				if depth == 0 {
					flush()
					continue
				}
			case ":":
				if depth == 0 && !colon {
					prop, colon = buf.String(), true
					buf.Reset()
					continue
				}
			}
		}
		buf.WriteString(tok.Value)
	}
}

func formatStyle(decls []declaration) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.prop+": "+d.val)
	}
	return strings.Join(parts, "; ")
}

// Returns the inline value of a style property, or "" if unset.
func Style(n *html.Node, prop string) string {
	raw, ok := Attr(n, "style")
	if !ok {
		return ""
	}
	prop = strings.ToLower(prop)
	for _, d := range parseStyle(raw) {
		if d.prop == prop {
			return d.val
		}
	}
	return ""
}

func setStyle(n *html.Node, prop, val string) {
	raw, _ := Attr(n, "style")
	decls := parseStyle(raw)
	prop = strings.ToLower(strings.TrimSpace(prop))
	val = strings.TrimSpace(val)

	idx := -1
	for i, d := range decls {
		if d.prop == prop {
			idx = i
			break
		}
	}
	switch {
	case val == "" && idx >= 0:
		decls = append(decls[:idx], decls[idx+1:]...)
	case val == "":
	case idx >= 0:
		decls[idx].val = val
	default:
		decls = append(decls, declaration{prop: prop, val: val})
	}

	// an emptied style attribute is dropped entirely, so hide/restore round trips leave no trace
	if len(decls) == 0 {
		removeAttr(n, "style")
		return
	}
	setAttr(n, "style", formatStyle(decls))
}

func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}
