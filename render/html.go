package render

import (
	"bytes"
	"io"
	"maps"
	"slices"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// KeyAttr is the attribute carrying a node's reconciliation key in HTML.
const KeyAttr = "data-key"

// WriteHTML serialises the tree rooted at n.
func WriteHTML(w io.Writer, n *Node) error {
	doc := &html.Node{Type: html.DocumentNode}
	appendHTML(doc, n)
	return html.Render(w, doc)
}

// HTML returns the serialised tree, or an empty string on a write error.
func HTML(n *Node) string {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

func appendHTML(parent *html.Node, n *Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case TextKind:
		parent.AppendChild(&html.Node{Type: html.TextNode, Data: n.Text})
	case FragmentKind:
		for _, c := range n.Children {
			appendHTML(parent, c)
		}
	default:
		el := &html.Node{Type: html.ElementNode, Data: n.Tag, DataAtom: atom.Lookup([]byte(n.Tag))}
		for _, k := range slices.Sorted(maps.Keys(n.Attrs)) {
			el.Attr = append(el.Attr, html.Attribute{Key: k, Val: n.Attrs[k]})
		}
		if n.Key != "" {
			el.Attr = append(el.Attr, html.Attribute{Key: KeyAttr, Val: n.Key})
		}
		for _, c := range n.Children {
			appendHTML(el, c)
		}
		parent.AppendChild(el)
	}
}
