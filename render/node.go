// Package render is the output tree produced by view-object renderers and its
// HTML serialisation.
package render

import (
	"maps"
	"slices"
	"strings"
)

// Kind of a Node.
type Kind int

const (
	ElementKind Kind = iota
	TextKind
	FragmentKind
)

// Node is one node of the render tree. Element nodes have a tag, attributes
// and children; text nodes carry Text; fragments only group children.
type Node struct {
	Kind     Kind
	Tag      string
	Key      string
	Attrs    map[string]string
	Text     string
	Children []*Node
}

// Element creates an element node.
func Element(tag string, children ...*Node) *Node {
	return &Node{Kind: ElementKind, Tag: tag, Children: compact(children)}
}

// Text creates a text node.
func Text(s string) *Node {
	return &Node{Kind: TextKind, Text: s}
}

// Fragment groups nodes without a wrapping element.
func Fragment(children ...*Node) *Node {
	return &Node{Kind: FragmentKind, Children: compact(children)}
}

func compact(children []*Node) []*Node {
	return slices.DeleteFunc(children, func(n *Node) bool { return n == nil })
}

// Set sets an attribute and returns n. Empty values are ignored.
func (n *Node) Set(key, value string) *Node {
	if value == "" {
		return n
	}
	if n.Attrs == nil {
		n.Attrs = make(map[string]string)
	}
	n.Attrs[key] = value
	return n
}

// Class appends CSS classes.
func (n *Node) Class(classes ...string) *Node {
	var parts []string
	if cur := n.Attr("class"); cur != "" {
		parts = append(parts, cur)
	}
	for _, c := range classes {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return n.Set("class", strings.Join(parts, " "))
}

// WithKey sets the reconciliation key.
func (n *Node) WithKey(key string) *Node {
	n.Key = key
	return n
}

// Append adds children, skipping nil nodes.
func (n *Node) Append(children ...*Node) *Node {
	n.Children = append(n.Children, compact(children)...)
	return n
}

// Attr returns an attribute value.
func (n *Node) Attr(key string) string {
	if n == nil {
		return ""
	}
	return n.Attrs[key]
}

// HasClass reports whether the class attribute contains c.
func (n *Node) HasClass(c string) bool {
	return slices.Contains(strings.Fields(n.Attr("class")), c)
}

// TextContent concatenates the text of n and its descendants.
func (n *Node) TextContent() string {
	var b strings.Builder
	n.Walk(func(x *Node) bool {
		if x.Kind == TextKind {
			b.WriteString(x.Text)
		}
		return true
	})
	return b.String()
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the children of the visited node.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// FindAll returns every node in the tree matching pred.
func (n *Node) FindAll(pred func(*Node) bool) []*Node {
	var out []*Node
	n.Walk(func(x *Node) bool {
		if pred(x) {
			out = append(out, x)
		}
		return true
	})
	return out
}

// FindClass returns the nodes carrying CSS class c.
func (n *Node) FindClass(c string) []*Node {
	return n.FindAll(func(x *Node) bool { return x.HasClass(c) })
}

// FindTag returns the element nodes with the given tag.
func (n *Node) FindTag(tag string) []*Node {
	return n.FindAll(func(x *Node) bool { return x.Kind == ElementKind && x.Tag == tag })
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Attrs = maps.Clone(n.Attrs)
	c.Children = make([]*Node, len(n.Children))
	for i, ch := range n.Children {
		c.Children[i] = ch.Clone()
	}
	return &c
}
