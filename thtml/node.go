package thtml

import (
	"strconv"
	"strings"
)

// A NodeType is the type of a Node.
type NodeType uint32

const (
	// DocumentNode is the synthetic root that seeds the tree builder.
	DocumentNode NodeType = iota
	// ElementNode is a tag with a name, attributes and children.
	ElementNode
	// TextNode is a run of text between tags.
	TextNode
	// CommentNode is a <!-- --> run.
	CommentNode
	// CDATANode is a <!CDATA[[ ]]> run.
	CDATANode
	// PINode is a processing instruction run.
	PINode
	// DoctypeNode is a <!doctype> declaration, reproduced verbatim.
	DoctypeNode
)

// String returns a string representation of the NodeType.
func (t NodeType) String() string {
	switch t {
	case DocumentNode:
		return "Document"
	case ElementNode:
		return "Element"
	case TextNode:
		return "Text"
	case CommentNode:
		return "Comment"
	case CDATANode:
		return "CDATA"
	case PINode:
		return "PI"
	case DoctypeNode:
		return "Doctype"
	}
	return "Invalid(" + strconv.Itoa(int(t)) + ")"
}

// An Attribute is a key-value pair on an element, in source order. HasVal
// distinguishes a bare attribute (<input disabled>) from an explicit empty
// value (disabled=""). Quote is the source quote character, or zero for an
// unquoted value, so re-emission reproduces the source form.
type Attribute struct {
	Key    string
	Val    string
	HasVal bool
	Quote  byte
}

// A Node is an element of the parsed tree. A Node owns its children; the
// parent reference exists only for sibling and ancestor navigation. Nodes
// are immutable once built, so parsed trees can be cached and shared by
// concurrent renders. Per-render interpreter state never lives on the Node.
type Node struct {
	Type NodeType

	// Name is the tag name, for elements only.
	Name string

	// Attrs preserves source attribute order for faithful re-emission.
	Attrs []Attribute

	// Children are the owned child nodes, in document order.
	Children []*Node

	// RawText is the source text of leaf kinds, emitted verbatim except
	// for expression interpolation.
	RawText string

	// Closed records that a closing entity was consumed for this element.
	Closed bool

	// SelfClosed records a trailing /> on the open tag.
	SelfClosed bool

	// Parent and Index locate the node among its siblings.
	Parent *Node
	Index  int

	// Line is the source line of the node's first character.
	Line int
}

// AppendChild adds c as the last child of n.
func (n *Node) AppendChild(c *Node) {
	c.Parent = n
	c.Index = len(n.Children)
	n.Children = append(n.Children, c)
}

// Attr returns the value of the named attribute and whether it is present.
func (n *Node) Attr(key string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// NextSibling returns the node immediately after n, or nil.
func (n *Node) NextSibling() *Node {
	if n.Parent == nil || n.Index+1 >= len(n.Parent.Children) {
		return nil
	}
	return n.Parent.Children[n.Index+1]
}

// PrevSibling returns the node immediately before n, or nil.
func (n *Node) PrevSibling() *Node {
	if n.Parent == nil || n.Index == 0 {
		return nil
	}
	return n.Parent.Children[n.Index-1]
}

// NextElementSibling returns the next sibling of element kind, skipping
// text and comment nodes, or nil.
func (n *Node) NextElementSibling() *Node {
	for s := n.NextSibling(); s != nil; s = s.NextSibling() {
		if s.Type == ElementNode {
			return s
		}
	}
	return nil
}

// PrevElementSibling returns the previous sibling of element kind, or nil.
func (n *Node) PrevElementSibling() *Node {
	for s := n.PrevSibling(); s != nil; s = s.PrevSibling() {
		if s.Type == ElementNode {
			return s
		}
	}
	return nil
}

// openTag reconstructs the source open tag of an element.
func (n *Node) openTag() string {
	var b strings.Builder
	b.WriteByte(startTagChar)
	b.WriteString(n.Name)
	for _, a := range n.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		if !a.HasVal {
			continue
		}
		b.WriteByte('=')
		if a.Quote != 0 {
			b.WriteByte(a.Quote)
			b.WriteString(a.Val)
			b.WriteByte(a.Quote)
		} else {
			b.WriteString(a.Val)
		}
	}
	if n.SelfClosed {
		b.WriteByte('/')
	}
	b.WriteByte(endTagChar)
	return b.String()
}

// SourceText reconstructs the source text of the subtree rooted at n.
func (n *Node) SourceText() string {
	switch n.Type {
	case ElementNode:
		var b strings.Builder
		b.WriteString(n.openTag())
		for _, c := range n.Children {
			b.WriteString(c.SourceText())
		}
		if n.Closed && !n.SelfClosed {
			b.WriteString("</" + n.Name + ">")
		}
		return b.String()
	case DocumentNode:
		var b strings.Builder
		for _, c := range n.Children {
			b.WriteString(c.SourceText())
		}
		return b.String()
	default:
		return n.RawText
	}
}

// rawContent concatenates the text content of a node's children. The
// t-code and t-diagram bodies read through here.
func (n *Node) rawContent() string {
	var b strings.Builder
	for _, c := range n.Children {
		if c.Type != ElementNode {
			b.WriteString(c.RawText)
		}
	}
	return b.String()
}

// snippet returns a short single-line excerpt of the node for error
// annotation.
func (n *Node) snippet() string {
	var s string
	if n.Type == ElementNode {
		s = n.openTag()
	} else {
		s = strings.TrimSpace(n.RawText)
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 60 {
		s = s[:60] + "..."
	}
	return s
}

// leafKind maps a non-tag entity type to its node kind.
func leafKind(t EntityType) NodeType {
	switch t {
	case CommentEntity:
		return CommentNode
	case CDATAEntity:
		return CDATANode
	case PIEntity:
		return PINode
	case DoctypeEntity:
		return DoctypeNode
	default:
		return TextNode
	}
}

// buildForest consumes the entity sequence and reconstructs nesting with
// the closed-flag walk: a new node attaches to the current node while it is
// open, otherwise to the current node's parent. Closing entities never
// compare tag names and never touch the synthetic root, so mismatched or
// missing tags degrade without error. The children of the returned root
// form a forest, since a template need not have a single top element.
func buildForest(entities []Entity, p *protector) *Node {
	root := &Node{Type: DocumentNode}
	current := root

	// target is where the next node attaches.
	target := func() *Node {
		if current.Closed && current.Parent != nil {
			return current.Parent
		}
		return current
	}

	for _, e := range entities {
		switch e.Type {
		case OpenEntity:
			n := parseElement(e, p)
			target().AppendChild(n)
			if !n.SelfClosed {
				current = n
			}
		case CloseEntity:
			if current.Closed && current.Parent != nil {
				current = current.Parent
			}
			if current != root {
				current.Closed = true
			}
		default:
			n := &Node{Type: leafKind(e.Type), RawText: p.decode(e.Text), Line: e.Line}
			target().AppendChild(n)
		}
	}
	return root
}

// parseElement builds an element node from an open-tag entity, decoding the
// tag name and each attribute value back through the placeholder table.
func parseElement(e Entity, p *protector) *Node {
	n := &Node{Type: ElementNode, Line: e.Line}

	inner := strings.TrimPrefix(e.Text, "<")
	inner = strings.TrimSuffix(inner, ">")
	if strings.HasSuffix(inner, "/") {
		inner = strings.TrimSuffix(inner, "/")
		n.SelfClosed = true
		n.Closed = true
	}

	name, rest := readWord(inner)
	n.Name = p.decode(name)

	for rest != "" {
		var attr Attribute
		attr, rest = readAttribute(rest, p)
		if attr.Key == "" {
			break
		}
		n.Attrs = append(n.Attrs, attr)
	}
	return n
}

// readWord splits the first whitespace-delimited word off s.
func readWord(s string) (word, rest string) {
	s = strings.TrimLeft(s, " \t\r\n")
	i := strings.IndexAny(s, " \t\r\n")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeft(s[i:], " \t\r\n")
}

// readAttribute reads one name or name=value pair. Bare tokens become
// valueless attributes; values are either a placeholder for the original
// quoted string, which is decoded and unquoted, or a bare word.
func readAttribute(s string, p *protector) (Attribute, string) {
	s = strings.TrimLeft(s, " \t\r\n")
	if s == "" {
		return Attribute{}, ""
	}

	i := strings.IndexAny(s, "= \t\r\n")
	if i < 0 {
		return Attribute{Key: p.decode(s)}, ""
	}
	attr := Attribute{Key: p.decode(s[:i])}
	rest := strings.TrimLeft(s[i:], " \t\r\n")
	if !strings.HasPrefix(rest, "=") {
		return attr, rest
	}

	rest = strings.TrimLeft(rest[1:], " \t\r\n")
	val, rest := readWord(rest)
	attr.Val, attr.Quote = unquote(p.decode(val))
	attr.HasVal = true
	return attr, rest
}

// unquote strips one layer of matching quotes, reporting which quote
// character was used.
func unquote(s string) (string, byte) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], s[0]
	}
	return s, 0
}
