package thtml

import (
	"reflect"
	"testing"
)

func TestBuildForestNesting(t *testing.T) {
	root := parseBytes([]byte(`<ul><li>a</li><li>b</li></ul>`))
	if len(root.Children) != 1 {
		t.Fatalf("root has %d children, want 1", len(root.Children))
	}
	ul := root.Children[0]
	if ul.Name != "ul" || !ul.Closed {
		t.Fatalf("ul = %+v, want closed element ul", ul)
	}
	if len(ul.Children) != 2 {
		t.Fatalf("ul has %d children, want 2", len(ul.Children))
	}
	for i, want := range []string{"a", "b"} {
		li := ul.Children[i]
		if li.Name != "li" || !li.Closed {
			t.Errorf("child %d = %+v, want closed li", i, li)
		}
		if li.Parent != ul || li.Index != i {
			t.Errorf("child %d parent/index = %v/%d, want ul/%d", i, li.Parent, li.Index, i)
		}
		if len(li.Children) != 1 || li.Children[0].RawText != want {
			t.Errorf("child %d text = %v, want %q", i, li.Children, want)
		}
	}
}

func TestBuildForestTopLevelSiblings(t *testing.T) {
	root := parseBytes([]byte(`<h1>t</h1>mid<p>x</p>`))
	if len(root.Children) != 3 {
		t.Fatalf("root has %d children, want 3", len(root.Children))
	}
	if root.Children[0].Name != "h1" || root.Children[1].RawText != "mid" || root.Children[2].Name != "p" {
		t.Errorf("unexpected forest: %v", root.SourceText())
	}
	// Top-level nodes hang off the synthetic root, so sibling navigation
	// works for them too.
	if got := root.Children[0].NextElementSibling(); got != root.Children[2] {
		t.Errorf("NextElementSibling() = %v, want the p element", got)
	}
}

func TestBuildForestUnclosedElement(t *testing.T) {
	root := parseBytes([]byte(`<li>a<li>b`))
	li1 := root.Children[0]
	if li1.Closed {
		t.Errorf("li1.Closed = true, want false")
	}
	// Without a closing tag the second li nests inside the first; the
	// emitted text is identical either way.
	if len(li1.Children) != 2 || li1.Children[1].Name != "li" {
		t.Fatalf("li1 children = %v, want text and nested li", li1.Children)
	}
	if got := root.SourceText(); got != "<li>a<li>b" {
		t.Errorf("SourceText() = %q, want %q", got, "<li>a<li>b")
	}
}

func TestParseElementAttributes(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []Attribute
	}{
		{
			name: "double quoted",
			src:  `<p id="x">`,
			want: []Attribute{{Key: "id", Val: "x", HasVal: true, Quote: '"'}},
		},
		{
			name: "single quoted",
			src:  `<p class='y'>`,
			want: []Attribute{{Key: "class", Val: "y", HasVal: true, Quote: '\''}},
		},
		{
			name: "unquoted",
			src:  `<p n=3>`,
			want: []Attribute{{Key: "n", Val: "3", HasVal: true}},
		},
		{
			name: "bare attribute",
			src:  `<input disabled>`,
			want: []Attribute{{Key: "disabled"}},
		},
		{
			name: "value with spaces",
			src:  `<p title="a b c">`,
			want: []Attribute{{Key: "title", Val: "a b c", HasVal: true, Quote: '"'}},
		},
		{
			name: "mixed forms in order",
			src:  `<a href="/u" download rel=nofollow>`,
			want: []Attribute{
				{Key: "href", Val: "/u", HasVal: true, Quote: '"'},
				{Key: "download"},
				{Key: "rel", Val: "nofollow", HasVal: true},
			},
		},
		{
			name: "quoted value with angle bracket",
			src:  `<t-if on="count > 2">`,
			want: []Attribute{{Key: "on", Val: "count > 2", HasVal: true, Quote: '"'}},
		},
		{
			name: "expression value keeps its braces",
			src:  `<a href="/user/{{ id }}">`,
			want: []Attribute{{Key: "href", Val: "/user/{{ id }}", HasVal: true, Quote: '"'}},
		},
		{
			name: "no attributes",
			src:  `<p>`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := parseBytes([]byte(tt.src))
			if len(root.Children) != 1 {
				t.Fatalf("parsed %d nodes, want 1", len(root.Children))
			}
			if got := root.Children[0].Attrs; !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Attrs = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSourceTextRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "simple element", src: `<p>hello</p>`},
		{name: "nested elements", src: `<div><p>a</p><p>b</p></div>`},
		{name: "attributes", src: `<a href="/u" download rel=nofollow>x</a>`},
		{name: "self closing", src: `<br/>`},
		{name: "comment and doctype", src: `<!DOCTYPE html><!-- c --><p>x</p>`},
		{name: "unclosed element", src: `<p>open`},
		{name: "directive", src: `<t-for on="item of items"><li>{{ item }}</li></t-for>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseBytes([]byte(tt.src)).SourceText(); got != tt.src {
				t.Errorf("SourceText() = %q, want %q", got, tt.src)
			}
		})
	}
}

func TestSourceTextNormalizes(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "attribute spacing", src: `<p  id = "x" >z</p>`, want: `<p id="x">z</p>`},
		{name: "spaced self close", src: `<br />`, want: `<br/>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseBytes([]byte(tt.src)).SourceText(); got != tt.want {
				t.Errorf("SourceText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAttr(t *testing.T) {
	root := parseBytes([]byte(`<a href="/u" download>`))
	n := root.Children[0]

	if v, ok := n.Attr("href"); !ok || v != "/u" {
		t.Errorf(`Attr("href") = %q, %v, want "/u", true`, v, ok)
	}
	if v, ok := n.Attr("download"); !ok || v != "" {
		t.Errorf(`Attr("download") = %q, %v, want "", true`, v, ok)
	}
	if _, ok := n.Attr("rel"); ok {
		t.Errorf(`Attr("rel") reported present`)
	}
}

func TestSiblingNavigation(t *testing.T) {
	root := parseBytes([]byte(`<div>t1<!-- c --><p>x</p>t2<span>y</span></div>`))
	div := root.Children[0]
	if len(div.Children) != 5 {
		t.Fatalf("div has %d children, want 5", len(div.Children))
	}
	p, span := div.Children[2], div.Children[4]

	if got := p.NextElementSibling(); got != span {
		t.Errorf("NextElementSibling() = %v, want span", got)
	}
	if got := span.PrevElementSibling(); got != p {
		t.Errorf("PrevElementSibling() = %v, want p", got)
	}
	if got := p.PrevElementSibling(); got != nil {
		t.Errorf("PrevElementSibling() = %v, want nil", got)
	}
	if got := span.NextElementSibling(); got != nil {
		t.Errorf("NextElementSibling() = %v, want nil", got)
	}
}

func TestSnippet(t *testing.T) {
	root := parseBytes([]byte("<p class=\"x\">\n  some text that runs on\n</p>"))
	p := root.Children[0]

	if got := p.snippet(); got != `<p class="x">` {
		t.Errorf("snippet() = %q", got)
	}
	text := p.Children[0]
	if got := text.snippet(); got != "some text that runs on" {
		t.Errorf("snippet() = %q", got)
	}
}
