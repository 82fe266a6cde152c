package thtml

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	hlhtml "github.com/alecthomas/chroma/v2/formatters/html"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/cespare/xxhash/v2"
	"oss.terrastruct.com/d2/d2graph"
	"oss.terrastruct.com/d2/d2layouts/d2dagrelayout"
	"oss.terrastruct.com/d2/d2lib"
	"oss.terrastruct.com/d2/d2renderers/d2svg"
	"oss.terrastruct.com/d2/d2themes/d2themescatalog"
	"oss.terrastruct.com/d2/lib/textmeasure"
)

// renderCode renders t-code: the body is syntax highlighted and emitted
// inside a styled pre block. The lexer comes from the lang (or class)
// attribute, falling back to content analysis; the style comes from the
// template's front matter. The body is emitted verbatim, so expression
// braces inside code samples are never resolved.
func (r *Renderer) renderCode(n *Node, sc scope) (string, error) {
	content := strings.TrimLeft(n.rawContent(), "\n")
	if content == "" {
		return wrapMarkers(tagCode, ""), nil
	}

	lang, ok := n.Attr("lang")
	if !ok {
		lang, _ = n.Attr("class")
	}
	l := lexers.Get(strings.TrimSpace(lang))
	if l == nil {
		l = lexers.Analyse(content)
	}
	if l == nil {
		l = lexers.Fallback
	}
	l = chroma.Coalesce(l)

	s := styles.Get(sc.style)

	f := hlhtml.New(hlhtml.Standalone(false), hlhtml.PreventSurroundingPre(true))
	it, err := l.Tokenise(nil, content)
	if err != nil {
		return "", wrapError(ErrEvaluation, n, sc.file, err)
	}

	var b bytes.Buffer
	b.WriteString("\n<div class=\"codecolor\">\n<pre class='nohighlight precolor'>\n")
	if err := f.Format(&b, s, it); err != nil {
		return "", wrapError(ErrEvaluation, n, sc.file, err)
	}
	b.WriteString("</pre></div>\n\n")
	return wrapMarkers(tagCode, b.String()), nil
}

// renderDiagram renders t-diagram: the body is compiled as a D2 diagram
// and the resulting SVG is inlined in the output. Compiled SVG is
// memoized process-wide by content hash, so re-rendering a template does
// not recompile untouched diagrams.
func (r *Renderer) renderDiagram(ctx context.Context, n *Node, sc scope) (string, error) {
	src := strings.TrimSpace(n.rawContent())
	if src == "" {
		return wrapMarkers(tagDiagram, ""), nil
	}

	key := xxhash.Sum64String(src)
	if svg, ok := cachedSVG(key); ok {
		return wrapMarkers(tagDiagram, string(svg)), nil
	}

	ruler, err := textmeasure.NewRuler()
	if err != nil {
		return "", wrapError(ErrEvaluation, n, sc.file, err)
	}
	defaultLayout := func(ctx context.Context, g *d2graph.Graph) error {
		return d2dagrelayout.Layout(ctx, g, nil)
	}
	diagram, _, err := d2lib.Compile(ctx, src, &d2lib.CompileOptions{
		Layout: defaultLayout,
		Ruler:  ruler,
	})
	if err != nil {
		return "", wrapError(ErrEvaluation, n, sc.file, fmt.Errorf("compiling diagram: %w", err))
	}
	svg, err := d2svg.Render(diagram, &d2svg.RenderOpts{
		Pad:     d2svg.DEFAULT_PADDING,
		ThemeID: d2themescatalog.NeutralDefault.ID,
	})
	if err != nil {
		return "", wrapError(ErrEvaluation, n, sc.file, fmt.Errorf("rendering diagram: %w", err))
	}

	storeSVG(key, svg)
	return wrapMarkers(tagDiagram, string(svg)), nil
}
