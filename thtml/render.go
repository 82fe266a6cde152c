// Package thtml renders HTML templates that embed a small directive
// vocabulary (t-for, t-if/t-elif/t-else, t-with, t-tree/t-children,
// t-include, t-html, t-code, t-diagram) and {{ expr }} interpolations
// against caller-supplied data, producing a final HTML string on the
// server. Clients never see the directive markup.
//
// Parsed trees are memoized process-wide by content hash, sibling
// subtrees render concurrently, and expression evaluation is delegated
// to an external Evaluator such as the one in the starval package.
package thtml

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// The directive vocabulary. Any other tag passes through to the output.
const (
	tagFor      = "t-for"
	tagIf       = "t-if"
	tagElif     = "t-elif"
	tagElse     = "t-else"
	tagWith     = "t-with"
	tagTree     = "t-tree"
	tagChildren = "t-children"
	tagInclude  = "t-include"
	tagHTML     = "t-html"
	tagCode     = "t-code"
	tagDiagram  = "t-diagram"
)

// maxIncludeDepth bounds t-include nesting so an include cycle fails
// instead of recursing forever.
const maxIncludeDepth = 100

// inlineName is the file shown in error annotations for RenderString.
const inlineName = "(inline)"

// Options configures one render call.
type Options struct {
	// Cache consults and populates the process-wide parse cache for this
	// render and for every include it triggers.
	Cache bool
}

// A Renderer renders directive templates against caller data. It is
// stateless apart from its collaborators and safe for concurrent use.
type Renderer struct {
	eval   Evaluator
	loader Loader
	logger *zap.Logger
	tracer trace.Tracer
}

// New creates a Renderer delegating expression work to eval. A nil loader
// reads from the local filesystem and a nil logger discards events.
func New(eval Evaluator, loader Loader, logger *zap.Logger) *Renderer {
	if loader == nil {
		loader = OSLoader{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		eval:   eval,
		loader: loader,
		logger: logger,
		tracer: otel.Tracer("github.com/hesusruiz/thtml"),
	}
}

// scope is the render context for one branch of the tree. Directives that
// introduce bindings derive a child scope; siblings and ancestors never
// observe the change.
type scope struct {
	vars    map[string]any
	raw     bool   // t-html subtree: emit interpolations unescaped
	session string // innermost t-tree session id
	file    string // current template file, for error annotation
	dir     string // base directory for resolving t-include paths
	style   string // highlight style for t-code
	depth   int    // include nesting depth
}

// bind derives a child scope with name bound to value.
func (sc scope) bind(name string, value any) scope {
	vars := make(map[string]any, len(sc.vars)+1)
	for k, v := range sc.vars {
		vars[k] = v
	}
	vars[name] = value
	sc.vars = vars
	return sc
}

// bindAll derives a child scope with every entry of bindings added.
// Bindings shadow same-named variables of the current scope.
func (sc scope) bindAll(bindings map[string]any) scope {
	vars := make(map[string]any, len(sc.vars)+len(bindings))
	for k, v := range sc.vars {
		vars[k] = v
	}
	for k, v := range bindings {
		vars[k] = v
	}
	sc.vars = vars
	return sc
}

// bindUnder derives a child scope with the entries of defaults added only
// where the scope does not already bind the name. Front matter data merges
// beneath caller data this way.
func (sc scope) bindUnder(defaults map[string]any) scope {
	vars := make(map[string]any, len(sc.vars)+len(defaults))
	for k, v := range defaults {
		vars[k] = v
	}
	for k, v := range sc.vars {
		vars[k] = v
	}
	sc.vars = vars
	return sc
}

// renderState is the bookkeeping shared by every node of one render
// invocation: the condition chain side table and the tree session store.
// Cached trees are shared between renders, so per-render state lives here,
// keyed by node identity, and never on the nodes themselves.
type renderState struct {
	mu       sync.Mutex
	cond     map[*Node]bool
	sessions map[string]*treeSession
	cache    bool
}

// treeSession records what t-children needs to re-enter its enclosing
// t-tree at any depth: the children template and the loop variable name.
type treeSession struct {
	template []*Node
	itemVar  string
}

// sessionSeq generates process-unique tree session ids. A counter rather
// than wall-clock time, so concurrently rendering sessions cannot collide.
var sessionSeq atomic.Uint64

func newRenderState(cache bool) *renderState {
	return &renderState{
		cond:     make(map[*Node]bool),
		sessions: make(map[string]*treeSession),
		cache:    cache,
	}
}

func (st *renderState) setCond(n *Node, allowed bool) {
	st.mu.Lock()
	st.cond[n] = allowed
	st.mu.Unlock()
}

func (st *renderState) condFor(n *Node) (allowed, ok bool) {
	st.mu.Lock()
	allowed, ok = st.cond[n]
	st.mu.Unlock()
	return allowed, ok
}

func (st *renderState) addSession(s *treeSession) string {
	id := strconv.FormatUint(sessionSeq.Add(1), 10)
	st.mu.Lock()
	st.sessions[id] = s
	st.mu.Unlock()
	return id
}

func (st *renderState) session(id string) *treeSession {
	st.mu.Lock()
	s := st.sessions[id]
	st.mu.Unlock()
	return s
}

func (st *renderState) removeSession(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// RenderFile loads, parses and renders the template at path against data,
// the top-level variable mapping visible to expressions. Relative paths
// resolve against the process working directory.
func (r *Renderer) RenderFile(ctx context.Context, path string, data map[string]any, opts Options) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &Error{Kind: ErrIO, Msg: fmt.Sprintf("resolving %s: %v", path, err), Err: err}
	}
	src, err := r.loader.Load(abs)
	if err != nil {
		return "", &Error{Kind: ErrIO, Msg: fmt.Sprintf("loading %s: %v", abs, err), Err: err}
	}
	return r.render(ctx, src, abs, filepath.Dir(abs), data, opts)
}

// RenderString renders an in-memory template. dir is the base directory
// for resolving t-include paths.
func (r *Renderer) RenderString(ctx context.Context, src, dir string, data map[string]any, opts Options) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", &Error{Kind: ErrIO, Msg: fmt.Sprintf("resolving %s: %v", dir, err), Err: err}
	}
	return r.render(ctx, []byte(src), inlineName, abs, data, opts)
}

// render is the top of the pipeline: it renders src and applies the final
// literal-brace pass over the whole document.
func (r *Renderer) render(ctx context.Context, src []byte, file, dir string, data map[string]any, opts Options) (string, error) {
	ctx, span := r.tracer.Start(ctx, "thtml.render",
		trace.WithAttributes(attribute.String("template.file", file)))
	defer span.End()

	r.logger.Debug("render start",
		zap.String("file", file),
		zap.Bool("cache", opts.Cache),
		zap.Int("bytes", len(src)))

	sc := scope{vars: data, file: file, dir: dir, style: defaultCodeStyle}
	out, err := r.renderSource(ctx, src, sc, newRenderState(opts.Cache))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return "", err
	}
	return restoreLiteralBraces(out), nil
}

// renderSource runs the parse stages over one template source and renders
// the resulting forest under sc. Includes re-enter here, so each included
// file gets its own front matter and parse cache entry.
func (r *Renderer) renderSource(ctx context.Context, src []byte, sc scope, st *renderState) (string, error) {
	fm, body, err := splitFrontMatter(src)
	if err != nil {
		return "", &Error{Kind: ErrTypeMismatch, Msg: err.Error(), Err: err}
	}
	if fm != nil {
		sc.style = fm.codeStyle()
		if len(fm.data) > 0 {
			sc = sc.bindUnder(fm.data)
		}
	}
	root := parse(body, st.cache)
	return r.renderNodes(ctx, root.Children, sc, st)
}

// renderNodes renders a sibling run, fanning the renders out concurrently
// and joining the results in document order no matter which finishes
// first. The t-if/t-elif/t-else bookkeeping runs sequentially inside the
// loop, so a directive's propagated condition is always recorded before
// its successor looks it up; only the branch bodies join the fan-out.
func (r *Renderer) renderNodes(ctx context.Context, nodes []*Node, sc scope, st *renderState) (string, error) {
	if len(nodes) == 0 {
		return "", nil
	}

	results := make([]string, len(nodes))
	g, gctx := errgroup.WithContext(ctx)

	var chainErr error
	for i, n := range nodes {
		if n.Type == ElementNode && isChainTag(n.Name) {
			taken, err := r.chainStep(gctx, n, sc, st)
			if err != nil {
				chainErr = err
				break
			}
			if !taken {
				results[i] = "<!-- " + n.Name + " -->"
				continue
			}
			g.Go(func() error {
				out, err := r.renderNodes(gctx, n.Children, sc, st)
				if err != nil {
					return annotateError(err, n, sc.file)
				}
				results[i] = wrapMarkers(n.Name, out)
				return nil
			})
			continue
		}

		g.Go(func() error {
			out, err := r.renderNode(gctx, n, sc, st)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}

	werr := g.Wait()
	if chainErr != nil {
		return "", chainErr
	}
	if werr != nil {
		return "", werr
	}
	return strings.Join(results, ""), nil
}

func isChainTag(name string) bool {
	return name == tagIf || name == tagElif || name == tagElse
}

// chainStep performs the sequential bookkeeping of one conditional:
// evaluates its condition, records the propagated state on the next chain
// member if there is one, and reports whether the branch is taken. The
// propagated value is the negation of the directive's own condition;
// propagation runs purely through element-sibling adjacency.
func (r *Renderer) chainStep(ctx context.Context, n *Node, sc scope, st *renderState) (bool, error) {
	var taken, propagate bool
	switch n.Name {
	case tagIf:
		cond, err := r.evalCondition(ctx, n, sc)
		if err != nil {
			return false, err
		}
		taken, propagate = cond, !cond

	case tagElif:
		allowed, ok := st.condFor(n)
		if !ok {
			return false, newError(ErrSequencing, n, sc.file, "t-elif must follow a t-if or t-elif")
		}
		cond, err := r.evalCondition(ctx, n, sc)
		if err != nil {
			return false, err
		}
		taken, propagate = allowed && cond, !cond

	case tagElse:
		allowed, ok := st.condFor(n)
		if !ok {
			return false, newError(ErrSequencing, n, sc.file, "t-else must follow a t-if or t-elif")
		}
		return allowed, nil
	}

	if next := n.NextElementSibling(); next != nil && (next.Name == tagElif || next.Name == tagElse) {
		st.setCond(next, propagate)
	}
	return taken, nil
}

// evalCondition evaluates the mandatory on attribute of a conditional.
func (r *Renderer) evalCondition(ctx context.Context, n *Node, sc scope) (bool, error) {
	expr, ok := n.Attr("on")
	if !ok {
		return false, newError(ErrMissingAttr, n, sc.file, "%s requires attribute %q", n.Name, "on")
	}
	v, err := r.eval.Evaluate(ctx, sc.vars, expr)
	if err != nil {
		return false, wrapError(ErrEvaluation, n, sc.file, err)
	}
	return truthy(v), nil
}

// wrapMarkers surrounds a directive's rendering with its comment markers.
func wrapMarkers(name, body string) string {
	return "<!-- " + name + " -->" + body + "<!-- /" + name + " -->"
}

// renderNode renders one node. Chain conditionals never arrive here; the
// sibling loop in renderNodes consumes them.
func (r *Renderer) renderNode(ctx context.Context, n *Node, sc scope, st *renderState) (string, error) {
	if n.Type != ElementNode {
		if n.Type == DoctypeNode {
			return n.RawText, nil
		}
		return r.resolveText(ctx, n.RawText, sc, n)
	}

	var out string
	var err error
	switch n.Name {
	case tagFor:
		out, err = r.renderFor(ctx, n, sc, st)
	case tagWith:
		out, err = r.renderWith(ctx, n, sc, st)
	case tagTree:
		out, err = r.renderTreeDirective(ctx, n, sc, st)
	case tagChildren:
		out, err = r.renderChildrenDirective(ctx, n, sc, st)
	case tagInclude:
		out, err = r.renderInclude(ctx, n, sc, st)
	case tagHTML:
		raw := sc
		raw.raw = true
		out, err = r.renderNodes(ctx, n.Children, raw, st)
		if err == nil {
			out = wrapMarkers(tagHTML, out)
		}
	case tagCode:
		out, err = r.renderCode(n, sc)
	case tagDiagram:
		out, err = r.renderDiagram(ctx, n, sc)
	default:
		out, err = r.renderElement(ctx, n, sc, st)
	}
	if err != nil {
		return "", annotateError(err, n, sc.file)
	}
	return out, nil
}

// renderElement re-emits a non-directive element: attribute values are
// resolved for expressions, children render recursively between the
// original tags, and elements left unclosed in the source stay unclosed.
func (r *Renderer) renderElement(ctx context.Context, n *Node, sc scope, st *renderState) (string, error) {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(n.Name)
	for _, a := range n.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		if !a.HasVal {
			continue
		}
		val, err := r.resolveText(ctx, a.Val, sc, n)
		if err != nil {
			return "", err
		}
		b.WriteByte('=')
		if a.Quote != 0 {
			b.WriteByte(a.Quote)
			b.WriteString(val)
			b.WriteByte(a.Quote)
		} else {
			b.WriteString(val)
		}
	}
	if n.SelfClosed {
		b.WriteString("/>")
		return b.String(), nil
	}
	b.WriteByte('>')

	out, err := r.renderNodes(ctx, n.Children, sc, st)
	if err != nil {
		return "", err
	}
	b.WriteString(out)
	if n.Closed {
		b.WriteString("</")
		b.WriteString(n.Name)
		b.WriteByte('>')
	}
	return b.String(), nil
}

// renderFor renders t-for. The on attribute must hold "<name> of <expr>"
// to iterate a sequence or "<name> in <expr>" to iterate a mapping; the
// in form binds each entry as a {key, value} pair. Item bodies render
// concurrently and join in iteration order.
func (r *Renderer) renderFor(ctx context.Context, n *Node, sc scope, st *renderState) (string, error) {
	on, ok := n.Attr("on")
	if !ok {
		return "", newError(ErrMissingAttr, n, sc.file, "t-for requires attribute %q", "on")
	}
	fields := strings.Fields(on)
	if len(fields) < 3 || (fields[1] != "of" && fields[1] != "in") {
		return "", newError(ErrTypeMismatch, n, sc.file, "t-for: %q does not match %q", on, "<name> of|in <expression>")
	}
	name := fields[0]
	source := strings.Join(fields[2:], " ")

	var items []any
	if fields[1] == "of" {
		elems, err := r.eval.IterateOf(ctx, sc.vars, source)
		if err != nil {
			return "", wrapError(ErrEvaluation, n, sc.file, err)
		}
		items = elems
	} else {
		pairs, err := r.eval.IterateIn(ctx, sc.vars, source)
		if err != nil {
			return "", wrapError(ErrEvaluation, n, sc.file, err)
		}
		items = make([]any, len(pairs))
		for i, p := range pairs {
			items[i] = map[string]any{"key": p.Key, "value": p.Value}
		}
	}

	parts := make([]string, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			out, err := r.renderNodes(gctx, n.Children, sc.bind(name, item), st)
			if err != nil {
				return err
			}
			parts[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return wrapMarkers(tagFor, strings.Join(parts, "")), nil
}

// renderWith renders t-with: every attribute is an alias=expression
// assignment evaluated against the current scope, and the children render
// with all aliases bound at once. At least one assignment is required.
func (r *Renderer) renderWith(ctx context.Context, n *Node, sc scope, st *renderState) (string, error) {
	if len(n.Attrs) == 0 {
		return "", newError(ErrMissingAttr, n, sc.file, "t-with requires at least one assignment attribute")
	}
	bindings := make(map[string]any, len(n.Attrs))
	for _, a := range n.Attrs {
		v, err := r.eval.EvaluateAssignment(ctx, sc.vars, a.Key, a.Val)
		if err != nil {
			return "", wrapError(ErrEvaluation, n, sc.file, fmt.Errorf("assignment %s: %w", a.Key, err))
		}
		bindings[a.Key] = v
	}
	out, err := r.renderNodes(ctx, n.Children, sc.bindAll(bindings), st)
	if err != nil {
		return "", err
	}
	return wrapMarkers(tagWith, out), nil
}

// renderTreeDirective renders t-tree. The on attribute must hold
// "<data> as <item>"; the data expression must resolve to a sequence.
// The directive's children are registered as a session template, the
// sequence renders through the shared recursive routine, and the session
// is removed again on every exit path.
func (r *Renderer) renderTreeDirective(ctx context.Context, n *Node, sc scope, st *renderState) (string, error) {
	on, ok := n.Attr("on")
	if !ok {
		return "", newError(ErrMissingAttr, n, sc.file, "t-tree requires attribute %q", "on")
	}
	fields := strings.Fields(on)
	if len(fields) < 3 || fields[len(fields)-2] != "as" {
		return "", newError(ErrTypeMismatch, n, sc.file, "t-tree: %q does not match %q", on, "<data> as <item>")
	}
	itemVar := fields[len(fields)-1]
	dataExpr := strings.Join(fields[:len(fields)-2], " ")

	v, err := r.eval.Evaluate(ctx, sc.vars, dataExpr)
	if err != nil {
		return "", wrapError(ErrEvaluation, n, sc.file, err)
	}
	items, ok := asSequence(v)
	if !ok {
		return "", newError(ErrTypeMismatch, n, sc.file, "t-tree: %s is not a sequence (%T)", dataExpr, v)
	}

	id := st.addSession(&treeSession{template: n.Children, itemVar: itemVar})
	defer st.removeSession(id)
	sc.session = id

	r.logger.Debug("tree session", zap.String("id", id), zap.String("item", itemVar), zap.Int("items", len(items)))

	out, err := r.renderTree(ctx, items, n, sc, st)
	if err != nil {
		return "", err
	}
	return wrapMarkers(tagTree, out), nil
}

// renderChildrenDirective renders t-children: it reads the named field
// (attribute field, default "children") off the item currently bound by
// the enclosing t-tree and re-enters the tree routine over that nested
// sequence. An absent or falsy field renders empty, which is what ends
// the recursion at the leaves. Unlike the other directives the output is
// not wrapped in comment markers.
func (r *Renderer) renderChildrenDirective(ctx context.Context, n *Node, sc scope, st *renderState) (string, error) {
	sess := st.session(sc.session)
	if sc.session == "" || sess == nil {
		return "", newError(ErrSequencing, n, sc.file, "t-children has no enclosing t-tree")
	}
	field := "children"
	if f, ok := n.Attr("field"); ok {
		field = f
	}
	item, ok := sc.vars[sess.itemVar]
	if !ok {
		return "", newError(ErrSequencing, n, sc.file, "t-children: loop variable %q is not in scope", sess.itemVar)
	}
	sub := fieldOf(item, field)
	if !truthy(sub) {
		return "", nil
	}
	items, ok := asSequence(sub)
	if !ok {
		return "", newError(ErrTypeMismatch, n, sc.file, "t-children: field %q is not a sequence (%T)", field, sub)
	}
	return r.renderTree(ctx, items, n, sc, st)
}

// renderTree is the shared recursive routine behind t-tree and
// t-children: it renders the session template once per item, each under a
// scope binding the session's loop variable to that item. One written
// body therefore expands an arbitrarily deep hierarchy.
func (r *Renderer) renderTree(ctx context.Context, items []any, n *Node, sc scope, st *renderState) (string, error) {
	sess := st.session(sc.session)
	if sess == nil {
		return "", newError(ErrSequencing, n, sc.file, "%s has no live t-tree session", n.Name)
	}
	parts := make([]string, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			out, err := r.renderNodes(gctx, sess.template, sc.bind(sess.itemVar, item), st)
			if err != nil {
				return err
			}
			parts[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return strings.Join(parts, ""), nil
}

// renderInclude renders t-include: loads the file named by the mandatory
// file attribute, relative to the including file's directory, and runs
// the whole pipeline on it under the current scope. The included file
// becomes the current file for includes nested inside it.
func (r *Renderer) renderInclude(ctx context.Context, n *Node, sc scope, st *renderState) (string, error) {
	name, ok := n.Attr("file")
	if !ok {
		return "", newError(ErrMissingAttr, n, sc.file, "t-include requires attribute %q", "file")
	}
	if sc.depth >= maxIncludeDepth {
		return "", newError(ErrIO, n, sc.file, "includes nested deeper than %d, include cycle likely", maxIncludeDepth)
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(sc.dir, path)
	}
	src, err := r.loader.Load(path)
	if err != nil {
		return "", wrapError(ErrIO, n, sc.file, err)
	}

	r.logger.Debug("include", zap.String("file", path), zap.Int("depth", sc.depth+1))

	sub := sc
	sub.file = path
	sub.dir = filepath.Dir(path)
	sub.depth = sc.depth + 1
	out, err := r.renderSource(ctx, src, sub, st)
	if err != nil {
		return "", err
	}
	return wrapMarkers(tagInclude, out), nil
}
