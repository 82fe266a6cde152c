package thtml

import (
	"errors"
	"fmt"
	"strings"
)

// An ErrorKind classifies a render failure.
type ErrorKind uint32

const (
	// ErrMissingAttr is a directive lacking a required attribute.
	ErrMissingAttr ErrorKind = iota
	// ErrSequencing is a directive out of place, such as a t-elif with no
	// preceding t-if.
	ErrSequencing
	// ErrTypeMismatch is a value of the wrong shape, such as a t-tree
	// source that is not a sequence.
	ErrTypeMismatch
	// ErrEvaluation is a failure delegated from a collaborator, such as
	// the expression evaluator or the code highlighter.
	ErrEvaluation
	// ErrIO is a file load failure from the top-level template or an
	// include.
	ErrIO
)

// String returns a string representation of the ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case ErrMissingAttr:
		return "missing attribute"
	case ErrSequencing:
		return "sequencing"
	case ErrTypeMismatch:
		return "type mismatch"
	case ErrEvaluation:
		return "evaluation"
	case ErrIO:
		return "io"
	}
	return fmt.Sprintf("invalid(%d)", uint32(k))
}

// A frame is one annotation layer: the node an error propagated through.
type frame struct {
	snippet string
	file    string
	line    int
}

// An Error is a render failure annotated with the failing node and one
// layer per enclosing node it propagated through, innermost first. The
// message is the multi-line breadcrumb trail from the failing leaf up
// through its enclosing directives.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error

	frames   []frame
	lastNode *Node
}

// newError creates a render error originating at node n.
func newError(kind ErrorKind, n *Node, file, format string, args ...any) *Error {
	e := &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
	return e.annotate(n, file)
}

// wrapError attaches a collaborator failure to node n.
func wrapError(kind ErrorKind, n *Node, file string, err error) *Error {
	e := &Error{Kind: kind, Msg: err.Error(), Err: err}
	return e.annotate(n, file)
}

// annotate appends one layer for n unless n already produced the latest
// layer, so a node is recorded once even when several call levels see it.
func (e *Error) annotate(n *Node, file string) *Error {
	if n == nil || n == e.lastNode {
		return e
	}
	e.lastNode = n
	e.frames = append(e.frames, frame{snippet: n.snippet(), file: file, line: n.Line})
	return e
}

// annotateError adds a layer for n to err if it is a render Error, and
// otherwise returns err unchanged.
func annotateError(err error, n *Node, file string) error {
	var e *Error
	if errors.As(err, &e) {
		return e.annotate(n, file)
	}
	return err
}

// Error formats the annotated multi-line message: the failure first, then
// one line per enclosing node with increasing indentation.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("thtml: ")
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Msg)
	for i, f := range e.frames {
		b.WriteByte('\n')
		b.WriteString(strings.Repeat("    ", i+1))
		fmt.Fprintf(&b, "in %s (%s:%d)", f.snippet, f.file, f.line)
	}
	return b.String()
}

// Unwrap returns the wrapped collaborator error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}
