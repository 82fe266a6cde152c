// Package starval implements the thtml expression evaluator on Starlark.
// Template expressions get the render scope as predeclared globals, with
// dotted property paths working at every nesting depth, plus Starlark's
// operators, comparisons and literals.
package starval

import (
	"context"
	"fmt"
	"sort"

	"go.starlark.net/starlark"

	"github.com/hesusruiz/thtml/thtml"
)

const threadName = "starval"

// An Evaluator evaluates template expressions with Starlark. Every call
// runs on its own Starlark thread, so a single Evaluator serves
// arbitrarily many concurrent renders.
type Evaluator struct{}

var _ thtml.Evaluator = (*Evaluator)(nil)

// New creates an Evaluator.
func New() *Evaluator {
	return &Evaluator{}
}

// run executes one Starlark operation on a fresh thread, cancelling the
// thread if ctx ends while the expression is still running.
func run(ctx context.Context, f func(th *starlark.Thread) (starlark.Value, error)) (starlark.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	th := &starlark.Thread{Name: threadName}
	stop := context.AfterFunc(ctx, func() {
		th.Cancel(context.Cause(ctx).Error())
	})
	defer stop()
	return f(th)
}

// Evaluate resolves expr against vars and returns its value.
func (e *Evaluator) Evaluate(ctx context.Context, vars map[string]any, expr string) (any, error) {
	v, err := run(ctx, func(th *starlark.Thread) (starlark.Value, error) {
		return starlark.Eval(th, "<expr>", expr, environ(vars))
	})
	if err != nil {
		return nil, err
	}
	return fromStarlark(v), nil
}

// EvaluateAssignment resolves the right-hand side of a t-with assignment.
// It executes an actual Starlark assignment statement and reads the bound
// global back, so the name must be a valid identifier and the expression
// follows Starlark's own assignment rules.
func (e *Evaluator) EvaluateAssignment(ctx context.Context, vars map[string]any, name, expr string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := name + " = " + expr

	th := &starlark.Thread{Name: threadName}
	stop := context.AfterFunc(ctx, func() {
		th.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	globals, err := starlark.ExecFile(th, "<assign>", src, environ(vars))
	if err != nil {
		return nil, err
	}
	v, ok := globals[name]
	if !ok {
		return nil, fmt.Errorf("assignment %q did not bind %q", src, name)
	}
	return fromStarlark(v), nil
}

// IterateOf resolves expr to a sequence and returns its elements in
// source order.
func (e *Evaluator) IterateOf(ctx context.Context, vars map[string]any, expr string) ([]any, error) {
	v, err := run(ctx, func(th *starlark.Thread) (starlark.Value, error) {
		return starlark.Eval(th, "<expr>", expr, environ(vars))
	})
	if err != nil {
		return nil, err
	}
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("%s is not iterable", v.Type())
	}

	iter := iterable.Iterate()
	defer iter.Done()
	var items []any
	var x starlark.Value
	for iter.Next(&x) {
		items = append(items, fromStarlark(x))
	}
	return items, nil
}

// IterateIn resolves expr to a mapping and returns its entries ordered by
// key, so mapping iteration is deterministic across renders.
func (e *Evaluator) IterateIn(ctx context.Context, vars map[string]any, expr string) ([]thtml.Pair, error) {
	v, err := run(ctx, func(th *starlark.Thread) (starlark.Value, error) {
		return starlark.Eval(th, "<expr>", expr, environ(vars))
	})
	if err != nil {
		return nil, err
	}

	var pairs []thtml.Pair
	switch m := v.(type) {
	case mapValue:
		for k, x := range m.m {
			pairs = append(pairs, thtml.Pair{Key: k, Value: x})
		}
	case starlark.IterableMapping:
		for _, item := range m.Items() {
			key, ok := item[0].(starlark.String)
			if ok {
				pairs = append(pairs, thtml.Pair{Key: string(key), Value: fromStarlark(item[1])})
			} else {
				pairs = append(pairs, thtml.Pair{Key: item[0].String(), Value: fromStarlark(item[1])})
			}
		}
	default:
		return nil, fmt.Errorf("%s is not a mapping", v.Type())
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return pairs, nil
}
