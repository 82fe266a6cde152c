package thtml

import (
	"context"
	"reflect"
)

// A Pair is one entry produced when iterating a mapping with "in".
type Pair struct {
	Key   string
	Value any
}

// An Evaluator resolves expressions against a variable scope. The engine
// never interprets expression text itself: t-if conditions, t-for and
// t-tree sources, t-with assignments and {{ }} interpolations are all
// delegated here. The starval package provides a Starlark-backed
// implementation; any evaluator that understands dotted property paths
// and basic operators will do.
type Evaluator interface {
	// Evaluate resolves expr against vars and returns its value.
	Evaluate(ctx context.Context, vars map[string]any, expr string) (any, error)

	// EvaluateAssignment resolves the right-hand side of a t-with
	// assignment name=expr. It is distinct from Evaluate so that
	// implementations may apply assignment-specific handling.
	EvaluateAssignment(ctx context.Context, vars map[string]any, name, expr string) (any, error)

	// IterateOf resolves expr to a sequence and returns its elements in
	// source order.
	IterateOf(ctx context.Context, vars map[string]any, expr string) ([]any, error)

	// IterateIn resolves expr to a mapping and returns its entries.
	IterateIn(ctx context.Context, vars map[string]any, expr string) ([]Pair, error)
}

// asSequence normalizes an evaluated value to a []any, reporting whether
// the value is sequence-shaped at all.
func asSequence(v any) ([]any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case []any:
		return x, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
	return nil, false
}

// fieldOf reads a named field off a mapping-shaped item. Missing fields
// and non-mapping items read as nil.
func fieldOf(item any, field string) any {
	switch m := item.(type) {
	case nil:
		return nil
	case map[string]any:
		return m[field]
	}
	rv := reflect.ValueOf(item)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		v := rv.MapIndex(reflect.ValueOf(field).Convert(rv.Type().Key()))
		if v.IsValid() {
			return v.Interface()
		}
	case reflect.Struct:
		v := rv.FieldByName(field)
		if v.IsValid() && v.CanInterface() {
			return v.Interface()
		}
	}
	return nil
}

// truthy reports whether a resolved condition value selects its branch.
// Falsy values are nil, false, zero numbers, and empty strings, slices,
// arrays and maps. Everything else is truthy.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
