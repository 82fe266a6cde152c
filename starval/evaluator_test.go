package starval

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hesusruiz/thtml/thtml"
)

func TestEvaluate(t *testing.T) {
	vars := map[string]any{
		"n":    2,
		"s":    "hi",
		"ok":   true,
		"user": map[string]any{"name": "Ada", "address": map[string]any{"city": "Madrid"}},
		"nums": []any{1, 2, 3},
	}
	tests := []struct {
		name    string
		expr    string
		want    any
		wantErr bool
	}{
		{name: "integer arithmetic", expr: "41 + 1", want: int64(42)},
		{name: "variable", expr: "n", want: int64(2)},
		{name: "string concatenation", expr: `s + "!"`, want: "hi!"},
		{name: "comparison", expr: "n > 1", want: true},
		{name: "boolean operator", expr: "ok and n == 2", want: true},
		{name: "property path", expr: "user.name", want: "Ada"},
		{name: "nested property path", expr: "user.address.city", want: "Madrid"},
		{name: "index access", expr: `user["name"]`, want: "Ada"},
		{name: "list index", expr: "nums[1]", want: int64(2)},
		{name: "list literal", expr: "[1, 2]", want: []any{int64(1), int64(2)}},
		{name: "dict literal", expr: `{"a": 1}`, want: map[string]any{"a": int64(1)}},
		{name: "conditional expression", expr: `"yes" if ok else "no"`, want: "yes"},
		{name: "float arithmetic", expr: "1.5 * 2", want: 3.0},
		{name: "len builtin", expr: "len(nums)", want: int64(3)},
		{name: "string method", expr: "s.upper()", want: "HI"},
		{name: "unknown name", expr: "missing", wantErr: true},
		{name: "missing property", expr: "user.missing", wantErr: true},
		{name: "syntax error", expr: "1 +", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Evaluate(context.Background(), vars, tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Evaluate() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestEvaluateConversions(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]any
		expr string
		want any
	}{
		{
			name: "typed slice",
			vars: map[string]any{"v": []int{1, 2}},
			expr: "v",
			want: []any{int64(1), int64(2)},
		},
		{
			name: "typed map",
			vars: map[string]any{"v": map[string]int{"a": 1}},
			expr: `v["a"]`,
			want: int64(1),
		},
		{
			name: "byte slice reads as string",
			vars: map[string]any{"v": []byte("ab")},
			expr: "v",
			want: "ab",
		},
		{
			name: "float",
			vars: map[string]any{"v": 2.5},
			expr: "v",
			want: 2.5,
		},
		{
			name: "big integer keeps its text form",
			vars: nil,
			expr: "1 << 70",
			want: "1180591620717411303424",
		},
		{
			name: "none",
			vars: map[string]any{"v": nil},
			expr: "v",
			want: nil,
		},
		{
			name: "tuple",
			vars: nil,
			expr: "(1, 2)",
			want: []any{int64(1), int64(2)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Evaluate(context.Background(), tt.vars, tt.expr)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Evaluate() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestEvaluateAssignment(t *testing.T) {
	vars := map[string]any{"price": 3, "qty": 4, "nums": []any{1, 2, 3}}
	tests := []struct {
		name    string
		alias   string
		expr    string
		want    any
		wantErr bool
	}{
		{name: "product", alias: "total", expr: "price * qty", want: int64(12)},
		{name: "comprehension", alias: "evens", expr: "[x for x in nums if x % 2 == 0]", want: []any{int64(2)}},
		{name: "invalid alias", alias: "my total", expr: "1", wantErr: true},
		{name: "invalid expression", alias: "x", expr: "qty *", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().EvaluateAssignment(context.Background(), vars, tt.alias, tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("EvaluateAssignment() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("EvaluateAssignment() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIterateOf(t *testing.T) {
	vars := map[string]any{"nums": []any{1, 2, 3}, "n": 5}
	tests := []struct {
		name    string
		expr    string
		want    []any
		wantErr bool
	}{
		{name: "list", expr: "nums", want: []any{int64(1), int64(2), int64(3)}},
		{name: "range builtin", expr: "range(3)", want: []any{int64(0), int64(1), int64(2)}},
		{name: "comprehension", expr: "[x * 10 for x in nums]", want: []any{int64(10), int64(20), int64(30)}},
		{name: "not iterable", expr: "n", wantErr: true},
		{name: "evaluation error", expr: "missing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().IterateOf(context.Background(), vars, tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("IterateOf() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("IterateOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIterateIn(t *testing.T) {
	vars := map[string]any{
		"m":    map[string]any{"b": 2, "a": 1},
		"nums": []any{1, 2},
	}
	tests := []struct {
		name    string
		expr    string
		want    []thtml.Pair
		wantErr bool
	}{
		{
			name: "render scope mapping is key ordered",
			expr: "m",
			want: []thtml.Pair{{Key: "a", Value: 1}, {Key: "b", Value: 2}},
		},
		{
			name: "dict literal is key ordered",
			expr: `{"y": 2, "x": 1}`,
			want: []thtml.Pair{{Key: "x", Value: int64(1)}, {Key: "y", Value: int64(2)}},
		},
		{
			name:    "not a mapping",
			expr:    "nums",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().IterateIn(context.Background(), vars, tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("IterateIn() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("IterateIn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New().Evaluate(ctx, nil, "1 + 1"); !errors.Is(err, context.Canceled) {
		t.Errorf("Evaluate() error = %v, want context.Canceled", err)
	}
	if _, err := New().EvaluateAssignment(ctx, nil, "x", "1"); !errors.Is(err, context.Canceled) {
		t.Errorf("EvaluateAssignment() error = %v, want context.Canceled", err)
	}
}

func TestMapValueAttrNames(t *testing.T) {
	v := mapValue{m: map[string]any{"b": 1, "a": 2, "c": 3}}
	want := []string{"a", "b", "c"}
	if got := v.AttrNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("AttrNames() = %v, want %v", got, want)
	}
}
