package starval

import (
	"fmt"
	"reflect"
	"sort"

	"go.starlark.net/starlark"
)

// mapValue adapts a Go map to Starlark with both attribute and index
// access, so template expressions can write a.b.c as well as a["b"]["c"].
// Values convert lazily, on access.
type mapValue struct {
	m map[string]any
}

var (
	_ starlark.Value    = mapValue{}
	_ starlark.HasAttrs = mapValue{}
	_ starlark.Mapping  = mapValue{}
)

func (v mapValue) String() string        { return fmt.Sprintf("%v", v.m) }
func (v mapValue) Type() string          { return "context" }
func (v mapValue) Freeze()               {}
func (v mapValue) Truth() starlark.Bool  { return len(v.m) > 0 }
func (v mapValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: context") }

// Attr implements property-path access: a.b resolves to the "b" entry.
func (v mapValue) Attr(name string) (starlark.Value, error) {
	x, ok := v.m[name]
	if !ok {
		return nil, nil
	}
	return toStarlark(x), nil
}

func (v mapValue) AttrNames() []string {
	names := make([]string, 0, len(v.m))
	for k := range v.m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Get implements index access: a["b"] resolves to the "b" entry.
func (v mapValue) Get(key starlark.Value) (starlark.Value, bool, error) {
	s, ok := starlark.AsString(key)
	if !ok {
		return nil, false, fmt.Errorf("context keys are strings, got %s", key.Type())
	}
	x, ok := v.m[s]
	if !ok {
		return nil, false, nil
	}
	return toStarlark(x), true, nil
}

// environ builds the predeclared environment for one evaluation from the
// render scope.
func environ(vars map[string]any) starlark.StringDict {
	dict := make(starlark.StringDict, len(vars))
	for k, v := range vars {
		dict[k] = toStarlark(v)
	}
	return dict
}

// toStarlark converts a Go value to its Starlark counterpart. Mappings
// become mapValue rather than starlark dicts, so nested values keep
// attribute access at every depth.
func toStarlark(v any) starlark.Value {
	switch x := v.(type) {
	case nil:
		return starlark.None
	case starlark.Value:
		return x
	case bool:
		return starlark.Bool(x)
	case string:
		return starlark.String(x)
	case []byte:
		return starlark.String(string(x))
	case int:
		return starlark.MakeInt64(int64(x))
	case int8:
		return starlark.MakeInt64(int64(x))
	case int16:
		return starlark.MakeInt64(int64(x))
	case int32:
		return starlark.MakeInt64(int64(x))
	case int64:
		return starlark.MakeInt64(x)
	case uint:
		return starlark.MakeUint64(uint64(x))
	case uint8:
		return starlark.MakeUint64(uint64(x))
	case uint16:
		return starlark.MakeUint64(uint64(x))
	case uint32:
		return starlark.MakeUint64(uint64(x))
	case uint64:
		return starlark.MakeUint64(x)
	case float32:
		return starlark.Float(float64(x))
	case float64:
		return starlark.Float(x)
	case []any:
		items := make([]starlark.Value, len(x))
		for i, item := range x {
			items[i] = toStarlark(item)
		}
		return starlark.NewList(items)
	case map[string]any:
		return mapValue{m: x}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]starlark.Value, rv.Len())
		for i := range items {
			items[i] = toStarlark(rv.Index(i).Interface())
		}
		return starlark.NewList(items)
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]any, rv.Len())
			for _, k := range rv.MapKeys() {
				m[k.String()] = rv.MapIndex(k).Interface()
			}
			return mapValue{m: m}
		}
	}
	return starlark.String(fmt.Sprint(v))
}

// fromStarlark converts an evaluation result back to a native Go value.
func fromStarlark(v starlark.Value) any {
	switch x := v.(type) {
	case nil, starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(x)
	case starlark.String:
		return string(x)
	case starlark.Bytes:
		return string(x)
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i
		}
		// Integers beyond 64 bits keep their text form.
		return x.String()
	case starlark.Float:
		return float64(x)
	case *starlark.List:
		items := make([]any, x.Len())
		for i := range items {
			items[i] = fromStarlark(x.Index(i))
		}
		return items
	case starlark.Tuple:
		items := make([]any, len(x))
		for i, item := range x {
			items[i] = fromStarlark(item)
		}
		return items
	case *starlark.Dict:
		m := make(map[string]any, x.Len())
		for _, item := range x.Items() {
			if key, ok := item[0].(starlark.String); ok {
				m[string(key)] = fromStarlark(item[1])
			} else {
				m[item[0].String()] = fromStarlark(item[1])
			}
		}
		return m
	case mapValue:
		return x.m
	}
	return v.String()
}
