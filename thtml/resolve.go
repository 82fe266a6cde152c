package thtml

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/hesusruiz/thtml/sliceedit"
)

const (
	exprOpen  = "{{"
	exprClose = "}}"
	litOpen   = "{!{"
	litClose  = "}!}"
)

// resolveText substitutes every {{ expr }} span of s with the evaluated
// expression text, delegating evaluation to the configured evaluator. A
// span without a closing marker is left untouched. Substituted values are
// angle-bracket escaped unless the scope is inside a t-html subtree.
func (r *Renderer) resolveText(ctx context.Context, s string, sc scope, n *Node) (string, error) {
	if !strings.Contains(s, exprOpen) {
		return s, nil
	}

	buf := sliceedit.NewBuffer([]byte(s))
	pos := 0
	for {
		i := strings.Index(s[pos:], exprOpen)
		if i < 0 {
			break
		}
		start := pos + i
		j := strings.Index(s[start+len(exprOpen):], exprClose)
		if j < 0 {
			break
		}
		end := start + len(exprOpen) + j + len(exprClose)

		expr := strings.TrimSpace(s[start+len(exprOpen) : end-len(exprClose)])
		v, err := r.eval.Evaluate(ctx, sc.vars, expr)
		if err != nil {
			return "", wrapError(ErrEvaluation, n, sc.file, fmt.Errorf("expression %q: %w", expr, err))
		}
		buf.Replace(start, end, stringify(v, sc.raw))
		pos = end
	}
	return buf.String(), nil
}

// stringify renders an evaluated value as output text. Mappings, sequences
// and structs render as canonical JSON so structured values stay readable,
// nil renders empty, and everything else uses its natural string form.
// Unless raw, angle brackets are escaped so a value cannot open an element
// in the output.
func stringify(v any, raw bool) string {
	var s string
	switch x := v.(type) {
	case nil:
		s = ""
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		switch reflect.ValueOf(v).Kind() {
		case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
			enc, err := json.Marshal(v)
			if err != nil {
				s = fmt.Sprint(v)
			} else {
				s = string(enc)
			}
		default:
			s = fmt.Sprint(v)
		}
	}
	if raw {
		return s
	}
	return escapeAngles(s)
}

func escapeAngles(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}
	s = strings.ReplaceAll(s, "<", "&lt;")
	return strings.ReplaceAll(s, ">", "&gt;")
}

// restoreLiteralBraces rewrites the {!{ and }!} escape sequences of the
// fully rendered document to literal brace pairs. It runs once after the
// whole render, so escaped braces survive resolution anywhere in the tree.
func restoreLiteralBraces(s string) string {
	if !strings.Contains(s, litOpen) && !strings.Contains(s, litClose) {
		return s
	}
	buf := sliceedit.NewBuffer([]byte(s))
	buf.ReplaceAllString(litOpen, exprOpen)
	buf.ReplaceAllString(litClose, exprClose)
	return buf.String()
}
