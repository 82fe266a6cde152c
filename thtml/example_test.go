package thtml_test

import (
	"context"
	"fmt"

	"github.com/hesusruiz/thtml/starval"
	"github.com/hesusruiz/thtml/thtml"
)

func ExampleRenderer_RenderString() {
	r := thtml.New(starval.New(), nil, nil)
	out, err := r.RenderString(context.Background(),
		`<ul><t-for on="fruit of fruits"><li>{{ fruit }}</li></t-for></ul>`,
		".",
		map[string]any{"fruits": []any{"apple", "pear"}},
		thtml.Options{})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(out)
	// Output: <ul><!-- t-for --><li>apple</li><li>pear</li><!-- /t-for --></ul>
}

func ExampleRenderer_RenderString_conditional() {
	r := thtml.New(starval.New(), nil, nil)
	out, err := r.RenderString(context.Background(),
		`<t-if on="admin"><a>Settings</a></t-if><t-else><a>Login</a></t-else>`,
		".",
		map[string]any{"admin": false},
		thtml.Options{})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(out)
	// Output: <!-- t-if --><!-- t-else --><a>Login</a><!-- /t-else -->
}

func ExampleRenderer_RenderString_tree() {
	r := thtml.New(starval.New(), nil, nil)
	out, err := r.RenderString(context.Background(),
		`<t-tree on="pages as p"><li>{{ p.title }}<t-children/></li></t-tree>`,
		".",
		map[string]any{"pages": []any{
			map[string]any{"title": "Home", "children": []any{
				map[string]any{"title": "About"},
			}},
		}},
		thtml.Options{})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(out)
	// Output: <!-- t-tree --><li>Home<li>About</li></li><!-- /t-tree -->
}
