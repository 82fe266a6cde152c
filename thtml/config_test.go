package thtml

import (
	"reflect"
	"testing"
)

func TestSplitFrontMatter(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantBody string
		wantData map[string]any
		wantErr  bool
	}{
		{
			name:     "no front matter",
			src:      "<p>x</p>",
			wantBody: "<p>x</p>",
		},
		{
			name: "data block",
			src: `---
data:
  title: Hello
  count: 3
---
<h1>{{ title }}</h1>`,
			wantBody: "<h1>{{ title }}</h1>",
			wantData: map[string]any{"title": "Hello", "count": 3},
		},
		{
			name: "configuration without data",
			src: `---
thtml:
  codeStyle: monokai
---
<p>x</p>`,
			wantBody: "<p>x</p>",
		},
		{
			name:    "unclosed front matter",
			src:     "---\ntitle: x\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			src:     "---\n\t:\tbroken\n---\n<p>x</p>",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, body, err := splitFrontMatter([]byte(tt.src))
			if (err != nil) != tt.wantErr {
				t.Errorf("splitFrontMatter() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if string(body) != tt.wantBody {
				t.Errorf("splitFrontMatter() body = %q, want %q", body, tt.wantBody)
			}
			var data map[string]any
			if fm != nil && len(fm.data) > 0 {
				data = fm.data
			}
			if !reflect.DeepEqual(data, tt.wantData) {
				t.Errorf("splitFrontMatter() data = %v, want %v", data, tt.wantData)
			}
		})
	}
}

func TestCodeStyle(t *testing.T) {
	fm, _, err := splitFrontMatter([]byte("---\nthtml:\n  codeStyle: monokai\n---\n<p>x</p>"))
	if err != nil {
		t.Fatalf("splitFrontMatter() error = %v", err)
	}
	if got := fm.codeStyle(); got != "monokai" {
		t.Errorf("codeStyle() = %q, want %q", got, "monokai")
	}

	fm, _, err = splitFrontMatter([]byte("---\ndata:\n  a: 1\n---\n<p>x</p>"))
	if err != nil {
		t.Fatalf("splitFrontMatter() error = %v", err)
	}
	if got := fm.codeStyle(); got != defaultCodeStyle {
		t.Errorf("codeStyle() = %q, want default %q", got, defaultCodeStyle)
	}

	var none *frontMatter
	if got := none.codeStyle(); got != defaultCodeStyle {
		t.Errorf("codeStyle() on nil = %q, want default %q", got, defaultCodeStyle)
	}
}
