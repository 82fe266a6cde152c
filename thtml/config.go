package thtml

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/hesusruiz/vcutils/yaml"
	yamlv3 "gopkg.in/yaml.v3"
)

const defaultCodeStyle = "github"

// frontMatter is the optional YAML block a template may carry at the very
// top, delimited by "---" lines. It configures the engine for that
// template and may seed render data under the "data" key.
type frontMatter struct {
	cfg  *yaml.YAML
	data map[string]any
}

// codeStyle returns the chroma style used for t-code highlighting.
func (f *frontMatter) codeStyle() string {
	if f == nil || f.cfg == nil {
		return defaultCodeStyle
	}
	return f.cfg.String("thtml.codeStyle", defaultCodeStyle)
}

// splitFrontMatter extracts the front matter from src, returning the
// parsed block and the remaining template body. A source that does not
// start with a "---" line is returned unchanged. Front matter is accepted
// only at the very beginning of the file and must be a YAML mapping.
func splitFrontMatter(src []byte) (*frontMatter, []byte, error) {
	delim := []byte("---")
	if !bytes.HasPrefix(src, delim) {
		return nil, src, nil
	}

	var block strings.Builder
	_, rest, _ := bytes.Cut(src, []byte("\n"))
	for {
		line, after, more := bytes.Cut(rest, []byte("\n"))
		if bytes.HasPrefix(line, delim) {
			rest = after
			break
		}
		if !more {
			return nil, src, fmt.Errorf("end of file reached but front matter was not closed")
		}
		block.Write(line)
		block.WriteByte('\n')
		rest = after
	}

	var raw map[string]any
	if err := yamlv3.Unmarshal([]byte(block.String()), &raw); err != nil {
		return nil, src, fmt.Errorf("malformed front matter: %w", err)
	}
	fm := &frontMatter{cfg: yaml.New(raw)}
	if d, ok := raw["data"].(map[string]any); ok {
		fm.data = d
	}
	return fm, rest, nil
}
