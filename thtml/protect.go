package thtml

import (
	"strconv"
	"strings"
)

// Placeholder tokens are a counter wrapped in control characters, which can
// not appear in valid template text.
const (
	phOpen  = "\x01"
	phClose = "\x02"
)

// A protector masks the spans of a template that must survive tokenization
// verbatim: escaped characters, script/style blocks, code and diagram
// bodies, link/meta tags, expression spans and quoted attribute values.
// Each masked span becomes an opaque token recorded in the table, and the
// tokenizer then only ever sees '<' and '>' that really delimit tags.
//
// A protector lives for one parse operation. Nodes are built with fully
// decoded text, so the table is discarded once the tree exists.
type protector struct {
	seq   int
	table map[string]string
}

func newProtector() *protector {
	return &protector{table: make(map[string]string)}
}

// put records original and returns the token that replaces it.
func (p *protector) put(original string) string {
	p.seq++
	tok := phOpen + strconv.Itoa(p.seq) + phClose
	p.table[tok] = original
	return tok
}

// mask applies all protection passes in order. The order matters: escapes
// must be hidden before quote scanning, raw blocks before expression spans,
// and expression spans before attribute values so that an expression inside
// a quoted value nests correctly.
func (p *protector) mask(src string) string {
	src = p.maskEscapes(src)
	src = p.maskBlock(src, "<script", "</script>", true)
	src = p.maskBlock(src, "<style", "</style>", true)
	src = p.maskBlock(src, "<t-code", "</t-code>", false)
	src = p.maskBlock(src, "<t-diagram", "</t-diagram>", false)
	src = p.maskWholeTag(src, "<link")
	src = p.maskWholeTag(src, "<meta")
	src = p.maskExpressions(src)
	src = p.maskAttrValues(src)
	return src
}

// maskEscapes replaces every backslash-escaped character with a token that
// restores to the bare character. A trailing lone backslash is left alone.
func (p *protector) maskEscapes(src string) string {
	if !strings.Contains(src, "\\") {
		return src
	}
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); i++ {
		if src[i] == '\\' && i+1 < len(src) {
			b.WriteString(p.put(string(src[i+1])))
			i++
			continue
		}
		b.WriteByte(src[i])
	}
	return b.String()
}

// findTag returns the index of the next tag whose name is exactly the one
// in openPrefix, so "<meta" does not match "<metadata>". Returns -1 when
// there is none.
func findTag(src, openPrefix string) int {
	from := 0
	for {
		i := strings.Index(src[from:], openPrefix)
		if i < 0 {
			return -1
		}
		i += from
		next := i + len(openPrefix)
		if next >= len(src) {
			return -1
		}
		switch src[next] {
		case ' ', '\t', '\n', '\r', '>', '/':
			return i
		}
		from = next
	}
}

// tagEnd returns the index just past the '>' closing the tag that starts at
// start, skipping quoted spans, or -1 if the tag never closes.
func tagEnd(src string, start int) int {
	for i := start; i < len(src); i++ {
		switch src[i] {
		case '>':
			return i + 1
		case '"', '\'':
			quote := src[i]
			j := strings.IndexByte(src[i+1:], quote)
			if j < 0 {
				return -1
			}
			i += j + 1
		}
	}
	return -1
}

// maskBlock hides spans delimited by an opening tag with the given prefix
// and a literal closing tag. With wholeBlock the tags are masked together
// with the body (script and style are reproduced verbatim at output); with
// body-only masking the tags remain visible so the element still parses and
// the body becomes a single protected text child.
func (p *protector) maskBlock(src, openPrefix, closeTag string, wholeBlock bool) string {
	var b strings.Builder
	for {
		i := findTag(src, openPrefix)
		if i < 0 {
			break
		}
		open := tagEnd(src, i)
		if open < 0 {
			break
		}
		j := strings.Index(src[open:], closeTag)
		if j < 0 {
			break
		}
		bodyEnd := open + j
		blockEnd := bodyEnd + len(closeTag)
		b.WriteString(src[:i])
		if wholeBlock {
			b.WriteString(p.put(src[i:blockEnd]))
		} else {
			b.WriteString(src[i:open])
			if bodyEnd > open {
				b.WriteString(p.put(src[open:bodyEnd]))
			}
			b.WriteString(src[bodyEnd:blockEnd])
		}
		src = src[blockEnd:]
	}
	b.WriteString(src)
	return b.String()
}

// maskWholeTag hides single tags such as <link ...> and <meta ...> entirely.
func (p *protector) maskWholeTag(src, openPrefix string) string {
	var b strings.Builder
	for {
		i := findTag(src, openPrefix)
		if i < 0 {
			break
		}
		end := tagEnd(src, i)
		if end < 0 {
			break
		}
		b.WriteString(src[:i])
		b.WriteString(p.put(src[i:end]))
		src = src[end:]
	}
	b.WriteString(src)
	return b.String()
}

// maskExpressions hides {{ ... }} spans. An unterminated opener is left as
// ordinary text.
func (p *protector) maskExpressions(src string) string {
	var b strings.Builder
	for {
		i := strings.Index(src, "{{")
		if i < 0 {
			break
		}
		j := strings.Index(src[i+2:], "}}")
		if j < 0 {
			break
		}
		end := i + 2 + j + 2
		b.WriteString(src[:i])
		b.WriteString(p.put(src[i:end]))
		src = src[end:]
	}
	b.WriteString(src)
	return b.String()
}

// maskAttrValues hides quoted spans, but only inside tags, so quotes and
// apostrophes in running text stay untouched. The masked value keeps its
// quotes; the attribute parser strips them after decoding.
func (p *protector) maskAttrValues(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c != startTagChar {
			b.WriteByte(c)
			continue
		}
		// Inside a tag until the closing '>'.
		j := i
		for j < len(src) && src[j] != endTagChar {
			if src[j] == '"' || src[j] == '\'' {
				quote := src[j]
				k := strings.IndexByte(src[j+1:], quote)
				if k < 0 {
					// Unbalanced quote, give up on this tag.
					break
				}
				b.WriteString(src[i:j])
				b.WriteString(p.put(src[j : j+k+2]))
				j += k + 2
				i = j
				continue
			}
			j++
		}
		b.WriteString(src[i:j])
		i = j - 1
		if j >= len(src) {
			break
		}
	}
	return b.String()
}

// decode restores every placeholder token in s, looping until none remain so
// that nested maskings resolve fully. Text without tokens is returned
// unchanged, which makes decoding idempotent.
func (p *protector) decode(s string) string {
	for strings.Contains(s, phOpen) {
		var b strings.Builder
		b.Grow(len(s))
		rest := s
		replaced := false
		for {
			i := strings.Index(rest, phOpen)
			if i < 0 {
				b.WriteString(rest)
				break
			}
			j := strings.Index(rest[i:], phClose)
			if j < 0 {
				b.WriteString(rest)
				break
			}
			tok := rest[i : i+j+1]
			original, ok := p.table[tok]
			b.WriteString(rest[:i])
			if ok {
				b.WriteString(original)
				replaced = true
			}
			rest = rest[i+j+1:]
		}
		s = b.String()
		if !replaced {
			break
		}
	}
	return s
}
