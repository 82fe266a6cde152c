package thtml

import (
	"strconv"
	"strings"
)

// An EntityType is the type of an Entity.
type EntityType uint32

const (
	// ErrorEntity means that an error occurred during tokenization.
	ErrorEntity EntityType = iota
	// TextEntity means a run of text between tags.
	TextEntity
	// An OpenEntity looks like <a> or <t-if on="x">.
	OpenEntity
	// A CloseEntity looks like </a>.
	CloseEntity
	// A CommentEntity looks like <!--x-->.
	CommentEntity
	// A CDATAEntity looks like <!CDATA[[x]]>.
	CDATAEntity
	// A PIEntity is a processing instruction like <?xml ...?>.
	PIEntity
	// A DoctypeEntity looks like <!doctype html>.
	DoctypeEntity
)

// String returns a string representation of the EntityType.
func (t EntityType) String() string {
	switch t {
	case ErrorEntity:
		return "Error"
	case TextEntity:
		return "Text"
	case OpenEntity:
		return "Open"
	case CloseEntity:
		return "Close"
	case CommentEntity:
		return "Comment"
	case CDATAEntity:
		return "CDATA"
	case PIEntity:
		return "PI"
	case DoctypeEntity:
		return "Doctype"
	}
	return "Invalid(" + strconv.Itoa(int(t)) + ")"
}

// An Entity is one raw markup token: a tag (open or close) or a run of
// non-tag text. Entities exist only during tokenization; the tree builder
// consumes them to produce Nodes.
type Entity struct {
	Type EntityType
	Text string
	Line int
}

const startTagChar = '<'
const endTagChar = '>'

// classifyTag returns the entity type of a tag slice, decided by its
// leading characters.
func classifyTag(tag string) EntityType {
	switch {
	case strings.HasPrefix(tag, "<!--"):
		return CommentEntity
	case strings.HasPrefix(tag, "<!CDATA[["):
		return CDATAEntity
	case strings.HasPrefix(tag, "<?"):
		return PIEntity
	case len(tag) >= 10 && strings.EqualFold(tag[:10], "<!doctype "):
		return DoctypeEntity
	case strings.HasPrefix(tag, "</"):
		return CloseEntity
	default:
		return OpenEntity
	}
}

// A tokenizer scans masked template text left to right producing Entities.
// The scan is a trivial '<'/'>' matcher: the placeholder protector has
// already hidden every '<', '>' and quote that does not delimit a tag.
type tokenizer struct {
	src  string
	pos  int
	line int
}

func newTokenizer(src string) *tokenizer {
	return &tokenizer{src: src, line: 1}
}

// next returns the next Entity, or an ErrorEntity with empty text at end of
// input. A '<' with a non-empty buffer flushes the buffer as text first; a
// '<' with an empty buffer starts a tag that runs to the next '>'. A tag
// left unterminated at end of input is returned as text.
func (z *tokenizer) next() Entity {
	if z.pos >= len(z.src) {
		return Entity{Type: ErrorEntity, Line: z.line}
	}

	start := z.pos
	startLine := z.line

	if z.src[z.pos] != startTagChar {
		// Accumulate a text run up to the next tag boundary.
		for z.pos < len(z.src) && z.src[z.pos] != startTagChar {
			if z.src[z.pos] == '\n' {
				z.line++
			}
			z.pos++
		}
		return Entity{Type: TextEntity, Text: z.src[start:z.pos], Line: startLine}
	}

	// A tag: consume until the terminating '>'.
	z.pos++
	for z.pos < len(z.src) && z.src[z.pos] != endTagChar {
		if z.src[z.pos] == '\n' {
			z.line++
		}
		z.pos++
	}
	if z.pos >= len(z.src) {
		// Unterminated tag, treat the rest as text.
		return Entity{Type: TextEntity, Text: z.src[start:], Line: startLine}
	}
	z.pos++
	tag := z.src[start:z.pos]
	return Entity{Type: classifyTag(tag), Text: tag, Line: startLine}
}

// tokenize runs the scanner over the whole input.
func tokenize(src string) []Entity {
	z := newTokenizer(src)
	var entities []Entity
	for {
		e := z.next()
		if e.Type == ErrorEntity {
			return entities
		}
		entities = append(entities, e)
	}
}
