package llm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// parseLiteral reads a single object/array literal in the loose dialect the
// upstream model emits: JSON plus Python-isms (single quotes, tuples,
// True/False/None, adjacent string concatenation) and trailing commas.
// Stray closing braces after the value are tolerated; they are left over by
// the \boxed{...} wrapper.
func parseLiteral(src string) (any, error) {
	p := &literalParser{src: src}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	for p.pos < len(p.src) && p.src[p.pos] == '}' {
		p.pos++
		p.skipSpace()
	}
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected trailing content %q", snippet(p.src[p.pos:]))
	}
	return v, nil
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *literalParser) value() (any, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end of input")
	}

	switch c := p.src[p.pos]; {
	case c == '{':
		return p.object()
	case c == '[':
		return p.sequence(']')
	case c == '(':
		return p.sequence(')')
	case c == '\'' || c == '"':
		return p.quotedRun()
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		return p.number()
	case isIdentStart(c):
		return p.keyword()
	default:
		return nil, p.errorf("unexpected character %q", c)
	}
}

func (p *literalParser) object() (map[string]any, error) {
	p.pos++ // {
	obj := make(map[string]any)
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated object")
		}
		if p.src[p.pos] == '}' {
			p.pos++
			return obj, nil
		}

		key, err := p.key()
		if err != nil {
			return nil, err
		}

		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ':' {
			return nil, p.errorf("expected ':' after key %q", key)
		}
		p.pos++

		val, err := p.value()
		if err != nil {
			return nil, err
		}
		obj[key] = val

		if done, err := p.separator('}'); err != nil {
			return nil, err
		} else if done {
			return obj, nil
		}
	}
}

// key accepts quoted strings and bare identifiers
func (p *literalParser) key() (string, error) {
	c := p.src[p.pos]
	if c == '\'' || c == '"' {
		return p.quotedRun()
	}
	if isIdentStart(c) {
		start := p.pos
		for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
			p.pos++
		}
		return p.src[start:p.pos], nil
	}
	return "", p.errorf("expected object key, got %q", c)
}

func (p *literalParser) sequence(closer byte) ([]any, error) {
	p.pos++ // [ or (
	items := []any{}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated sequence")
		}
		if p.src[p.pos] == closer {
			p.pos++
			return items, nil
		}

		val, err := p.value()
		if err != nil {
			return nil, err
		}
		items = append(items, val)

		if done, err := p.separator(closer); err != nil {
			return nil, err
		} else if done {
			return items, nil
		}
	}
}

// separator consumes ',' or the closer. A comma directly before the closer
// is accepted.
func (p *literalParser) separator(closer byte) (bool, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return false, p.errorf("expected ',' or %q", closer)
	}
	switch p.src[p.pos] {
	case ',':
		p.pos++
		p.skipSpace()
		if p.pos < len(p.src) && p.src[p.pos] == closer {
			p.pos++
			return true, nil
		}
		return false, nil
	case closer:
		p.pos++
		return true, nil
	default:
		return false, p.errorf("expected ',' or %q, got %q", closer, p.src[p.pos])
	}
}

// quotedRun reads one quoted string plus any adjacent quoted strings
func (p *literalParser) quotedRun() (string, error) {
	var b strings.Builder
	for {
		s, err := p.quoted()
		if err != nil {
			return "", err
		}
		b.WriteString(s)

		p.skipSpace()
		if p.pos >= len(p.src) || (p.src[p.pos] != '\'' && p.src[p.pos] != '"') {
			return b.String(), nil
		}
	}
}

func (p *literalParser) quoted() (string, error) {
	quote := p.src[p.pos]
	triple := strings.HasPrefix(p.src[p.pos:], strings.Repeat(string(quote), 3))
	if triple {
		p.pos += 3
	} else {
		p.pos++
	}

	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote && !triple:
			p.pos++
			return b.String(), nil
		case c == quote && strings.HasPrefix(p.src[p.pos:], strings.Repeat(string(quote), 3)):
			p.pos += 3
			return b.String(), nil
		case c == '\\':
			if err := p.escape(&b); err != nil {
				return "", err
			}
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *literalParser) escape(b *strings.Builder) error {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return p.errorf("dangling escape")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case '\\', '\'', '"', '/':
		b.WriteByte(c)
	case '\n':
		// line continuation
	case 'u', 'x':
		width := 4
		if c == 'x' {
			width = 2
		}
		if p.pos+width > len(p.src) {
			return p.errorf("truncated \\%c escape", c)
		}
		n, err := strconv.ParseUint(p.src[p.pos:p.pos+width], 16, 32)
		if err != nil {
			return p.errorf("invalid \\%c escape", c)
		}
		p.pos += width
		r := rune(n)
		if !utf8.ValidRune(r) {
			r = utf8.RuneError
		}
		b.WriteRune(r)
	default:
		// unknown escapes are kept verbatim
		b.WriteByte('\\')
		b.WriteByte(c)
	}
	return nil
}

func (p *literalParser) number() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) && strings.IndexByte("+-.eE_0123456789", p.src[p.pos]) >= 0 {
		p.pos++
	}
	text := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, p.errorf("invalid number %q", text)
	}
	return n, nil
}

func (p *literalParser) keyword() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	switch word := p.src[start:p.pos]; word {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	case "None", "null":
		return nil, nil
	default:
		p.pos = start
		return nil, p.errorf("unexpected identifier %q", word)
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func snippet(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
