package reader

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var errNotStringList = errors.New("not a list of string literals")

// ParseListLiteral decodes a Python list of string literals such as
// ['How was the call?', "What's the jitter?"]. Any other element type, or
// malformed syntax, is an error.
func ParseListLiteral(s string) ([]string, error) {
	p := listParser{src: strings.TrimSpace(s)}
	return p.parse()
}

type listParser struct {
	src string
	pos int
}

func (p *listParser) parse() ([]string, error) {
	if !p.consume('[') {
		return nil, errNotStringList
	}
	items := []string{}
	p.skipSpace()
	if p.consume(']') {
		return items, p.end()
	}
	for {
		p.skipSpace()
		item, err := p.str()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		p.skipSpace()
		if p.consume(',') {
			p.skipSpace()
			if p.consume(']') {
				return items, p.end()
			}
			continue
		}
		if p.consume(']') {
			return items, p.end()
		}
		return nil, fmt.Errorf("%w: unexpected input at offset %d", errNotStringList, p.pos)
	}
}

// str reads one quoted literal, concatenating adjacent literals like Python does.
func (p *listParser) str() (string, error) {
	var sb strings.Builder
	n := 0
	for p.pos < len(p.src) {
		q := p.src[p.pos]
		if q != '\'' && q != '"' {
			break
		}
		p.pos++
		if err := p.body(q, &sb); err != nil {
			return "", err
		}
		n++
		p.skipSpace()
	}
	if n == 0 {
		return "", fmt.Errorf("%w: expected string at offset %d", errNotStringList, p.pos)
	}
	return sb.String(), nil
}

func (p *listParser) body(quote byte, sb *strings.Builder) error {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return nil
		case c == '\\':
			if p.pos+1 >= len(p.src) {
				return fmt.Errorf("%w: dangling escape", errNotStringList)
			}
			p.pos += 2
			switch e := p.src[p.pos-1]; e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '\'', '"':
				sb.WriteByte(e)
			default:
				sb.WriteByte('\\')
				sb.WriteByte(e)
			}
		case c == '\n':
			return fmt.Errorf("%w: newline in string", errNotStringList)
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			sb.WriteRune(r)
			p.pos += size
		}
	}
	return fmt.Errorf("%w: unterminated string", errNotStringList)
}

func (p *listParser) skipSpace() {
	for p.pos < len(p.src) && strings.ContainsRune(" \t\r\n", rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *listParser) consume(c byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *listParser) end() error {
	p.skipSpace()
	if p.pos != len(p.src) {
		return fmt.Errorf("%w: trailing input", errNotStringList)
	}
	return nil
}
