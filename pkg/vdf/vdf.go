// Package vdf parses Valve's KeyValues text format, the brace-delimited
// quoted key/value syntax used by Steam configuration files such as
// libraryfolders.vdf. The result is a nested map whose values are either
// strings or further nested maps.
package vdf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// Document is a parsed VDF object. Values are either string or Document.
type Document map[string]interface{}

// Child returns the nested Document stored under key, if present.
func (d Document) Child(key string) (Document, bool) {
	sub, ok := d[key].(Document)
	return sub, ok
}

// String returns the string value stored under key, if present.
func (d Document) String(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// ParseError reports a malformed input character or premature end of
// input, with the position of the offending character (1-based line,
// 0-based column).
type ParseError struct {
	Line    int
	Col     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d col %d: %s", e.Line, e.Col, e.Message)
}

// parser states
const (
	stateWaitKey = iota
	stateReadKey
	stateWaitValue
	stateReadValue
)

type parser struct {
	r    *bufio.Reader
	line int
	col  int
}

// Parse reads a complete VDF document from r.
func Parse(r io.Reader) (Document, error) {
	p := &parser{
		r:    bufio.NewReader(r),
		line: 1,
		col:  -1,
	}
	return p.parse(false)
}

// ParseString parses a complete VDF document from a string.
func ParseString(s string) (Document, error) {
	return Parse(strings.NewReader(s))
}

func (p *parser) errorf(format string, args ...interface{}) *ParseError {
	return &ParseError{
		Line:    p.line,
		Col:     p.col,
		Message: fmt.Sprintf(format, args...),
	}
}

// next returns the next rune, tracking line and column.
func (p *parser) next() (rune, error) {
	c, _, err := p.r.ReadRune()
	if err != nil {
		return 0, err
	}
	if c == '\n' {
		p.line++
		p.col = 0
	} else {
		p.col++
	}
	return c, nil
}

// parse consumes key/value pairs until end of input, or until a closing
// brace when nested.
func (p *parser) parse(nested bool) (Document, error) {
	doc := Document{}
	state := stateWaitKey
	var token strings.Builder
	var key string
	escaped := false

	for {
		c, err := p.next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			if nested {
				return nil, p.errorf("end of file inside braces")
			}
			if state != stateWaitKey {
				return nil, p.errorf("end of file inside key/value pair")
			}
			return doc, nil
		}

		switch state {
		case stateWaitKey:
			switch {
			case unicode.IsSpace(c):
			case c == '"':
				token.Reset()
				token.WriteRune(c)
				escaped = false
				state = stateReadKey
			case c == '}' && nested:
				return doc, nil
			default:
				return nil, p.errorf("expected space or '\"', not %q", c)
			}

		case stateReadKey:
			token.WriteRune(c)
			if done := scanQuoted(c, &escaped); done {
				key, err = p.decode(token.String())
				if err != nil {
					return nil, err
				}
				state = stateWaitValue
			}

		case stateWaitValue:
			switch {
			case unicode.IsSpace(c):
			case c == '"':
				token.Reset()
				token.WriteRune(c)
				escaped = false
				state = stateReadValue
			case c == '{':
				sub, err := p.parse(true)
				if err != nil {
					return nil, err
				}
				doc[key] = sub
				state = stateWaitKey
			default:
				return nil, p.errorf("expected space or '\"', not %q", c)
			}

		case stateReadValue:
			token.WriteRune(c)
			if done := scanQuoted(c, &escaped); done {
				value, err := p.decode(token.String())
				if err != nil {
					return nil, err
				}
				doc[key] = value
				state = stateWaitKey
			}
		}
	}
}

// scanQuoted tracks backslash escapes inside a quoted string and reports
// whether c terminates the string.
func scanQuoted(c rune, escaped *bool) bool {
	if *escaped {
		*escaped = false
		return false
	}
	if c == '\\' {
		*escaped = true
		return false
	}
	return c == '"'
}

// decode unquotes a raw quoted token, decoding backslash escapes the way
// a string literal would.
func (p *parser) decode(raw string) (string, error) {
	s, err := strconv.Unquote(raw)
	if err != nil {
		return "", p.errorf("bad string: %s", raw)
	}
	return s, nil
}
