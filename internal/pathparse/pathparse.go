// Package pathparse splits path text into accessor segments.
//
// Grammar:
//
//	path       = head { "." member | ".?" member | "[" expr "]" | ".{" assigns "}" }
//	head       = "new" name "(" [ args ] ")" | member | "[" expr "]"
//	member     = ident [ "(" [ args ] ")" ]
//	assigns    = path "=" expr { "," path "=" expr }
//
// Argument, index and assignment value expressions are handed to a
// StatementCompiler; the parser only finds their bounds.
package pathparse

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hanpama/pathway/internal/accessor"
)

// StatementCompiler compiles an embedded expression. offset is the byte
// position of expr in the full path text.
type StatementCompiler func(expr string, offset int) (accessor.Statement, error)

// SyntaxError reports malformed path text.
type SyntaxError struct {
	Text string
	Pos  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d in %q: %s", e.Pos, e.Text, e.Msg)
}

type parser struct {
	text    string
	pos     int
	base    int
	compile StatementCompiler
}

// Parse parses text into segments.
func Parse(text string, compile StatementCompiler) ([]accessor.Segment, error) {
	return parse(text, 0, compile)
}

func parse(text string, base int, compile StatementCompiler) ([]accessor.Segment, error) {
	p := &parser{text: text, base: base, compile: compile}
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("empty path")
	}
	segs, err := p.path()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected %q", p.text[p.pos:])
	}
	return segs, nil
}

func (p *parser) eof() bool { return p.pos >= len(p.text) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.text[p.pos]
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Text: p.text, Pos: p.base + p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.text[p.pos] == ' ' || p.text[p.pos] == '\t' || p.text[p.pos] == '\n' || p.text[p.pos] == '\r') {
		p.pos++
	}
}

func (p *parser) path() ([]accessor.Segment, error) {
	var segs []accessor.Segment
	head, err := p.head()
	if err != nil {
		return nil, err
	}
	segs = append(segs, head)

	for {
		p.skipSpace()
		switch {
		case strings.HasPrefix(p.text[p.pos:], ".?"):
			p.pos += 2
			seg, err := p.member()
			if err != nil {
				return nil, err
			}
			seg.NullSafe = true
			segs = append(segs, seg)
		case strings.HasPrefix(p.text[p.pos:], ".{"):
			seg, err := p.with()
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
		case p.peek() == '.':
			p.pos++
			seg, err := p.member()
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
		case p.peek() == '[':
			seg, err := p.index()
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
		default:
			return segs, nil
		}
	}
}

func (p *parser) head() (accessor.Segment, error) {
	if p.peek() == '[' {
		return p.index()
	}
	if strings.HasPrefix(p.text[p.pos:], "new") {
		rest := p.text[p.pos+3:]
		if r, _ := utf8.DecodeRuneInString(rest); r == ' ' || r == '\t' {
			return p.constructor()
		}
	}
	return p.member()
}

func (p *parser) ident() (string, error) {
	p.skipSpace()
	start := p.pos
	for !p.eof() {
		r, size := utf8.DecodeRuneInString(p.text[p.pos:])
		if !(r == '_' || r == '$' || unicode.IsLetter(r) || (p.pos > start && unicode.IsDigit(r))) {
			break
		}
		p.pos += size
	}
	if p.pos == start {
		if p.eof() {
			return "", p.errorf("expected identifier")
		}
		return "", p.errorf("expected identifier, found %q", p.text[p.pos:p.pos+1])
	}
	return p.text[start:p.pos], nil
}

func (p *parser) member() (accessor.Segment, error) {
	p.skipSpace()
	start := p.pos
	name, err := p.ident()
	if err != nil {
		return accessor.Segment{}, err
	}
	seg := accessor.Segment{Kind: accessor.KindProperty, Name: name, Start: p.base + start, End: p.base + p.pos}
	p.skipSpace()
	if p.peek() == '(' {
		args, err := p.args()
		if err != nil {
			return accessor.Segment{}, err
		}
		seg.Kind = accessor.KindMethod
		seg.Args = args
		seg.End = p.base + p.pos
	}
	return seg, nil
}

func (p *parser) constructor() (accessor.Segment, error) {
	start := p.pos
	p.pos += len("new")
	name, err := p.ident()
	if err != nil {
		return accessor.Segment{}, err
	}
	for p.peek() == '.' {
		p.pos++
		part, err := p.ident()
		if err != nil {
			return accessor.Segment{}, err
		}
		name += "." + part
	}
	p.skipSpace()
	if p.peek() != '(' {
		return accessor.Segment{}, p.errorf("expected ( after new %s", name)
	}
	args, err := p.args()
	if err != nil {
		return accessor.Segment{}, err
	}
	return accessor.Segment{Kind: accessor.KindConstructor, Name: name, Args: args, Start: p.base + start, End: p.base + p.pos}, nil
}

func (p *parser) args() ([]accessor.Statement, error) {
	open := p.pos
	end, err := p.closing(open, '(', ')')
	if err != nil {
		return nil, err
	}
	p.pos = end + 1
	inner := p.text[open+1 : end]
	if strings.TrimSpace(inner) == "" {
		return nil, nil
	}
	var out []accessor.Statement
	for _, part := range splitTop(inner, ',') {
		expr := p.text[open+1+part.start : open+1+part.end]
		st, err := p.statement(expr, open+1+part.start)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (p *parser) index() (accessor.Segment, error) {
	open := p.pos
	end, err := p.closing(open, '[', ']')
	if err != nil {
		return accessor.Segment{}, err
	}
	p.pos = end + 1
	st, err := p.statement(p.text[open+1:end], open+1)
	if err != nil {
		return accessor.Segment{}, err
	}
	return accessor.Segment{Kind: accessor.KindIndex, Index: st, Start: p.base + open, End: p.base + p.pos}, nil
}

func (p *parser) with() (accessor.Segment, error) {
	start := p.pos
	open := p.pos + 1
	end, err := p.closing(open, '{', '}')
	if err != nil {
		return accessor.Segment{}, err
	}
	p.pos = end + 1
	seg := accessor.Segment{Kind: accessor.KindWith, Start: p.base + start}
	inner := p.text[open+1 : end]
	for _, part := range splitTop(inner, ',') {
		text := inner[part.start:part.end]
		if strings.TrimSpace(text) == "" {
			continue
		}
		off := open + 1 + part.start
		eq := assignIndex(text)
		if eq < 0 {
			return accessor.Segment{}, &SyntaxError{Text: p.text, Pos: p.base + off, Msg: "expected assignment in with-block"}
		}
		path, err := parse(text[:eq], p.base+off, p.compile)
		if err != nil {
			return accessor.Segment{}, err
		}
		value, err := p.statement(text[eq+1:], off+eq+1)
		if err != nil {
			return accessor.Segment{}, err
		}
		seg.With = append(seg.With, accessor.WithSegment{Path: path, Value: value})
	}
	if len(seg.With) == 0 {
		return accessor.Segment{}, &SyntaxError{Text: p.text, Pos: p.base + start, Msg: "empty with-block"}
	}
	seg.End = p.base + p.pos
	return seg, nil
}

func (p *parser) statement(expr string, offset int) (accessor.Statement, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, &SyntaxError{Text: p.text, Pos: p.base + offset, Msg: "empty expression"}
	}
	if p.compile == nil {
		return nil, &SyntaxError{Text: p.text, Pos: p.base + offset, Msg: "embedded expressions are not supported"}
	}
	lead := len(expr) - len(strings.TrimLeft(expr, " \t\r\n"))
	return p.compile(trimmed, p.base+offset+lead)
}

// closing returns the position of the bracket matching the one at open.
func (p *parser) closing(open int, l, r byte) (int, error) {
	depth := 0
	for i := open; i < len(p.text); i++ {
		switch c := p.text[i]; c {
		case '\'', '"':
			j := skipQuoted(p.text, i)
			if j < 0 {
				return 0, &SyntaxError{Text: p.text, Pos: p.base + i, Msg: "unterminated string"}
			}
			i = j
		case l:
			depth++
		case r:
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, &SyntaxError{Text: p.text, Pos: p.base + open, Msg: fmt.Sprintf("unclosed %q", l)}
}

// skipQuoted returns the index of the quote closing the string at i, or -1.
func skipQuoted(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case q:
			return j
		}
	}
	return -1
}

type span struct{ start, end int }

// splitTop splits s at sep characters outside brackets and strings.
func splitTop(s string, sep byte) []span {
	var out []span
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'', '"':
			if j := skipQuoted(s, i); j >= 0 {
				i = j
			}
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		default:
			if c == sep && depth == 0 {
				out = append(out, span{start, i})
				start = i + 1
			}
		}
	}
	return append(out, span{start, len(s)})
}

// assignIndex returns the position of the top-level "=" in s, or -1.
func assignIndex(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'', '"':
			if j := skipQuoted(s, i); j >= 0 {
				i = j
			}
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '=':
			if depth != 0 {
				continue
			}
			if i+1 < len(s) && s[i+1] == '=' {
				i++
				continue
			}
			if i > 0 && strings.ContainsRune("!<>", rune(s[i-1])) {
				continue
			}
			return i
		}
	}
	return -1
}
