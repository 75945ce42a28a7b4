// Package statement compiles the expressions embedded in a path: method and
// constructor arguments, computed indices and with-block values.
//
// An expression is either a literal (quoted string, number, true, false, nil,
// null) or a nested path evaluated against the value it is given.
package statement

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/scope"
)

// Path is a nested path statement.
type Path struct {
	Text string
	Acc  accessor.Accessor
}

var _ accessor.TypedStatement = (*Path)(nil)

func (p *Path) Value(target, root any, s *scope.Scope) (any, error) {
	return p.Acc.Get(target, root, s)
}

func (p *Path) KnownEgressType() reflect.Type { return p.Acc.KnownEgressType() }

// BuildFunc turns nested path text into an accessor. offset is the byte
// position of text in the enclosing path.
type BuildFunc func(text string, offset int) (accessor.Accessor, error)

// Compiler compiles embedded expressions.
type Compiler struct {
	Build BuildFunc
}

// Compile returns a literal statement for literal text and a Path otherwise.
func (c *Compiler) Compile(text string, offset int) (accessor.Statement, error) {
	text = strings.TrimSpace(text)
	if v, ok, err := ParseLiteral(text); ok || err != nil {
		if err != nil {
			return nil, err
		}
		return accessor.Literal{V: v}, nil
	}
	if c == nil || c.Build == nil {
		return nil, &LiteralError{Text: text, Msg: "not a literal"}
	}
	acc, err := c.Build(text, offset)
	if err != nil {
		return nil, err
	}
	return &Path{Text: text, Acc: acc}, nil
}

// LiteralError reports text that looks like a literal but is malformed.
type LiteralError struct {
	Text string
	Msg  string
}

func (e *LiteralError) Error() string { return "literal " + strconv.Quote(e.Text) + ": " + e.Msg }

// ParseLiteral parses a literal. ok is false when text is not literal syntax
// at all.
func ParseLiteral(text string) (v any, ok bool, err error) {
	switch text {
	case "":
		return nil, false, nil
	case "true":
		return true, true, nil
	case "false":
		return false, true, nil
	case "nil", "null":
		return nil, true, nil
	}
	switch c := text[0]; {
	case c == '\'' || c == '"':
		s, err := unquote(text)
		if err != nil {
			return nil, true, &LiteralError{Text: text, Msg: err.Error()}
		}
		return s, true, nil
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		if c == '-' || c == '+' {
			if len(text) == 1 || text[1] < '0' || text[1] > '9' {
				return nil, false, nil
			}
		}
		if n, err := strconv.ParseInt(text, 0, 64); err == nil {
			if n == int64(int(n)) {
				return int(n), true, nil
			}
			return n, true, nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, true, &LiteralError{Text: text, Msg: "malformed number"}
		}
		return f, true, nil
	}
	return nil, false, nil
}

func unquote(text string) (string, error) {
	q := text[0]
	if len(text) < 2 || text[len(text)-1] != q {
		return "", strconv.ErrSyntax
	}
	body := text[1 : len(text)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == q {
			return "", strconv.ErrSyntax
		}
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i == len(body) {
			return "", strconv.ErrSyntax
		}
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '\'', '"':
			b.WriteByte(body[i])
		default:
			return "", strconv.ErrSyntax
		}
	}
	return b.String(), nil
}
