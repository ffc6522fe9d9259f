package lang

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseError is a syntax error at a 1-based line and column of Src.
type ParseError struct {
	Line int
	Col  int
	Msg  string
	Src  string
}

// Error renders the position, the message and a caret snippet of the source.
func (e *ParseError) Error() string {
	head := fmt.Sprintf("at %d:%d: %s", e.Line, e.Col, e.Msg)
	if e.Src == "" {
		return head
	}
	return head + "\n\n" + snippet(e.Src, e.Line, e.Col)
}

// snippet shows the offending line with at most one line of context on each
// side and a caret under the column. Out-of-range coordinates are clamped.
func snippet(src string, line, col int) string {
	lines := strings.Split(src, "\n")
	line = min(max(line, 1), len(lines))
	col = max(col, 1)

	first := max(line-1, 1)
	last := min(line+1, len(lines))
	width := len(strconv.Itoa(last))

	var b strings.Builder
	for n := first; n <= last; n++ {
		fmt.Fprintf(&b, "%*d | %s\n", width, n, lines[n-1])
		if n == line {
			fmt.Fprintf(&b, "%s | %s^\n", strings.Repeat(" ", width), strings.Repeat(" ", col-1))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

var keywords = map[string]bool{
	"lam":   true,
	"let":   true,
	"if":    true,
	"true":  true,
	"false": true,
}

type parser struct {
	src  string
	pos  int // byte offset
	line int
	col  int
}

// Parse reads one expression from the start of text. It returns the
// expression and whatever follows it, with leading whitespace and comments
// skipped, so callers can reject trailing input.
func Parse(text string) (Expr, string, error) {
	p := &parser{src: text, line: 1, col: 1}
	p.skipSpace()
	e, err := p.expr()
	if err != nil {
		return nil, "", err
	}
	p.skipSpace()
	return e, p.src[p.pos:], nil
}

func (p *parser) errf(format string, args ...any) *ParseError {
	return &ParseError{Line: p.line, Col: p.col, Msg: fmt.Sprintf(format, args...), Src: p.src}
}

func (p *parser) atEnd() bool { return p.pos >= len(p.src) }

func (p *parser) peek() rune {
	if p.atEnd() {
		return utf8.RuneError
	}
	r, _ := utf8.DecodeRuneInString(p.src[p.pos:])
	return r
}

func (p *parser) advance() rune {
	r, size := utf8.DecodeRuneInString(p.src[p.pos:])
	p.pos += size
	if r == '\n' {
		p.line++
		p.col = 1
	} else {
		p.col++
	}
	return r
}

// skipSpace skips whitespace and ';' line comments.
func (p *parser) skipSpace() {
	for !p.atEnd() {
		r := p.peek()
		switch {
		case unicode.IsSpace(r):
			p.advance()
		case r == ';':
			for !p.atEnd() && p.peek() != '\n' {
				p.advance()
			}
		default:
			return
		}
	}
}

func (p *parser) expect(r rune, what string) error {
	p.skipSpace()
	if p.atEnd() {
		return p.errf("unexpected end of input, expected %s", what)
	}
	if got := p.peek(); got != r {
		return p.errf("unexpected %q, expected %s", got, what)
	}
	p.advance()
	return nil
}

func (p *parser) expr() (Expr, error) {
	p.skipSpace()
	if p.atEnd() {
		return nil, p.errf("unexpected end of input, expected expression")
	}
	r := p.peek()
	switch {
	case r == '(':
		return p.list()
	case r == '-' || unicode.IsDigit(r):
		return p.number()
	case isIdentStart(r):
		return p.atom()
	default:
		return nil, p.errf("unexpected %q, expected expression", r)
	}
}

func (p *parser) number() (Expr, error) {
	line, col, start := p.line, p.col, p.pos
	if p.peek() == '-' {
		p.advance()
	}
	for !p.atEnd() && unicode.IsDigit(p.peek()) {
		p.advance()
	}
	lit := p.src[start:p.pos]
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return nil, &ParseError{Line: line, Col: col, Msg: fmt.Sprintf("invalid integer literal %q", lit), Src: p.src}
	}
	return Lit{Value: n}, nil
}

func (p *parser) ident() (string, error) {
	p.skipSpace()
	if p.atEnd() {
		return "", p.errf("unexpected end of input, expected identifier")
	}
	if !isIdentStart(p.peek()) {
		return "", p.errf("unexpected %q, expected identifier", p.peek())
	}
	line, col, start := p.line, p.col, p.pos
	for !p.atEnd() && isIdentRest(p.peek()) {
		p.advance()
	}
	name := p.src[start:p.pos]
	if keywords[name] {
		return "", &ParseError{Line: line, Col: col, Msg: fmt.Sprintf("keyword %q cannot be used as a name", name), Src: p.src}
	}
	return name, nil
}

func (p *parser) atom() (Expr, error) {
	start := p.pos
	line, col := p.line, p.col
	for !p.atEnd() && isIdentRest(p.peek()) {
		p.advance()
	}
	word := p.src[start:p.pos]
	switch word {
	case "true":
		return Lit{Value: true}, nil
	case "false":
		return Lit{Value: false}, nil
	case "lam", "let", "if":
		return nil, &ParseError{Line: line, Col: col, Msg: fmt.Sprintf("keyword %q must appear at the head of a form", word), Src: p.src}
	}
	return Var{Name: word}, nil
}

// list parses a parenthesized form: a special form or an application.
func (p *parser) list() (Expr, error) {
	p.advance() // (
	p.skipSpace()
	if p.atEnd() {
		return nil, p.errf("unexpected end of input, expected expression or ')'")
	}
	if p.peek() == ')' {
		return nil, p.errf("empty application")
	}

	if isIdentStart(p.peek()) {
		save := *p
		for !p.atEnd() && isIdentRest(p.peek()) {
			p.advance()
		}
		head := p.src[save.pos:p.pos]
		switch head {
		case "lam":
			return p.lam()
		case "let":
			return p.let()
		case "if":
			return p.ifForm()
		}
		*p = save
	}

	fn, err := p.expr()
	if err != nil {
		return nil, err
	}
	var args []Expr
	for {
		p.skipSpace()
		if p.atEnd() {
			return nil, p.errf("unexpected end of input, expected expression or ')'")
		}
		if p.peek() == ')' {
			p.advance()
			break
		}
		arg, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if len(args) == 0 {
		return nil, p.errf("application of %s needs at least one argument", fn)
	}
	out := fn
	for _, a := range args {
		out = App{Fn: out, Arg: a}
	}
	return out, nil
}

// lam parses the rest of (lam [x ...] body).
func (p *parser) lam() (Expr, error) {
	if err := p.expect('[', "'[' opening the parameter list"); err != nil {
		return nil, err
	}
	var params []string
	for {
		p.skipSpace()
		if !p.atEnd() && p.peek() == ']' {
			p.advance()
			break
		}
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		params = append(params, name)
	}
	if len(params) == 0 {
		return nil, p.errf("lam needs at least one parameter")
	}
	body, err := p.expr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(')', "')' closing lam"); err != nil {
		return nil, err
	}
	for i := len(params) - 1; i >= 0; i-- {
		body = Lam{Param: params[i], Body: body}
	}
	return body, nil
}

// let parses the rest of (let ([x e] ...) body).
func (p *parser) let() (Expr, error) {
	if err := p.expect('(', "'(' opening the binding list"); err != nil {
		return nil, err
	}
	type binding struct {
		name  string
		bound Expr
	}
	var bs []binding
	for {
		p.skipSpace()
		if !p.atEnd() && p.peek() == ')' {
			p.advance()
			break
		}
		if err := p.expect('[', "'[' opening a binding"); err != nil {
			return nil, err
		}
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		bound, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(']', "']' closing a binding"); err != nil {
			return nil, err
		}
		bs = append(bs, binding{name: name, bound: bound})
	}
	if len(bs) == 0 {
		return nil, p.errf("let needs at least one binding")
	}
	body, err := p.expr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(')', "')' closing let"); err != nil {
		return nil, err
	}
	for i := len(bs) - 1; i >= 0; i-- {
		body = Let{Name: bs[i].name, Bound: bs[i].bound, Body: body}
	}
	return body, nil
}

// ifForm parses the rest of (if c t e).
func (p *parser) ifForm() (Expr, error) {
	var parts [3]Expr
	for i := range parts {
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		parts[i] = e
	}
	if err := p.expect(')', "')' closing if"); err != nil {
		return nil, err
	}
	return If{Cond: parts[0], Then: parts[1], Else: parts[2]}, nil
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || strings.ContainsRune("+*/<>=!?", r)
}

func isIdentRest(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) || r == '-'
}

// IsIncomplete reports whether err means the input ended inside an
// expression, so more text could still complete it.
func IsIncomplete(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) && strings.HasPrefix(pe.Msg, "unexpected end of input")
}
