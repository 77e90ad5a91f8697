package grammar

import (
	"fmt"
	"strings"
)

// parser is a hand-written recursive-descent scanner over the rune
// sequence of a single command's surface text.
type parser struct {
	src   []rune
	pos   int
	depth int // combined ?(...) / $(...) nesting depth
}

// Parse translates command surface text into a typed Command, or fails
// with a *ParseError describing where and why.
func Parse(text string) (*Command, error) {
	runes := []rune(text)
	if len(runes) > MaxCommandLength {
		snippetEnd := len(runes)
		snippetStart := snippetEnd - 20
		if snippetStart < 0 {
			snippetStart = 0
		}
		return nil, &ParseError{
			Message:  fmt.Sprintf("command exceeds maximum length of %d characters", MaxCommandLength),
			Position: MaxCommandLength,
			Snippet:  string(runes[snippetStart:snippetEnd]),
		}
	}

	p := &parser{src: runes}
	cmd, err := p.parseCommand()
	if err != nil {
		return nil, err
	}
	p.skipWS()
	if !p.eof() {
		return nil, p.errorAt(p.pos, "unexpected trailing content after command terminator")
	}
	return cmd, nil
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() rune {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) peekAt(offset int) rune {
	idx := p.pos + offset
	if idx < 0 || idx >= len(p.src) {
		return 0
	}
	return p.src[idx]
}

func (p *parser) skipWS() {
	for !p.eof() && isSpace(p.peek()) {
		p.pos++
	}
}

func (p *parser) peekLiteral(lit string) bool {
	rl := []rune(lit)
	if p.pos+len(rl) > len(p.src) {
		return false
	}
	for i, r := range rl {
		if p.src[p.pos+i] != r {
			return false
		}
	}
	return true
}

func (p *parser) matchLiteral(lit string) bool {
	if !p.peekLiteral(lit) {
		return false
	}
	p.pos += len([]rune(lit))
	return true
}

// scanIdent greedily consumes an identifier run and returns it along
// with its starting position. allowHyphen controls whether '-' is part
// of the identifier charset (true for entity/space names, false for
// command and function names).
func (p *parser) scanIdent(allowHyphen bool) (string, int) {
	start := p.pos
	for !p.eof() {
		r := p.peek()
		if isAlnum(r) || r == '_' || (allowHyphen && r == '-') {
			p.pos++
			continue
		}
		break
	}
	return string(p.src[start:p.pos]), start
}

func (p *parser) errorAt(pos int, msg string) *ParseError {
	return &ParseError{Message: msg, Position: pos, Snippet: p.snippetAt(pos)}
}

func (p *parser) snippetAt(pos int) string {
	start := pos - 10
	if start < 0 {
		start = 0
	}
	end := pos + 10
	if end > len(p.src) {
		end = len(p.src)
	}
	if start > len(p.src) {
		start = len(p.src)
	}
	return string(p.src[start:end])
}

// parseCommand parses "\name args ---" at the current position.
func (p *parser) parseCommand() (*Command, error) {
	if p.eof() || p.peek() != '\\' {
		return nil, p.errorAt(p.pos, "expected command to start with '\\'")
	}
	p.pos++ // consume '\'

	nameStart := p.pos
	name, _ := p.scanIdent(false)
	if name == "" {
		return nil, p.errorAt(nameStart, "expected a command name after '\\'")
	}

	content, err := p.parseArgs(false)
	if err != nil {
		return nil, err
	}
	return &Command{Name: name, Content: content}, nil
}

// parseArgs parses a node sequence. When stopAtParen is false, the
// sequence ends at the literal "---" terminator (and consumes it).
// When stopAtParen is true, the sequence ends at an unmatched ')'
// (which is NOT consumed — the caller does that), used for function-
// call sugar's ident(args) form. Text that is only whitespace (such as
// the gap between a ref and the terminator) produces no Text node.
func (p *parser) parseArgs(stopAtParen bool) ([]Node, error) {
	var nodes []Node
	var textBuf []rune

	flushText := func() {
		if strings.TrimSpace(string(textBuf)) != "" {
			nodes = append(nodes, Node{Kind: NodeText, Text: string(textBuf)})
		}
		textBuf = nil
	}

	for {
		if p.eof() {
			if stopAtParen {
				return nil, p.errorAt(p.pos, "unterminated group, expected ')'")
			}
			return nil, p.errorAt(p.pos, "unterminated command, expected '---'")
		}
		if p.peekLiteral("---") {
			p.matchLiteral("---")
			flushText()
			return nodes, nil
		}
		if stopAtParen && p.peek() == ')' {
			flushText()
			return nodes, nil
		}

		ch := p.peek()
		switch {
		case ch == '@':
			flushText()
			refs, err := p.parseRefGroup('@', NodeEntityRef)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, refs...)

		case ch == '#':
			nxt := p.peekAt(1)
			if isAlnum(nxt) || nxt == '_' || nxt == '(' {
				flushText()
				refs, err := p.parseRefGroup('#', NodeSpaceRef)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, refs...)
			} else {
				// "#" not followed by [alnum_(] is literal text —
				// lets markdown headings through.
				textBuf = append(textBuf, ch)
				p.pos++
			}

		case ch == '?' && p.peekAt(1) == '(':
			flushText()
			n, err := p.parseConditionNode()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)

		case ch == '$' && p.peekAt(1) == '(':
			flushText()
			qs, err := p.parseQueryGroup()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, qs...)

		case ch == '\\':
			return nil, p.errorAt(p.pos, "illegal backslash outside of a $(...) query")

		default:
			textBuf = append(textBuf, ch)
			p.pos++
		}
	}
}

// parseRefGroup parses "@IDENT" / "@(a,b,...)" (or the '#' equivalent)
// starting at the sigil. Returns one Node per referenced name, in
// surface order.
func (p *parser) parseRefGroup(sigil rune, kind NodeKind) ([]Node, error) {
	startPos := p.pos
	p.pos++ // consume sigil

	if p.peek() != '(' {
		idStart := p.pos
		name, _ := p.scanIdent(true)
		if name == "" || !validEntitySpaceName(name) {
			return nil, p.errorAt(idStart, fmt.Sprintf("expected identifier after %q", string(sigil)))
		}
		return []Node{{Kind: kind, Name: name}}, nil
	}

	p.pos++ // consume '('
	p.skipWS()
	if p.peek() == ')' {
		return nil, p.errorAt(startPos, "empty group")
	}

	var names []string
	for {
		p.skipWS()
		idStart := p.pos
		name, _ := p.scanIdent(true)
		if name == "" || !validEntitySpaceName(name) {
			return nil, p.errorAt(idStart, "expected identifier in group")
		}
		names = append(names, name)
		p.skipWS()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		if p.peek() == ')' {
			p.pos++
			break
		}
		return nil, p.errorAt(p.pos, "expected ',' or ')' in group")
	}

	out := make([]Node, len(names))
	for i, n := range names {
		out[i] = Node{Kind: kind, Name: n}
	}
	return out, nil
}

// parseConditionNode parses "?( EXPR )".
func (p *parser) parseConditionNode() (Node, error) {
	startPos := p.pos
	p.pos += 2 // consume "?("
	p.depth++
	if p.depth > MaxNestingDepth {
		return Node{}, p.errorAt(startPos, "maximum nesting depth exceeded")
	}
	defer func() { p.depth-- }()

	p.skipWS()
	expr, err := p.parseOr()
	if err != nil {
		return Node{}, err
	}
	p.skipWS()
	if p.peek() != ')' {
		return Node{}, p.errorAt(p.pos, "expected ')' to close condition")
	}
	p.pos++
	return Node{Kind: NodeCondition, Expr: expr}, nil
}

// parseQueryGroup parses "$( \CMD--- [\CMD---]* )", returning one
// NodeQuery per embedded command.
func (p *parser) parseQueryGroup() ([]Node, error) {
	startPos := p.pos
	p.pos += 2 // consume "$("
	p.depth++
	if p.depth > MaxNestingDepth {
		return nil, p.errorAt(startPos, "maximum nesting depth exceeded")
	}
	defer func() { p.depth-- }()

	var nodes []Node
	for {
		p.skipWS()
		if p.peek() != '\\' {
			return nil, p.errorAt(p.pos, "expected '\\' to begin a query command")
		}
		cmd, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, Node{Kind: NodeQuery, Query: cmd})
		p.skipWS()
		if p.peek() == ')' {
			p.pos++
			break
		}
	}
	return nodes, nil
}

// --- condition boolean-expression grammar: or, and, not, comparison, atom ---

func (p *parser) parseOr() (*BoolExpr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tryKeyword("or") {
		p.skipWS()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BoolExpr{Kind: ExprOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (*BoolExpr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.tryKeyword("and") {
		p.skipWS()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BoolExpr{Kind: ExprAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (*BoolExpr, error) {
	p.skipWS()
	if p.tryKeyword("not") {
		p.skipWS()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &BoolExpr{Kind: ExprNot, Left: operand}, nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (*BoolExpr, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	p.skipWS()
	if p.eof() {
		return left, nil
	}
	switch p.peek() {
	case '<', '>', '=':
		op := string(p.peek())
		p.pos++
		p.skipWS()
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		return &BoolExpr{Kind: ExprCompare, Left: left, Right: right, Op: op}, nil
	}
	return left, nil
}

func (p *parser) parseAtom() (*BoolExpr, error) {
	p.skipWS()
	if p.eof() {
		return nil, p.errorAt(p.pos, "expected expression")
	}

	switch {
	case p.peek() == '$' && p.peekAt(1) == '(':
		qs, err := p.parseQueryGroup()
		if err != nil {
			return nil, err
		}
		if len(qs) != 1 {
			return nil, p.errorAt(p.pos, "condition query must contain exactly one command")
		}
		leaf := qs[0]
		return &BoolExpr{Kind: ExprLeaf, Leaf: &leaf}, nil

	case p.peek() == '?' && p.peekAt(1) == '(':
		n, err := p.parseConditionNode()
		if err != nil {
			return nil, err
		}
		return n.Expr, nil

	case p.peek() == '(':
		p.pos++
		p.skipWS()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipWS()
		if p.peek() != ')' {
			return nil, p.errorAt(p.pos, "expected ')' to close group")
		}
		p.pos++
		return inner, nil

	case p.peek() == '@':
		refs, err := p.parseRefGroup('@', NodeEntityRef)
		if err != nil {
			return nil, err
		}
		if len(refs) != 1 {
			return nil, p.errorAt(p.pos, "expected a single entity reference")
		}
		return &BoolExpr{Kind: ExprLeaf, Leaf: &refs[0]}, nil

	case p.peek() == '#' && (isAlnum(p.peekAt(1)) || p.peekAt(1) == '_' || p.peekAt(1) == '('):
		refs, err := p.parseRefGroup('#', NodeSpaceRef)
		if err != nil {
			return nil, err
		}
		if len(refs) != 1 {
			return nil, p.errorAt(p.pos, "expected a single space reference")
		}
		return &BoolExpr{Kind: ExprLeaf, Leaf: &refs[0]}, nil

	case isIdentStart(p.peek()):
		saved := p.pos
		name, _ := p.scanIdent(false)
		if name != "" && p.peek() == '(' {
			p.pos++ // consume '('
			args, err := p.parseArgs(true)
			if err != nil {
				return nil, err
			}
			if p.peek() != ')' {
				return nil, p.errorAt(p.pos, "expected ')' to close function call")
			}
			p.pos++
			leaf := Node{Kind: NodeQuery, Query: &Command{Name: name, Content: args}}
			return &BoolExpr{Kind: ExprLeaf, Leaf: &leaf}, nil
		}
		p.pos = saved
		return p.parseTextAtom()

	default:
		return p.parseTextAtom()
	}
}

// parseTextAtom consumes a contiguous run of non-delimiter characters
// as a literal Text leaf.
func (p *parser) parseTextAtom() (*BoolExpr, error) {
	start := p.pos
	var buf []rune
	for !p.eof() {
		ch := p.peek()
		if isSpace(ch) || ch == '(' || ch == ')' || ch == '<' || ch == '>' || ch == '=' {
			break
		}
		buf = append(buf, ch)
		p.pos++
	}
	if len(buf) == 0 {
		return nil, p.errorAt(start, "expected expression")
	}
	leaf := Node{Kind: NodeText, Text: string(buf)}
	return &BoolExpr{Kind: ExprLeaf, Leaf: &leaf}, nil
}

// tryKeyword consumes a case-insensitive keyword at a word boundary,
// after skipping leading whitespace. On failure the position is
// restored so the caller can try a different production.
func (p *parser) tryKeyword(kw string) bool {
	saved := p.pos
	p.skipWS()
	if p.matchWordCI(kw) {
		return true
	}
	p.pos = saved
	return false
}

func (p *parser) matchWordCI(kw string) bool {
	lower := []rune(strings.ToLower(kw))
	if p.pos+len(lower) > len(p.src) {
		return false
	}
	for i, r := range lower {
		if toLowerRune(p.src[p.pos+i]) != r {
			return false
		}
	}
	if isIdentChar(p.peekAt(len(lower))) {
		return false
	}
	p.pos += len(lower)
	return true
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func isAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentStart(r rune) bool {
	return isAlnum(r) || r == '_'
}

func isIdentChar(r rune) bool {
	return isAlnum(r) || r == '_' || r == '-'
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r - 'A' + 'a'
	}
	return r
}

// validEntitySpaceName checks the entity/space identifier pattern
// [A-Za-z0-9][A-Za-z0-9_-]*. scanIdent(true) already restricts the
// charset; this only needs to check the first rune.
func validEntitySpaceName(s string) bool {
	if s == "" {
		return false
	}
	return isAlnum([]rune(s)[0])
}
