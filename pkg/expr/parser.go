package expr

import (
	"fmt"
	"log/slog"

	"github.com/lemonberrylabs/rulekit/pkg/types"
)

// DefaultMaxExpressionLength is the maximum accepted expression length when
// no override is configured.
const DefaultMaxExpressionLength = 4096

// Context is the capability contract a caller supplies per parse. The
// grammar records every symbol occurrence through AddSymbol (repeated
// references record repeatedly; the context's set semantics dedupe) and asks
// ResolveType for a static hint used during reduction.
type Context interface {
	AddSymbol(name string)
	ResolveType(name string) types.Type
}

// Parser parses rule expressions. Construction and invocation are separate
// lifecycles: a Parser holds only immutable configuration, while all per-call
// state (token cursor, bound context) lives in a per-call run value. One
// instance is therefore safe for concurrent Parse calls with no locking, and
// contexts are never observed across overlapping calls.
type Parser struct {
	maxLen int
	debug  *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxExpressionLength overrides the maximum accepted expression length.
func WithMaxExpressionLength(n int) Option {
	return func(p *Parser) { p.maxLen = n }
}

// WithDebugLogger enables a token/production trace at debug level.
func WithDebugLogger(logger *slog.Logger) Option {
	return func(p *Parser) { p.debug = logger }
}

// New creates a parser instance.
func New(opts ...Option) *Parser {
	p := &Parser{maxLen: DefaultMaxExpressionLength}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse tokenizes and parses one expression, binding ctx for the duration of
// the call. It returns the root Statement, or a *LexicalError, *SyntaxError
// or *SemanticError describing the first failure; no partial AST survives an
// error.
func (p *Parser) Parse(text string, ctx Context) (*Statement, error) {
	if len(text) > p.maxLen {
		return nil, &LexicalError{
			Line: 1,
			Msg:  fmt.Sprintf("expression exceeds maximum length of %d characters", p.maxLen),
		}
	}

	tokens, err := NewLexer(text).Tokenize()
	if err != nil {
		return nil, err
	}
	if p.debug != nil {
		p.debug.Debug("tokenized expression", "chars", len(text), "tokens", len(tokens)-1)
	}

	r := &run{tokens: tokens, ctx: ctx}
	node, err := r.parseExpression()
	if err != nil {
		return nil, err
	}

	if tok := r.current(); tok.Kind != TokenEOF {
		return nil, &SyntaxError{Token: tok}
	}
	return &Statement{Expression: node}, nil
}

// run is the state of a single Parse call.
type run struct {
	tokens []Token
	pos    int
	ctx    Context
}

func (r *run) current() Token {
	if r.pos >= len(r.tokens) {
		return Token{Kind: TokenEOF}
	}
	return r.tokens[r.pos]
}

func (r *run) advance() Token {
	tok := r.current()
	r.pos++
	return tok
}

func (r *run) expect(kind TokenKind) (Token, error) {
	tok := r.current()
	if tok.Kind != kind {
		return tok, &SyntaxError{Token: tok, EOF: tok.Kind == TokenEOF}
	}
	r.advance()
	return tok, nil
}

// Binding powers, loosest first. Each level parses its operands at the next
// tighter level, so the call chain below is the precedence table:
//
//	or > and > | > ^ > & > ternary > comparisons > + - > << >> > * / // % > ** > unary -
//
// Comparisons are non-associative; the ternary is right-associative with its
// condition bound at the comparison level.
func (r *run) parseExpression() (Node, error) {
	return r.parseOr()
}

func (r *run) parseOr() (Node, error) {
	left, err := r.parseAnd()
	if err != nil {
		return nil, err
	}
	for r.current().Kind == TokenOr {
		r.advance()
		right, err := r.parseAnd()
		if err != nil {
			return nil, err
		}
		left, err = reduce(&LogicNode{Op: OpOr, Left: left, Right: right})
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (r *run) parseAnd() (Node, error) {
	left, err := r.parseBitwiseOr()
	if err != nil {
		return nil, err
	}
	for r.current().Kind == TokenAnd {
		r.advance()
		right, err := r.parseBitwiseOr()
		if err != nil {
			return nil, err
		}
		left, err = reduce(&LogicNode{Op: OpAnd, Left: left, Right: right})
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (r *run) parseBitwiseOr() (Node, error) {
	return r.parseBitwiseLevel(TokenBWOr, OpBWOr, (*run).parseBitwiseXor)
}

func (r *run) parseBitwiseXor() (Node, error) {
	return r.parseBitwiseLevel(TokenBWXor, OpBWXor, (*run).parseBitwiseAnd)
}

func (r *run) parseBitwiseAnd() (Node, error) {
	return r.parseBitwiseLevel(TokenBWAnd, OpBWAnd, (*run).parseTernary)
}

func (r *run) parseBitwiseLevel(kind TokenKind, op Operator, operand func(*run) (Node, error)) (Node, error) {
	left, err := operand(r)
	if err != nil {
		return nil, err
	}
	for r.current().Kind == kind {
		r.advance()
		right, err := operand(r)
		if err != nil {
			return nil, err
		}
		left, err = reduce(&BitwiseNode{Op: op, Left: left, Right: right})
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

// parseTernary parses "condition ? ifTrue : ifFalse". The true branch is a
// full expression (the colon delimits it); the false branch recurses at this
// level, making the operator right-associative.
func (r *run) parseTernary() (Node, error) {
	condition, err := r.parseComparison()
	if err != nil {
		return nil, err
	}
	if r.current().Kind != TokenQMark {
		return condition, nil
	}
	r.advance()

	ifTrue, err := r.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := r.expect(TokenColon); err != nil {
		return nil, err
	}
	ifFalse, err := r.parseTernary()
	if err != nil {
		return nil, err
	}
	return reduce(&TernaryNode{Condition: condition, IfTrue: ifTrue, IfFalse: ifFalse})
}

var comparisonOps = map[TokenKind]Operator{
	TokenEq:    OpEq,
	TokenNe:    OpNe,
	TokenEqRem: OpEqRem,
	TokenEqRes: OpEqRes,
	TokenNeRem: OpNeRem,
	TokenNeRes: OpNeRes,
	TokenGt:    OpGt,
	TokenGe:    OpGe,
	TokenLt:    OpLt,
	TokenLe:    OpLe,
}

func isComparison(kind TokenKind) bool {
	_, ok := comparisonOps[kind]
	return ok
}

// parseComparison parses at most one comparison. Chaining ("a < b < c") is a
// syntax error, not a chained relational test.
func (r *run) parseComparison() (Node, error) {
	left, err := r.parseAdditive()
	if err != nil {
		return nil, err
	}

	op, ok := comparisonOps[r.current().Kind]
	if !ok {
		return left, nil
	}
	r.advance()

	right, err := r.parseAdditive()
	if err != nil {
		return nil, err
	}
	if chained := r.current(); isComparison(chained.Kind) {
		return nil, &SyntaxError{Token: chained}
	}
	return reduce(&ComparisonNode{Op: op, Left: left, Right: right})
}

func (r *run) parseAdditive() (Node, error) {
	left, err := r.parseShift()
	if err != nil {
		return nil, err
	}
	for {
		var op Operator
		switch r.current().Kind {
		case TokenAdd:
			op = OpAdd
		case TokenSub:
			op = OpSub
		default:
			return left, nil
		}
		r.advance()
		right, err := r.parseShift()
		if err != nil {
			return nil, err
		}
		left, err = reduce(&ArithmeticNode{Op: op, Left: left, Right: right})
		if err != nil {
			return nil, err
		}
	}
}

func (r *run) parseShift() (Node, error) {
	left, err := r.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op Operator
		switch r.current().Kind {
		case TokenBWLsh:
			op = OpBWLsh
		case TokenBWRsh:
			op = OpBWRsh
		default:
			return left, nil
		}
		r.advance()
		right, err := r.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left, err = reduce(&BitwiseNode{Op: op, Left: left, Right: right})
		if err != nil {
			return nil, err
		}
	}
}

func (r *run) parseMultiplicative() (Node, error) {
	left, err := r.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		var op Operator
		switch r.current().Kind {
		case TokenMul:
			op = OpMul
		case TokenTDiv:
			op = OpTDiv
		case TokenFDiv:
			op = OpFDiv
		case TokenMod:
			op = OpMod
		default:
			return left, nil
		}
		r.advance()
		right, err := r.parsePower()
		if err != nil {
			return nil, err
		}
		left, err = reduce(&ArithmeticNode{Op: op, Left: left, Right: right})
		if err != nil {
			return nil, err
		}
	}
}

func (r *run) parsePower() (Node, error) {
	left, err := r.parseUnary()
	if err != nil {
		return nil, err
	}
	for r.current().Kind == TokenPow {
		r.advance()
		right, err := r.parseUnary()
		if err != nil {
			return nil, err
		}
		left, err = reduce(&ArithmeticNode{Op: OpPow, Left: left, Right: right})
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (r *run) parseUnary() (Node, error) {
	if r.current().Kind != TokenSub {
		return r.parsePrimary()
	}
	r.advance()
	operand, err := r.parseUnary()
	if err != nil {
		return nil, err
	}
	return reduce(&UnaryNode{Op: OpUMinus, Operand: operand})
}

func (r *run) parsePrimary() (Node, error) {
	tok := r.current()

	switch tok.Kind {
	case TokenFloat:
		r.advance()
		value, err := decodeFloat(tok.Text)
		if err != nil {
			return nil, &LexicalError{Text: tok.Text, Line: tok.Line, Msg: fmt.Sprintf("invalid numeric literal %q", tok.Text)}
		}
		return &FloatNode{Value: value}, nil
	case TokenString:
		r.advance()
		return &StringNode{Value: decodeString(tok.Text)}, nil
	case TokenTrue:
		r.advance()
		return &BooleanNode{Value: true}, nil
	case TokenFalse:
		r.advance()
		return &BooleanNode{Value: false}, nil
	case TokenSymbol:
		r.advance()
		r.ctx.AddSymbol(tok.Text)
		return &SymbolNode{Name: tok.Text, Hint: r.ctx.ResolveType(tok.Text)}, nil
	case TokenLParen:
		r.advance()
		inner, err := r.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := r.expect(TokenRParen); err != nil {
			return nil, err
		}
		return inner, nil
	default:
		return nil, &SyntaxError{Token: tok, EOF: tok.Kind == TokenEOF}
	}
}
