// Package expr implements the rule-expression language front end: the
// tokenizer, the operator-precedence grammar, and the eagerly-reduced AST.
// The result of a parse is a Statement tree ready for a downstream
// evaluator; this package never evaluates anything against live data.
package expr

// TokenKind classifies a lexical token.
type TokenKind int

const (
	// Literals
	TokenFloat  TokenKind = iota // numeric literal (decimal or 0b/0o/0x)
	TokenString                  // quoted string literal
	TokenSymbol                  // identifier that is not a reserved word
	TokenTrue                    // true
	TokenFalse                   // false

	// Punctuation
	TokenLParen // (
	TokenRParen // )
	TokenQMark  // ?
	TokenColon  // :

	// Arithmetic
	TokenAdd  // +
	TokenSub  // -
	TokenPow  // **
	TokenMul  // *
	TokenTDiv // /
	TokenFDiv // //
	TokenMod  // %

	// Bitwise
	TokenBWAnd // &
	TokenBWOr  // |
	TokenBWXor // ^
	TokenBWLsh // <<
	TokenBWRsh // >>

	// Comparison
	TokenEq    // ==
	TokenNe    // !=
	TokenEqRem // =~  (anchored regex match)
	TokenEqRes // =~~ (regex search)
	TokenNeRem // !~
	TokenNeRes // !~~
	TokenGt    // >
	TokenGe    // >=
	TokenLt    // <
	TokenLe    // <=

	// Logical
	TokenAnd // and
	TokenOr  // or

	// Special
	TokenEOF // end of input
)

// Token is a single lexical token. Text is the raw matched source; literal
// decoding is deferred to node reduction.
type Token struct {
	Kind TokenKind
	Text string
	Line int // 1-based source line, for error reporting
	Pos  int // byte offset in the input
}

// reservedWords maps keyword spellings to their token kinds. Identifiers are
// matched maximally first, so a reserved word never matches as a prefix of a
// longer identifier.
var reservedWords = map[string]TokenKind{
	"and":   TokenAnd,
	"or":    TokenOr,
	"true":  TokenTrue,
	"false": TokenFalse,
}

// String returns a debug-friendly name for the token kind.
func (k TokenKind) String() string {
	switch k {
	case TokenFloat:
		return "FLOAT"
	case TokenString:
		return "STRING"
	case TokenSymbol:
		return "SYMBOL"
	case TokenTrue:
		return "TRUE"
	case TokenFalse:
		return "FALSE"
	case TokenLParen:
		return "LPAREN"
	case TokenRParen:
		return "RPAREN"
	case TokenQMark:
		return "QMARK"
	case TokenColon:
		return "COLON"
	case TokenAdd:
		return "ADD"
	case TokenSub:
		return "SUB"
	case TokenPow:
		return "POW"
	case TokenMul:
		return "MUL"
	case TokenTDiv:
		return "TDIV"
	case TokenFDiv:
		return "FDIV"
	case TokenMod:
		return "MOD"
	case TokenBWAnd:
		return "BWAND"
	case TokenBWOr:
		return "BWOR"
	case TokenBWXor:
		return "BWXOR"
	case TokenBWLsh:
		return "BWLSH"
	case TokenBWRsh:
		return "BWRSH"
	case TokenEq:
		return "EQ"
	case TokenNe:
		return "NE"
	case TokenEqRem:
		return "EQ_REM"
	case TokenEqRes:
		return "EQ_RES"
	case TokenNeRem:
		return "NE_REM"
	case TokenNeRes:
		return "NE_RES"
	case TokenGt:
		return "GT"
	case TokenGe:
		return "GE"
	case TokenLt:
		return "LT"
	case TokenLe:
		return "LE"
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}
