package expr

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Lexer tokenizes a rule-expression string. Spaces and tabs are skipped;
// newlines advance the line counter (used only for error positions), so an
// expression may span multiple lines.
type Lexer struct {
	input  string
	pos    int
	line   int
	tokens []Token
}

// Classification tables for ambiguous lexeme families. Each family is
// scanned maximally and the exact matched text is mapped to its kind, so
// overlapping prefixes never need separate greedy and non-greedy patterns.
var (
	starOps  = map[string]TokenKind{"*": TokenMul, "**": TokenPow}
	slashOps = map[string]TokenKind{"/": TokenTDiv, "//": TokenFDiv}
	ltOps    = map[string]TokenKind{"<": TokenLt, "<=": TokenLe, "<<": TokenBWLsh}
	gtOps    = map[string]TokenKind{">": TokenGt, ">=": TokenGe, ">>": TokenBWRsh}
	eqOps    = map[string]TokenKind{"==": TokenEq, "=~": TokenEqRem, "=~~": TokenEqRes}
	neOps    = map[string]TokenKind{"!=": TokenNe, "!~": TokenNeRem, "!~~": TokenNeRes}
)

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1}
}

// Tokenize scans the entire input and returns all tokens, ending with a
// TokenEOF. The first unmatched character aborts with a *LexicalError.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.Kind == TokenEOF {
			break
		}
	}
	return l.tokens, nil
}

// next returns the next token from the input.
func (l *Lexer) next() (Token, error) {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Kind: TokenEOF, Line: l.line, Pos: l.pos}, nil
	}

	ch := l.input[l.pos]

	// String literals
	if ch == '"' || ch == '\'' {
		return l.readString(ch)
	}

	// Numeric literals ("123", "0x1f", "5.", ".5")
	if isDigit(ch) || (ch == '.' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1])) {
		return l.readNumber(), nil
	}

	// Operator families with shared prefixes
	switch ch {
	case '*':
		return l.readFamily("*", starOps), nil
	case '/':
		return l.readFamily("/", slashOps), nil
	case '<':
		return l.readFamily("=<", ltOps), nil
	case '>':
		return l.readFamily("=>", gtOps), nil
	case '=':
		return l.readMatchFamily('=', eqOps)
	case '!':
		return l.readMatchFamily('=', neOps)
	}

	// Single-character tokens
	if kind, ok := singleCharToken(ch); ok {
		tok := Token{Kind: kind, Text: string(ch), Line: l.line, Pos: l.pos}
		l.pos++
		return tok, nil
	}

	// Identifiers and reserved words
	if isIdentStart(ch) {
		return l.readIdentifier(), nil
	}

	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return Token{}, &LexicalError{Text: string(r), Line: l.line}
}

func singleCharToken(ch byte) (TokenKind, bool) {
	switch ch {
	case '(':
		return TokenLParen, true
	case ')':
		return TokenRParen, true
	case '?':
		return TokenQMark, true
	case ':':
		return TokenColon, true
	case '+':
		return TokenAdd, true
	case '-':
		return TokenSub, true
	case '%':
		return TokenMod, true
	case '&':
		return TokenBWAnd, true
	case '|':
		return TokenBWOr, true
	case '^':
		return TokenBWXor, true
	}
	return 0, false
}

// readFamily consumes the current character plus at most one follow-up drawn
// from followers (or a doubled current character), then classifies the exact
// matched text. Covers * ** / // < <= << > >= >>.
func (l *Lexer) readFamily(followers string, kinds map[string]TokenKind) Token {
	start := l.pos
	first := l.input[l.pos]
	l.pos++
	if l.pos < len(l.input) {
		next := l.input[l.pos]
		if next == first || strings.IndexByte(followers, next) >= 0 {
			l.pos++
		}
	}
	text := l.input[start:l.pos]
	return Token{Kind: kinds[text], Text: text, Line: l.line, Pos: start}
}

// readMatchFamily handles the = and ! families: "==" / "=~" / "=~~" and
// "!=" / "!~" / "!~~". The leading character alone matches nothing.
func (l *Lexer) readMatchFamily(eq byte, kinds map[string]TokenKind) (Token, error) {
	start := l.pos
	l.pos++
	if l.pos < len(l.input) {
		switch l.input[l.pos] {
		case eq:
			l.pos++
		case '~':
			l.pos++
			if l.pos < len(l.input) && l.input[l.pos] == '~' {
				l.pos++
			}
		}
	}
	text := l.input[start:l.pos]
	kind, ok := kinds[text]
	if !ok {
		l.pos = start
		return Token{}, &LexicalError{Text: string(l.input[start]), Line: l.line}
	}
	return Token{Kind: kind, Text: text, Line: l.line, Pos: start}, nil
}

// readString reads a quoted string literal. The closing quote must match the
// opening quote and a raw newline terminates the literal with an error.
func (l *Lexer) readString(quote byte) (Token, error) {
	start := l.pos
	line := l.line
	l.pos++ // opening quote

	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == '\\' && l.pos+1 < len(l.input) && l.input[l.pos+1] != '\n':
			l.pos += 2
		case ch == '\n':
			return Token{}, &LexicalError{Text: l.input[start:l.pos], Line: line, Msg: "unterminated string literal"}
		case ch == quote:
			l.pos++
			return Token{Kind: TokenString, Text: l.input[start:l.pos], Line: line, Pos: start}, nil
		default:
			l.pos++
		}
	}

	return Token{}, &LexicalError{Text: l.input[start:], Line: line, Msg: "unterminated string literal"}
}

// readNumber reads a numeric literal: a prefixed integer (0b, 0o, 0x with
// lowercase hex digits) or a decimal with optional fractional part. The raw
// text is kept; decoding happens when the literal node is reduced.
func (l *Lexer) readNumber() Token {
	start := l.pos

	if l.input[l.pos] == '0' && l.pos+1 < len(l.input) {
		if text, ok := l.readPrefixedNumber(); ok {
			return Token{Kind: TokenFloat, Text: text, Line: l.line, Pos: start}
		}
	}

	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	// fractional part, covering both "5." and the leading-dot form ".5"
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}

	return Token{Kind: TokenFloat, Text: l.input[start:l.pos], Line: l.line, Pos: start}
}

// readPrefixedNumber attempts to read 0b/0o/0x forms. It reports false and
// leaves pos untouched when the prefix has no valid digits, in which case the
// leading zero lexes as a plain decimal literal.
func (l *Lexer) readPrefixedNumber() (string, bool) {
	start := l.pos
	var valid func(byte) bool
	switch l.input[l.pos+1] {
	case 'b':
		valid = func(c byte) bool { return c == '0' || c == '1' }
	case 'o':
		valid = func(c byte) bool { return c >= '0' && c <= '7' }
	case 'x':
		valid = func(c byte) bool { return isDigit(c) || (c >= 'a' && c <= 'f') }
	default:
		return "", false
	}

	p := l.pos + 2
	for p < len(l.input) && valid(l.input[p]) {
		p++
	}
	if p == l.pos+2 {
		return "", false
	}
	l.pos = p
	return l.input[start:p], true
}

// readIdentifier reads an identifier and retypes reserved words.
func (l *Lexer) readIdentifier() Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}

	word := l.input[start:l.pos]
	kind := TokenSymbol
	if reserved, ok := reservedWords[word]; ok {
		kind = reserved
	}
	return Token{Kind: kind, Text: word, Line: l.line, Pos: start}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\r':
			l.pos++
		case '\n':
			l.line++
			l.pos++
		default:
			return
		}
	}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

// decodeFloat decodes the raw text of a FLOAT token into its value. Prefixed
// integer forms decode via their base; everything else is plain decimal.
func decodeFloat(text string) (float64, error) {
	if len(text) > 2 && text[0] == '0' {
		switch text[1] {
		case 'b':
			v, err := strconv.ParseUint(text[2:], 2, 64)
			return float64(v), err
		case 'o':
			v, err := strconv.ParseUint(text[2:], 8, 64)
			return float64(v), err
		case 'x':
			v, err := strconv.ParseUint(text[2:], 16, 64)
			return float64(v), err
		}
	}
	return strconv.ParseFloat(text, 64)
}

// decodeString strips the quotes from a STRING token and resolves the escape
// sequences the lexer recognizes. Unknown escapes are kept verbatim.
func decodeString(text string) string {
	body := text[1 : len(text)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}

	var sb strings.Builder
	for i := 0; i < len(body); i++ {
		ch := body[i]
		if ch != '\\' || i+1 >= len(body) {
			sb.WriteByte(ch)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case '\\':
			sb.WriteByte('\\')
		case '\'':
			sb.WriteByte('\'')
		case '"':
			sb.WriteByte('"')
		default:
			sb.WriteByte('\\')
			sb.WriteByte(body[i])
		}
	}
	return sb.String()
}
