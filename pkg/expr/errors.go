package expr

import "fmt"

// LexicalError reports input that matches no token pattern, or a malformed
// literal such as an unterminated string.
type LexicalError struct {
	Text string // the offending character or literal prefix
	Line int
	Msg  string
}

// Error implements the error interface.
func (e *LexicalError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("lexical error on line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("lexical error on line %d: illegal character %q", e.Line, e.Text)
}

// SyntaxError reports a token sequence that matches no grammar production,
// including premature end of input.
type SyntaxError struct {
	Token Token
	EOF   bool
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	if e.EOF {
		return "syntax error: unexpected end of expression"
	}
	return fmt.Sprintf("syntax error on line %d: unexpected token %q", e.Token.Line, e.Token.Text)
}

// SemanticError reports operand types that are statically known and
// incompatible for the requested operator. It is raised during reduction, at
// parse time, so a rule that can never succeed fails before any data is seen.
type SemanticError struct {
	Msg string
}

// Error implements the error interface.
func (e *SemanticError) Error() string {
	return "semantic error: " + e.Msg
}

func semanticErrorf(format string, args ...any) *SemanticError {
	return &SemanticError{Msg: fmt.Sprintf(format, args...)}
}
