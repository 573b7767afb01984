package expr

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/lemonberrylabs/rulekit/pkg/types"
)

// testContext implements Context for testing.
type testContext struct {
	symbols map[string]int
	hints   map[string]types.Type
}

func newTestContext() *testContext {
	return &testContext{symbols: make(map[string]int)}
}

func newTypedContext(hints map[string]types.Type) *testContext {
	return &testContext{symbols: make(map[string]int), hints: hints}
}

func (c *testContext) AddSymbol(name string) {
	c.symbols[name]++
}

func (c *testContext) ResolveType(name string) types.Type {
	return c.hints[name]
}

func mustParse(t *testing.T, input string) *Statement {
	t.Helper()
	stmt, err := New().Parse(input, newTestContext())
	if err != nil {
		t.Fatalf("parse %q: %v", input, err)
	}
	return stmt
}

func TestPrecedenceShapes(t *testing.T) {
	tests := []struct {
		input string
		check func(t *testing.T, root Node)
	}{
		{"a + b * c", func(t *testing.T, root Node) {
			add, ok := root.(*ArithmeticNode)
			if !ok || add.Op != OpAdd {
				t.Fatalf("root = %#v, want ADD", root)
			}
			if mul, ok := add.Right.(*ArithmeticNode); !ok || mul.Op != OpMul {
				t.Fatalf("right = %#v, want MUL", add.Right)
			}
		}},
		{"(a + b) * c", func(t *testing.T, root Node) {
			mul, ok := root.(*ArithmeticNode)
			if !ok || mul.Op != OpMul {
				t.Fatalf("root = %#v, want MUL", root)
			}
			if add, ok := mul.Left.(*ArithmeticNode); !ok || add.Op != OpAdd {
				t.Fatalf("left = %#v, want ADD", mul.Left)
			}
		}},
		{"a + b << c", func(t *testing.T, root Node) {
			// shifts bind tighter than additive
			add, ok := root.(*ArithmeticNode)
			if !ok || add.Op != OpAdd {
				t.Fatalf("root = %#v, want ADD", root)
			}
			if lsh, ok := add.Right.(*BitwiseNode); !ok || lsh.Op != OpBWLsh {
				t.Fatalf("right = %#v, want BWLSH", add.Right)
			}
		}},
		{"a and b or c", func(t *testing.T, root Node) {
			or, ok := root.(*LogicNode)
			if !ok || or.Op != OpOr {
				t.Fatalf("root = %#v, want OR", root)
			}
			if and, ok := or.Left.(*LogicNode); !ok || and.Op != OpAnd {
				t.Fatalf("left = %#v, want AND", or.Left)
			}
		}},
		{"a & b | c", func(t *testing.T, root Node) {
			bwor, ok := root.(*BitwiseNode)
			if !ok || bwor.Op != OpBWOr {
				t.Fatalf("root = %#v, want BWOR", root)
			}
			if bwand, ok := bwor.Left.(*BitwiseNode); !ok || bwand.Op != OpBWAnd {
				t.Fatalf("left = %#v, want BWAND", bwor.Left)
			}
		}},
		{"a == b and c == d", func(t *testing.T, root Node) {
			and, ok := root.(*LogicNode)
			if !ok || and.Op != OpAnd {
				t.Fatalf("root = %#v, want AND", root)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tt.check(t, mustParse(t, tt.input).Expression)
		})
	}
}

func TestPowIsLeftAssociative(t *testing.T) {
	// (2 ** 3) ** 2 = 64; right associativity would give 512
	stmt := mustParse(t, "2 ** 3 ** 2")
	root, ok := stmt.Expression.(*FloatNode)
	if !ok {
		t.Fatalf("root = %#v, want folded float", stmt.Expression)
	}
	if root.Value != 64 {
		t.Errorf("value = %v, want 64", root.Value)
	}
}

func TestUnaryMinusBindsTightest(t *testing.T) {
	// unary minus outranks **: -2 ** 2 is (-2) ** 2
	stmt := mustParse(t, "-2 ** 2")
	root, ok := stmt.Expression.(*FloatNode)
	if !ok {
		t.Fatalf("root = %#v, want folded float", stmt.Expression)
	}
	if root.Value != 4 {
		t.Errorf("value = %v, want 4", root.Value)
	}
}

func TestTernary(t *testing.T) {
	t.Run("right associative", func(t *testing.T) {
		stmt := mustParse(t, "a ? b : c ? d : e")
		outer, ok := stmt.Expression.(*TernaryNode)
		if !ok {
			t.Fatalf("root = %#v, want ternary", stmt.Expression)
		}
		if _, ok := outer.IfFalse.(*TernaryNode); !ok {
			t.Fatalf("if_false = %#v, want nested ternary", outer.IfFalse)
		}
	})

	t.Run("binds below comparisons", func(t *testing.T) {
		stmt := mustParse(t, "a == b ? c : d")
		outer, ok := stmt.Expression.(*TernaryNode)
		if !ok {
			t.Fatalf("root = %#v, want ternary", stmt.Expression)
		}
		if cmp, ok := outer.Condition.(*ComparisonNode); !ok || cmp.Op != OpEq {
			t.Fatalf("condition = %#v, want EQ comparison", outer.Condition)
		}
	})

	t.Run("binds above or", func(t *testing.T) {
		// yacc precedence puts ?: above or: a or b ? c : d is a or (b ? c : d)
		stmt := mustParse(t, "a or b ? c : d")
		or, ok := stmt.Expression.(*LogicNode)
		if !ok || or.Op != OpOr {
			t.Fatalf("root = %#v, want OR", stmt.Expression)
		}
		if _, ok := or.Right.(*TernaryNode); !ok {
			t.Fatalf("right = %#v, want ternary", or.Right)
		}
	})
}

func TestComparisonChainingIsSyntaxError(t *testing.T) {
	inputs := []string{
		"1 < 2 < 3",
		"a == b == c",
		"a < b >= c",
		"x =~ 'a' =~ 'b'",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := New().Parse(input, newTestContext())
			var synErr *SyntaxError
			if !errors.As(err, &synErr) {
				t.Fatalf("got %v, want SyntaxError", err)
			}
		})
	}
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		input   string
		wantEOF bool
	}{
		{"1 +", true},
		{"", true},
		{"(1 + 2", true},
		{"a ? b", true},
		{"1 + )", false},
		{"1 2", false},
		{"a ? b ) c", false},
		{") + 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := New().Parse(tt.input, newTestContext())
			var synErr *SyntaxError
			if !errors.As(err, &synErr) {
				t.Fatalf("got %v, want SyntaxError", err)
			}
			if synErr.EOF != tt.wantEOF {
				t.Errorf("EOF = %v, want %v", synErr.EOF, tt.wantEOF)
			}
		})
	}
}

func TestSymbolRecording(t *testing.T) {
	ctx := newTestContext()
	stmt, err := New().Parse("a + 1", ctx)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if _, ok := stmt.Expression.(*ArithmeticNode); !ok {
		t.Fatalf("root = %#v, want unfolded arithmetic node", stmt.Expression)
	}
	if ctx.symbols["a"] != 1 {
		t.Errorf("symbol a recorded %d times, want 1", ctx.symbols["a"])
	}
}

func TestRepeatedSymbolRecordsPerOccurrence(t *testing.T) {
	ctx := newTestContext()
	if _, err := New().Parse("a + a + a", ctx); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ctx.symbols["a"] != 3 {
		t.Errorf("symbol a recorded %d times, want 3", ctx.symbols["a"])
	}
}

func TestSymbolTypeHintAttached(t *testing.T) {
	ctx := newTypedContext(map[string]types.Type{"name": types.String})
	stmt, err := New().Parse("name", ctx)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sym, ok := stmt.Expression.(*SymbolNode)
	if !ok {
		t.Fatalf("root = %#v, want symbol", stmt.Expression)
	}
	if sym.Hint != types.String {
		t.Errorf("hint = %s, want string", sym.Hint)
	}
}

func TestReparseIsIdempotent(t *testing.T) {
	p := New()
	const input = "price * quantity > 100 and status == 'open'"

	first := newTestContext()
	second := newTestContext()

	stmtA, err := p.Parse(input, first)
	if err != nil {
		t.Fatalf("first parse: %v", err)
	}
	stmtB, err := p.Parse(input, second)
	if err != nil {
		t.Fatalf("second parse: %v", err)
	}

	jsonA, _ := json.Marshal(stmtA)
	jsonB, _ := json.Marshal(stmtB)
	if string(jsonA) != string(jsonB) {
		t.Errorf("ASTs differ:\n%s\n%s", jsonA, jsonB)
	}
	if len(first.symbols) != len(second.symbols) {
		t.Errorf("symbol sets differ: %v vs %v", first.symbols, second.symbols)
	}
}

func TestConcurrentParsesAreIsolated(t *testing.T) {
	p := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("field_%d", i)
			for j := 0; j < 200; j++ {
				ctx := newTestContext()
				if _, err := p.Parse(name+" > 1", ctx); err != nil {
					t.Errorf("parse: %v", err)
					return
				}
				if len(ctx.symbols) != 1 || ctx.symbols[name] != 1 {
					t.Errorf("context observed foreign symbols: %v", ctx.symbols)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestMaxExpressionLength(t *testing.T) {
	p := New(WithMaxExpressionLength(8))
	_, err := p.Parse("1 + 2 + 3 + 4", newTestContext())
	var lexErr *LexicalError
	if !errors.As(err, &lexErr) {
		t.Fatalf("got %v, want LexicalError", err)
	}

	if _, err := p.Parse("1 + 2", newTestContext()); err != nil {
		t.Errorf("expression within the limit rejected: %v", err)
	}
}

func TestMultilineExpression(t *testing.T) {
	stmt := mustParse(t, "1 +\n2 *\n3")
	root, ok := stmt.Expression.(*FloatNode)
	if !ok || root.Value != 7 {
		t.Fatalf("root = %#v, want float 7", stmt.Expression)
	}
}

func TestSyntaxErrorCarriesLine(t *testing.T) {
	_, err := New().Parse("1 +\n+", newTestContext())
	var synErr *SyntaxError
	if !errors.As(err, &synErr) {
		t.Fatalf("got %v, want SyntaxError", err)
	}
	if synErr.Token.Line != 2 {
		t.Errorf("line = %d, want 2", synErr.Token.Line)
	}
}
