package expr

import (
	"encoding/json"

	"github.com/lemonberrylabs/rulekit/pkg/types"
)

// Operator identifies the operation of a compound node.
type Operator int

const (
	// Arithmetic
	OpAdd Operator = iota
	OpSub
	OpPow
	OpMul
	OpTDiv
	OpFDiv
	OpMod

	// Bitwise
	OpBWAnd
	OpBWOr
	OpBWXor
	OpBWLsh
	OpBWRsh

	// Comparison
	OpEq
	OpNe
	OpEqRem
	OpEqRes
	OpNeRem
	OpNeRes
	OpGt
	OpGe
	OpLt
	OpLe

	// Logical
	OpAnd
	OpOr

	// Unary
	OpUMinus
)

var operatorNames = map[Operator]string{
	OpAdd: "ADD", OpSub: "SUB", OpPow: "POW", OpMul: "MUL",
	OpTDiv: "TDIV", OpFDiv: "FDIV", OpMod: "MOD",
	OpBWAnd: "BWAND", OpBWOr: "BWOR", OpBWXor: "BWXOR",
	OpBWLsh: "BWLSH", OpBWRsh: "BWRSH",
	OpEq: "EQ", OpNe: "NE", OpEqRem: "EQ_REM", OpEqRes: "EQ_RES",
	OpNeRem: "NE_REM", OpNeRes: "NE_RES",
	OpGt: "GT", OpGe: "GE", OpLt: "LT", OpLe: "LE",
	OpAnd: "AND", OpOr: "OR", OpUMinus: "UMINUS",
}

// String returns the operator's symbolic name.
func (op Operator) String() string {
	if name, ok := operatorNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// Node is the interface for all expression AST nodes. Nodes are immutable
// once constructed; reduction returns replacements, it never rewrites
// children in place.
type Node interface {
	// Type reports the statically-known result type of the node, or
	// types.Unknown when it depends on data only available at evaluation.
	Type() types.Type
}

// Statement wraps the single root expression of a parsed rule.
type Statement struct {
	Expression Node
}

// MarshalJSON implements json.Marshaler.
func (s *Statement) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Expression Node `json:"expression"`
	}{s.Expression})
}

// BooleanNode is a literal true or false.
type BooleanNode struct {
	Value bool
}

// Type implements Node.
func (n *BooleanNode) Type() types.Type { return types.Boolean }

// MarshalJSON implements json.Marshaler.
func (n *BooleanNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind  string `json:"kind"`
		Value bool   `json:"value"`
	}{"boolean", n.Value})
}

// FloatNode is a literal numeric value. All rule-expression numbers are
// floats; prefixed integer literals decode to their float value.
type FloatNode struct {
	Value float64
}

// Type implements Node.
func (n *FloatNode) Type() types.Type { return types.Float }

// MarshalJSON implements json.Marshaler.
func (n *FloatNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind  string  `json:"kind"`
		Value float64 `json:"value"`
	}{"float", n.Value})
}

// StringNode is a literal string value with escapes resolved.
type StringNode struct {
	Value string
}

// Type implements Node.
func (n *StringNode) Type() types.Type { return types.String }

// MarshalJSON implements json.Marshaler.
func (n *StringNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind  string `json:"kind"`
		Value string `json:"value"`
	}{"string", n.Value})
}

// SymbolNode is a named, unevaluated reference to a data field. The hint is
// whatever the bound context knew about the field at parse time.
type SymbolNode struct {
	Name string
	Hint types.Type
}

// Type implements Node.
func (n *SymbolNode) Type() types.Type { return n.Hint }

// MarshalJSON implements json.Marshaler.
func (n *SymbolNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
		Type string `json:"type"`
	}{"symbol", n.Name, n.Hint.String()})
}

// UnaryNode is a unary operation (only unary minus exists today).
type UnaryNode struct {
	Op      Operator
	Operand Node
}

// Type implements Node.
func (n *UnaryNode) Type() types.Type { return types.Float }

// MarshalJSON implements json.Marshaler.
func (n *UnaryNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    string `json:"kind"`
		Op      string `json:"op"`
		Operand Node   `json:"operand"`
	}{"unary", n.Op.String(), n.Operand})
}

type binaryJSON struct {
	Kind  string `json:"kind"`
	Op    string `json:"op"`
	Left  Node   `json:"left"`
	Right Node   `json:"right"`
}

// ArithmeticNode is a binary arithmetic operation over floats.
type ArithmeticNode struct {
	Op    Operator
	Left  Node
	Right Node
}

// Type implements Node.
func (n *ArithmeticNode) Type() types.Type { return types.Float }

// MarshalJSON implements json.Marshaler.
func (n *ArithmeticNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(binaryJSON{"arithmetic", n.Op.String(), n.Left, n.Right})
}

// BitwiseNode is a binary bitwise operation over natural-valued floats.
type BitwiseNode struct {
	Op    Operator
	Left  Node
	Right Node
}

// Type implements Node.
func (n *BitwiseNode) Type() types.Type { return types.Float }

// MarshalJSON implements json.Marshaler.
func (n *BitwiseNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(binaryJSON{"bitwise", n.Op.String(), n.Left, n.Right})
}

// ComparisonNode is a binary comparison, including the regex match and
// search operators.
type ComparisonNode struct {
	Op    Operator
	Left  Node
	Right Node
}

// Type implements Node.
func (n *ComparisonNode) Type() types.Type { return types.Boolean }

// MarshalJSON implements json.Marshaler.
func (n *ComparisonNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(binaryJSON{"comparison", n.Op.String(), n.Left, n.Right})
}

// LogicNode is a logical and/or over operand truthiness.
type LogicNode struct {
	Op    Operator
	Left  Node
	Right Node
}

// Type implements Node.
func (n *LogicNode) Type() types.Type { return types.Boolean }

// MarshalJSON implements json.Marshaler.
func (n *LogicNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(binaryJSON{"logic", n.Op.String(), n.Left, n.Right})
}

// TernaryNode is a conditional expression. Both branches are kept (each
// independently reduced) unless the condition is a literal boolean.
type TernaryNode struct {
	Condition Node
	IfTrue    Node
	IfFalse   Node
}

// Type implements Node.
func (n *TernaryNode) Type() types.Type {
	if t := n.IfTrue.Type(); t == n.IfFalse.Type() {
		return t
	}
	return types.Unknown
}

// MarshalJSON implements json.Marshaler.
func (n *TernaryNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind      string `json:"kind"`
		Condition Node   `json:"condition"`
		IfTrue    Node   `json:"if_true"`
		IfFalse   Node   `json:"if_false"`
	}{"ternary", n.Condition, n.IfTrue, n.IfFalse})
}
