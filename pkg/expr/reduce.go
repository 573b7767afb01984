package expr

import (
	"math"
	"regexp"

	"github.com/lemonberrylabs/rulekit/pkg/types"
)

// reduce eagerly simplifies a freshly-constructed node. It either returns a
// replacement literal node (constant folding), fails with a *SemanticError
// when operand types are statically known and incompatible, or returns the
// node unchanged for the evaluator to resolve against data.
//
// The compatibility matrix:
//
//	arithmetic  + - * / // % **   float x float
//	bitwise     & | ^ << >>       float x float, folded values must be naturals
//	equality    == !=             any x any (mismatched literal kinds are unequal)
//	ordering    < <= > >=         float x float, string x string
//	regex       =~ =~~ !~ !~~     string x string (right side is the pattern)
//	logic       and or            any x any, folded via truthiness
//	unary       -                 float
//
// Reduction is node-local: it inspects only the node's direct children,
// which are themselves already reduced.
func reduce(n Node) (Node, error) {
	switch node := n.(type) {
	case *BooleanNode, *FloatNode, *StringNode, *SymbolNode:
		return n, nil

	case *UnaryNode:
		return reduceUnary(node)

	case *ArithmeticNode:
		return reduceArithmetic(node)

	case *BitwiseNode:
		return reduceBitwise(node)

	case *ComparisonNode:
		return reduceComparison(node)

	case *LogicNode:
		return reduceLogic(node)

	case *TernaryNode:
		return reduceTernary(node)

	default:
		return n, nil
	}
}

func reduceUnary(n *UnaryNode) (Node, error) {
	if t := n.Operand.Type(); t != types.Unknown && t != types.Float {
		return nil, semanticErrorf("operator %s requires a float operand, not %s", n.Op, t)
	}
	if operand, ok := n.Operand.(*FloatNode); ok {
		return &FloatNode{Value: -operand.Value}, nil
	}
	return n, nil
}

func reduceArithmetic(n *ArithmeticNode) (Node, error) {
	if err := requireFloats(n.Op, n.Left, n.Right); err != nil {
		return nil, err
	}

	left, lok := n.Left.(*FloatNode)
	right, rok := n.Right.(*FloatNode)
	if !lok || !rok {
		return n, nil
	}

	l, r := left.Value, right.Value
	var v float64
	switch n.Op {
	case OpAdd:
		v = l + r
	case OpSub:
		v = l - r
	case OpMul:
		v = l * r
	case OpPow:
		v = math.Pow(l, r)
	case OpTDiv:
		if r == 0 {
			return nil, semanticErrorf("division by zero")
		}
		v = l / r
	case OpFDiv:
		if r == 0 {
			return nil, semanticErrorf("division by zero")
		}
		v = math.Floor(l / r)
	case OpMod:
		if r == 0 {
			return nil, semanticErrorf("division by zero")
		}
		v = math.Mod(l, r)
	default:
		return n, nil
	}
	return &FloatNode{Value: v}, nil
}

func reduceBitwise(n *BitwiseNode) (Node, error) {
	if err := requireFloats(n.Op, n.Left, n.Right); err != nil {
		return nil, err
	}

	left, lok := n.Left.(*FloatNode)
	right, rok := n.Right.(*FloatNode)
	if !lok || !rok {
		return n, nil
	}

	l, err := asNatural(n.Op, left.Value)
	if err != nil {
		return nil, err
	}
	r, err := asNatural(n.Op, right.Value)
	if err != nil {
		return nil, err
	}

	var v uint64
	switch n.Op {
	case OpBWAnd:
		v = l & r
	case OpBWOr:
		v = l | r
	case OpBWXor:
		v = l ^ r
	case OpBWLsh:
		v = l << r
	case OpBWRsh:
		v = l >> r
	default:
		return n, nil
	}
	return &FloatNode{Value: float64(v)}, nil
}

func reduceComparison(n *ComparisonNode) (Node, error) {
	switch n.Op {
	case OpEq, OpNe:
		return reduceEquality(n)
	case OpGt, OpGe, OpLt, OpLe:
		return reduceOrdering(n)
	default:
		return reduceRegex(n)
	}
}

// reduceEquality folds == and !=. Equality is defined for every type pair;
// literals of different kinds are simply unequal, never a static error.
func reduceEquality(n *ComparisonNode) (Node, error) {
	if !isLiteral(n.Left) || !isLiteral(n.Right) {
		return n, nil
	}

	equal := false
	switch left := n.Left.(type) {
	case *BooleanNode:
		if right, ok := n.Right.(*BooleanNode); ok {
			equal = left.Value == right.Value
		}
	case *FloatNode:
		if right, ok := n.Right.(*FloatNode); ok {
			equal = left.Value == right.Value
		}
	case *StringNode:
		if right, ok := n.Right.(*StringNode); ok {
			equal = left.Value == right.Value
		}
	}
	if n.Op == OpNe {
		equal = !equal
	}
	return &BooleanNode{Value: equal}, nil
}

func reduceOrdering(n *ComparisonNode) (Node, error) {
	lt, rt := n.Left.Type(), n.Right.Type()
	for _, t := range []types.Type{lt, rt} {
		if t != types.Unknown && t != types.Float && t != types.String {
			return nil, semanticErrorf("operator %s is not defined for %s operands", n.Op, t)
		}
	}
	if lt != types.Unknown && rt != types.Unknown && lt != rt {
		return nil, semanticErrorf("operator %s requires operands of the same type (%s vs %s)", n.Op, lt, rt)
	}

	if left, lok := n.Left.(*FloatNode); lok {
		if right, rok := n.Right.(*FloatNode); rok {
			return &BooleanNode{Value: compareFloats(n.Op, left.Value, right.Value)}, nil
		}
	}
	if left, lok := n.Left.(*StringNode); lok {
		if right, rok := n.Right.(*StringNode); rok {
			return &BooleanNode{Value: compareStrings(n.Op, left.Value, right.Value)}, nil
		}
	}
	return n, nil
}

// reduceRegex handles =~ / =~~ and their negations. The right operand is the
// pattern; the match forms anchor it at the start of the subject while the
// search forms match anywhere. A literal pattern is compiled at parse time
// even when the subject is a symbol, so a malformed pattern fails fast.
func reduceRegex(n *ComparisonNode) (Node, error) {
	if t := n.Left.Type(); t != types.Unknown && t != types.String {
		return nil, semanticErrorf("operator %s requires a string subject, not %s", n.Op, t)
	}
	if t := n.Right.Type(); t != types.Unknown && t != types.String {
		return nil, semanticErrorf("operator %s requires a string pattern, not %s", n.Op, t)
	}

	pattern, ok := n.Right.(*StringNode)
	if !ok {
		return n, nil
	}

	expr := pattern.Value
	if n.Op == OpEqRem || n.Op == OpNeRem {
		expr = "^(?:" + pattern.Value + ")"
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, semanticErrorf("invalid regular expression %q: %v", pattern.Value, err)
	}

	subject, ok := n.Left.(*StringNode)
	if !ok {
		return n, nil
	}

	matched := re.MatchString(subject.Value)
	if n.Op == OpNeRem || n.Op == OpNeRes {
		matched = !matched
	}
	return &BooleanNode{Value: matched}, nil
}

// reduceLogic folds and/or only when both operands are literal. A one-sided
// fold (e.g. "a or true") is deliberately not performed: the evaluator's
// contract is to observe every referenced symbol.
func reduceLogic(n *LogicNode) (Node, error) {
	l, lok := truthiness(n.Left)
	r, rok := truthiness(n.Right)
	if !lok || !rok {
		return n, nil
	}
	if n.Op == OpAnd {
		return &BooleanNode{Value: l && r}, nil
	}
	return &BooleanNode{Value: l || r}, nil
}

// reduceTernary folds only when the condition is a literal boolean. Other
// literal conditions keep both branches; their truthiness is the evaluator's
// concern.
func reduceTernary(n *TernaryNode) (Node, error) {
	if cond, ok := n.Condition.(*BooleanNode); ok {
		if cond.Value {
			return n.IfTrue, nil
		}
		return n.IfFalse, nil
	}
	return n, nil
}

func requireFloats(op Operator, left, right Node) error {
	for _, operand := range []Node{left, right} {
		if t := operand.Type(); t != types.Unknown && t != types.Float {
			return semanticErrorf("operator %s requires float operands, not %s", op, t)
		}
	}
	return nil
}

// asNatural converts a folded bitwise operand, requiring a non-negative
// integral value.
func asNatural(op Operator, v float64) (uint64, error) {
	if v < 0 || v != math.Trunc(v) {
		return 0, semanticErrorf("operator %s requires natural number operands, got %v", op, v)
	}
	return uint64(v), nil
}

func isLiteral(n Node) bool {
	switch n.(type) {
	case *BooleanNode, *FloatNode, *StringNode:
		return true
	}
	return false
}

// truthiness reports the boolean value of a literal node; false and 0 and
// the empty string are falsey. Non-literal nodes report ok=false.
func truthiness(n Node) (value, ok bool) {
	switch node := n.(type) {
	case *BooleanNode:
		return node.Value, true
	case *FloatNode:
		return node.Value != 0, true
	case *StringNode:
		return node.Value != "", true
	}
	return false, false
}

func compareFloats(op Operator, l, r float64) bool {
	switch op {
	case OpGt:
		return l > r
	case OpGe:
		return l >= r
	case OpLt:
		return l < r
	default:
		return l <= r
	}
}

func compareStrings(op Operator, l, r string) bool {
	switch op {
	case OpGt:
		return l > r
	case OpGe:
		return l >= r
	case OpLt:
		return l < r
	default:
		return l <= r
	}
}
