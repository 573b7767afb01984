// Package types defines the static type hints attached to rule-expression
// symbols. A hint is what the surrounding application knows about a data
// field before any data exists; the parser uses it to validate and fold
// expressions early.
package types

// Type is the statically-known type of a symbol or expression.
type Type int

const (
	Unknown Type = iota
	Boolean
	Float
	String
)

// String returns the type name as used in rule files and error messages.
func (t Type) String() string {
	switch t {
	case Unknown:
		return "unknown"
	case Boolean:
		return "boolean"
	case Float:
		return "float"
	case String:
		return "string"
	default:
		return "invalid"
	}
}

// Parse maps a type name from a rule file to a Type. Unrecognized names
// report false.
func Parse(name string) (Type, bool) {
	switch name {
	case "unknown", "":
		return Unknown, true
	case "boolean", "bool":
		return Boolean, true
	case "float", "number":
		return Float, true
	case "string":
		return String, true
	default:
		return Unknown, false
	}
}
