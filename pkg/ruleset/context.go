// Package ruleset loads YAML rule files: a set of field type declarations
// plus named rule expressions, each compiled through a shared parser at load
// time. It also provides the file watcher used for hot reload.
package ruleset

import (
	"sort"

	"github.com/lemonberrylabs/rulekit/pkg/types"
)

// FieldContext implements expr.Context on top of declared field types. It
// records every symbol the grammar reports and answers type lookups from the
// declaration table, defaulting to unknown.
type FieldContext struct {
	hints   map[string]types.Type
	symbols map[string]struct{}
}

// NewFieldContext creates a context with the given field type declarations.
// A nil map declares nothing; every symbol then resolves to unknown.
func NewFieldContext(hints map[string]types.Type) *FieldContext {
	return &FieldContext{
		hints:   hints,
		symbols: make(map[string]struct{}),
	}
}

// AddSymbol records a referenced symbol. Repeated additions are fine.
func (c *FieldContext) AddSymbol(name string) {
	c.symbols[name] = struct{}{}
}

// ResolveType reports the declared type of a field, or unknown.
func (c *FieldContext) ResolveType(name string) types.Type {
	return c.hints[name]
}

// Symbols returns the recorded symbol names, sorted.
func (c *FieldContext) Symbols() []string {
	names := make([]string, 0, len(c.symbols))
	for name := range c.symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
