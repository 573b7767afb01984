package ruleset

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/rulekit/pkg/expr"
	"github.com/lemonberrylabs/rulekit/pkg/types"
)

var validRuleID = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidID reports whether id is acceptable as a rule identifier.
func ValidID(id string) bool {
	return id != "" && len(id) <= 128 && validRuleID.MatchString(id)
}

// fileDoc is the on-disk YAML shape of a rule file.
type fileDoc struct {
	Fields map[string]string `yaml:"fields"`
	Strict bool              `yaml:"strict"`
	Rules  []ruleDoc         `yaml:"rules"`
}

type ruleDoc struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Expression  string `yaml:"expression"`
}

// Rule is one compiled rule.
type Rule struct {
	ID          string
	Description string
	Expression  string
	Statement   *expr.Statement
	Symbols     []string // fields the rule references, sorted
}

// Ruleset is the compiled form of a rule file.
type Ruleset struct {
	Fields map[string]types.Type
	Rules  []*Rule
}

// Load reads and compiles a rule file from disk.
func Load(path string, parser *expr.Parser) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	rs, err := Parse(data, parser)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// Parse compiles a YAML rule document. Every rule is parsed with the shared
// parser; all rule errors are collected and reported together rather than
// stopping at the first bad rule.
func Parse(data []byte, parser *expr.Parser) (*Ruleset, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid rule file: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, errors.New("rule file declares no rules")
	}

	fields := make(map[string]types.Type, len(doc.Fields))
	for name, typeName := range doc.Fields {
		t, ok := types.Parse(typeName)
		if !ok {
			return nil, fmt.Errorf("field %q: unknown type %q", name, typeName)
		}
		fields[name] = t
	}

	rs := &Ruleset{Fields: fields, Rules: make([]*Rule, 0, len(doc.Rules))}
	seen := make(map[string]struct{}, len(doc.Rules))
	var errs []error

	for i, rd := range doc.Rules {
		rule, err := compileRule(i, rd, doc.Strict, fields, parser)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[rule.ID]; dup {
			errs = append(errs, fmt.Errorf("rule %q: duplicate id", rule.ID))
			continue
		}
		seen[rule.ID] = struct{}{}
		rs.Rules = append(rs.Rules, rule)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rs, nil
}

func compileRule(index int, rd ruleDoc, strict bool, fields map[string]types.Type, parser *expr.Parser) (*Rule, error) {
	if rd.ID == "" {
		return nil, fmt.Errorf("rule #%d: missing id", index+1)
	}
	if !validRuleID.MatchString(rd.ID) || len(rd.ID) > 128 {
		return nil, fmt.Errorf("rule #%d: invalid id %q", index+1, rd.ID)
	}
	if rd.Expression == "" {
		return nil, fmt.Errorf("rule %q: missing expression", rd.ID)
	}

	ctx := NewFieldContext(fields)
	stmt, err := parser.Parse(rd.Expression, ctx)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", rd.ID, err)
	}

	symbols := ctx.Symbols()
	if strict {
		for _, name := range symbols {
			if _, ok := fields[name]; !ok {
				return nil, fmt.Errorf("rule %q: references undeclared field %q", rd.ID, name)
			}
		}
	}

	return &Rule{
		ID:          rd.ID,
		Description: rd.Description,
		Expression:  rd.Expression,
		Statement:   stmt,
		Symbols:     symbols,
	}, nil
}
