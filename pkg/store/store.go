// Package store provides thread-safe in-memory storage for deployed rules.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RuleState represents the state of a stored rule.
type RuleState string

const (
	RuleActive RuleState = "ACTIVE"
)

// Rule represents a stored, validated rule.
type Rule struct {
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	Expression  string    `json:"expression"`
	State       RuleState `json:"state"`
	RevisionID  string    `json:"revisionId"`
	Symbols     []string  `json:"symbols"`
	CreateTime  time.Time `json:"createTime"`
	UpdateTime  time.Time `json:"updateTime"`
}

// Store is a thread-safe in-memory registry of rules.
type Store struct {
	mu    sync.RWMutex
	rules map[string]*Rule
}

// New creates a new empty store.
func New() *Store {
	return &Store{rules: make(map[string]*Rule)}
}

// CreateRule stores a new rule. The caller is expected to have validated the
// expression already (the API creates rules only after a successful parse).
func (s *Store) CreateRule(id, expression, description string, symbols []string) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; exists {
		return nil, fmt.Errorf("rule '%s' already exists", id)
	}

	now := time.Now()
	rule := &Rule{
		ID:          id,
		Description: description,
		Expression:  expression,
		State:       RuleActive,
		RevisionID:  uuid.NewString(),
		Symbols:     symbols,
		CreateTime:  now,
		UpdateTime:  now,
	}
	s.rules[id] = rule
	return rule.clone(), nil
}

// GetRule retrieves a rule by id.
func (s *Store) GetRule(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule '%s' not found", id)
	}
	return rule.clone(), nil
}

// ListRules returns all rules sorted by id.
func (s *Store) ListRules() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]*Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, rule.clone())
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// UpdateRule replaces a rule's expression and description, assigning a fresh
// revision id.
func (s *Store) UpdateRule(id, expression, description string, symbols []string) (*Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule '%s' not found", id)
	}

	if expression != "" {
		rule.Expression = expression
		rule.Symbols = symbols
	}
	if description != "" {
		rule.Description = description
	}
	rule.RevisionID = uuid.NewString()
	rule.UpdateTime = time.Now()
	return rule.clone(), nil
}

// DeleteRule removes a rule.
func (s *Store) DeleteRule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("rule '%s' not found", id)
	}
	delete(s.rules, id)
	return nil
}

// Replace swaps the entire rule set, used by the hot-reload path. Existing
// create times are preserved for rules whose id survives the reload.
func (s *Store) Replace(rules []*Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	next := make(map[string]*Rule, len(rules))
	for _, rule := range rules {
		r := rule.clone()
		if r.State == "" {
			r.State = RuleActive
		}
		if r.RevisionID == "" {
			r.RevisionID = uuid.NewString()
		}
		if r.CreateTime.IsZero() {
			r.CreateTime = now
		}
		if r.UpdateTime.IsZero() {
			r.UpdateTime = now
		}
		if prev, ok := s.rules[r.ID]; ok {
			r.CreateTime = prev.CreateTime
		}
		next[r.ID] = r
	}
	s.rules = next
}

// Len reports the number of stored rules.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

func (r *Rule) clone() *Rule {
	c := *r
	c.Symbols = append([]string(nil), r.Symbols...)
	return &c
}
