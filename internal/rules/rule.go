package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrRuleConfiguration marks a rule table that cannot be built.
var ErrRuleConfiguration = errors.New("rules: invalid configuration")

// ConfigurationError names the offending rule set.
type ConfigurationError struct {
	Rule   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rule %q: %s", e.Rule, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrRuleConfiguration }

// Operator selects how a candidate value is compared with rule keys.
type Operator string

const (
	// OpEquals is an exact lookup.
	OpEquals Operator = "equals"
	// OpContains fires when the rule key is a substring of the candidate.
	OpContains Operator = "contains"
	// OpContainsReverse fires when the candidate is a substring of the rule key.
	OpContainsReverse Operator = "contains_reverse"
)

// ParseOperator accepts the operator names used in rule files.
func ParseOperator(name string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "equals", "eq":
		return OpEquals, nil
	case "contains":
		return OpContains, nil
	case "contains_reverse":
		return OpContainsReverse, nil
	default:
		return "", fmt.Errorf("unknown operator %q", name)
	}
}

type resultKind uint8

const (
	kindNoMatch resultKind = iota
	kindNull
	kindCategory
)

// Result is the outcome of applying a rule. The zero value is NoMatch.
type Result struct {
	kind     resultKind
	category int
}

var (
	// NoMatch is the sentinel returned when no rule fired.
	NoMatch = Result{}
	// Null is a rule that fired and maps to "no category".
	Null = Result{kind: kindNull}
)

// Category builds a result pointing to a category id.
func Category(id int) Result { return Result{kind: kindCategory, category: id} }

// Fired reports whether the result differs from NoMatch.
func (r Result) Fired() bool { return r.kind != kindNoMatch }

// IsNull reports whether the result is the null category.
func (r Result) IsNull() bool { return r.kind == kindNull }

// CategoryID returns the category id when the result carries one.
func (r Result) CategoryID() (int, bool) {
	return r.category, r.kind == kindCategory
}

// Ptr returns the category as a nullable id; NoMatch and Null yield nil.
func (r Result) Ptr() *int {
	if r.kind != kindCategory {
		return nil
	}
	id := r.category
	return &id
}

func (r Result) String() string {
	switch r.kind {
	case kindNull:
		return "null"
	case kindCategory:
		return strconv.Itoa(r.category)
	default:
		return "no_match"
	}
}

// Entry is one raw value → target mapping of a rule.
type Entry struct {
	Key    string
	Target Result
}

// Rule is an operator applied over entries kept in declaration order.
type Rule struct {
	name    string
	op      Operator
	entries []Entry
	index   map[string]Result
}

// New builds a rule. Unknown operators and NoMatch targets are rejected here,
// never at apply time.
func New(name, operator string, entries []Entry) (*Rule, error) {
	op, err := ParseOperator(operator)
	if err != nil {
		return nil, &ConfigurationError{Rule: name, Reason: err.Error()}
	}

	r := &Rule{name: name, op: op, entries: make([]Entry, 0, len(entries))}
	if op == OpEquals {
		r.index = make(map[string]Result, len(entries))
	}
	for _, e := range entries {
		if !e.Target.Fired() {
			return nil, &ConfigurationError{Rule: name, Reason: fmt.Sprintf("key %q maps to the no-match sentinel", e.Key)}
		}
		if e.Key == "" {
			return nil, &ConfigurationError{Rule: name, Reason: "empty key"}
		}
		r.entries = append(r.entries, e)
		if r.index != nil {
			if _, dup := r.index[e.Key]; dup {
				return nil, &ConfigurationError{Rule: name, Reason: fmt.Sprintf("duplicate key %q", e.Key)}
			}
			r.index[e.Key] = e.Target
		}
	}
	return r, nil
}

// MustNew is New for static tables.
func MustNew(name, operator string, entries []Entry) *Rule {
	r, err := New(name, operator, entries)
	if err != nil {
		panic(err)
	}
	return r
}

// Name returns the rule set name.
func (r *Rule) Name() string { return r.name }

// Operator returns the comparison operator.
func (r *Rule) Operator() Operator { return r.op }

// Apply evaluates value against the rule.
func (r *Rule) Apply(value string) Result {
	if r == nil || value == "" {
		return NoMatch
	}
	switch r.op {
	case OpEquals:
		if res, ok := r.index[value]; ok {
			return res
		}
	case OpContains:
		for _, e := range r.entries {
			if strings.Contains(value, e.Key) {
				return e.Target
			}
		}
	case OpContainsReverse:
		for _, e := range r.entries {
			if strings.Contains(e.Key, value) {
				return e.Target
			}
		}
	}
	return NoMatch
}
