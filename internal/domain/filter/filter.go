package filter

import (
	"strconv"
	"strings"
)

// Predicate is an immutable conjunction of clauses over catalog attributes.
// Relaxation stages compose new predicates; a Predicate is never mutated in
// place.
type Predicate struct {
	clauses []Clause
}

// New creates a predicate from the given clauses. No-op clauses (such as a
// NotIn with an empty value set) are dropped.
func New(clauses ...Clause) Predicate {
	kept := make([]Clause, 0, len(clauses))
	for _, c := range clauses {
		if c.isZero() {
			continue
		}
		kept = append(kept, c)
	}
	return Predicate{clauses: kept}
}

// And returns a new predicate with the clause appended.
func (p Predicate) And(c Clause) Predicate {
	if c.isZero() {
		return p
	}
	clauses := make([]Clause, 0, len(p.clauses)+1)
	clauses = append(clauses, p.clauses...)
	clauses = append(clauses, c)
	return Predicate{clauses: clauses}
}

// Clauses returns the predicate's clauses in composition order.
func (p Predicate) Clauses() []Clause { return p.clauses }

// IsEmpty reports whether the predicate has no clauses.
func (p Predicate) IsEmpty() bool { return len(p.clauses) == 0 }

// Render serializes the predicate as a boolean filter string understood by
// the search index, e.g.
//
//	color = "BLUE" AND price <= 500 AND handle NOT IN ["a", "b"]
//
// An empty predicate renders as "".
func (p Predicate) Render() string {
	if p.IsEmpty() {
		return ""
	}
	parts := make([]string, 0, len(p.clauses))
	for _, c := range p.clauses {
		parts = append(parts, c.render())
	}
	return strings.Join(parts, " AND ")
}

// Equal reports whether two predicates render to the same filter string.
// Used by the relaxation controller to skip stages that would repeat an
// earlier predicate verbatim.
func (p Predicate) Equal(other Predicate) bool {
	return p.Render() == other.Render()
}

type clauseKind int

const (
	kindEquals clauseKind = iota + 1
	kindAtMost
	kindNotIn
)

// Clause is a single filter condition. The zero Clause is a no-op.
type Clause struct {
	kind   clauseKind
	field  string
	value  string
	number float64
	set    []string
}

// Equals matches documents whose field equals value exactly.
func Equals(field, value string) Clause {
	if field == "" || value == "" {
		return Clause{}
	}
	return Clause{kind: kindEquals, field: field, value: value}
}

// AtMost matches documents whose numeric field is <= n.
func AtMost(field string, n float64) Clause {
	if field == "" {
		return Clause{}
	}
	return Clause{kind: kindAtMost, field: field, number: n}
}

// NotIn matches documents whose field is not one of values. An empty value
// set yields a no-op clause.
func NotIn(field string, values []string) Clause {
	if field == "" || len(values) == 0 {
		return Clause{}
	}
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return Clause{}
	}
	return Clause{kind: kindNotIn, field: field, set: kept}
}

// Field returns the attribute name this clause constrains.
func (c Clause) Field() string { return c.field }

func (c Clause) isZero() bool { return c.kind == 0 }

func (c Clause) render() string {
	switch c.kind {
	case kindEquals:
		return c.field + ` = ` + quote(c.value)
	case kindAtMost:
		return c.field + ` <= ` + strconv.FormatFloat(c.number, 'f', -1, 64)
	case kindNotIn:
		quoted := make([]string, len(c.set))
		for i, v := range c.set {
			quoted[i] = quote(v)
		}
		return c.field + ` NOT IN [` + strings.Join(quoted, ", ") + `]`
	default:
		return ""
	}
}

func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}
