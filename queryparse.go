// Query-string parser: turns a CLI --query argument of the form
// "field<op>value[,field<op>value...]" into a per-field predicate map, a
// conjunction within one query. Supported operators: =, <, >, <=, >=.
package jify

import (
	"fmt"
	"strconv"
	"strings"
)

// Query is one conjunction of field -> Predicate, the unit Database.Find
// evaluates together and returns the intersection of.
type Query map[string]Predicate

var queryOps = []string{"<=", ">=", "=", "<", ">"}

// ParseQuery parses one --query argument into a Query. A malformed clause
// returns ErrPredicateInvalid wrapped with the offending text.
func ParseQuery(s string) (Query, error) {
	q := make(Query)
	for _, clause := range strings.Split(s, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		field, pred, err := parseClause(clause)
		if err != nil {
			return nil, err
		}
		q[field] = pred
	}
	if len(q) == 0 {
		return nil, fmt.Errorf("jify: empty query: %w", ErrPredicateInvalid)
	}
	return q, nil
}

func parseClause(clause string) (string, Predicate, error) {
	for _, op := range queryOps {
		idx := strings.Index(clause, op)
		if idx <= 0 {
			continue
		}
		field := strings.TrimSpace(clause[:idx])
		raw := strings.TrimSpace(clause[idx+len(op):])
		if field == "" || raw == "" {
			break
		}
		value := parseLiteral(raw)
		switch op {
		case "=":
			return field, Eq(value), nil
		case "<":
			return field, Lt(value), nil
		case ">":
			return field, Gt(value), nil
		case "<=":
			return field, Lte(value), nil
		case ">=":
			return field, Gte(value), nil
		}
	}
	return "", Predicate{}, fmt.Errorf("jify: malformed predicate %q: %w", clause, ErrPredicateInvalid)
}

// parseLiteral interprets raw as a number or bool when it unambiguously
// parses as one, falling back to a raw string (also jify's representation
// of a date-time literal, resolved later against the field's type).
func parseLiteral(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
