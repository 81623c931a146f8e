// Query parser tests: --query argument strings in, Query predicate maps
// out, with malformed clauses rejected via ErrPredicateInvalid.
package jify

import "testing"

func TestParseQuerySingleClause(t *testing.T) {
	q, err := ParseQuery("age=30")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	pred, ok := q["age"]
	if !ok {
		t.Fatal("expected field \"age\" in parsed query")
	}
	v, ok := pred.eqValue()
	if !ok || v != float64(30) {
		t.Errorf("age predicate = %v, want Eq(30)", pred)
	}
}

func TestParseQueryConjunction(t *testing.T) {
	q, err := ParseQuery("age>=18,name=Alice")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if len(q) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(q))
	}
	if !q["age"].match(float64(18)) {
		t.Error("age>=18 should match 18")
	}
	if !q["name"].match("Alice") {
		t.Error("name=Alice should match \"Alice\"")
	}
}

func TestParseQueryOperators(t *testing.T) {
	cases := map[string]float64{
		"n<5":  4,
		"n<=5": 5,
		"n>5":  6,
		"n>=5": 5,
	}
	for clause, shouldMatch := range cases {
		q, err := ParseQuery(clause)
		if err != nil {
			t.Fatalf("ParseQuery(%q): %v", clause, err)
		}
		if !q["n"].match(shouldMatch) {
			t.Errorf("%q should match %v", clause, shouldMatch)
		}
	}
}

func TestParseQueryStringAndBoolLiterals(t *testing.T) {
	q, err := ParseQuery("active=true")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	v, _ := q["active"].eqValue()
	if v != true {
		t.Errorf("active literal = %#v, want true", v)
	}

	q, err = ParseQuery("city=Boston")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	v, _ = q["city"].eqValue()
	if v != "Boston" {
		t.Errorf("city literal = %#v, want \"Boston\"", v)
	}
}

func TestParseQueryEmpty(t *testing.T) {
	if _, err := ParseQuery(""); err == nil {
		t.Error("ParseQuery(\"\") should fail")
	}
}

func TestParseQueryMalformedClause(t *testing.T) {
	cases := []string{"noop", "=5", "age="}
	for _, c := range cases {
		if _, err := ParseQuery(c); err == nil {
			t.Errorf("ParseQuery(%q) should fail", c)
		}
	}
}
