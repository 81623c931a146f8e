// Predicate tests: the seek/match contract that drives a skip-list
// descent, checked independently of any actual skip list.
package jify

import "testing"

func TestPredicateMatchEq(t *testing.T) {
	p := Eq(float64(5))
	if !p.match(float64(5)) {
		t.Error("Eq(5).match(5) should be true")
	}
	if p.match(float64(6)) {
		t.Error("Eq(5).match(6) should be false")
	}
}

func TestPredicateMatchRangeInclusiveExclusive(t *testing.T) {
	p := Range(float64(10), true, float64(20), false)
	cases := []struct {
		v    float64
		want bool
	}{
		{9, false}, {10, true}, {15, true}, {20, false}, {21, false},
	}
	for _, c := range cases {
		if got := p.match(c.v); got != c.want {
			t.Errorf("Range(10,true,20,false).match(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}

// TestPredicateSeekOpenLowerBoundStopsImmediately verifies that Lt/Lte
// (no lower bound) signal "stop" on the very first entry a descent
// considers, so the descent never advances past the header and the
// forward walk starts at the first entry in the list.
func TestPredicateSeekOpenLowerBoundStopsImmediately(t *testing.T) {
	for _, p := range []Predicate{Lt(float64(5)), Lte(float64(5))} {
		if p.seek(float64(1000)) < 0 {
			t.Errorf("seek on open-lower-bound predicate should signal stop immediately")
		}
	}
}

func TestPredicateSeekRespectsInclusivity(t *testing.T) {
	incl := Gte(float64(10))
	if incl.seek(float64(10)) < 0 {
		t.Error("Gte(10).seek(10) should stop (10 is itself a match)")
	}
	excl := Gt(float64(10))
	if excl.seek(float64(10)) >= 0 {
		t.Error("Gt(10).seek(10) should keep advancing (10 is not a match)")
	}
}

func TestPredicateEqValue(t *testing.T) {
	v, ok := Eq("x").eqValue()
	if !ok || v != "x" {
		t.Errorf("Eq(x).eqValue() = (%v, %v), want (x, true)", v, ok)
	}
	if _, ok := Lt(float64(1)).eqValue(); ok {
		t.Error("Lt(1).eqValue() should report ok=false")
	}
}

func TestPredicateResolveDates(t *testing.T) {
	p := Range("2020-01-01T00:00:00Z", true, "2021-01-01T00:00:00Z", false)
	resolved, err := p.resolveDates()
	if err != nil {
		t.Fatalf("resolveDates: %v", err)
	}
	lo, ok := resolved.lo.(float64)
	if !ok {
		t.Fatalf("resolveDates: lo is %T, want float64", resolved.lo)
	}
	hi, ok := resolved.hi.(float64)
	if !ok {
		t.Fatalf("resolveDates: hi is %T, want float64", resolved.hi)
	}
	if lo >= hi {
		t.Errorf("resolved lo (%v) should be before hi (%v)", lo, hi)
	}
}

func TestPredicateResolveDatesInvalid(t *testing.T) {
	p := Eq("not-a-date")
	_, err := p.resolveDates()
	if err != ErrInvalidFormat {
		t.Errorf("resolveDates(bad date): got %v, want ErrInvalidFormat", err)
	}
}

func TestCompareValueCrossType(t *testing.T) {
	if compareValue(nil, false) >= 0 {
		t.Error("nil should rank below bool")
	}
	if compareValue(false, float64(0)) >= 0 {
		t.Error("bool should rank below number")
	}
	if compareValue(float64(0), "") >= 0 {
		t.Error("number should rank below string")
	}
}
