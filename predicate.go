// Predicate: the seek/match contract a skip-list descent is driven by.
// seek tells the descent whether an entry's value is still too small to
// possibly be the start of a match (negative, keep advancing) or has
// reached-or-passed it (non-negative, stop and descend a level); match
// is the actual inclusion test applied while walking level 0 forward
// from wherever the descent landed.
package jify

// predicateOp enumerates the comparison shapes find() supports.
type predicateOp int

const (
	opEq predicateOp = iota
	opLt
	opLte
	opGt
	opGte
	opRange
)

// Predicate is an equality, comparison or range test over a field's
// comparison key. Construct one with Eq/Lt/Lte/Gt/Gte/Range.
type Predicate struct {
	op     predicateOp
	lo, hi any
	incLo  bool
	incHi  bool
}

// Eq matches values equal to v.
func Eq(v any) Predicate { return Predicate{op: opEq, lo: v} }

// Lt matches values strictly less than v.
func Lt(v any) Predicate { return Predicate{op: opLt, hi: v} }

// Lte matches values less than or equal to v.
func Lte(v any) Predicate { return Predicate{op: opLte, hi: v} }

// Gt matches values strictly greater than v.
func Gt(v any) Predicate { return Predicate{op: opGt, lo: v} }

// Gte matches values greater than or equal to v.
func Gte(v any) Predicate { return Predicate{op: opGte, lo: v} }

// Range matches values between lo and hi, each inclusive or exclusive
// per incLo/incHi — e.g. Range(a, true, b, false) is "a <= x < b".
func Range(lo any, incLo bool, hi any, incHi bool) Predicate {
	return Predicate{op: opRange, lo: lo, hi: hi, incLo: incLo, incHi: incHi}
}

// resolveDates re-expresses any string bounds (RFC 3339 timestamps) as
// the float64 comparison key date-time fields store, for a predicate
// being evaluated against a "date-time" field.
func (p Predicate) resolveDates() (Predicate, error) {
	r := p
	if s, ok := r.lo.(string); ok {
		v, err := parseDate(s)
		if err != nil {
			return Predicate{}, err
		}
		r.lo = v
	}
	if s, ok := r.hi.(string); ok {
		v, err := parseDate(s)
		if err != nil {
			return Predicate{}, err
		}
		r.hi = v
	}
	return r, nil
}

// eqValue reports the equality target for an opEq predicate, letting
// callers short-circuit via a bloom filter before paying for a descent.
func (p Predicate) eqValue() (any, bool) {
	if p.op != opEq {
		return nil, false
	}
	return p.lo, true
}

// seek reports whether stored is still strictly too small to be part of
// a match (negative) or has reached-or-passed the start of the matching
// region (non-negative).
func (p Predicate) seek(stored any) int {
	switch p.op {
	case opEq:
		return compareValue(stored, p.lo)
	case opLt, opLte:
		// No lower bound to aim for: the descent must not advance past
		// the header at any level, so the forward walk starts at the
		// very first entry. Signal "stop" immediately rather than
		// "keep advancing", which would walk to the last entry at
		// each level instead.
		return 1
	case opGt:
		if compareValue(stored, p.lo) <= 0 {
			return -1
		}
		return 1
	case opGte:
		if compareValue(stored, p.lo) < 0 {
			return -1
		}
		return 1
	case opRange:
		if p.incLo {
			if compareValue(stored, p.lo) < 0 {
				return -1
			}
			return 1
		}
		if compareValue(stored, p.lo) <= 0 {
			return -1
		}
		return 1
	default:
		return 1
	}
}

// match is the actual inclusion test.
func (p Predicate) match(stored any) bool {
	switch p.op {
	case opEq:
		return compareValue(stored, p.lo) == 0
	case opLt:
		return compareValue(stored, p.hi) < 0
	case opLte:
		return compareValue(stored, p.hi) <= 0
	case opGt:
		return compareValue(stored, p.lo) > 0
	case opGte:
		return compareValue(stored, p.lo) >= 0
	case opRange:
		lo := compareValue(stored, p.lo)
		hi := compareValue(stored, p.hi)
		okLo := lo > 0 || (p.incLo && lo == 0)
		okHi := hi < 0 || (p.incHi && hi == 0)
		return okLo && okHi
	default:
		return false
	}
}
