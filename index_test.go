// Index tests: field registration, transaction flags, and skip-list
// Insert/Find at the Index level, independent of Database.
package jify

import (
	"path/filepath"
	"testing"
)

func newTestIndex(t *testing.T, fields ...FieldSpec) *Index {
	t.Helper()
	dir := t.TempDir()
	ix := NewIndex(filepath.Join(dir, "idx.json"))
	if err := ix.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(fields) > 0 {
		if err := ix.AddFields(fields); err != nil {
			t.Fatalf("AddFields: %v", err)
		}
	}
	return ix
}

// TestAddFieldsIdempotent verifies that registering the same field twice
// leaves exactly one header entry, since AddFields skips names already
// present in the header chain.
func TestAddFieldsIdempotent(t *testing.T) {
	ix := newTestIndex(t, FieldSpec{Name: "age"})
	if err := ix.AddFields([]FieldSpec{{Name: "age"}, {Name: "city"}}); err != nil {
		t.Fatalf("AddFields: %v", err)
	}
	metas, err := ix.Fields()
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("Fields: got %d, want 2 (age, city)", len(metas))
	}
}

// TestFindFieldMissingReturnsErrFieldMissing verifies that querying an
// unregistered field fails clearly rather than silently returning no
// matches.
func TestFindFieldMissingReturnsErrFieldMissing(t *testing.T) {
	ix := newTestIndex(t, FieldSpec{Name: "age"})
	if _, err := ix.Find("nonexistent", Eq(float64(1))); err != ErrFieldMissing {
		t.Errorf("Find(missing field): got %v, want ErrFieldMissing", err)
	}
}

// TestIndexInsertFindBasic verifies the straightforward Insert-then-Find
// round trip for unique values.
func TestIndexInsertFindBasic(t *testing.T) {
	ix := newTestIndex(t, FieldSpec{Name: "age"})
	items := []InsertItem{
		{Value: float64(30), RecordOffset: 100},
		{Value: float64(20), RecordOffset: 200},
		{Value: float64(40), RecordOffset: 300},
	}
	if err := ix.Insert("age", items); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := ix.Find("age", Eq(float64(30)))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 1 || got[0] != 100 {
		t.Errorf("Find(age=30) = %v, want [100]", got)
	}

	got, err = ix.Find("age", Gte(float64(30)))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Find(age>=30) = %v, want 2 results", got)
	}
}

// TestIndexFindOpenLowerBound verifies that Lt/Lte start their forward
// walk from the very first skip-list entry rather than the last one a
// higher-level descent happens to land on. Enough values are inserted
// that at least one node almost certainly reaches level >= 1, which is
// what exposed the original descent bug.
func TestIndexFindOpenLowerBound(t *testing.T) {
	ix := newTestIndex(t, FieldSpec{Name: "age"})
	items := make([]InsertItem, 0, 30)
	for i := 0; i < 30; i++ {
		items = append(items, InsertItem{Value: float64(i), RecordOffset: int64(i)})
	}
	if err := ix.Insert("age", items); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := ix.Find("age", Lt(float64(5)))
	if err != nil {
		t.Fatalf("Find(age<5): %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("Find(age<5) = %v, want 5 results (ages 0-4)", got)
	}
	seen := map[int64]bool{}
	for _, o := range got {
		seen[o] = true
	}
	for i := int64(0); i < 5; i++ {
		if !seen[i] {
			t.Errorf("Find(age<5) missing record offset %d", i)
		}
	}

	got, err = ix.Find("age", Lte(float64(0)))
	if err != nil {
		t.Fatalf("Find(age<=0): %v", err)
	}
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("Find(age<=0) = %v, want [0]", got)
	}
}

// TestIndexInsertDuplicateValuesChain verifies that inserting the same
// value twice links both record offsets off one skip-list node instead
// of creating two nodes.
func TestIndexInsertDuplicateValuesChain(t *testing.T) {
	ix := newTestIndex(t, FieldSpec{Name: "city"})
	items := []InsertItem{
		{Value: "Boston", RecordOffset: 10},
		{Value: "Boston", RecordOffset: 20},
		{Value: "Boston", RecordOffset: 30},
	}
	if err := ix.Insert("city", items); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := ix.Find("city", Eq("Boston"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Find(city=Boston) = %v, want 3 offsets", got)
	}
	seen := map[int64]bool{}
	for _, o := range got {
		seen[o] = true
	}
	for _, want := range []int64{10, 20, 30} {
		if !seen[want] {
			t.Errorf("missing offset %d in %v", want, got)
		}
	}
}

// TestIndexTransactionFlag verifies that BeginTransaction marks a field
// tx=1, that Find on a tx=1 field fails with ErrFieldInTransaction, and
// that EndTransaction clears the flag again.
func TestIndexTransactionFlag(t *testing.T) {
	ix := newTestIndex(t, FieldSpec{Name: "age"})
	if err := ix.BeginTransaction("age"); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}

	metas, err := ix.Fields()
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	if metas[0].Tx != 1 {
		t.Errorf("Tx = %d after BeginTransaction, want 1", metas[0].Tx)
	}

	if _, err := ix.Find("age", Eq(float64(1))); err != ErrFieldInTransaction {
		t.Errorf("Find on tx=1 field: got %v, want ErrFieldInTransaction", err)
	}

	if err := ix.EndTransaction("age"); err != nil {
		t.Fatalf("EndTransaction: %v", err)
	}
	metas, err = ix.Fields()
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	if metas[0].Tx != 0 {
		t.Errorf("Tx = %d after EndTransaction, want 0", metas[0].Tx)
	}
}

// TestIndexFindDateTimeField verifies that a "date-time" field accepts
// RFC 3339 string literals for both inserted values and query bounds,
// comparing them by parsed instant rather than lexical order.
func TestIndexFindDateTimeField(t *testing.T) {
	ix := newTestIndex(t, FieldSpec{Name: "created", Type: "date-time"})
	items := []InsertItem{
		{Value: "2020-06-01T00:00:00Z", RecordOffset: 1},
		{Value: "2021-06-01T00:00:00Z", RecordOffset: 2},
		{Value: "2022-06-01T00:00:00Z", RecordOffset: 3},
	}
	if err := ix.Insert("created", items); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := ix.Find("created", Range("2020-12-01T00:00:00Z", true, "2022-01-01T00:00:00Z", true))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("Find(date range) = %v, want [2]", got)
	}
}

// TestIndexBloomShortCircuitsMiss verifies that an equality query for a
// value never inserted returns no results without error, exercising the
// bloom-filter fast path in Find.
func TestIndexBloomShortCircuitsMiss(t *testing.T) {
	ix := newTestIndex(t, FieldSpec{Name: "age"})
	if err := ix.Insert("age", []InsertItem{{Value: float64(5), RecordOffset: 1}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := ix.Find("age", Eq(float64(999)))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Find(age=999) = %v, want no results", got)
	}
}

// TestIndexBloomInvalidatedByInsert verifies that a value inserted after
// the bloom filter for its field was first built is still found — the
// cache entry must be invalidated by Insert, or this would be a false
// negative.
func TestIndexBloomInvalidatedByInsert(t *testing.T) {
	ix := newTestIndex(t, FieldSpec{Name: "age"})
	if err := ix.Insert("age", []InsertItem{{Value: float64(1), RecordOffset: 1}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// Force the bloom filter to build and cache over the current contents.
	if _, err := ix.Find("age", Eq(float64(1))); err != nil {
		t.Fatalf("Find: %v", err)
	}
	if err := ix.Insert("age", []InsertItem{{Value: float64(2), RecordOffset: 2}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := ix.Find("age", Eq(float64(2)))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("Find(age=2) after second Insert = %v, want [2]", got)
	}
}
