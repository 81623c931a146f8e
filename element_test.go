// Element scanner tests: direct coverage of scanElement's byte-counting
// classification, independent of the Store layered on top of it.
package jify

import (
	"strings"
	"testing"
)

func scan(t *testing.T, text string, position int64, parse bool) Element {
	t.Helper()
	br := NewByteReader(strings.NewReader(text), int64(len(text)), 0)
	el, err := scanElement(br, position, parse)
	if err != nil {
		t.Fatalf("scanElement(%q): %v", text, err)
	}
	return el
}

// TestScanElementObjectWithNestedStructure verifies that nested braces
// and brackets inside an object do not prematurely close it, even when a
// string value contains brace-like characters.
func TestScanElementObjectWithNestedStructure(t *testing.T) {
	text := `{"a":{"b":[1,2]},"c":"x}y"}`
	el := scan(t, text, 0, true)
	if el.Length != int64(len(text)) {
		t.Errorf("Length = %d, want %d", el.Length, len(text))
	}
	obj, ok := el.Value.(map[string]any)
	if !ok {
		t.Fatalf("Value = %T, want map[string]any", el.Value)
	}
	if _, ok := obj["c"]; !ok {
		t.Error("expected key \"c\" in parsed object")
	}
}

// TestScanElementSkipsLeadingWhitespaceAndCommas verifies that a scan
// starting just after a preceding element's trailing comma lands on the
// next value, not on the separator.
func TestScanElementSkipsLeadingWhitespaceAndCommas(t *testing.T) {
	text := ",  \n\t{\"x\":1}"
	el := scan(t, text, 0, false)
	if text[el.Start] != '{' {
		t.Errorf("scan landed on %q, want '{'", text[el.Start])
	}
}

// TestScanElementPrimitiveStopsAtDelimiter verifies that a bare number
// or literal is consumed up to (not including) the next delimiter.
func TestScanElementPrimitiveStopsAtDelimiter(t *testing.T) {
	text := `42,"next"]`
	el := scan(t, text, 0, true)
	if el.Value != float64(42) {
		t.Errorf("Value = %v, want 42", el.Value)
	}
	if el.Length != 2 {
		t.Errorf("Length = %d, want 2", el.Length)
	}
}

// TestScanElementEscapedQuoteInString verifies that an escaped quote
// inside a string value does not terminate the scan early.
func TestScanElementEscapedQuoteInString(t *testing.T) {
	text := `"a\"b"`
	el := scan(t, text, 0, true)
	if el.Value != `a"b` {
		t.Errorf("Value = %q, want %q", el.Value, `a"b`)
	}
}

// TestScanElementTrailingPrimitiveAtEOF verifies that a primitive value
// ending at end-of-file (no trailing delimiter) is still recognized.
func TestScanElementTrailingPrimitiveAtEOF(t *testing.T) {
	text := `true`
	el := scan(t, text, 0, true)
	if el.Value != true {
		t.Errorf("Value = %v, want true", el.Value)
	}
}
