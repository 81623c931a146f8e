// JSON-element scanner: given a byte stream positioned anywhere inside or
// just before a JSON value, locates the value's exact byte range without
// necessarily parsing it, so the store can append/locate/iterate array
// elements purely by counting bytes.
package jify

import (
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// Element describes a JSON value's location inside a file, and
// optionally its decoded form.
type Element struct {
	Start  int64
	Length int64
	Value  any // nil unless scanElement was asked to parse
}

// scanElement walks br forward from position, skipping whitespace and
// commas, classifies the first non-space byte, and consumes exactly one
// JSON value. If parse is true the consumed bytes are unmarshalled into
// Element.Value with goccy/go-json.
func scanElement(br *ByteReader, position int64, parse bool) (Element, error) {
	const (
		classNone = iota
		classObject
		classArray
		classString
		classPrimitive
	)

	class := classNone
	var start int64 = -1
	var end int64 = -1
	depth := 0
	inString := false
	escaping := false
	var buf []byte

	for offset, r := range br.Read(position, false) {
		if class == classNone {
			switch {
			case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ',':
				continue
			case r == '{':
				class, depth, start = classObject, 1, offset
			case r == '[':
				class, depth, start = classArray, 1, offset
			case r == '"':
				class, inString, start = classString, true, offset
			default:
				class, start = classPrimitive, offset
			}
			if parse {
				buf = appendRune(buf, r)
			}
			end = offset + int64(runeLen(r))
			continue
		}

		switch class {
		case classObject, classArray:
			if inString {
				switch {
				case escaping:
					escaping = false
				case r == '\\':
					escaping = true
				case r == '"':
					inString = false
				}
			} else {
				switch r {
				case '"':
					inString = true
				case '{', '[':
					depth++
				case '}', ']':
					depth--
				}
			}
			if parse {
				buf = appendRune(buf, r)
			}
			end = offset + int64(runeLen(r))
			if depth == 0 {
				return finishElement(class, start, end, buf, parse)
			}

		case classString:
			if escaping {
				escaping = false
			} else if r == '\\' {
				escaping = true
			} else if r == '"' {
				if parse {
					buf = appendRune(buf, r)
				}
				end = offset + int64(runeLen(r))
				return finishElement(class, start, end, buf, parse)
			}
			if parse {
				buf = appendRune(buf, r)
			}
			end = offset + int64(runeLen(r))

		case classPrimitive:
			if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ',' || r == '}' || r == ']' {
				return finishElement(class, start, end, buf, parse)
			}
			if parse {
				buf = appendRune(buf, r)
			}
			end = offset + int64(runeLen(r))
		}
	}

	if class == classPrimitive {
		return finishElement(class, start, end, buf, parse)
	}
	return Element{}, ErrInvalidFormat
}

func finishElement(class int, start, end int64, buf []byte, parse bool) (Element, error) {
	el := Element{Start: start, Length: end - start}
	if !parse {
		return el, nil
	}
	if err := json.Unmarshal(buf, &el.Value); err != nil {
		return Element{}, ErrInvalidFormat
	}
	return el, nil
}

func runeLen(r rune) int {
	return utf8.RuneLen(r)
}

func appendRune(buf []byte, r rune) []byte {
	return utf8.AppendRune(buf, r)
}
