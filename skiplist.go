// Skip-list node and index-entry encoding: the on-disk shape of a single
// line in the index file, and the coin-flip level generator used when
// splicing a new entry into a field's list.
package jify

import (
	"math/rand/v2"
	"strings"

	"github.com/goccy/go-json"
)

// MaxHeight bounds a field header's levels array and the random level any
// value entry may reach.
const MaxHeight = 32

// SkipListNode is the value payload of an IndexEntry: for a field header
// it is the skip-list's per-level head pointers; for a value entry it is
// the indexed value plus that value's own forward pointers; for a
// duplicate entry Levels is empty and Value is unused (the duplicate is
// reached only via another entry's Link).
type SkipListNode struct {
	Levels []int64
	Value  any // nil, bool, float64 or string
}

// IndexEntry is one element of the index file.
type IndexEntry struct {
	Position int64 // offset of this entry's opening '{'; not itself encoded
	Pointer  int64 // record offset in the data file, 0 for header/root entries
	Link     int64 // offset of the next duplicate entry, 0 if none
	Label    string
	Node     SkipListNode
}

// payloadOffset returns the byte offset of an entry's payload — the first
// byte after {"<label>":" — given the entry's own offset and label. Every
// in-place rewrite in the package goes through this helper so the
// `5 + len(label)` formula is defined exactly once.
func payloadOffset(position int64, label string) int64 {
	return position + 5 + int64(len(label))
}

// encodeEntry renders e as the full JSON-object text of one index-file
// element, e.g. `{"age":"<payload>"}`.
func encodeEntry(e IndexEntry) (string, error) {
	payload, err := encodeNode(e.Pointer, e.Link, e.Node)
	if err != nil {
		return "", err
	}
	// HTML escaping is off so the Z85 digits '<', '>' and '&' are written
	// as one byte each, keeping every fixed-width field fixed on disk.
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]string{e.Label: payload}); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// encodeNode renders the pointer;link;levelsCSV;typeTag;value payload.
func encodeNode(pointer, link int64, n SkipListNode) (string, error) {
	levelParts := make([]string, len(n.Levels))
	for i, lv := range n.Levels {
		levelParts[i] = z85EncodeFixed48(uint64(lv))
	}

	var typeTag uint32
	var valueEncoded string
	switch v := n.Value.(type) {
	case nil:
		typeTag = 0
	case bool:
		typeTag = 1
		if v {
			valueEncoded = z85EncodeVar32(1)
		} else {
			valueEncoded = z85EncodeVar32(0)
		}
	case float64:
		typeTag = 2
		valueEncoded = z85EncodeFloat64(v)
	case string:
		typeTag = 3
		valueEncoded = v
	default:
		return "", ErrInvalidFormat
	}

	return strings.Join([]string{
		z85EncodeFixed48(uint64(pointer)),
		z85EncodeFixed48(uint64(link)),
		strings.Join(levelParts, ","),
		z85EncodeVar32(typeTag),
		valueEncoded,
	}, ";"), nil
}

// decodeEntry parses value, the already-unmarshalled JSON object for one
// index-file element (a single-key map produced by scanElement's
// parse=true path), into an IndexEntry positioned at position.
func decodeEntry(position int64, value any) (IndexEntry, error) {
	obj, ok := value.(map[string]any)
	if !ok || len(obj) != 1 {
		return IndexEntry{}, ErrInvalidFormat
	}
	var label, payload string
	for k, v := range obj {
		label = k
		s, ok := v.(string)
		if !ok {
			return IndexEntry{}, ErrInvalidFormat
		}
		payload = s
	}

	pointer, link, node, err := decodeNode(payload)
	if err != nil {
		return IndexEntry{}, err
	}
	return IndexEntry{Position: position, Pointer: pointer, Link: link, Label: label, Node: node}, nil
}

func decodeNode(payload string) (pointer, link int64, node SkipListNode, err error) {
	parts := strings.SplitN(payload, ";", 5)
	if len(parts) != 5 {
		return 0, 0, SkipListNode{}, ErrInvalidFormat
	}

	p, err := z85DecodeFixed48(parts[0])
	if err != nil {
		return 0, 0, SkipListNode{}, err
	}
	l, err := z85DecodeFixed48(parts[1])
	if err != nil {
		return 0, 0, SkipListNode{}, err
	}

	var levels []int64
	if parts[2] != "" {
		for _, ls := range strings.Split(parts[2], ",") {
			lv, err := z85DecodeFixed48(ls)
			if err != nil {
				return 0, 0, SkipListNode{}, err
			}
			levels = append(levels, int64(lv))
		}
	}

	typeTag, err := z85DecodeVar32(parts[3])
	if err != nil {
		return 0, 0, SkipListNode{}, err
	}

	var value any
	switch typeTag {
	case 0:
		value = nil
	case 1:
		b, err := z85DecodeVar32(parts[4])
		if err != nil {
			return 0, 0, SkipListNode{}, err
		}
		value = b != 0
	case 2:
		f, err := z85DecodeFloat64(parts[4])
		if err != nil {
			return 0, 0, SkipListNode{}, err
		}
		value = f
	case 3:
		value = parts[4]
	default:
		return 0, 0, SkipListNode{}, ErrInvalidFormat
	}

	return int64(p), int64(l), SkipListNode{Levels: levels, Value: value}, nil
}

// randomLevel returns a level in [0, min(currentHeight, MaxHeight)-1] via
// repeated coin flips, so level i is half as likely as level i-1.
func randomLevel(currentHeight int) int {
	maxLevel := currentHeight - 1
	if maxLevel > MaxHeight-1 {
		maxLevel = MaxHeight - 1
	}
	level := 0
	for level < maxLevel && rand.IntN(2) == 0 {
		level++
	}
	return level
}
