// Index: a persistent ordered multimap field -> value -> record-offset,
// one skip list per field, all living inside a single JSON-array file.
// Insert batches are sorted descending and spliced against a local
// working copy of the touched entries so that placeholder offsets
// (negative, meaning "the nth new entry in this batch") can be resolved
// to real file offsets in one pass before anything is written, and
// in-place rewrites of existing predecessors happen only once per batch.
package jify

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
)

// FieldSpec describes a field to register via AddFields. Type is "" for
// an ordinarily-comparable field or "date-time" for one whose values are
// RFC 3339 strings compared by parsed instant.
type FieldSpec struct {
	Name string
	Type string
}

type fieldMeta struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Tx   int    `json:"tx"`
}

// InsertItem is one (value, record offset) pair destined for a single
// field's skip list.
type InsertItem struct {
	Value        any
	RecordOffset int64
}

// Index owns the index file's Store and the skip-list operations layered
// on top of it.
type Index struct {
	store *Store
	log   *zap.SugaredLogger

	bloomMu sync.Mutex
	blooms  map[string]*bloom
}

// NewIndex describes (but does not open or create) the index file at
// path.
func NewIndex(path string) *Index {
	return &Index{store: NewStore(path, 0), log: Logger("index"), blooms: map[string]*bloom{}}
}

// Create makes the index file and writes its root entry: pointer=0,
// empty node, link=0.
func (ix *Index) Create() error {
	if err := ix.store.Create(nil); err != nil {
		return err
	}
	if err := ix.store.Open(); err != nil {
		return err
	}
	defer ix.store.Close()

	root, err := encodeEntry(IndexEntry{})
	if err != nil {
		return err
	}
	_, err = ix.store.AppendRaw(root, nil, nil)
	return err
}

// Destroy removes the index file from disk.
func (ix *Index) Destroy() error {
	err := ix.store.Destroy()
	if err == ErrNotFound {
		return nil
	}
	return err
}

// Open/Close delegate to the underlying store's reference-counted handle.
func (ix *Index) Open() error  { return ix.store.Open() }
func (ix *Index) Close() error { return ix.store.Close() }

func (ix *Index) entryAt(offset int64) (IndexEntry, error) {
	el, err := ix.store.Get(offset)
	if err != nil {
		return IndexEntry{}, err
	}
	return decodeEntry(offset, el.Value)
}

func (ix *Index) root() (IndexEntry, error) {
	for pos, val := range ix.store.GetAll() {
		return decodeEntry(pos, val)
	}
	return IndexEntry{}, ErrInvalidFormat
}

// findHeader walks the root's link chain looking for the header entry
// whose label matches field.
func (ix *Index) findHeader(field string) (IndexEntry, error) {
	cur, err := ix.root()
	if err != nil {
		return IndexEntry{}, err
	}
	for cur.Link != 0 {
		next, err := ix.entryAt(cur.Link)
		if err != nil {
			return IndexEntry{}, err
		}
		if next.Label == field {
			return next, nil
		}
		cur = next
	}
	return IndexEntry{}, ErrFieldMissing
}

// AddFields registers any field in fields not already present, appending
// one header entry per field and chaining it onto the existing header
// list (or directly onto the root if this is the first field).
func (ix *Index) AddFields(fields []FieldSpec) error {
	if err := ix.store.Open(); err != nil {
		return err
	}
	defer ix.store.Close()

	if err := ix.store.Lock(0, true); err != nil {
		return err
	}
	defer ix.store.Unlock(0)

	root, err := ix.root()
	if err != nil {
		return err
	}

	existing := map[string]bool{}
	prev := root
	for prev.Link != 0 {
		next, err := ix.entryAt(prev.Link)
		if err != nil {
			return err
		}
		existing[next.Label] = true
		prev = next
	}

	for _, f := range fields {
		if existing[f.Name] {
			continue
		}
		meta, err := json.Marshal(fieldMeta{Name: f.Name, Type: f.Type, Tx: 0})
		if err != nil {
			return err
		}
		header := IndexEntry{
			Label: f.Name,
			Node:  SkipListNode{Levels: make([]int64, MaxHeight), Value: string(meta)},
		}
		text, err := encodeEntry(header)
		if err != nil {
			return err
		}
		el, err := ix.store.AppendRaw(text, nil, nil)
		if err != nil {
			return err
		}
		header.Position = el.Start

		if err := ix.rewriteLink(prev, el.Start); err != nil {
			return err
		}
		prev = header
		existing[f.Name] = true
	}
	return nil
}

// rewriteLink overwrites e's link field in place, without touching any
// other part of its payload. The link field sits right after the fixed
// 8-char pointer field and its separating ';'.
func (ix *Index) rewriteLink(e IndexEntry, newLink int64) error {
	off := payloadOffset(e.Position, e.Label) + 8 + 1
	return ix.store.Write([]byte(z85EncodeFixed48(uint64(newLink))), off)
}

// rewritePayload re-encodes e in full (pointer, link, levels and value
// unchanged except for whatever the caller already mutated on e) and
// overwrites the existing payload bytes in place. Safe only when the new
// payload is exactly as long as what is currently on disk, which holds
// for every in-place rewrite in this package because position-like
// fields are fixed width and tx-flag rewrites change a single digit.
func (ix *Index) rewritePayload(e IndexEntry) error {
	payload, err := encodeNode(e.Pointer, e.Link, e.Node)
	if err != nil {
		return err
	}
	// Escape the payload exactly as encodeEntry did when the entry was
	// first written (quotes in a header's metadata become \"), so the
	// bytes written here line up with the bytes already on disk.
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return err
	}
	quoted := strings.TrimSuffix(buf.String(), "\n")
	return ix.store.Write([]byte(quoted[1:len(quoted)-1]), payloadOffset(e.Position, e.Label))
}

func (ix *Index) setTx(field string, tx int) error {
	if err := ix.store.Open(); err != nil {
		return err
	}
	defer ix.store.Close()

	header, err := ix.findHeader(field)
	if err != nil {
		return err
	}
	meta, err := decodeFieldMeta(header)
	if err != nil {
		return err
	}
	meta.Tx = tx
	encoded, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	header.Node.Value = string(encoded)
	return ix.rewritePayload(header)
}

// Fields returns the metadata of every field currently registered, in
// header-chain order.
func (ix *Index) Fields() ([]fieldMeta, error) {
	if err := ix.store.Open(); err != nil {
		return nil, err
	}
	defer ix.store.Close()

	root, err := ix.root()
	if err != nil {
		return nil, err
	}
	var metas []fieldMeta
	cur := root
	for cur.Link != 0 {
		next, err := ix.entryAt(cur.Link)
		if err != nil {
			return nil, err
		}
		m, err := decodeFieldMeta(next)
		if err != nil {
			return nil, err
		}
		metas = append(metas, m)
		cur = next
	}
	return metas, nil
}

// BeginTransaction marks field's header tx=1. Index.Insert never sets the
// flag itself; Database.Index and Database.Insert bracket each field's
// Insert calls with BeginTransaction/EndTransaction.
func (ix *Index) BeginTransaction(field string) error { return ix.setTx(field, 1) }

// EndTransaction marks field's header tx=0, signalling a complete build.
func (ix *Index) EndTransaction(field string) error { return ix.setTx(field, 0) }

func decodeFieldMeta(header IndexEntry) (fieldMeta, error) {
	s, ok := header.Node.Value.(string)
	if !ok {
		return fieldMeta{}, ErrInvalidFormat
	}
	var meta fieldMeta
	if err := json.Unmarshal([]byte(s), &meta); err != nil {
		return fieldMeta{}, ErrInvalidFormat
	}
	return meta, nil
}

// parseDate parses an RFC 3339 timestamp into the float64 comparison key
// used for "date-time" fields (nanoseconds since the Unix epoch).
func parseDate(s string) (float64, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, ErrInvalidFormat
	}
	return float64(t.UnixNano()), nil
}

func valueRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

// compareValue orders index values: nil < bool < number < string when
// types differ, natural ordering within a type. jify's fields are
// homogeneously typed in practice; the type-rank fallback just keeps
// the ordering total if they aren't.
func compareValue(a, b any) int {
	ra, rb := valueRank(a), valueRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv, _ := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv, _ := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	default:
		return 0
	}
}

// workingEntry is an in-memory mutable view of an IndexEntry used while
// splicing a batch: link/levels may temporarily hold negative
// placeholders (-(n+1) meaning "the nth new entry in this batch") until
// Insert resolves every placeholder to a real file offset.
type workingEntry struct {
	position int64 // 0 for not-yet-assigned new entries
	label    string
	pointer  int64
	link     int64
	levels   []int64
	value    any
}

func entryWorking(e IndexEntry) *workingEntry {
	return &workingEntry{
		position: e.Position,
		label:    e.Label,
		pointer:  e.Pointer,
		link:     e.Link,
		levels:   append([]int64(nil), e.Node.Levels...),
		value:    e.Node.Value,
	}
}

func (w *workingEntry) toEntry() IndexEntry {
	return IndexEntry{
		Position: w.position,
		Pointer:  w.pointer,
		Link:     w.link,
		Label:    w.label,
		Node:     SkipListNode{Levels: w.levels, Value: w.value},
	}
}

// Insert splices items into field's skip list in one batch: lock the
// header exclusively, sort descending, splice against an in-memory cache
// of touched entries using negative placeholders for not-yet-written
// offsets, append all new entries in a single write, then rewrite every
// touched predecessor's payload in place.
func (ix *Index) Insert(field string, items []InsertItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := ix.store.Open(); err != nil {
		return err
	}
	defer ix.store.Close()

	header, err := ix.findHeader(field)
	if err != nil {
		return err
	}
	if err := ix.store.Lock(header.Position, true); err != nil {
		return err
	}
	defer ix.store.Unlock(header.Position)

	meta, err := decodeFieldMeta(header)
	if err != nil {
		return err
	}

	work := make([]InsertItem, len(items))
	copy(work, items)
	if meta.Type == "date-time" {
		for i := range work {
			s, ok := work[i].Value.(string)
			if !ok {
				return ErrInvalidFormat
			}
			f, err := parseDate(s)
			if err != nil {
				return err
			}
			work[i].Value = f
		}
	}
	sort.SliceStable(work, func(i, j int) bool {
		return compareValue(work[i].Value, work[j].Value) > 0
	})

	cache := map[int64]*workingEntry{header.Position: entryWorking(header)}
	get := func(offset int64) (*workingEntry, error) {
		if w, ok := cache[offset]; ok {
			return w, nil
		}
		e, err := ix.entryAt(offset)
		if err != nil {
			return nil, err
		}
		w := entryWorking(e)
		cache[offset] = w
		return w, nil
	}

	var newEntries []*workingEntry
	var touchedOrder []int64
	touched := map[int64]bool{}
	markTouched := func(offset int64) {
		if offset > 0 && !touched[offset] {
			touched[offset] = true
			touchedOrder = append(touchedOrder, offset)
		}
	}

	height := len(cache[header.Position].levels)

	for _, item := range work {
		updates := make([]int64, height)
		cur := header.Position
		for lvl := height - 1; lvl >= 0; lvl-- {
			for {
				curW, err := get(cur)
				if err != nil {
					return err
				}
				if lvl >= len(curW.levels) {
					break
				}
				next := curW.levels[lvl]
				if next == 0 {
					break
				}
				nextW, err := get(next)
				if err != nil {
					return err
				}
				if compareValue(nextW.value, item.Value) > 0 {
					break
				}
				cur = next
			}
			updates[lvl] = cur
		}

		placeholder := -int64(len(newEntries) + 1)
		predW, err := get(updates[0])
		if err != nil {
			return err
		}
		isDup := updates[0] != header.Position && compareValue(predW.value, item.Value) == 0

		if isDup {
			dup := &workingEntry{pointer: item.RecordOffset, link: predW.link}
			predW.link = placeholder
			markTouched(updates[0])
			cache[placeholder] = dup
			newEntries = append(newEntries, dup)
			continue
		}

		level := randomLevel(height)
		levels := make([]int64, level+1)
		for i := 0; i <= level; i++ {
			predAtLevel, err := get(updates[i])
			if err != nil {
				return err
			}
			levels[i] = predAtLevel.levels[i]
			predAtLevel.levels[i] = placeholder
			markTouched(updates[i])
		}
		entry := &workingEntry{pointer: item.RecordOffset, levels: levels, value: item.Value}
		cache[placeholder] = entry
		newEntries = append(newEntries, entry)
	}

	if err := ix.store.Lock(0, true); err != nil {
		return err
	}
	defer ix.store.Unlock(0)

	ap, err := ix.store.GetAppendPosition()
	if err != nil {
		return err
	}

	texts := make([]string, len(newEntries))
	offsets := make(map[int64]int64, len(newEntries))
	cursor := ap.Position
	first := ap.First
	for i, e := range newEntries {
		text, err := encodeEntry(e.toEntry())
		if err != nil {
			return err
		}
		jl := len(ix.store.joiner(first))
		offset := cursor + int64(jl)
		offsets[-int64(i+1)] = offset
		cursor = offset + int64(len(text))
		first = false
		texts[i] = text
	}

	resolve := func(w *workingEntry) {
		if w.link < 0 {
			w.link = offsets[w.link]
		}
		for i := range w.levels {
			if w.levels[i] < 0 {
				w.levels[i] = offsets[w.levels[i]]
			}
		}
	}
	for i, e := range newEntries {
		e.position = offsets[-int64(i+1)]
		resolve(e)
		text, err := encodeEntry(e.toEntry())
		if err != nil {
			return err
		}
		texts[i] = text
	}
	for _, off := range touchedOrder {
		resolve(cache[off])
	}

	var sb strings.Builder
	for i, text := range texts {
		if i > 0 {
			sb.WriteString(ix.store.joiner(false))
		}
		sb.WriteString(text)
	}
	if _, err := ix.store.AppendRaw(sb.String(), &ap.Position, &ap.First); err != nil {
		return err
	}

	for _, off := range touchedOrder {
		if err := ix.rewritePayload(cache[off].toEntry()); err != nil {
			return err
		}
	}

	ix.bloomMu.Lock()
	delete(ix.blooms, field)
	ix.bloomMu.Unlock()

	ix.log.Debugw("insert", "field", field, "entries", len(newEntries), "touched", len(touchedOrder))
	return nil
}

// fieldBloom returns field's cached bloom filter over its distinct
// values, building it by walking the level-0 chain if absent. Insert
// deletes the cached entry for any field it touches, so a rebuild here
// always reflects every write that completed before this call started.
//
// The chain is walked twice: once to count distinct values so the
// filter can be sized to this field's actual cardinality (a field with
// 20 distinct cities doesn't need a filter provisioned for 10k), once
// to add them. Both passes read and decode every level-0 entry through
// entryAt, which caches nothing across calls.
func (ix *Index) fieldBloom(field string, header IndexEntry) (*bloom, error) {
	ix.bloomMu.Lock()
	if b, ok := ix.blooms[field]; ok {
		ix.bloomMu.Unlock()
		return b, nil
	}
	ix.bloomMu.Unlock()

	firstLevel0 := func() int64 {
		if len(header.Node.Levels) > 0 {
			return header.Node.Levels[0]
		}
		return 0
	}

	var n int
	for next := firstLevel0(); next != 0; {
		entry, err := ix.entryAt(next)
		if err != nil {
			return nil, err
		}
		n++
		if len(entry.Node.Levels) == 0 {
			break
		}
		next = entry.Node.Levels[0]
	}

	b := newBloom(n)
	for next := firstLevel0(); next != 0; {
		entry, err := ix.entryAt(next)
		if err != nil {
			return nil, err
		}
		b.Add(bloomKey(entry.Node.Value))
		if len(entry.Node.Levels) == 0 {
			break
		}
		next = entry.Node.Levels[0]
	}

	ix.bloomMu.Lock()
	ix.blooms[field] = b
	ix.bloomMu.Unlock()
	return b, nil
}

// bloomKey renders an index value as a bloom filter key, tagging its
// type so a float64 2 and a string "2" never collide.
func bloomKey(v any) string {
	switch x := v.(type) {
	case nil:
		return "n:"
	case bool:
		if x {
			return "b:1"
		}
		return "b:0"
	case float64:
		return "f:" + strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return "s:" + x
	default:
		return "x:"
	}
}

// bloomTargetFPRate is the false-positive rate fieldBloom sizes every
// filter for, regardless of field cardinality.
const bloomTargetFPRate = 0.01

// bloom is a Bloom filter over a field's distinct index values, sized
// at construction to the field's own cardinality and double-hashed off
// a single xxh3 digest (the project's own hash dependency, already
// used for store and archive checksums) rather than a second hash
// library.
type bloom struct {
	bits []byte
	k    int
}

// newBloom returns a zeroed filter sized for n distinct values at
// bloomTargetFPRate. n < 1 is treated as 1, so a field with no entries
// yet still gets a minimal, safe-to-query filter.
func newBloom(n int) *bloom {
	if n < 1 {
		n = 1
	}
	bits := bloomBitCount(n)
	return &bloom{bits: make([]byte, (bits+7)/8), k: bloomHashCount(bits, n)}
}

func bloomBitCount(n int) int {
	m := -float64(n) * math.Log(bloomTargetFPRate) / (math.Ln2 * math.Ln2)
	return int(math.Ceil(m))
}

func bloomHashCount(bits, n int) int {
	k := int(math.Round(float64(bits) / float64(n) * math.Ln2))
	switch {
	case k < 1:
		return 1
	case k > 16:
		return 16
	default:
		return k
	}
}

// Add inserts id into the filter.
func (b *bloom) Add(id string) {
	for _, pos := range b.positions(id) {
		b.bits[pos/8] |= 1 << (pos % 8)
	}
}

// Contains reports whether id might be present (true) or is definitely
// absent (false).
func (b *bloom) Contains(id string) bool {
	for _, pos := range b.positions(id) {
		if b.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

// Reset clears every bit, leaving the filter's size and hash count
// unchanged.
func (b *bloom) Reset() {
	clear(b.bits)
}

// positions derives b.k bit positions from one xxh3 digest of id and
// one of id salted, combined the Kirsch-Mitzenmacher way so only two
// hash computations are needed regardless of k.
func (b *bloom) positions(id string) []uint {
	salted := make([]byte, len(id)+1)
	copy(salted, id)
	salted[len(id)] = 0xa5

	a := xxh3.Hash([]byte(id))
	c := xxh3.Hash(salted)
	nbits := uint(len(b.bits) * 8)

	pos := make([]uint, b.k)
	for i := 0; i < b.k; i++ {
		pos[i] = uint(a+uint64(i)*c) % nbits
	}
	return pos
}

// Find returns the ordered set of record offsets matching pred against
// field's skip list.
func (ix *Index) Find(field string, pred Predicate) ([]int64, error) {
	if err := ix.store.Open(); err != nil {
		return nil, err
	}
	defer ix.store.Close()

	header, err := ix.findHeader(field)
	if err != nil {
		return nil, err
	}
	if err := ix.store.Lock(header.Position, false); err != nil {
		return nil, err
	}
	defer ix.store.Unlock(header.Position)

	meta, err := decodeFieldMeta(header)
	if err != nil {
		return nil, err
	}
	if meta.Tx == 1 {
		return nil, ErrFieldInTransaction
	}
	if meta.Type == "date-time" {
		resolved, err := pred.resolveDates()
		if err != nil {
			return nil, err
		}
		pred = resolved
	}

	if v, ok := pred.eqValue(); ok {
		b, err := ix.fieldBloom(field, header)
		if err != nil {
			return nil, err
		}
		if !b.Contains(bloomKey(v)) {
			return nil, nil
		}
	}

	cur := header
	for lvl := len(header.Node.Levels) - 1; lvl >= 0; lvl-- {
		for {
			if lvl >= len(cur.Node.Levels) {
				break
			}
			next := cur.Node.Levels[lvl]
			if next == 0 {
				break
			}
			nextEntry, err := ix.entryAt(next)
			if err != nil {
				return nil, err
			}
			if pred.seek(nextEntry.Node.Value) >= 0 {
				break
			}
			cur = nextEntry
		}
	}

	var results []int64
	matched := false
	next := int64(0)
	if len(cur.Node.Levels) > 0 {
		next = cur.Node.Levels[0]
	}
	for next != 0 {
		entry, err := ix.entryAt(next)
		if err != nil {
			return nil, err
		}
		if pred.match(entry.Node.Value) {
			matched = true
			results = append(results, entry.Pointer)
			for link := entry.Link; link != 0; {
				dup, err := ix.entryAt(link)
				if err != nil {
					return nil, err
				}
				results = append(results, dup.Pointer)
				link = dup.Link
			}
		} else if matched {
			break
		}
		if len(entry.Node.Levels) == 0 {
			break
		}
		next = entry.Node.Levels[0]
	}
	ix.log.Debugw("find", "field", field, "matches", len(results))
	return results, nil
}
