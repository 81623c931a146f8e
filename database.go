// Database orchestrates the data store and the index: create/drop the
// pair, insert records while fanning their indexed fields out to the
// index, find records by conjunction-of-predicates queries unioned
// across calls, and (re)build indexes with outdated detection.
package jify

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Config holds Database tuning knobs, defaulted the way folio's own
// Config is: zero values mean "pick a sensible default" in Open.
type Config struct {
	// ReadBuffer is defaulted in Open but not read by the stores: every
	// ByteReader uses defaultReaderBuffer.
	ReadBuffer int
	// MaxRecordSize is stored but not enforced: Insert accepts records of
	// any encoded size.
	MaxRecordSize int64
	// IndentSpaces controls the data file's pretty-print width.
	IndentSpaces int
	// SyncWrites calls fsync after every append when true.
	SyncWrites bool
	// FieldWorkers bounds how many fields Index() builds concurrently.
	FieldWorkers int
}

func (c Config) withDefaults() Config {
	if c.ReadBuffer <= 0 {
		c.ReadBuffer = defaultReaderBuffer
	}
	if c.IndentSpaces <= 0 {
		c.IndentSpaces = defaultIndentSpaces
	}
	if c.FieldWorkers <= 0 {
		c.FieldWorkers = 4
	}
	return c
}

// Database wires a data Store and an Index together.
type Database struct {
	cfg   Config
	data  *Store
	index *Index
	log   *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
}

// Open describes a database backed by dataPath (the record array) and
// indexPath (the index array). It does not create or touch either file;
// call Create for a new database or just start calling Insert/Find/Index
// against files a previous Create already made.
func Open(dataPath, indexPath string, cfg Config) *Database {
	cfg = cfg.withDefaults()
	return &Database{
		cfg:   cfg,
		data:  NewStore(dataPath, cfg.IndentSpaces),
		index: NewIndex(indexPath),
		log:   Logger("database"),
	}
}

// Create makes both files and registers fields, an empty database ready
// for Insert.
func (db *Database) Create(fields []FieldSpec) error {
	if err := db.data.Create(nil); err != nil {
		return err
	}
	if err := db.index.Create(); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	return db.index.AddFields(fields)
}

// Drop destroys both files. A missing index file is not an error.
func (db *Database) Drop() error {
	if err := db.data.Destroy(); err != nil {
		return err
	}
	return db.index.Destroy()
}

// Insert appends records to the data file under a single write-lock
// critical section, then fans each indexed field's (value, offset)
// triples out to the index, one BeginTransaction/Insert/EndTransaction
// cycle per field per call.
func (db *Database) Insert(records []map[string]any) error {
	if len(records) == 0 {
		return nil
	}
	if err := db.data.Open(); err != nil {
		return err
	}
	defer db.data.Close()

	if err := db.data.Lock(0, true); err != nil {
		return err
	}

	ap, err := db.data.GetAppendPosition()
	if err != nil {
		db.data.Unlock(0)
		return err
	}

	fields, err := db.index.Fields()
	if err != nil {
		db.data.Unlock(0)
		return err
	}

	texts := make([]string, len(records))
	byField := make(map[string][]InsertItem)
	cursor := ap.Position
	first := ap.First
	for i, rec := range records {
		text, err := db.data.stringify(rec)
		if err != nil {
			db.data.Unlock(0)
			return err
		}
		jl := len(db.data.joiner(first))
		offset := cursor + int64(jl)
		cursor = offset + int64(len(text))
		first = false
		texts[i] = text

		for _, f := range fields {
			if v, ok := rec[f.Name]; ok {
				byField[f.Name] = append(byField[f.Name], InsertItem{Value: v, RecordOffset: offset})
			}
		}
	}

	var sb strings.Builder
	for i, text := range texts {
		if i > 0 {
			sb.WriteString(",\n" + strings.Repeat(" ", db.cfg.IndentSpaces))
		}
		sb.WriteString(text)
	}
	_, err = db.data.AppendRaw(sb.String(), &ap.Position, &ap.First)
	db.data.Unlock(0)
	if err != nil {
		return err
	}
	if db.cfg.SyncWrites {
		if err := db.data.sync(); err != nil {
			return err
		}
	}

	for field, items := range byField {
		if err := db.index.BeginTransaction(field); err != nil {
			return err
		}
		if err := db.index.Insert(field, items); err != nil {
			return err
		}
		if err := db.index.EndTransaction(field); err != nil {
			return err
		}
	}
	db.log.Debugw("insert", "records", len(records), "fields", len(byField))
	return nil
}

// Find evaluates each query as a conjunction of its field predicates and
// returns the union of matching records across queries, ordered by
// record offset.
func (db *Database) Find(queries ...Query) ([]any, error) {
	if err := db.data.Open(); err != nil {
		return nil, err
	}
	defer db.data.Close()

	union := map[int64]bool{}
	var order []int64
	for _, q := range queries {
		var inter map[int64]bool
		first := true
		for field, pred := range q {
			offsets, err := db.index.Find(field, pred)
			if err != nil {
				return nil, err
			}
			set := make(map[int64]bool, len(offsets))
			for _, o := range offsets {
				set[o] = true
			}
			if first {
				inter = set
				first = false
				continue
			}
			for o := range inter {
				if !set[o] {
					delete(inter, o)
				}
			}
		}
		for o := range inter {
			if !union[o] {
				union[o] = true
				order = append(order, o)
			}
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	records := make([]any, 0, len(order))
	for _, off := range order {
		el, err := db.data.Get(off)
		if err != nil {
			return nil, err
		}
		records = append(records, el.Value)
	}
	return records, nil
}

// Index builds or extends indexes for fields, detecting an outdated
// index (the data file's mtime is newer than the index's, or any
// existing field header is mid-transaction) and rebuilding from scratch
// in that case. Fields already present and up-to-date are left alone;
// calling Index again with the same arguments on an up-to-date index is
// a no-op.
func (db *Database) Index(fields ...FieldSpec) error {
	if err := db.data.Open(); err != nil {
		return err
	}
	defer db.data.Close()

	if err := db.index.Open(); err != nil {
		if err != ErrNotFound {
			return err
		}
		if err := db.index.Create(); err != nil {
			return err
		}
		if err := db.index.Open(); err != nil {
			return err
		}
	}
	defer db.index.Close()

	dataMT, err := db.data.ModTime()
	if err != nil {
		return err
	}
	indexMT, err := db.index.store.ModTime()
	if err != nil {
		return err
	}

	existing, err := db.index.Fields()
	if err != nil {
		return err
	}
	existingSpecs := make(map[string]FieldSpec, len(existing))
	txDirty := false
	for _, m := range existing {
		existingSpecs[m.Name] = FieldSpec{Name: m.Name, Type: m.Type}
		if m.Tx == 1 {
			txDirty = true
		}
	}
	outdated := dataMT.After(indexMT) || txDirty

	var toBuild []FieldSpec
	if outdated {
		if err := db.index.Close(); err != nil {
			return err
		}
		if err := db.index.Destroy(); err != nil {
			return err
		}
		if err := db.index.Create(); err != nil {
			return err
		}
		if err := db.index.Open(); err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, fs := range existingSpecs {
			toBuild = append(toBuild, fs)
			seen[fs.Name] = true
		}
		for _, fs := range fields {
			if !seen[fs.Name] {
				toBuild = append(toBuild, fs)
				seen[fs.Name] = true
			}
		}
		if err := db.index.AddFields(toBuild); err != nil {
			return err
		}
	} else {
		for _, fs := range fields {
			if _, ok := existingSpecs[fs.Name]; !ok {
				toBuild = append(toBuild, fs)
			}
		}
		if len(toBuild) == 0 {
			return nil
		}
		if err := db.index.AddFields(toBuild); err != nil {
			return err
		}
	}

	buildNames := make(map[string]bool, len(toBuild))
	for _, fs := range toBuild {
		buildNames[fs.Name] = true
		if err := db.index.BeginTransaction(fs.Name); err != nil {
			return err
		}
	}

	const maxBatchPerFlush = 1_000_000
	batches := make(map[string][]InsertItem, len(toBuild))
	pending := 0
	for offset, value := range db.data.GetAll() {
		obj, ok := value.(map[string]any)
		if !ok {
			continue
		}
		for name := range buildNames {
			if v, present := obj[name]; present {
				batches[name] = append(batches[name], InsertItem{Value: v, RecordOffset: offset})
				pending++
			}
		}
		if pending >= maxBatchPerFlush {
			if err := db.flushFieldBatches(batches); err != nil {
				return err
			}
			batches = make(map[string][]InsertItem, len(toBuild))
			pending = 0
		}
	}
	if err := db.flushFieldBatches(batches); err != nil {
		return err
	}

	for _, fs := range toBuild {
		if err := db.index.EndTransaction(fs.Name); err != nil {
			return err
		}
	}
	db.log.Debugw("index", "fields", len(toBuild), "outdated", outdated)
	return nil
}

// flushFieldBatches dispatches one goroutine per non-empty field batch,
// each owning its own exclusive header lock on the index file; the
// driver only waits for all of them to finish.
func (db *Database) flushFieldBatches(batches map[string][]InsertItem) error {
	type job struct {
		name  string
		items []InsertItem
	}
	var jobs []job
	for name, items := range batches {
		if len(items) > 0 {
			jobs = append(jobs, job{name, items})
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	sem := make(chan struct{}, db.cfg.FieldWorkers)
	errCh := make(chan error, len(jobs))
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()
			errCh <- db.index.Insert(j.name, j.items)
		}(j)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// Close marks the database closed. A Database keeps no file handle open
// between calls, so there is nothing to release, and calls made after
// Close are not refused. Safe to call more than once.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	return nil
}
