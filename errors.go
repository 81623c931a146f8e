// Package jify is an append-only document database. Records are appended to
// a human-readable JSON array file; secondary indexes are maintained in a
// companion JSON array file as a set of persistent skip lists, so that
// lookups by field value (including ranges) never need to scan the data
// file.
//
// There are no updates or deletes of existing records and no compaction of
// the data file: every Insert only appends, every index entry is permanent
// once written, and Find always resolves against the current state of both
// files without rewriting them.
package jify

import "errors"

// Sentinel errors returned by database, store and index operations.
var (
	// ErrNotFound is returned when an operation requires a data or index
	// file that does not exist.
	ErrNotFound = errors.New("jify: not found")

	// ErrAlreadyExists is returned by an exclusive create when the file
	// already exists.
	ErrAlreadyExists = errors.New("jify: already exists")

	// ErrInvalidFormat is returned when the data or index file cannot be
	// parsed as expected: a missing trailing "]", a Z85 string of the
	// wrong length, or an entry payload that does not split into the
	// expected fields.
	ErrInvalidFormat = errors.New("jify: invalid format")

	// ErrFieldMissing is returned when Find or Insert references a field
	// whose header entry has not been registered via AddFields.
	ErrFieldMissing = errors.New("jify: field missing")

	// ErrFieldInTransaction is returned by Find when the field's header
	// has tx=1, meaning a previous index build was interrupted and the
	// field must be rebuilt before it can be queried.
	ErrFieldInTransaction = errors.New("jify: field in transaction")

	// ErrPredicateInvalid is returned by the query parser for a malformed
	// predicate string.
	ErrPredicateInvalid = errors.New("jify: invalid predicate")

	// ErrClosed is returned by a Store operation that needs the file
	// handle while the store is not open.
	ErrClosed = errors.New("jify: database is closed")
)

// LockContention is never returned to a caller: lockfile.go blocks
// internally until a byte-range lock is acquired. It is listed here only
// because spec §7 names it as a kind.
