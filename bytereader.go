// Byte-reader: a random-access, bidirectional, UTF-8 aware streaming
// reader used by the element scanner and by the JSON store's tail scan
// (getAppendPosition). It never materializes more of the file than one
// buffer's worth at a time, and it never advances past a position the
// consumer did not accept: because Read returns an iter.Seq2, abandoning
// a range loop early simply stops calling the iterator function — nothing
// is buffered past the last yielded pair that isn't still sitting in the
// (bounded) pending window, and re-invoking Read at the same position
// reproduces the same sequence from scratch.
package jify

import (
	"io"
	"iter"
	"unicode/utf8"
)

const defaultReaderBuffer = 64 * 1024

// ByteReader streams (offset, rune) pairs out of an io.ReaderAt without
// requiring the caller to track UTF-8 continuation state across reads.
type ByteReader struct {
	r    io.ReaderAt
	size int64
	buf  []byte
}

// NewByteReader wraps r, whose total length is size, reusing a bufSize
// byte scratch buffer across reads (defaultReaderBuffer if bufSize <= 0).
func NewByteReader(r io.ReaderAt, size int64, bufSize int) *ByteReader {
	if bufSize <= 0 {
		bufSize = defaultReaderBuffer
	}
	return &ByteReader{r: r, size: size, buf: make([]byte, bufSize)}
}

// Size returns the reader's configured length, used to resolve negative
// positions.
func (br *ByteReader) Size() int64 { return br.size }

// Read returns a lazy sequence of (byteOffset, codePoint) pairs. With
// reverse=false the sequence starts at position and moves toward
// end-of-file; with reverse=true it starts just before position and moves
// toward the start of the file. A negative position is resolved against
// Size the way a negative slice index is: -1 means "the last byte".
func (br *ByteReader) Read(position int64, reverse bool) iter.Seq2[int64, rune] {
	start := position
	if start < 0 {
		start = br.size + start
	}
	if reverse {
		return br.readBackward(start)
	}
	return br.readForward(start)
}

// readForward decodes runes starting at byte offset start, refilling the
// scratch buffer into a small pending window whenever fewer than
// utf8.UTFMax bytes remain undecoded. pending never grows much past one
// buffer's worth: a refill only happens right after a rune is consumed,
// so the window is drained before it is topped up again.
func (br *ByteReader) readForward(start int64) iter.Seq2[int64, rune] {
	return func(yield func(int64, rune) bool) {
		var pending []byte
		offset := start
		readPos := start
		eof := false

		for {
			for !eof && len(pending) < utf8.UTFMax {
				n, err := br.r.ReadAt(br.buf, readPos)
				if n > 0 {
					pending = append(pending, br.buf[:n]...)
					readPos += int64(n)
				}
				if err != nil {
					eof = true
				}
				if n == 0 {
					break
				}
			}
			if len(pending) == 0 {
				return
			}
			r, size := utf8.DecodeRune(pending)
			if !yield(offset, r) {
				return
			}
			offset += int64(size)
			pending = pending[size:]
		}
	}
}

// readBackward is the mirror of readForward: it extends a pending window
// leftward (tracked by winStart, the file offset of pending[0]) until
// there is enough to decode the trailing rune, then peels runes off the
// end of the window with utf8.DecodeLastRune.
func (br *ByteReader) readBackward(start int64) iter.Seq2[int64, rune] {
	return func(yield func(int64, rune) bool) {
		var pending []byte
		winStart := start

		for {
			for len(pending) < utf8.UTFMax && winStart > 0 {
				readLen := int64(len(br.buf))
				if readLen > winStart {
					readLen = winStart
				}
				readAt := winStart - readLen
				n, err := br.r.ReadAt(br.buf[:readLen], readAt)
				if n <= 0 {
					break
				}
				merged := make([]byte, int64(n)+int64(len(pending)))
				copy(merged, br.buf[:n])
				copy(merged[n:], pending)
				pending = merged
				winStart = readAt
				if err != nil && err != io.EOF {
					break
				}
			}
			if len(pending) == 0 {
				return
			}
			r, size := utf8.DecodeLastRune(pending)
			offset := winStart + int64(len(pending)) - int64(size)
			if !yield(offset, r) {
				return
			}
			pending = pending[:len(pending)-size]
		}
	}
}
