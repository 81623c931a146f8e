// File-integrity checksums. A store's Checksum is a fast xxh3 digest of
// its bytes. Database.Index decides staleness from mtimes and tx flags
// alone and does not call it; archive.go hashes the bytes it has already
// read with xxh3.Hash directly rather than through Checksum.
package jify

import (
	"io"

	"github.com/zeebo/xxh3"
)

// checksumReader streams r through an xxh3 hasher and returns the
// resulting 64-bit digest without buffering the whole input in memory.
func checksumReader(r io.Reader) (uint64, error) {
	h := xxh3.New()
	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
