// Archive: a compressed backup snapshot of the data and index files,
// written to an external io.Writer. Unlike a compaction, the live files
// are never touched — Archive only reads them under a shared lock.
//
// Stream shape: a JSON manifest line (source sizes, xxh3 checksums,
// blake2b digest) followed by a zstd frame wrapping the concatenated
// data-file bytes then index-file bytes, in that order.
package jify

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// archiveManifest is the JSON header prefixed to an archive stream.
type archiveManifest struct {
	DataSize  int64  `json:"dataSize"`
	IndexSize int64  `json:"indexSize"`
	DataXXH3  uint64 `json:"dataXxh3"`
	IndexXXH3 uint64 `json:"indexXxh3"`
	Blake2b   string `json:"blake2b"`
}

// Archive writes a compressed, digested snapshot of the database's
// current data and index files to w. Both files are held under a shared
// lock for the duration of the read, so concurrent Insert/Index calls
// block but never see a torn snapshot.
func (db *Database) Archive(w io.Writer) error {
	if err := db.data.Open(); err != nil {
		return err
	}
	defer db.data.Close()
	if err := db.index.Open(); err != nil {
		return err
	}
	defer db.index.Close()

	if err := db.data.Lock(0, false); err != nil {
		return err
	}
	defer db.data.Unlock(0)
	if err := db.index.store.Lock(0, false); err != nil {
		return err
	}
	defer db.index.store.Unlock(0)

	dataBytes, err := readAllStore(db.data)
	if err != nil {
		return err
	}
	indexBytes, err := readAllStore(db.index.store)
	if err != nil {
		return err
	}

	digest, err := blake2b.New256(nil)
	if err != nil {
		return err
	}
	digest.Write(dataBytes)
	digest.Write(indexBytes)

	manifest := archiveManifest{
		DataSize:  int64(len(dataBytes)),
		IndexSize: int64(len(indexBytes)),
		DataXXH3:  xxh3.Hash(dataBytes),
		IndexXXH3: xxh3.Hash(indexBytes),
		Blake2b:   fmt.Sprintf("%x", digest.Sum(nil)),
	}
	manifestLine, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(manifestLine, '\n')); err != nil {
		return err
	}

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := zw.Write(dataBytes); err != nil {
		zw.Close()
		return err
	}
	if _, err := zw.Write(indexBytes); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// readAllStore reads a Store's entire underlying file into memory.
func readAllStore(s *Store) ([]byte, error) {
	f, err := s.handle()
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, info.Size())
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// Restore reads an archive stream written by Archive and writes its data
// and index contents to freshly created files at dataPath and indexPath,
// verifying the manifest's xxh3 checksums before returning. The caller
// chooses the destination paths; Restore never overwrites a live
// database's own files.
func Restore(r io.Reader, dataPath, indexPath string) error {
	br := newLineReader(r)
	manifestLine, err := br.readLine()
	if err != nil {
		return fmt.Errorf("jify: archive manifest: %w", err)
	}
	var manifest archiveManifest
	if err := json.Unmarshal(manifestLine, &manifest); err != nil {
		return fmt.Errorf("jify: archive manifest: %w", err)
	}

	zr, err := zstd.NewReader(br)
	if err != nil {
		return err
	}
	defer zr.Close()

	dataBuf := make([]byte, manifest.DataSize)
	if _, err := io.ReadFull(zr, dataBuf); err != nil {
		return fmt.Errorf("jify: archive data: %w", err)
	}
	indexBuf := make([]byte, manifest.IndexSize)
	if _, err := io.ReadFull(zr, indexBuf); err != nil {
		return fmt.Errorf("jify: archive index: %w", err)
	}

	if xxh3.Hash(dataBuf) != manifest.DataXXH3 {
		return fmt.Errorf("jify: archive data checksum mismatch: %w", ErrInvalidFormat)
	}
	if xxh3.Hash(indexBuf) != manifest.IndexXXH3 {
		return fmt.Errorf("jify: archive index checksum mismatch: %w", ErrInvalidFormat)
	}

	if err := writeFileExclusive(dataPath, dataBuf); err != nil {
		return err
	}
	return writeFileExclusive(indexPath, indexBuf)
}

func writeFileExclusive(path string, buf []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrAlreadyExists
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteAt(buf, 0)
	return err
}

// lineReader reads one newline-terminated line from r and exposes the
// remainder of r (including any bytes buffered past the newline) for a
// subsequent zstd reader to consume without losing data.
type lineReader struct {
	r   io.Reader
	buf []byte
}

func newLineReader(r io.Reader) *lineReader { return &lineReader{r: r} }

func (l *lineReader) readLine() ([]byte, error) {
	chunk := make([]byte, 1)
	var line []byte
	for {
		n, err := l.r.Read(chunk)
		if n == 1 {
			if chunk[0] == '\n' {
				return line, nil
			}
			line = append(line, chunk[0])
		}
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				return line, nil
			}
			return nil, err
		}
	}
}

func (l *lineReader) Read(p []byte) (int, error) {
	if len(l.buf) > 0 {
		n := copy(p, l.buf)
		l.buf = l.buf[n:]
		return n, nil
	}
	return l.r.Read(p)
}
