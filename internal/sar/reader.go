package sar

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/meigma/cook/internal/compress"
	"github.com/meigma/cook/internal/obfuscate"
	"github.com/meigma/cook/internal/sizing"
)

// Reader gives random access to an archive. It is safe for concurrent use.
type Reader struct {
	ra        io.ReaderAt
	closer    io.Closer
	header    Header
	rawHeader []byte
	rawTable  []byte
	entries   []Entry
	index     map[string]int

	dictOnce sync.Once
	dict     *compress.Codec
	dictErr  error
}

// Open opens the archive at name.
func Open(name string) (*Reader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("sar: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("sar: %w", err)
	}
	r, err := NewReader(f, info.Size())
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("sar: %s: %w", name, err)
	}
	r.closer = f
	return r, nil
}

// NewReader reads the header and file table of the size-byte archive ra.
func NewReader(ra io.ReaderAt, size int64) (*Reader, error) {
	r := &Reader{ra: ra, rawHeader: make([]byte, HeaderSize)}
	if _, err := ra.ReadAt(r.rawHeader, 0); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrCorrupt, err)
	}
	if err := r.header.UnmarshalBinary(r.rawHeader); err != nil {
		return nil, err
	}
	if size < 0 || r.header.TotalSize != uint64(size) {
		return nil, fmt.Errorf("%w: size %d does not match header size %d", ErrCorrupt, size, r.header.TotalSize)
	}

	tableOffset, err := sizing.ToInt64(r.header.TableOffset)
	if err != nil {
		return nil, fmt.Errorf("%w: table offset: %w", ErrCorrupt, err)
	}
	r.rawTable = make([]byte, r.header.TableSize)
	if _, err := ra.ReadAt(r.rawTable, tableOffset); err != nil {
		return nil, fmt.Errorf("%w: read file table: %w", ErrCorrupt, err)
	}
	entries, err := decodeTable(r.rawTable, r.header)
	if err != nil {
		return nil, err
	}

	r.index = make(map[string]int, len(entries))
	for i, e := range entries {
		end, ok := sizing.AddUint64(e.Offset, e.CompressedSize)
		if !ok || e.Offset < HeaderSize || end > r.header.TableOffset {
			return nil, fmt.Errorf("%w: entry %s out of range", ErrCorrupt, e.Name)
		}
		r.index[NormalizeName(e.Name)] = i
	}
	r.entries = entries
	return r, nil
}

// Close releases the file opened by [Open].
func (r *Reader) Close() error {
	if r.dict != nil {
		r.dict.Close()
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Header returns the archive header.
func (r *Reader) Header() Header { return r.header }

// RawHeader returns the header bytes as stored.
func (r *Reader) RawHeader() []byte { return append([]byte(nil), r.rawHeader...) }

// RawTable returns the file table bytes as stored.
func (r *Reader) RawTable() []byte { return append([]byte(nil), r.rawTable...) }

// Entries returns the file table in archive order.
func (r *Reader) Entries() []Entry { return append([]Entry(nil), r.entries...) }

// Lookup finds an entry by name, ignoring case and separator style.
func (r *Reader) Lookup(name string) (Entry, bool) {
	i, ok := r.index[NormalizeName(name)]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// ReadRaw returns the stored bytes of e.
func (r *Reader) ReadRaw(e Entry) ([]byte, error) {
	n, err := sizing.ToInt(e.CompressedSize)
	if err != nil {
		return nil, fmt.Errorf("sar: %s: %w", e.Name, err)
	}
	off, err := sizing.ToInt64(e.Offset)
	if err != nil {
		return nil, fmt.Errorf("sar: %s: offset: %w", e.Name, err)
	}
	buf := make([]byte, n)
	if _, err := r.ra.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("sar: read %s: %w", e.Name, err)
	}
	return buf, nil
}

// Read returns the content of e: unscrambled, decompressed and checked
// against its CRC-32.
func (r *Reader) Read(e Entry) ([]byte, error) {
	data, err := r.ReadRaw(e)
	if err != nil {
		return nil, err
	}
	if r.header.Obfuscated {
		obfuscate.Apply(data, obfuscate.ArchiveKey(e.Name), 0)
	}
	if e.Compressed() {
		size, err := sizing.ToInt(e.UncompressedSize)
		if err != nil {
			return nil, fmt.Errorf("sar: %s: %w", e.Name, err)
		}
		codec, err := r.codecFor(e)
		if err != nil {
			return nil, err
		}
		if codec != nil {
			data, err = codec.Decompress(data, size)
		} else {
			data, err = compress.ZstdDecodeSized(data, size)
		}
		if err != nil {
			return nil, fmt.Errorf("sar: %s: %w", e.Name, err)
		}
	}
	if crc32.ChecksumIEEE(data) != e.CRC32Pre {
		return nil, fmt.Errorf("%w: %s: content checksum mismatch", ErrCorrupt, e.Name)
	}
	return data, nil
}

// ReadFile returns the content of the entry called name.
func (r *Reader) ReadFile(name string) ([]byte, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return r.Read(e)
}

// Verify checks the stored bytes of every entry against CRC32Post.
func (r *Reader) Verify() error {
	var errs []error
	for _, e := range r.entries {
		data, err := r.ReadRaw(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if crc32.ChecksumIEEE(data) != e.CRC32Post {
			errs = append(errs, fmt.Errorf("%w: %s: stored checksum mismatch", ErrCorrupt, e.Name))
		}
	}
	return errors.Join(errs...)
}

// DictionaryEntry returns the archive's compression dictionary entry.
func (r *Reader) DictionaryEntry() (Entry, bool) {
	return r.Lookup(DictionaryName(r.header.Platform))
}

// codecFor returns the dictionary codec when e was compressed against
// the archive's dictionary, or nil for plain streams.
func (r *Reader) codecFor(e Entry) (*compress.Codec, error) {
	dictEntry, ok := r.DictionaryEntry()
	if !ok || NormalizeName(dictEntry.Name) == NormalizeName(e.Name) {
		return nil, nil
	}
	r.dictOnce.Do(func() {
		var dict []byte
		dict, r.dictErr = r.Read(dictEntry)
		if r.dictErr != nil {
			return
		}
		r.dict, r.dictErr = compress.NewCodec(compress.LevelDefault, compress.WithDictionary(dict))
	})
	if r.dictErr != nil {
		return nil, fmt.Errorf("sar: compression dictionary: %w", r.dictErr)
	}
	return r.dict, nil
}
