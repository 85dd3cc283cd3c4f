package sar

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/meigma/cook/internal/compress"
	"github.com/meigma/cook/internal/obfuscate"
	"github.com/meigma/cook/internal/sizing"
)

// Entry is one file table record.
type Entry struct {
	// Name is the entry's relative filename with '\' separators.
	Name             string
	Offset           uint64
	CompressedSize   uint64
	UncompressedSize uint64
	ModTime          uint64
	// CRC32Pre covers the content before compression and scrambling.
	CRC32Pre uint32
	// CRC32Post covers the stored bytes. It equals CRC32Pre when the
	// stored bytes are the content.
	CRC32Post uint32
}

// Compressed reports whether the stored bytes are ZSTD compressed.
func (e Entry) Compressed() bool {
	return e.CompressedSize != e.UncompressedSize
}

const entryFixedSize = 8*4 + 4*2

// maxTableSize bounds a decompressed file table.
const maxTableSize = 1 << 30

// maxNameSize bounds one entry name, NUL included.
const maxNameSize = 1 << 16

func marshalEntries(entries []Entry) ([]byte, error) {
	var b []byte
	for _, e := range entries {
		n, err := sizing.ToUint32(len(e.Name) + 1)
		if err != nil {
			return nil, fmt.Errorf("sar: entry name %q: %w", e.Name, err)
		}
		b = binary.LittleEndian.AppendUint64(b, e.Offset)
		b = binary.LittleEndian.AppendUint64(b, e.CompressedSize)
		b = binary.LittleEndian.AppendUint64(b, e.UncompressedSize)
		b = binary.LittleEndian.AppendUint64(b, e.ModTime)
		b = binary.LittleEndian.AppendUint32(b, e.CRC32Pre)
		b = binary.LittleEndian.AppendUint32(b, e.CRC32Post)
		b = binary.LittleEndian.AppendUint32(b, n)
		b = append(b, e.Name...)
		b = append(b, 0)
	}
	return b, nil
}

func unmarshalEntries(b []byte, count uint32) ([]Entry, error) {
	entries := make([]Entry, 0, min(count, 1<<16))
	for i := range count {
		if len(b) < entryFixedSize+4 {
			return nil, fmt.Errorf("%w: entry %d truncated", ErrCorrupt, i)
		}
		e := Entry{
			Offset:           binary.LittleEndian.Uint64(b[0:]),
			CompressedSize:   binary.LittleEndian.Uint64(b[8:]),
			UncompressedSize: binary.LittleEndian.Uint64(b[16:]),
			ModTime:          binary.LittleEndian.Uint64(b[24:]),
			CRC32Pre:         binary.LittleEndian.Uint32(b[32:]),
			CRC32Post:        binary.LittleEndian.Uint32(b[36:]),
		}
		n := binary.LittleEndian.Uint32(b[entryFixedSize:])
		b = b[entryFixedSize+4:]
		if n == 0 || n > maxNameSize || uint64(n) > uint64(len(b)) {
			return nil, fmt.Errorf("%w: entry %d name length %d", ErrCorrupt, i, n)
		}
		if b[n-1] != 0 {
			return nil, fmt.Errorf("%w: entry %d name is not terminated", ErrCorrupt, i)
		}
		e.Name = string(b[:n-1])
		b = b[n:]
		entries = append(entries, e)
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes in file table", ErrCorrupt, len(b))
	}
	return entries, nil
}

// encodeTable returns the on-disk file table: the compressed, scrambled
// body followed by its CRC-32.
func encodeTable(entries []Entry, codec *compress.Codec, versionMajor uint16, changelist uint32) ([]byte, error) {
	raw, err := marshalEntries(entries)
	if err != nil {
		return nil, err
	}
	body := codec.Compress(raw)
	obfuscate.Apply(body, obfuscate.TableKey(versionMajor, changelist), 0)
	return binary.LittleEndian.AppendUint32(body, crc32.ChecksumIEEE(body)), nil
}

// decodeTable reverses encodeTable. The input is not modified.
func decodeTable(table []byte, h Header) ([]Entry, error) {
	if len(table) < 4 {
		return nil, fmt.Errorf("%w: file table too small", ErrCorrupt)
	}
	body := table[:len(table)-4]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(table[len(body):]) {
		return nil, fmt.Errorf("%w: file table checksum mismatch", ErrCorrupt)
	}
	scratch := make([]byte, len(body))
	copy(scratch, body)
	obfuscate.Apply(scratch, obfuscate.TableKey(h.VersionMajor, h.Changelist), 0)

	raw := scratch
	if h.TableCompressed {
		var err error
		raw, err = compress.ZstdDecodeAll(scratch, maxTableSize)
		if err != nil {
			return nil, fmt.Errorf("%w: file table: %w", ErrCorrupt, err)
		}
	}
	return unmarshalEntries(raw, h.EntryCount)
}

// NormalizeName folds an entry name or relative filename to the form
// used for lookups.
func NormalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "/", "\\"))
}
