package sar

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/compress"
	"github.com/meigma/cook/internal/obfuscate"
	"github.com/meigma/cook/internal/sizing"
)

// DictionaryName returns the filename of a platform's compression
// dictionary, relative to its game directory.
func DictionaryName(p assetpath.Platform) string {
	return "pkgcdict_" + p.String() + ".dat"
}

// Blob is an encoded entry ready to be placed in an archive. Entry.Offset
// is assigned by [Writer.Write].
type Blob struct {
	Entry
	Data []byte
}

// EncodeOptions controls how [Encode] stores content.
type EncodeOptions struct {
	// Codec compresses the content when set. The compressed form is only
	// kept when it is smaller.
	Codec *compress.Codec
	// Obfuscate scrambles the stored bytes with a key derived from the
	// entry name.
	Obfuscate bool
}

// Encode prepares content for storage under name.
func Encode(name string, data []byte, modTime uint64, opts EncodeOptions) Blob {
	pre := crc32.ChecksumIEEE(data)
	stored := data
	changed := false
	if opts.Codec != nil {
		if c := opts.Codec.Compress(data); len(c) < len(data) {
			stored = c
			changed = true
		}
	}
	if opts.Obfuscate {
		if !changed {
			stored = append([]byte(nil), data...)
		}
		obfuscate.Apply(stored, obfuscate.ArchiveKey(name), 0)
		changed = true
	}
	post := pre
	if changed {
		post = crc32.ChecksumIEEE(stored)
	}
	return Blob{
		Entry: Entry{
			Name:             name,
			CompressedSize:   uint64(len(stored)),
			UncompressedSize: uint64(len(data)),
			ModTime:          modTime,
			CRC32Pre:         pre,
			CRC32Post:        post,
		},
		Data: stored,
	}
}

// Writer streams entries into an archive. The header is written as a
// placeholder up front and rewritten by Close.
type Writer struct {
	w       io.WriteSeeker
	header  Header
	level   compress.Level
	logger  *slog.Logger
	pos     uint64
	entries []Entry
	closed  bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithTableLevel sets the compression level of the file table.
func WithTableLevel(level compress.Level) WriterOption {
	return func(w *Writer) {
		w.level = level
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

// NewWriter starts an archive on w, which must be positioned at offset
// zero. Build version fields below 1 are raised to 1.
func NewWriter(w io.WriteSeeker, header Header, opts ...WriterOption) (*Writer, error) {
	header.VersionMajor = max(header.VersionMajor, 1)
	header.Changelist = max(header.Changelist, 1)
	header.TableCompressed = true
	header.TotalSize, header.TableOffset, header.EntryCount, header.TableSize = 0, 0, 0, 0

	sw := &Writer{w: w, header: header, level: compress.LevelDefault}
	for _, opt := range opts {
		opt(sw)
	}
	b, err := header.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, fmt.Errorf("sar: write header: %w", err)
	}
	sw.pos = HeaderSize
	return sw, nil
}

func (w *Writer) log() *slog.Logger {
	if w.logger != nil {
		return w.logger
	}
	return slog.New(slog.DiscardHandler)
}

func (w *Writer) pad() error {
	n := sizing.Padding(w.pos, Alignment)
	if n == 0 {
		return nil
	}
	var zero [Alignment]byte
	if _, err := w.w.Write(zero[:n]); err != nil {
		return fmt.Errorf("sar: write padding: %w", err)
	}
	w.pos += n
	return nil
}

// Write appends b and returns its table record.
func (w *Writer) Write(b Blob) (Entry, error) {
	if w.closed {
		return Entry{}, errors.New("sar: write after close")
	}
	if uint64(len(b.Data)) != b.CompressedSize {
		return Entry{}, fmt.Errorf("sar: %s: %d bytes stored, %d recorded", b.Name, len(b.Data), b.CompressedSize)
	}
	if err := w.pad(); err != nil {
		return Entry{}, err
	}
	e := b.Entry
	e.Offset = w.pos
	if _, err := w.w.Write(b.Data); err != nil {
		return Entry{}, fmt.Errorf("sar: write %s: %w", b.Name, err)
	}
	w.pos += uint64(len(b.Data))
	w.entries = append(w.entries, e)
	return e, nil
}

// Entries returns the records written so far.
func (w *Writer) Entries() []Entry {
	return append([]Entry(nil), w.entries...)
}

// Close writes the file table and the final header. It does not close
// the underlying writer.
func (w *Writer) Close() (Header, error) {
	if w.closed {
		return w.header, nil
	}
	w.closed = true

	codec, err := compress.NewCodec(w.level)
	if err != nil {
		return Header{}, err
	}
	defer codec.Close()
	table, err := encodeTable(w.entries, codec, w.header.VersionMajor, w.header.Changelist)
	if err != nil {
		return Header{}, err
	}
	if err := w.pad(); err != nil {
		return Header{}, err
	}

	h := w.header
	h.TableOffset = w.pos
	if h.TableSize, err = sizing.ToUint32(len(table)); err != nil {
		return Header{}, fmt.Errorf("sar: file table: %w", err)
	}
	if h.EntryCount, err = sizing.ToUint32(len(w.entries)); err != nil {
		return Header{}, fmt.Errorf("sar: entry count: %w", err)
	}
	if _, err := w.w.Write(table); err != nil {
		return Header{}, fmt.Errorf("sar: write file table: %w", err)
	}
	w.pos += uint64(len(table))
	h.TotalSize = w.pos

	b, err := h.MarshalBinary()
	if err != nil {
		return Header{}, err
	}
	if _, err := w.w.Seek(0, io.SeekStart); err != nil {
		return Header{}, fmt.Errorf("sar: seek to header: %w", err)
	}
	if _, err := w.w.Write(b); err != nil {
		return Header{}, fmt.Errorf("sar: write header: %w", err)
	}
	if _, err := w.w.Seek(0, io.SeekEnd); err != nil {
		return Header{}, fmt.Errorf("sar: seek to end: %w", err)
	}
	w.header = h
	w.log().Debug("archive written", "entries", h.EntryCount, "bytes", h.TotalSize)
	return h, nil
}
