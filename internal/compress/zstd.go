package compress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/cook/internal/sizing"
)

// Level selects a ZSTD compression level.
type Level int

// Compression levels.
const (
	LevelFastest Level = iota
	LevelDefault
	LevelBest

	levelCount
)

func (l Level) encoderLevel() zstd.EncoderLevel {
	switch l {
	case LevelFastest:
		return zstd.SpeedFastest
	case LevelBest:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelFastest:
		return "fastest"
	case LevelBest:
		return "best"
	default:
		return "default"
	}
}

// dictMagic starts a dictionary in the zstd dictionary format. Anything
// else is treated as raw content.
const dictMagic = 0xEC30A437

var sharedEncoders [levelCount]struct {
	once sync.Once
	enc  *zstd.Encoder
	err  error
}

func sharedEncoder(level Level) (*zstd.Encoder, error) {
	if level < 0 || level >= levelCount {
		level = LevelDefault
	}
	slot := &sharedEncoders[level]
	slot.once.Do(func() {
		slot.enc, slot.err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(level.encoderLevel()),
			zstd.WithEncoderConcurrency(1),
			zstd.WithLowerEncoderMem(true),
		)
	})
	return slot.enc, slot.err
}

var sharedPool = NewDecompressPool(0)

// ZstdCompress returns data as a framed ZSTD payload.
func ZstdCompress(data []byte, level Level) ([]byte, error) {
	enc, err := sharedEncoder(level)
	if err != nil {
		return nil, fmt.Errorf("compress: zstd encoder: %w", err)
	}
	out, err := putFrameHeader(make([]byte, 0, frameHeaderSize+len(data)/2), fourCCZstd, len(data))
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(data, out), nil
}

// ZstdDecompress reverses [ZstdCompress].
func ZstdDecompress(data []byte) ([]byte, error) {
	size, payload, err := readFrameHeader(data, fourCCZstd)
	if err != nil {
		return nil, err
	}
	return sharedPool.DecodeSized(payload, size)
}

// Codec compresses unframed ZSTD streams at a fixed level, optionally
// against a shared dictionary.
type Codec struct {
	level Level
	dict  []byte
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithDictionary compresses against dict. The dictionary may be in zstd
// dictionary format or raw content.
func WithDictionary(dict []byte) CodecOption {
	return func(c *Codec) {
		c.dict = dict
	}
}

// NewCodec creates a Codec. Close releases its resources.
func NewCodec(level Level, opts ...CodecOption) (*Codec, error) {
	c := &Codec{level: level}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.dict) == 0 {
		enc, err := sharedEncoder(level)
		if err != nil {
			return nil, fmt.Errorf("compress: zstd encoder: %w", err)
		}
		c.enc = enc
		return c, nil
	}

	eopts := []zstd.EOption{
		zstd.WithEncoderLevel(level.encoderLevel()),
		zstd.WithEncoderConcurrency(1),
	}
	dopts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if len(c.dict) >= 4 && binary.LittleEndian.Uint32(c.dict) == dictMagic {
		eopts = append(eopts, zstd.WithEncoderDict(c.dict))
		dopts = append(dopts, zstd.WithDecoderDicts(c.dict))
	} else {
		id := rawDictID(c.dict)
		eopts = append(eopts, zstd.WithEncoderDictRaw(id, c.dict))
		dopts = append(dopts, zstd.WithDecoderDictRaw(id, c.dict))
	}
	enc, err := zstd.NewWriter(nil, eopts...)
	if err != nil {
		return nil, fmt.Errorf("compress: zstd dictionary encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, dopts...)
	if err != nil {
		_ = enc.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("compress: zstd dictionary decoder: %w", err)
	}
	c.enc = enc
	c.dec = dec
	return c, nil
}

// rawDictID derives a stable non-zero frame dictionary id from content.
func rawDictID(dict []byte) uint32 {
	return crc32.ChecksumIEEE(dict) | 1
}

// HasDictionary reports whether the codec uses a dictionary.
func (c *Codec) HasDictionary() bool { return len(c.dict) > 0 }

// Level returns the codec's compression level.
func (c *Codec) Level() Level { return c.level }

// Compress returns the unframed ZSTD stream for src.
func (c *Codec) Compress(src []byte) []byte {
	return c.enc.EncodeAll(src, nil)
}

// Decompress decodes an unframed stream expected to yield size bytes.
func (c *Codec) Decompress(src []byte, size int) ([]byte, error) {
	if c.dec == nil {
		return sharedPool.DecodeSized(src, size)
	}
	out, err := c.dec.DecodeAll(src, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrDecompress, len(out), size)
	}
	return out, nil
}

// Close releases dictionary-bound encoder state. Shared encoders are
// left open.
func (c *Codec) Close() {
	if c.dec != nil {
		c.dec.Close()
		_ = c.enc.Close() //nolint:errcheck // nothing buffered with EncodeAll
		c.dec = nil
	}
}

// DecodeSized decodes src, which must decompress to exactly size bytes.
func (p *DecompressPool) DecodeSized(src []byte, size int) ([]byte, error) {
	dec, release, err := p.Get(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	defer release()

	out := make([]byte, size)
	if _, err := io.ReadFull(dec, out); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: unexpected EOF", ErrDecompress)
		}
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	var probe [1]byte
	if n, err := dec.Read(probe[:]); n > 0 || (err != nil && !errors.Is(err, io.EOF)) {
		return nil, fmt.Errorf("%w: trailing data", ErrDecompress)
	}
	return out, nil
}

// ZstdDecodeAll decodes an unframed stream whose size is not recorded
// elsewhere. Output larger than maxSize bytes is an error.
func ZstdDecodeAll(src []byte, maxSize uint64) ([]byte, error) {
	dec, release, err := sharedPool.Get(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	defer release()

	out, err := sizing.ReadAllWithLimit(dec, maxSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	return out, nil
}

// ZstdDecodeSized decodes an unframed stream that must yield exactly
// size bytes.
func ZstdDecodeSized(src []byte, size int) ([]byte, error) {
	return sharedPool.DecodeSized(src, size)
}
