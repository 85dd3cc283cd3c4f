// Package compress implements the framed compression formats used by
// cooked assets and archives.
//
// A framed payload is a little-endian FourCC ("ZSTD" or "LZ4C"), a u32
// uncompressed size, and the raw compressed stream. Archive entries and
// file tables use unframed ZSTD via [Codec].
package compress
