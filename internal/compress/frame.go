package compress

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/meigma/cook/internal/sizing"
)

// Errors returned by the framed codecs.
var (
	ErrBadFrame   = errors.New("compress: invalid frame header")
	ErrDecompress = errors.New("compress: decompression failed")
)

const (
	fourCCZstd = uint32('Z') | uint32('S')<<8 | uint32('T')<<16 | uint32('D')<<24
	fourCCLZ4  = uint32('L') | uint32('Z')<<8 | uint32('4')<<16 | uint32('C')<<24

	frameHeaderSize = 8

	// maxFrameInput bounds the uncompressed size recorded in a frame.
	maxFrameInput = 1 << 30
)

func putFrameHeader(dst []byte, fourCC uint32, size int) ([]byte, error) {
	n, err := sizing.ToUint32(size)
	if err != nil || n > maxFrameInput {
		return nil, fmt.Errorf("compress: input of %d bytes is too large", size)
	}
	dst = binary.LittleEndian.AppendUint32(dst, fourCC)
	dst = binary.LittleEndian.AppendUint32(dst, n)
	return dst, nil
}

func readFrameHeader(src []byte, fourCC uint32) (int, []byte, error) {
	if len(src) < frameHeaderSize {
		return 0, nil, ErrBadFrame
	}
	if binary.LittleEndian.Uint32(src) != fourCC {
		return 0, nil, ErrBadFrame
	}
	size := binary.LittleEndian.Uint32(src[4:])
	if size > maxFrameInput {
		return 0, nil, ErrBadFrame
	}
	return int(size), src[frameHeaderSize:], nil
}

// IsZstdFrame reports whether data starts with a ZSTD frame header.
func IsZstdFrame(data []byte) bool {
	return len(data) >= frameHeaderSize && binary.LittleEndian.Uint32(data) == fourCCZstd
}
