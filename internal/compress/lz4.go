package compress

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// LZ4Compress returns data as a framed LZ4 block.
func LZ4Compress(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	out, err := putFrameHeader(make([]byte, 0, frameHeaderSize+bound), fourCCLZ4, len(data))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return out, nil
	}
	dst := out[frameHeaderSize : frameHeaderSize+bound]
	written, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("compress: lz4: %w", err)
	}
	return out[:frameHeaderSize+written], nil
}

// LZ4Decompress reverses [LZ4Compress].
func LZ4Decompress(data []byte) ([]byte, error) {
	size, payload, err := readFrameHeader(data, fourCCLZ4)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if size == 0 {
		return out, nil
	}
	read, err := lz4.UncompressBlock(payload, out)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %v", ErrDecompress, err)
	}
	if read != size {
		return nil, fmt.Errorf("%w: lz4: got %d bytes, expected %d", ErrDecompress, read, size)
	}
	return out, nil
}
