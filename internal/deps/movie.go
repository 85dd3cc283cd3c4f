package deps

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/cook/internal/assetpath"
)

// UI movie header constants.
const (
	MovieVersion   uint32 = 1
	MovieSignature uint32 = 0x464E4346 // "FCNF"
)

// UI movie tag ids that carry file references.
const (
	movieTagEnd                   = 0
	movieTagImportAssets          = 57
	movieTagImportAssets2         = 71
	movieTagDefineExternalBitmap  = 92
	movieTagLongLength            = 0x3F
	movieTagLengthMask            = 0x3F
	movieTagIDShift               = 6
	movieRectangleBitCountBits    = 5
	movieRectangleFieldCount      = 4
	movieFramesPerSecondSize      = 2
	movieRootClipCountSize        = 2
	movieDefinitionIDSize         = 2
	movieHeaderVersionAndSigBytes = 8
)

// MovieDependencies returns the external bitmaps and imported movies named
// by a decompressed UI movie. Imports are relative to the movie's
// directory; bitmaps are content-relative.
func MovieDependencies(fp assetpath.FilePath, data []byte) ([]assetpath.FilePath, error) {
	if len(data) < movieHeaderVersionAndSigBytes {
		return nil, fmt.Errorf("movie header: %w", errShortRead)
	}
	if v := binary.LittleEndian.Uint32(data); v != MovieVersion {
		return nil, fmt.Errorf("unsupported movie version %d, expected %d", v, MovieVersion)
	}
	if s := binary.LittleEndian.Uint32(data[4:]); s != MovieSignature {
		return nil, fmt.Errorf("movie signature 0x%08X, expected 0x%08X", s, MovieSignature)
	}
	r := &byteReader{b: data, off: movieHeaderVersionAndSigBytes}
	if err := skipRectangle(r); err != nil {
		return nil, fmt.Errorf("movie bounds: %w", err)
	}
	if _, err := r.next(movieFramesPerSecondSize + movieRootClipCountSize); err != nil {
		return nil, fmt.Errorf("movie header: %w", err)
	}

	var out []assetpath.FilePath
	for {
		b, err := r.next(2)
		if err != nil {
			return nil, fmt.Errorf("tag header: %w", err)
		}
		h := binary.LittleEndian.Uint16(b)
		id := h >> movieTagIDShift
		length := uint32(h & movieTagLengthMask)
		if length == movieTagLongLength {
			if length, err = r.u32(); err != nil {
				return nil, fmt.Errorf("tag %d length: %w", id, err)
			}
		}
		if uint64(length) > uint64(r.remaining()) {
			return nil, fmt.Errorf("tag %d: length %d past end of data", id, length)
		}
		body := &byteReader{b: r.b[r.off : r.off+int(length)]}
		r.off += int(length)

		switch id {
		case movieTagEnd:
			return out, nil
		case movieTagDefineExternalBitmap:
			if _, err := body.next(movieDefinitionIDSize); err != nil {
				return nil, fmt.Errorf("external bitmap: %w", err)
			}
			name, err := body.sizedString()
			if err != nil {
				return nil, fmt.Errorf("external bitmap: %w", err)
			}
			dep, err := assetpath.New(assetpath.DirContent, name)
			if err != nil {
				return nil, fmt.Errorf("external bitmap: %w", err)
			}
			out = append(out, dep)
		case movieTagImportAssets, movieTagImportAssets2:
			name, err := body.cstring()
			if err != nil {
				return nil, fmt.Errorf("import: %w", err)
			}
			dep, err := contentPathNear(fp, name)
			if err != nil {
				return nil, fmt.Errorf("import: %w", err)
			}
			out = append(out, dep)
		}
	}
}

// skipRectangle skips a bit-packed rectangle: a 5-bit field width followed
// by four fields of that width, padded to a byte boundary.
func skipRectangle(r *byteReader) error {
	if r.remaining() < 1 {
		return errShortRead
	}
	nbits := int(r.b[r.off] >> (8 - movieRectangleBitCountBits))
	total := movieRectangleBitCountBits + movieRectangleFieldCount*nbits
	_, err := r.next((total + 7) / 8)
	return err
}

// sizedString reads a uint8 length (NUL included) followed by the bytes.
func (r *byteReader) sizedString() (string, error) {
	b, err := r.next(1)
	if err != nil {
		return "", err
	}
	n := int(b[0])
	if n < 1 {
		return "", fmt.Errorf("string length %d out of range", n)
	}
	s, err := r.next(n)
	if err != nil {
		return "", err
	}
	return string(s[:n-1]), nil
}

// cstring reads a NUL-terminated string.
func (r *byteReader) cstring() (string, error) {
	for i := r.off; i < len(r.b); i++ {
		if r.b[i] == 0 {
			s := string(r.b[r.off:i])
			r.off = i + 1
			return s, nil
		}
	}
	return "", errShortRead
}
