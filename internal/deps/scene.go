package deps

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/meigma/cook/internal/assetpath"
)

// Scene asset chunk tags. Each chunk is an int32 tag and a uint32 body
// size. Material libraries and their members open with a delimiter equal
// to their tag.
const (
	TagAnimationClip     int32 = 0x50494C43 // "CLIP"
	TagAnimationSkeleton int32 = 0x4C454B53 // "SKEL"
	TagMesh              int32 = 0x4853454D // "MESH"
	TagMaterialLibrary   int32 = 0x4C54414D // "MATL"
	TagMaterial          int32 = 0x5254414D // "MATR"
	TagMaterialParameter int32 = 0x4D524150 // "PARM"
)

// Material parameter kinds.
const (
	ParamFloat    uint32 = 1
	ParamVector4D uint32 = 2
	ParamTexture  uint32 = 3
)

var errShortRead = errors.New("unexpected end of data")

// byteReader reads little-endian values from a scene asset body.
type byteReader struct {
	b   []byte
	off int
}

func (r *byteReader) remaining() int { return len(r.b) - r.off }

func (r *byteReader) next(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, errShortRead
	}
	b := r.b[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *byteReader) u32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *byteReader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err //nolint:gosec // reinterpretation
}

// str reads a string stored as a uint32 length (NUL included), the bytes
// and a NUL.
func (r *byteReader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if n == 0 || uint64(n) > uint64(r.remaining()) {
		return "", fmt.Errorf("string length %d out of range", n)
	}
	b, _ := r.next(int(n))
	if b[n-1] != 0 {
		return "", errors.New("string is not terminated")
	}
	return string(b[:n-1]), nil
}

func (r *byteReader) delimiter(tag int32) error {
	v, err := r.i32()
	if err != nil {
		return err
	}
	if v != tag {
		return fmt.Errorf("delimiter 0x%08X, expected 0x%08X", uint32(v), uint32(tag)) //nolint:gosec // display only
	}
	return nil
}

func (w *Walker) scanSceneAsset(fp assetpath.FilePath) error {
	data, err := w.readCompressed(fp)
	if err != nil {
		return err
	}
	refs, err := SceneAssetDependencies(data)
	if err != nil {
		return err
	}
	for _, dep := range refs {
		if err := w.Add(fp, dep); err != nil {
			return err
		}
	}
	return nil
}

// SceneAssetDependencies returns the texture references of a decompressed
// scene asset body. Only material libraries are parsed; animation, skeleton
// and mesh chunks are skipped.
func SceneAssetDependencies(data []byte) ([]assetpath.FilePath, error) {
	r := &byteReader{b: data}
	var out []assetpath.FilePath
	for r.remaining() > 0 {
		tag, err := r.i32()
		if err != nil {
			return nil, fmt.Errorf("chunk tag: %w", err)
		}
		size, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("chunk size: %w", err)
		}
		if uint64(size) > uint64(r.remaining()) {
			return nil, fmt.Errorf("chunk 0x%08X: size %d past end of data", uint32(tag), size) //nolint:gosec // display only
		}
		body, _ := r.next(int(size))

		switch tag {
		case TagAnimationClip, TagAnimationSkeleton, TagMesh:
		case TagMaterialLibrary:
			refs, err := materialLibrary(&byteReader{b: body})
			if err != nil {
				return nil, fmt.Errorf("material library: %w", err)
			}
			out = append(out, refs...)
		default:
			return nil, fmt.Errorf("invalid chunk tag 0x%08X", uint32(tag)) //nolint:gosec // display only
		}
	}
	return out, nil
}

func materialLibrary(r *byteReader) ([]assetpath.FilePath, error) {
	if err := r.delimiter(TagMaterialLibrary); err != nil {
		return nil, err
	}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	var out []assetpath.FilePath
	for m := range count {
		if err := r.delimiter(TagMaterial); err != nil {
			return nil, fmt.Errorf("material %d: %w", m, err)
		}
		if _, err := r.str(); err != nil {
			return nil, fmt.Errorf("material %d technique: %w", m, err)
		}
		params, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("material %d: %w", m, err)
		}
		for p := range params {
			ref, err := materialParameter(r)
			if err != nil {
				return nil, fmt.Errorf("material %d parameter %d: %w", m, p, err)
			}
			if ref.IsValid() {
				out = append(out, ref)
			}
		}
	}
	return out, nil
}

func materialParameter(r *byteReader) (assetpath.FilePath, error) {
	if err := r.delimiter(TagMaterialParameter); err != nil {
		return assetpath.FilePath{}, err
	}
	if _, err := r.str(); err != nil {
		return assetpath.FilePath{}, fmt.Errorf("semantic: %w", err)
	}
	kind, err := r.u32()
	if err != nil {
		return assetpath.FilePath{}, err
	}
	switch kind {
	case ParamTexture:
		s, err := r.str()
		if err != nil {
			return assetpath.FilePath{}, fmt.Errorf("texture path: %w", err)
		}
		return assetpath.New(assetpath.DirContent, s)
	case ParamFloat:
		_, err := r.next(4)
		return assetpath.FilePath{}, err
	case ParamVector4D:
		_, err := r.next(16)
		return assetpath.FilePath{}, err
	default:
		return assetpath.FilePath{}, fmt.Errorf("invalid parameter type %d", kind)
	}
}
