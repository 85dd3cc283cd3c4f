package datastore

import (
	"fmt"
	"math"
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/meigma/cook/internal/assetpath"
)

// TagFilePath is the CBOR tag wrapping a FilePath URI string in cooked
// documents.
const TagFilePath = 0xFA7E

var (
	cborOnce sync.Once
	cborEnc  cbor.EncMode
	cborDec  cbor.DecMode
	cborErr  error
)

func cborModes() (cbor.EncMode, cbor.DecMode, error) {
	cborOnce.Do(func() {
		cborEnc, cborErr = cbor.CoreDetEncOptions().EncMode()
		if cborErr != nil {
			return
		}
		cborDec, cborErr = cbor.DecOptions{
			DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		}.DecMode()
	})
	return cborEnc, cborDec, cborErr
}

// Cook returns the deterministic binary (CBOR) encoding of v.
func Cook(v any) ([]byte, error) {
	enc, _, err := cborModes()
	if err != nil {
		return nil, fmt.Errorf("datastore: cbor: %w", err)
	}
	data, err := enc.Marshal(toCBOR(v))
	if err != nil {
		return nil, fmt.Errorf("datastore: cook: %w", err)
	}
	return data, nil
}

// LoadCooked decodes data produced by [Cook].
func LoadCooked(data []byte) (any, error) {
	_, dec, err := cborModes()
	if err != nil {
		return nil, fmt.Errorf("datastore: cbor: %w", err)
	}
	var raw any
	if err := dec.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCooked, err)
	}
	return fromCBOR(raw)
}

func toCBOR(v any) any {
	switch t := v.(type) {
	case Table:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = toCBOR(e)
		}
		return out
	case Array:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toCBOR(e)
		}
		return out
	case assetpath.FilePath:
		return cbor.Tag{Number: TagFilePath, Content: t.URI()}
	default:
		return v
	}
}

func fromCBOR(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			c, err := fromCBOR(e)
			if err != nil {
				return nil, err
			}
			t[k] = c
		}
		return t, nil
	case map[any]any:
		out := make(Table, len(t))
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%w: non-string key %v", ErrCooked, k)
			}
			c, err := fromCBOR(e)
			if err != nil {
				return nil, err
			}
			out[ks] = c
		}
		return out, nil
	case []any:
		for i, e := range t {
			c, err := fromCBOR(e)
			if err != nil {
				return nil, err
			}
			t[i] = c
		}
		return t, nil
	case cbor.Tag:
		if t.Number != TagFilePath {
			return nil, fmt.Errorf("%w: unexpected tag %d", ErrCooked, t.Number)
		}
		s, ok := t.Content.(string)
		if !ok {
			return nil, fmt.Errorf("%w: file path tag content is %T", ErrCooked, t.Content)
		}
		fp, err := assetpath.ParseURI(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCooked, err)
		}
		return fp, nil
	case uint64:
		if t > math.MaxInt64 {
			return float64(t), nil
		}
		return int64(t), nil
	case float32:
		return float64(t), nil
	default:
		return v, nil
	}
}
