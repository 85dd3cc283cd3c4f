package datastore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/meigma/cook/internal/assetpath"
)

// Minify returns the compact JSON encoding of v. Table keys are sorted.
func Minify(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(toJSON(v)); err != nil {
		return nil, fmt.Errorf("datastore: minify: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Pretty returns the indented JSON encoding of v.
func Pretty(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "\t")
	if err := enc.Encode(toJSON(v)); err != nil {
		return nil, fmt.Errorf("datastore: print: %w", err)
	}
	return buf.Bytes(), nil
}

func toJSON(v any) any {
	switch t := v.(type) {
	case Table:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = toJSON(e)
		}
		return out
	case Array:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toJSON(e)
		}
		return out
	case assetpath.FilePath:
		return t.URI()
	default:
		return v
	}
}
