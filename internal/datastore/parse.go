package datastore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/meigma/cook/internal/assetpath"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse parses a JSON document. Comments and trailing commas are
// accepted. Duplicate keys resolve to the last value.
func Parse(data []byte) (any, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after document", ErrSyntax)
	}
	return fromJSON(raw), nil
}

// ParseFile reads and parses the document at name.
func ParseFile(name string) (any, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("datastore: %w", err)
	}
	v, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func fromJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = fromJSON(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = fromJSON(e)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case string:
		return stringValue(t)
	default:
		return v
	}
}

// stringValue converts URI strings to FilePaths.
func stringValue(s string) any {
	if !assetpath.IsURI(s) {
		return s
	}
	fp, err := assetpath.ParseURI(s)
	if err != nil {
		return s
	}
	return fp
}
