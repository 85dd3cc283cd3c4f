package fxbank

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// element is a generic XML element. FX Studio documents are navigated by
// element path, so they are decoded into a tree rather than typed structs.
type element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []*element `xml:",any"`
}

// parseDocument decodes r and returns a document node whose only child is
// the root element.
func parseDocument(r io.Reader) (*element, error) {
	var root element
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, err
	}
	return &element{Children: []*element{&root}}, nil
}

// selectAll returns the elements reached by following the '/' separated
// element names in path.
func (e *element) selectAll(path string) []*element {
	if e == nil {
		return nil
	}
	cur := []*element{e}
	for _, name := range strings.Split(path, "/") {
		var next []*element
		for _, n := range cur {
			for _, c := range n.Children {
				if c.XMLName.Local == name {
					next = append(next, c)
				}
			}
		}
		cur = next
	}
	return cur
}

// selectOne returns the first element reached by path, or nil.
func (e *element) selectOne(path string) *element {
	if all := e.selectAll(path); len(all) > 0 {
		return all[0]
	}
	return nil
}

func (e *element) lookup(name string) (string, bool) {
	if e == nil {
		return "", false
	}
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (e *element) has(name string) bool {
	_, ok := e.lookup(name)
	return ok
}

func (e *element) attr(name string) string {
	s, _ := e.lookup(name)
	return s
}

func (e *element) attrBool(name string) bool {
	s, _ := e.lookup(name)
	return parseBool(s)
}

func (e *element) attrInt(name string, def int32) int32 {
	s, ok := e.lookup(name)
	if !ok {
		return def
	}
	return parseInt(s)
}

func (e *element) attrFloat(name string, def float32) float32 {
	s, ok := e.lookup(name)
	if !ok {
		return def
	}
	return parseFloat(s)
}

func (e *element) attrUUID(name string) uuid.UUID {
	return parseUUID(e.attr(name))
}

func (e *element) textInt() int32 {
	if e == nil {
		return 0
	}
	return parseInt(e.Text)
}

// parseBool is true for values starting with 1, t or y in either case.
func parseBool(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '1', 't', 'T', 'y', 'Y':
		return true
	}
	return false
}

// parseInt reads a decimal or 0x-prefixed hexadecimal integer, clamped to
// the int32 range. Unparseable values are zero.
func parseInt(s string) int32 {
	s = strings.TrimSpace(s)
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil && v == 0 {
		return 0
	}
	n := int64(math.MaxInt64)
	if v <= math.MaxInt64 {
		n = int64(v)
	}
	if neg {
		n = -n
	}
	return int32(max(min(n, math.MaxInt32), math.MinInt32)) //nolint:gosec // clamped above
}

// parseFloat reads a float. Unparseable values are zero.
func parseFloat(s string) float32 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0
	}
	return float32(f)
}

// parseUUID parses a GUID with or without braces. Malformed input is the
// nil UUID.
func parseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// parseFloats reads exactly n comma separated floats.
func parseFloats(s string, n int) ([]float32, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma separated values, got %q", n, s)
	}
	out := make([]float32, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", s)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// parseInts reads exactly n comma separated integers.
func parseInts(s string, n int) ([]int32, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma separated values, got %q", n, s)
	}
	out := make([]int32, n)
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", s)
		}
		out[i] = int32(v)
	}
	return out, nil
}
