package task

import (
	"errors"
	"fmt"
	"strings"
)

// checkSourcePath validates the characters of a relative path (without
// extension). Braces are only allowed around a whole base name, which
// sound tools emit for GUID-named files.
func checkSourcePath(rel string) error {
	if rel == "" {
		return errors.New("empty path")
	}
	fileStart := strings.LastIndexByte(rel, '/') + 1
	var prev byte
	for i := 0; i < len(rel); i++ {
		ch := rel[i]
		switch {
		case ch == '/':
			if prev == '/' {
				return fmt.Errorf("%q contains a double slash", rel)
			}
		case ch == '{':
			if i != fileStart {
				return fmt.Errorf("%q contains '{' but not at the start of the name", rel)
			}
		case ch == '}':
			if i+1 != len(rel) && rel[i+1] != '.' {
				return fmt.Errorf("%q contains '}' but not at the end of the name", rel)
			}
		case ch == '.' || ch == '-' || ch == ' ':
			if i == 0 || i == fileStart {
				return fmt.Errorf("%q starts with %q", rel, ch)
			}
			if i+1 == len(rel) {
				return fmt.Errorf("%q ends with %q", rel, ch)
			}
			switch prev {
			case '.', '_', '-', ' ':
				return fmt.Errorf("%q contains the sequence %q", rel, string([]byte{prev, ch}))
			}
		case ch == '_',
			ch >= '0' && ch <= '9',
			ch >= 'a' && ch <= 'z',
			ch >= 'A' && ch <= 'Z':
		default:
			return fmt.Errorf("%q contains invalid character %q", rel, ch)
		}
		prev = ch
	}
	return nil
}
