package datastore

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Command operators.
const (
	opAppend  = "$append"
	opErase   = "$erase"
	opInclude = "$include"
	opObject  = "$object"
	opSet     = "$set"
	opSearch  = "$search"
)

// Resolver loads an included document by absolute filename. When
// resolved is true, a command file must be returned already resolved.
type Resolver func(name string, resolved bool) (any, error)

// IsCommandFile reports whether v is a command document: a non-empty
// array whose first element is an array starting with a known operator.
func IsCommandFile(v any) bool {
	root, ok := v.(Array)
	if !ok || len(root) == 0 {
		return false
	}
	first, ok := root[0].(Array)
	if !ok || len(first) == 0 {
		return false
	}
	op, ok := first[0].(string)
	if !ok {
		return false
	}
	switch op {
	case opAppend, opErase, opInclude, opObject, opSet:
		return true
	}
	return false
}

// ResolveCommandFile evaluates cmds against a fresh document. baseFile
// anchors relative include paths.
func ResolveCommandFile(resolve Resolver, baseFile string, cmds any) (any, error) {
	r := &resolution{}
	if err := r.apply(resolve, baseFile, cmds); err != nil {
		return nil, err
	}
	return r.root, nil
}

// ResolveInPlace evaluates cmds on top of an existing document. The
// document is cloned first; the input is not modified.
func ResolveInPlace(resolve Resolver, baseFile string, cmds, base any) (any, error) {
	r := &resolution{root: Clone(base)}
	if err := r.apply(resolve, baseFile, cmds); err != nil {
		return nil, err
	}
	return r.root, nil
}

// resolution is the in-progress state of a command evaluation.
type resolution struct {
	root   any
	target Table
}

func cmdErr(file string, i int, format string, args ...any) error {
	return fmt.Errorf("%w: %s: cmd %d: %s", ErrCommand, file, i, fmt.Sprintf(format, args...))
}

func (r *resolution) rootTable() Table {
	t, ok := r.root.(Table)
	if !ok {
		t = Table{}
		r.root = t
	}
	return t
}

//nolint:gocognit,gocyclo // one branch per operator
func (r *resolution) apply(resolve Resolver, baseFile string, cmdsValue any) error {
	cmds, ok := cmdsValue.(Array)
	if !ok {
		return cmdErr(baseFile, 0, "command document is not an array")
	}
	baseDir := filepath.Dir(baseFile)

	for i, c := range cmds {
		cmd, ok := c.(Array)
		if !ok || len(cmd) == 0 {
			return cmdErr(baseFile, i, "command is not an array")
		}
		op, ok := cmd[0].(string)
		if !ok {
			return cmdErr(baseFile, i, "cmd is not a string")
		}

		switch op {
		case opInclude:
			rel, ok := argString(cmd, 1)
			if !ok {
				return cmdErr(baseFile, i, "$include requires 1 string argument")
			}
			name := filepath.Join(baseDir, filepath.FromSlash(strings.ReplaceAll(rel, "\\", "/")))
			if err := r.include(resolve, name, r.root == nil && isObjectCommand(cmds, i+1)); err != nil {
				return cmdErr(baseFile, i, "$include %q: %v", rel, err)
			}

		case opObject:
			to, ok := argString(cmd, 1)
			if !ok {
				return cmdErr(baseFile, i, "$object requires at least 1 string argument")
			}
			if len(cmd) == 2 {
				root := r.rootTable()
				if existing, ok := root[to]; ok {
					t, ok := existing.(Table)
					if !ok {
						return cmdErr(baseFile, i, "$object table %q already exists but is not a table", to)
					}
					r.target = t
					continue
				}
				t := Table{}
				root[to] = t
				r.target = t
				continue
			}
			from, ok := argString(cmd, 2)
			if !ok {
				return cmdErr(baseFile, i, "$object parent is undefined or not a string")
			}
			root := r.rootTable()
			parent, ok := root[from].(Table)
			if !ok {
				return cmdErr(baseFile, i, "$object parent %q does not exist", from)
			}
			child, _ := Clone(parent).(Table)
			if existing, ok := root[to].(Table); ok {
				mergeTable(existing, child)
				child = existing
			}
			root[to] = child
			r.target = child

		case opAppend, opErase, opSet:
			if err := r.mutate(op, cmd); err != nil {
				return cmdErr(baseFile, i, "%v", err)
			}

		default:
			return cmdErr(baseFile, i, "cmd %q is unknown or unsupported", op)
		}
	}
	return nil
}

func (r *resolution) include(resolve Resolver, name string, clone bool) error {
	if resolve == nil {
		return fmt.Errorf("no include resolver")
	}
	if clone {
		v, err := resolve(name, true)
		if err != nil {
			return err
		}
		r.root = Clone(v)
		return nil
	}
	v, err := resolve(name, false)
	if err != nil {
		return err
	}
	if IsCommandFile(v) {
		return r.apply(resolve, name, v)
	}
	t, ok := v.(Table)
	if !ok {
		return fmt.Errorf("included file must be a table")
	}
	mergeTable(r.rootTable(), Clone(t).(Table))
	return nil
}

func isObjectCommand(cmds Array, i int) bool {
	if i >= len(cmds) {
		return false
	}
	cmd, ok := cmds[i].(Array)
	if !ok || len(cmd) == 0 {
		return false
	}
	op, _ := cmd[0].(string)
	return op == opObject
}

func argString(cmd Array, i int) (string, bool) {
	if i >= len(cmd) {
		return "", false
	}
	s, ok := cmd[i].(string)
	return s, ok
}

// mergeTable copies src into dst, merging nested tables.
func mergeTable(dst, src Table) {
	for k, v := range src {
		if sv, ok := v.(Table); ok {
			if dv, ok := dst[k].(Table); ok {
				mergeTable(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}

// pathKey is either a table key or an array index.
type pathKey struct {
	ident   string
	index   int
	isIdent bool
}

// container is a mutable reference to a table or array slot.
type container struct {
	table  Table
	array  *Array
	parent func(Array)
}

//nolint:gocognit,gocyclo // mirrors the path-resolve rules
func (r *resolution) mutate(op string, cmd Array) error {
	erase := op == opErase
	if (!erase && len(cmd) < 3) || (erase && len(cmd) < 2) {
		return fmt.Errorf("path-resolve: insufficient arguments %d for cmd", len(cmd))
	}
	if r.target == nil {
		r.target = r.rootTable()
	}

	first, ok := cmd[1].(string)
	if !ok {
		return fmt.Errorf("path-resolve: path part 1 not defined or not a string")
	}
	key := pathKey{ident: first, isIdent: true}
	cur := container{table: r.target}

	end := len(cmd)
	if !erase {
		end--
	}
	for i := 2; i < end; i++ {
		part := cmd[i]
		_, nextIsString := part.(string)
		nextArray := !nextIsString

		next, err := descend(cur, key, nextArray)
		if err != nil {
			return err
		}
		cur = next

		switch p := part.(type) {
		case Array:
			idx, err := search(cur, p)
			if err != nil {
				return err
			}
			key = pathKey{index: idx}
		case string:
			key = pathKey{ident: p, isIdent: true}
		default:
			idx, ok := asIndex(part)
			if !ok {
				return fmt.Errorf("path-resolve: path part %d must be an integer or a string", i)
			}
			key = pathKey{index: idx}
		}
	}

	if erase {
		return eraseAt(cur, key)
	}

	value := Clone(cmd[len(cmd)-1])
	if op == opAppend {
		arr, err := appendTarget(cur, key)
		if err != nil {
			return err
		}
		cur = arr
		key = pathKey{index: len(*arr.array)}
	}
	return setAt(cur, key, value)
}

func descend(cur container, key pathKey, nextArray bool) (container, error) {
	newChild := func() any {
		if nextArray {
			return Array{}
		}
		return Table{}
	}
	if cur.table != nil {
		if !key.isIdent {
			return container{}, fmt.Errorf("path-resolve: index '%d' specified but container is a table", key.index)
		}
		v, ok := cur.table[key.ident]
		if !ok {
			v = newChild()
			cur.table[key.ident] = v
		}
		return wrap(v, func(a Array) { cur.table[key.ident] = a })
	}
	if key.isIdent {
		return container{}, fmt.Errorf("path-resolve: key '%s' specified but container is an array", key.ident)
	}
	arr := cur.array
	if key.index < 0 {
		return container{}, fmt.Errorf("path-resolve: negative index %d", key.index)
	}
	if key.index >= len(*arr) || (*arr)[key.index] == nil {
		growTo(cur, key.index)
		(*cur.array)[key.index] = newChild()
	}
	idx := key.index
	return wrap((*cur.array)[idx], func(a Array) { (*cur.array)[idx] = a })
}

func wrap(v any, setParent func(Array)) (container, error) {
	switch t := v.(type) {
	case Table:
		return container{table: t}, nil
	case Array:
		a := t
		return container{array: &a, parent: setParent}, nil
	default:
		return container{}, fmt.Errorf("path-resolve: element of type %T is not a container", v)
	}
}

// growTo extends the array so index i is addressable, filling with nil.
func growTo(c container, i int) {
	for len(*c.array) <= i {
		*c.array = append(*c.array, nil)
	}
	if c.parent != nil {
		c.parent(*c.array)
	}
}

func search(cur container, s Array) (int, error) {
	if cur.array == nil {
		return 0, fmt.Errorf("path-resolve: attempting to perform array search on an element that is not an array")
	}
	if len(s) < 3 {
		return 0, fmt.Errorf("path-resolve: array search requires 2 arguments")
	}
	if op, _ := s[0].(string); op != opSearch {
		return 0, fmt.Errorf("path-resolve: unknown path command %v", s[0])
	}
	key, ok := s[1].(string)
	if !ok {
		return 0, fmt.Errorf("path-resolve: array search requires 2 arguments, first argument not defined or is not a string")
	}
	for i, e := range *cur.array {
		if t, ok := e.(Table); ok {
			if v, ok := t[key]; ok && Equal(v, s[2]) {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("path-resolve: array search on property '%s' failed", key)
}

func asIndex(v any) (int, bool) {
	switch t := v.(type) {
	case int64:
		if t < 0 || t > int64(^uint32(0)) {
			return 0, false
		}
		return int(t), true
	case float64:
		if t < 0 || t != float64(int64(t)) {
			return 0, false
		}
		return int(t), true
	}
	return 0, false
}

func eraseAt(cur container, key pathKey) error {
	if cur.array != nil {
		if key.isIdent {
			return fmt.Errorf("$erase at key '%s' but container is an array", key.ident)
		}
		if key.index < 0 || key.index >= len(*cur.array) {
			return fmt.Errorf("$erase operation at element '%d' failed, element not defined", key.index)
		}
		*cur.array = append((*cur.array)[:key.index], (*cur.array)[key.index+1:]...)
		if cur.parent != nil {
			cur.parent(*cur.array)
		}
		return nil
	}
	if !key.isIdent {
		return fmt.Errorf("$erase at element '%d' but container is a table", key.index)
	}
	if _, ok := cur.table[key.ident]; !ok {
		return fmt.Errorf("$erase operation at key '%s' failed, key not defined", key.ident)
	}
	delete(cur.table, key.ident)
	return nil
}

func appendTarget(cur container, key pathKey) (container, error) {
	if cur.array != nil {
		if key.isIdent {
			return container{}, fmt.Errorf("$append at key '%s' but container is an array", key.ident)
		}
		if key.index < len(*cur.array) && (*cur.array)[key.index] != nil {
			if _, ok := (*cur.array)[key.index].(Array); !ok {
				return container{}, fmt.Errorf("$append target at element '%d' exists but it is not an array", key.index)
			}
		}
		return descend(cur, key, true)
	}
	if !key.isIdent {
		return container{}, fmt.Errorf("$append at key '%d' but container is a table", key.index)
	}
	if existing, ok := cur.table[key.ident]; ok {
		if _, ok := existing.(Array); !ok {
			return container{}, fmt.Errorf("$append target at key '%s' exists but it is not an array", key.ident)
		}
	}
	return descend(cur, key, true)
}

func setAt(cur container, key pathKey, value any) error {
	if cur.array != nil {
		if key.isIdent {
			return fmt.Errorf("mutation at key '%s' but container is an array", key.ident)
		}
		if key.index < 0 {
			return fmt.Errorf("mutation at negative element '%d'", key.index)
		}
		growTo(cur, key.index)
		(*cur.array)[key.index] = value
		return nil
	}
	if !key.isIdent {
		return fmt.Errorf("mutation at element '%d' but container is a table", key.index)
	}
	cur.table[key.ident] = value
	return nil
}
