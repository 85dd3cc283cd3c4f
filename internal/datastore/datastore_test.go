package datastore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/cook/internal/assetpath"
)

func mustParse(t *testing.T, s string) any {
	t.Helper()
	v, err := Parse([]byte(s))
	require.NoError(t, err)
	return v
}

func TestParse(t *testing.T) {
	t.Parallel()

	v := mustParse(t, `{
		// comment
		"a": 1,
		"b": 2.5,
		"c": "content://Authored/UI/a.png",
		"d": "content://not a path",
		"e": [true, null, "x",],
		"a": 3,
	}`)
	tbl, ok := v.(Table)
	require.True(t, ok)
	assert.Equal(t, int64(3), tbl["a"])
	assert.InDelta(t, 2.5, tbl["b"], 0)
	fp, ok := tbl["c"].(assetpath.FilePath)
	require.True(t, ok)
	assert.Equal(t, assetpath.Texture0, fp.Type)
	assert.Equal(t, "content://not a path", tbl["d"])
	assert.Equal(t, Array{true, nil, "x"}, tbl["e"])
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{`{`, `{"a":1} {"b":2}`, ``} {
		_, err := Parse([]byte(in))
		require.ErrorIs(t, err, ErrSyntax, in)
	}
}

func TestMinifyAndPretty(t *testing.T) {
	t.Parallel()

	v := mustParse(t, `{"b": [1, 2], "a": "content://x/y.png", "c": "<b>"}`)
	out, err := Minify(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"content://x/y.png","b":[1,2],"c":"<b>"}`, string(out))
	assert.Equal(t, `{"a":"content://x/y.png","b":[1,2],"c":"<b>"}`, string(out))

	pretty, err := Pretty(v)
	require.NoError(t, err)
	back := mustParse(t, string(pretty))
	assert.True(t, Equal(v, back))
}

func TestCookRoundTrip(t *testing.T) {
	t.Parallel()

	v := mustParse(t, `{"i": -4, "u": 12, "f": 0.25, "s": "str",
		"p": "content://Authored/a.png", "arr": [{"x": "config://q.json"}], "n": null}`)
	data, err := Cook(v)
	require.NoError(t, err)

	again, err := Cook(v)
	require.NoError(t, err)
	assert.Equal(t, data, again, "cooked output must be deterministic")

	back, err := LoadCooked(data)
	require.NoError(t, err)
	assert.True(t, Equal(v, back))

	_, err = LoadCooked([]byte{0xff, 0x00})
	require.ErrorIs(t, err, ErrCooked)
}

func TestWalkFilePaths(t *testing.T) {
	t.Parallel()

	v := mustParse(t, `{"b": ["content://b.png"], "a": {"x": "content://a.png"}, "c": "plain"}`)
	var got []string
	require.NoError(t, WalkFilePaths(v, func(fp assetpath.FilePath) error {
		got = append(got, fp.Rel)
		return nil
	}))
	assert.Equal(t, []string{"a", "b"}, got)

	stop := errors.New("stop")
	err := WalkFilePaths(v, func(assetpath.FilePath) error { return stop })
	require.ErrorIs(t, err, stop)
}

func TestIsCommandFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{`[["$set", "a", 1]]`, true},
		{`[["$include", "x.json"]]`, true},
		{`[["$nope", "a"]]`, false},
		{`[]`, false},
		{`[1]`, false},
		{`{"a": 1}`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsCommandFile(mustParse(t, tt.in)), tt.in)
	}
}

func TestResolveCommandFile(t *testing.T) {
	t.Parallel()

	cmds := mustParse(t, `[
		["$object", "Base"],
		["$set", "Speed", 10],
		["$set", "Tags", ["a"]],
		["$object", "Derived", "Base"],
		["$set", "Speed", 20],
		["$append", "Tags", "b"],
		["$set", "Nested", "deep", 0, "v", true],
		["$erase", "Tags", 0],
		["$set", "List", [{"id": 1, "v": "x"}, {"id": 2, "v": "y"}]],
		["$set", "List", ["$search", "id", 2], "v", "z"]
	]`)
	out, err := ResolveCommandFile(nil, "cmds.json", cmds)
	require.NoError(t, err)

	want := mustParse(t, `{
		"Base": {"Speed": 10, "Tags": ["a"]},
		"Derived": {
			"Speed": 20,
			"Tags": ["b"],
			"Nested": {"deep": [{"v": true}]},
			"List": [{"id": 1, "v": "x"}, {"id": 2, "v": "z"}]
		}
	}`)
	assert.True(t, Equal(want, out), "got %v", out)
}

func TestResolveCommandFileErrors(t *testing.T) {
	t.Parallel()

	tests := []string{
		`[["$object", "A", "Missing"]]`,
		`[["$erase", "nope"]]`,
		`[["$set", "a", 1], ["$append", "a", 2]]`,
		`[["$bogus", "a"]]`,
		`[["$set", "a"]]`,
		`[["$include", "x.json"]]`,
	}
	for _, in := range tests {
		_, err := ResolveCommandFile(nil, "c.json", mustParse(t, in))
		require.ErrorIs(t, err, ErrCommand, in)
	}
}

func TestResolveInclude(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.json"), []byte(`{"A": {"x": 1, "y": 2}}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "more.json"), []byte(`[["$object", "A"], ["$set", "z", 3]]`), 0o600))

	resolve := func(name string, resolved bool) (any, error) {
		v, err := ParseFile(name)
		if err != nil {
			return nil, err
		}
		if resolved && IsCommandFile(v) {
			return ResolveCommandFile(nil, name, v)
		}
		return v, nil
	}

	cmds := mustParse(t, `[
		["$include", "base.json"],
		["$include", "more.json"],
		["$object", "A"],
		["$set", "x", 10]
	]`)
	out, err := ResolveCommandFile(resolve, filepath.Join(dir, "main.json"), cmds)
	require.NoError(t, err)
	assert.True(t, Equal(mustParse(t, `{"A": {"x": 10, "y": 2, "z": 3}}`), out), "got %v", out)
}

func TestResolveInPlace(t *testing.T) {
	t.Parallel()

	base := mustParse(t, `{"A": {"x": 1}}`)
	out, err := ResolveInPlace(nil, "v.json", mustParse(t, `[["$object", "A"], ["$set", "x", 2]]`), base)
	require.NoError(t, err)
	assert.True(t, Equal(mustParse(t, `{"A": {"x": 2}}`), out))
	assert.True(t, Equal(mustParse(t, `{"A": {"x": 1}}`), base), "base must not change")
}

func TestDiff(t *testing.T) {
	t.Parallel()

	base := mustParse(t, `{"keep": 1, "change": "a", "gone": true, "t": {"a": 1, "b": 2}, "arr": [1, 2]}`)
	target := mustParse(t, `{"keep": 1, "change": "b", "t": {"a": 1, "b": 3, "c": 4}, "arr": [1], "new": "n"}`)

	patch := Diff(base, target)
	want := mustParse(t, `{"change": "b", "gone": null, "t": {"b": 3, "c": 4}, "arr": [1], "new": "n"}`)
	assert.True(t, Equal(want, patch), "got %v", patch)

	assert.True(t, Equal(target, ApplyDiff(base, patch)))
}
