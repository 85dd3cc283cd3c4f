package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/compress"
	"github.com/meigma/cook/internal/datastore"
	"github.com/meigma/cook/internal/sar"
)

const modTime = 1_700_000_000

// newArchive writes a small obfuscated archive and returns its name.
func newArchive(t *testing.T) string {
	t.Helper()
	codec, err := compress.NewCodec(compress.LevelDefault)
	require.NoError(t, err)
	t.Cleanup(codec.Close)

	cooked, err := datastore.Cook(map[string]any{"Speed": int64(3)})
	require.NoError(t, err)
	files := []struct {
		name string
		data []byte
	}{
		{`Config\Game.json`, []byte(`{"Name": "cook", "Levels": [1, 2]}`)},
		{`Config\Cooked.json`, cooked},
		{`Scripts\AI\Main.lbc`, bytes.Repeat([]byte("return 1\n"), 32)},
	}

	name := filepath.Join(t.TempDir(), "Base.sar")
	f, err := os.Create(name)
	require.NoError(t, err)
	defer f.Close()
	w, err := sar.NewWriter(f, sar.Header{
		GameDirectory: assetpath.DirContent,
		Platform:      assetpath.IOS,
		VersionMajor:  4,
		Changelist:    321,
		Obfuscated:    true,
	})
	require.NoError(t, err)
	for _, tf := range files {
		_, err := w.Write(sar.Encode(tf.name, tf.data, modTime, sar.EncodeOptions{Codec: codec, Obfuscate: true}))
		require.NoError(t, err)
	}
	_, err = w.Close()
	require.NoError(t, err)
	return name
}

func runOK(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(args, &out))
	return out.String()
}

func TestList(t *testing.T) {
	t.Parallel()
	name := newArchive(t)

	out := runOK(t, "list", name)
	assert.Contains(t, out, `Scripts\AI\Main.lbc`)
	assert.Contains(t, out, "2023-11-14 22:13:20")

	tree := runOK(t, "list", "--tree", name)
	assert.Contains(t, tree, "Base.sar")
	assert.Contains(t, tree, "AI")
	assert.Contains(t, tree, "Main.lbc")
	assert.NotContains(t, tree, `\`)

	want := digest.FromBytes(bytes.Repeat([]byte("return 1\n"), 32))
	assert.Contains(t, runOK(t, "list", "--tree", "--digest", name), want.String())
	assert.Contains(t, runOK(t, "list", "--digest", name), want.Encoded()[:12])

	assert.Equal(t, "Config\\\nScripts\\\n", runOK(t, "list", "--dir", ".", name))
	assert.Equal(t, "AI\\\n", runOK(t, "list", "--dir", "scripts", name))
	assert.Equal(t, "Main.lbc\n", runOK(t, "list", "--dir", "Scripts/AI", name))
	require.ErrorIs(t, run([]string{"list", "--dir", "Textures", name}, &bytes.Buffer{}), sar.ErrNotFound)
}

func TestExtract(t *testing.T) {
	t.Parallel()
	name := newArchive(t)
	dest := t.TempDir()

	out := runOK(t, "extract", "--verify", name, dest)
	assert.Contains(t, out, "extracted 3 entries")

	got, err := os.ReadFile(filepath.Join(dest, "Config", "Game.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"Name": "cook", "Levels": [1, 2]}`, string(got))

	info, err := os.Stat(filepath.Join(dest, "Scripts", "AI", "Main.lbc"))
	require.NoError(t, err)
	assert.Equal(t, time.Unix(modTime, 0).UTC(), info.ModTime().UTC())

	// Existing files are kept unless overwriting.
	assert.Contains(t, runOK(t, "extract", name, dest), "extracted 0 entries")
	assert.Contains(t, runOK(t, "extract", "--overwrite", "-j", "2", name, dest), "extracted 3 entries")

	only := t.TempDir()
	assert.Contains(t, runOK(t, "extract", "--dir", "Scripts", name, only), "extracted 1 entries")
	assert.NoDirExists(t, filepath.Join(only, "Config"))
}

func TestHeaderCommands(t *testing.T) {
	t.Parallel()
	name := newArchive(t)

	assert.Equal(t, "321\n", runOK(t, "changelist", name))

	version := runOK(t, "version", name)
	assert.Contains(t, version, "format:       21")
	assert.Contains(t, version, "build:        4.321")
	assert.Contains(t, version, "platform:     IOS")

	stats := runOK(t, "stats", name)
	assert.Contains(t, stats, "entries:      3")
	assert.Contains(t, stats, "obfuscated:   true")
	assert.Contains(t, stats, "dictionary:   false")
}

func TestDumpJSON(t *testing.T) {
	t.Parallel()
	name := newArchive(t)

	assert.JSONEq(t, `{"Name": "cook", "Levels": [1, 2]}`, runOK(t, "dump-json", name, "config/game.json"))
	assert.JSONEq(t, `{"Speed": 3}`, runOK(t, "dump-json", name, `Config\Cooked.json`))

	err := run([]string{"dump-json", name, "Missing.json"}, &bytes.Buffer{})
	require.ErrorIs(t, err, sar.ErrNotFound)
}

func TestRemoteArchive(t *testing.T) {
	t.Parallel()
	name := newArchive(t)
	srv := httptest.NewServer(http.FileServer(http.Dir(filepath.Dir(name))))
	t.Cleanup(srv.Close)
	url := srv.URL + "/" + filepath.Base(name)

	assert.Equal(t, "321\n", runOK(t, "changelist", url))
	assert.Contains(t, runOK(t, "list", url), `Scripts\AI\Main.lbc`)
	require.Error(t, run([]string{"stats", srv.URL + "/Missing.sar"}, &bytes.Buffer{}))
}

func TestUsageErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"explode", "a.sar"}},
		{"missing archive", []string{"list"}},
		{"extra argument", []string{"changelist", "a.sar", "b.sar"}},
		{"unknown flag", []string{"stats", "--tree", "a.sar"}},
		{"archive not found", []string{"version", filepath.Join(t.TempDir(), "none.sar")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Error(t, run(tt.args, &bytes.Buffer{}))
		})
	}

	var out bytes.Buffer
	require.NoError(t, run([]string{"--help"}, &out))
	assert.Contains(t, out.String(), "dump-json")
}
