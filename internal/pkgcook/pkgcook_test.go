package pkgcook

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/datastore"
	"github.com/meigma/cook/internal/deps"
	"github.com/meigma/cook/internal/pkgconfig"
	"github.com/meigma/cook/internal/sar"
	"github.com/meigma/cook/internal/scc"
	"github.com/meigma/cook/internal/task"
	"github.com/meigma/cook/internal/testutil"
)

func newContext(t *testing.T, opts ...task.ContextOption) *task.Context {
	t.Helper()
	opts = append([]task.ContextOption{task.WithBuild(task.Build{VersionMajor: 3, Changelist: 1234})}, opts...)
	return testutil.NewContext(t, opts...)
}

// writeCooked writes a cooked file and, when source is set, its source.
func writeCooked(t *testing.T, c *task.Context, dir assetpath.GameDirectory, rel, body string, source bool) assetpath.FilePath {
	t.Helper()
	fp := assetpath.MustNew(dir, rel)
	testutil.WriteFile(t, c.Layout().Abs(fp), body)
	if source {
		testutil.WriteFile(t, c.Layout().AbsSource(fp), "source")
	}
	return fp
}

func configDir(c *task.Context) string {
	return c.Layout().Dir(assetpath.DirConfig)
}

func cook(t *testing.T, c *task.Context, config string) error {
	t.Helper()
	cfg, err := pkgconfig.Parse([]byte(config), false)
	require.NoError(t, err)
	return New(cfg).CookAllOutOfDate(context.Background(), c)
}

func openArchive(t *testing.T, c *task.Context, name string) *sar.Reader {
	t.Helper()
	r, err := sar.Open(filepath.Join(configDir(c), name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func entryNames(r *sar.Reader) []string {
	var out []string
	for _, e := range r.Entries() {
		out = append(out, e.Name)
	}
	return out
}

func readEntry(t *testing.T, r *sar.Reader, name string) string {
	t.Helper()
	data, err := r.ReadFile(name)
	require.NoError(t, err)
	return string(data)
}

func entry(dir assetpath.GameDirectory, rel string, size uint64) FileEntry {
	return FileEntry{Path: assetpath.MustNew(dir, rel), Size: size}
}

func paths(list []FileEntry) []string {
	out := make([]string, 0, len(list))
	for _, e := range list {
		out = append(out, e.Path.RelativeFilename())
	}
	return out
}

func TestSortFiles(t *testing.T) {
	t.Parallel()

	t.Run("mips last", func(t *testing.T) {
		t.Parallel()
		list := []FileEntry{
			entry(assetpath.DirContent, "a.sif0", 1),
			entry(assetpath.DirContent, "z.txt", 1),
			entry(assetpath.DirContent, "a.sif2", 1),
			entry(assetpath.DirContent, "b.lbc", 1),
			entry(assetpath.DirContent, "b.sif0", 1),
			entry(assetpath.DirContent, "a.sif1", 1),
		}
		SortFiles(list, false)
		assert.Equal(t, []string{"z.txt", "b.lbc", "a.sif2", "a.sif1", "a.sif0", "b.sif0"}, paths(list))
	})

	t.Run("by modification time", func(t *testing.T) {
		t.Parallel()
		list := []FileEntry{
			{Path: assetpath.MustNew(assetpath.DirContent, "b.txt"), ModTime: 5},
			{Path: assetpath.MustNew(assetpath.DirContent, "A.txt"), ModTime: 5},
			{Path: assetpath.MustNew(assetpath.DirContent, "t.sif0"), ModTime: 5},
			{Path: assetpath.MustNew(assetpath.DirContent, "t.sif1"), ModTime: 5},
			{Path: assetpath.MustNew(assetpath.DirContent, "old.txt"), ModTime: 1},
		}
		SortFiles(list, true)
		assert.Equal(t, []string{"old.txt", "A.txt", "b.txt", "t.sif1", "t.sif0"}, paths(list))
	})
}

func TestSplitOverflow(t *testing.T) {
	t.Parallel()

	mip0 := entry(assetpath.DirContent, "Art/hero.sif0", 500_000)
	mip1 := entry(assetpath.DirContent, "Art/hero.sif1", 100_000)
	mip2 := entry(assetpath.DirContent, "Art/hero.sif2", 30_000)
	bank := entry(assetpath.DirContent, "Audio/music.bank", 200_000)
	doc := entry(assetpath.DirContent, "Config/big.json", 900_000)

	tests := []struct {
		name         string
		list         []FileEntry
		target       uint64
		excluded     func(assetpath.FilePath) bool
		wantBase     []string
		wantOverflow []string
		wantErr      bool
	}{
		{
			name:     "under target",
			list:     []FileEntry{mip0, mip1},
			target:   600_000,
			wantBase: []string{"Art/hero.sif0", "Art/hero.sif1"},
		},
		{
			name:         "mip0 scored against mip1",
			list:         []FileEntry{mip0, mip1},
			target:       250_000,
			wantBase:     []string{"Art/hero.sif1"},
			wantOverflow: []string{"Art/hero.sif0"},
		},
		{
			name:    "mip1 not taken after mip0",
			list:    []FileEntry{mip0, mip1},
			target:  150_000,
			wantErr: true,
		},
		{
			name:         "largest score first",
			list:         []FileEntry{doc, bank, mip0, mip1, mip2},
			target:       1_530_000,
			wantBase:     []string{"Config/big.json", "Audio/music.bank", "Art/hero.sif1", "Art/hero.sif2"},
			wantOverflow: []string{"Art/hero.sif0"},
		},
		{
			name:         "original order kept",
			list:         []FileEntry{doc, bank, mip0, mip1, mip2},
			target:       1_100_000,
			wantBase:     []string{"Config/big.json", "Art/hero.sif1"},
			wantOverflow: []string{"Audio/music.bank", "Art/hero.sif0", "Art/hero.sif2"},
		},
		{
			name:   "excluded entries stay",
			list:   []FileEntry{doc, bank, mip0, mip1},
			target: 1_600_000,
			excluded: func(fp assetpath.FilePath) bool {
				return fp.Type == assetpath.Texture0
			},
			wantBase:     []string{"Config/big.json", "Art/hero.sif0", "Art/hero.sif1"},
			wantOverflow: []string{"Audio/music.bank"},
		},
		{
			name:    "only eligible types move",
			list:    []FileEntry{doc},
			target:  1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var total uint64
			for _, e := range tt.list {
				total += e.Size
			}
			base, overflow, err := SplitOverflow(tt.list, total, tt.target, tt.excluded)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrOverflow)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBase, paths(base))
			if tt.wantOverflow == nil {
				assert.Empty(t, overflow)
			} else {
				assert.Equal(t, tt.wantOverflow, paths(overflow))
			}
		})
	}
}

func TestSplitOverflowShortfallMessage(t *testing.T) {
	t.Parallel()
	list := []FileEntry{
		entry(assetpath.DirContent, "Art/hero.sif0", 500_000),
		entry(assetpath.DirContent, "Art/hero.sif1", 100_000),
	}
	_, _, err := SplitOverflow(list, 600_000, 150_000, nil)
	require.ErrorIs(t, err, ErrOverflow)
	assert.Contains(t, err.Error(), "only 400000 bytes")
	assert.Contains(t, err.Error(), "need at least 450000 bytes")
	assert.Contains(t, err.Error(), "base size of 150000 bytes")
}

func TestParseVariations(t *testing.T) {
	t.Parallel()

	settings := assetpath.MustNew(assetpath.DirConfig, "Settings.json")
	other := assetpath.MustNew(assetpath.DirConfig, "Game/Other.json")
	exists := func(fp assetpath.FilePath) bool { return !strings.Contains(fp.Rel, "Missing") }

	t.Run("blocks", func(t *testing.T) {
		t.Parallel()
		input := "ignored\n" +
			"@@append_to \"Settings.json\"\n" +
			"[[\"$set\", \"a\", 1]]\n" +
			"@@append_to \"Game/Other.json\"\n" +
			"[[\"$set\", \"b\", 2]]\n" +
			"@@append_to \"Settings.json\"\n" +
			"[[\"$set\", \"c\", 3]]"
		v, err := ParseVariations(strings.NewReader(input), "v.txt", exists)
		require.NoError(t, err)
		require.Len(t, v, 2)
		assert.Equal(t, "[[\"$set\", \"a\", 1]]\n[[\"$set\", \"c\", 3]]", v[settings.Key()])
		assert.Equal(t, "[[\"$set\", \"b\", 2]]\n", v[other.Key()])
		assert.True(t, v.Has(settings))
		assert.False(t, v.Has(assetpath.MustNew(assetpath.DirConfig, "Nope.json")))
	})

	errCases := map[string]string{
		"unquoted":     "@@append_to Settings.json\n",
		"unterminated": "@@append_to \"Settings.json\n",
		"missing":      "@@append_to \"Missing.json\"\n[]\n",
		"no extension": "@@append_to \"Settings\"\n[]\n",
	}
	for name, input := range errCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseVariations(strings.NewReader(input), "v.txt", exists)
			require.ErrorIs(t, err, ErrVariation)
		})
	}
}

const contentPackage = `{
	"Platform": "PC",
	"Packages": [{
		"Name": "Base",
		"Root": "Authored",
		"Extensions": [".txt", ".lbc", ".sif0", ".sif1"],
		"NonDependencySearchPatterns": ["*.*"],
		"CompressFiles": true,
		"Obfuscate": true,
		"IncludeInSourceControl": true
	}]
}`

func writeContentFiles(t *testing.T, c *task.Context) {
	t.Helper()
	writeCooked(t, c, assetpath.DirContent, "Authored/a.txt", strings.Repeat("alpha ", 64), true)
	writeCooked(t, c, assetpath.DirContent, "Authored/b.lbc", "bytecode", true)
	writeCooked(t, c, assetpath.DirContent, "Authored/t.sif0", strings.Repeat("mip0", 32), true)
	writeCooked(t, c, assetpath.DirContent, "Authored/t.sif1", "mip1", false)
	writeCooked(t, c, assetpath.DirContent, "Authored/gone.txt", "orphan", false)
	writeCooked(t, c, assetpath.DirContent, "Other/c.txt", "outside root", true)
}

func TestCookSarArchive(t *testing.T) {
	t.Parallel()
	journal := filepath.Join(t.TempDir(), "journal.jsonl")
	c := newContext(t, task.WithSourceControl(scc.NewJournal(journal)))
	writeContentFiles(t, c)

	require.NoError(t, cook(t, c, contentPackage))

	r := openArchive(t, c, "Base.sar")
	assert.Equal(t, []string{"a.txt", "b.lbc", "t.sif1", "t.sif0"}, entryNames(r))
	h := r.Header()
	assert.True(t, h.Obfuscated)
	assert.Equal(t, uint16(3), h.VersionMajor)
	assert.Equal(t, uint32(1234), h.Changelist)
	assert.Equal(t, uint16(0), h.Variation)
	assert.Equal(t, assetpath.DirContent, h.GameDirectory)
	assert.Equal(t, assetpath.PC, h.Platform)
	require.NoError(t, r.Verify())

	assert.Equal(t, strings.Repeat("alpha ", 64), readEntry(t, r, "a.txt"))
	assert.Equal(t, "bytecode", readEntry(t, r, "b.lbc"))
	assert.Equal(t, "mip1", readEntry(t, r, "t.sif1"))

	a, ok := r.Lookup("a.txt")
	require.True(t, ok)
	assert.Less(t, a.CompressedSize, a.UncompressedSize)
	assert.NotEqual(t, a.CRC32Pre, a.CRC32Post)

	manifest, err := os.ReadFile(filepath.Join(configDir(c), "Base.sar_manifest"))
	require.NoError(t, err)
	assert.Equal(t, append(r.RawHeader(), r.RawTable()...), manifest)

	// A second identical cook opens the archive for edit and reverts it.
	require.NoError(t, cook(t, c, contentPackage))
	recs, err := scc.ReadJournal(journal)
	require.NoError(t, err)
	var actions []scc.Action
	for _, rec := range recs {
		assert.Equal(t, "Base.sar", filepath.Base(rec.Path))
		actions = append(actions, rec.Action)
	}
	assert.Equal(t, []scc.Action{scc.ActionAdd, scc.ActionEdit, scc.ActionRevert}, actions)
}

func TestCookReportsProgress(t *testing.T) {
	t.Parallel()
	var done []int
	c := newContext(t, task.WithProgress(func(name string, n, total int) {
		assert.Equal(t, "Package", name)
		assert.Equal(t, 2, total)
		done = append(done, n)
	}))
	writeContentFiles(t, c)
	require.NoError(t, cook(t, c, `{
		"Platform": "PC",
		"Packages": [
			{"Name": "One", "Root": "Authored", "Extensions": [".txt"], "NonDependencySearchPatterns": ["*.txt"]},
			{"Name": "Two", "Root": "Authored", "Extensions": [".lbc"], "NonDependencySearchPatterns": [".lbc"]}
		]
	}`))
	assert.Equal(t, []int{1, 2}, done)
	assert.Equal(t, []string{"a.txt"}, entryNames(openArchive(t, c, "One.sar")))
	assert.Equal(t, []string{"b.lbc"}, entryNames(openArchive(t, c, "Two.sar")))
}

func TestCookAdditionalIncludes(t *testing.T) {
	t.Parallel()
	c := newContext(t)
	writeContentFiles(t, c)
	require.NoError(t, cook(t, c, `{
		"Platform": "PC",
		"Packages": [{
			"Name": "Extras",
			"Extensions": [".txt"],
			"AdditionalIncludes": ["Authored/gone.txt", "Other/c.txt"],
			"SortByModifiedTime": true
		}]
	}`))
	r := openArchive(t, c, "Extras.sar")
	assert.ElementsMatch(t, []string{"Authored\\gone.txt", "Other\\c.txt"}, entryNames(r))
	assert.Equal(t, "orphan", readEntry(t, r, "Authored/gone.txt"))

	err := cook(t, c, `{
		"Platform": "PC",
		"Packages": [{"Name": "Broken", "AdditionalIncludes": ["Authored/none.txt"]}]
	}`)
	require.ErrorIs(t, err, ErrMissingFile)
}

func TestCookFromDependencies(t *testing.T) {
	t.Parallel()
	c := newContext(t)
	writeContentFiles(t, c)
	testutil.WriteFile(t, filepath.Join(configDir(c), "Game.json"), `{
		"Script": "content://Authored/b.lbc",
		"Other": "content://Other/c.txt"
	}`)
	require.NoError(t, cook(t, c, `{
		"Platform": "PC",
		"Packages": [{
			"Name": "Deps",
			"Root": "Authored",
			"Extensions": [".lbc", ".txt"],
			"IncludeFiles": ["Authored/*"],
			"PopulateFromDependencies": true
		}]
	}`))
	assert.Equal(t, []string{"b.lbc"}, entryNames(openArchive(t, c, "Deps.sar")))
}

func TestCookMissingDependency(t *testing.T) {
	t.Parallel()
	c := newContext(t)
	testutil.WriteFile(t, filepath.Join(configDir(c), "Game.json"), `{"Script": "content://Authored/none.lbc"}`)
	err := cook(t, c, `{"Platform": "PC", "Packages": [{"Name": "Deps", "PopulateFromDependencies": true}]}`)
	require.ErrorIs(t, err, deps.ErrMissingDependencies)
}

func TestCookOverflow(t *testing.T) {
	t.Parallel()
	c := newContext(t)
	writeCooked(t, c, assetpath.DirContent, "Art/big.sif0", strings.Repeat("0", 5000), true)
	writeCooked(t, c, assetpath.DirContent, "Art/big.sif1", strings.Repeat("1", 1000), false)
	writeCooked(t, c, assetpath.DirContent, "Art/small.txt", strings.Repeat("s", 100), true)

	config := func(target int) string {
		return `{
			"Platform": "PC",
			"Packages": [{
				"Name": "Base",
				"Extensions": [".sif0", ".sif1", ".txt"],
				"NonDependencySearchPatterns": ["*.*"],
				"Overflow": "Extra",
				"OverflowTargetBytes": ` + strconv.Itoa(target) + `
			}]
		}`
	}

	require.NoError(t, cook(t, c, config(2500)))
	assert.Equal(t, []string{"Art\\small.txt", "Art\\big.sif1"}, entryNames(openArchive(t, c, "Base.sar")))
	extra := openArchive(t, c, "Extra.sar")
	assert.Equal(t, []string{"Art\\big.sif0"}, entryNames(extra))
	assert.Equal(t, strings.Repeat("0", 5000), readEntry(t, extra, "Art/big.sif0"))

	err := cook(t, c, config(2000))
	require.ErrorIs(t, err, ErrOverflow)

	// Nothing overflows under the target, but the overflow archive is
	// still written.
	require.NoError(t, cook(t, c, config(10000)))
	assert.Len(t, openArchive(t, c, "Base.sar").Entries(), 3)
	assert.Empty(t, openArchive(t, c, "Extra.sar").Entries())
}

func TestCookOverflowSettings(t *testing.T) {
	t.Parallel()
	c := newContext(t)
	writeContentFiles(t, c)

	err := cook(t, c, `{"Platform": "PC", "Packages": [{"Name": "Base", "Overflow": "Extra"}]}`)
	require.ErrorIs(t, err, ErrOverflow)

	err = cook(t, c, `{"Platform": "PC", "Packages": [{
		"Name": "Base", "Overflow": "Extra", "OverflowTargetBytes": 10, "OverflowConsider": ["Missing"]
	}]}`)
	require.ErrorIs(t, err, ErrMissingFile)

	err = cook(t, c, `{"Platform": "PC", "Packages": [{
		"Name": "Base", "ZipArchive": true, "Overflow": "Extra", "OverflowTargetBytes": 10
	}]}`)
	require.ErrorIs(t, err, ErrZip)
}

func TestCookDelta(t *testing.T) {
	t.Parallel()
	c := newContext(t)
	writeContentFiles(t, c)
	require.NoError(t, cook(t, c, contentPackage))

	writeCooked(t, c, assetpath.DirContent, "Authored/b.lbc", "new bytecode", true)
	require.NoError(t, cook(t, c, `{
		"Platform": "PC",
		"Packages": [{
			"Name": "Patch",
			"Root": "Authored",
			"Extensions": [".txt", ".lbc", ".sif0", ".sif1"],
			"NonDependencySearchPatterns": ["*.*"],
			"CompressFiles": true,
			"Obfuscate": true,
			"DeltaArchives": ["Base"]
		}]
	}`))
	patch := openArchive(t, c, "Patch.sar")
	assert.Equal(t, []string{"b.lbc"}, entryNames(patch))
	assert.Equal(t, "new bytecode", readEntry(t, patch, "b.lbc"))

	err := cook(t, c, `{"Platform": "PC", "Packages": [{"Name": "Bad", "DeltaArchives": ["Nope"]}]}`)
	require.ErrorIs(t, err, ErrDelta)
}

func TestCookVariations(t *testing.T) {
	t.Parallel()
	c := newContext(t)
	dir := configDir(c)
	testutil.WriteFile(t, filepath.Join(dir, "Settings.json"), `{"speed": 1, "name": "x"}`)
	testutil.WriteFile(t, filepath.Join(dir, "Commands.json"), `[["$set", "a", 1]]`)
	testutil.WriteFile(t, filepath.Join(dir, "Other.json"), `{"untouched": true}`)
	testutil.WriteFile(t, filepath.Join(dir, "Variants", "fast.txt"),
		"@@append_to \"Settings.json\"\n[[\"$set\", \"speed\", 2]]\n"+
			"@@append_to \"Commands.json\"\n[[\"$set\", \"b\", 2]]\n")

	require.NoError(t, cook(t, c, `{
		"Platform": "PC",
		"Packages": [{
			"Name": "Base",
			"GameDirectoryType": "Config",
			"Extensions": [".json"],
			"NonDependencySearchPatterns": ["*.json"],
			"CompressFiles": true,
			"Variations": ["Variants/fast.txt"]
		}]
	}`))

	base := openArchive(t, c, "Base.sar")
	v := openArchive(t, c, "Base_Variation_1.sar")
	assert.Equal(t, uint16(1), v.Header().Variation)
	assert.Equal(t, entryNames(base), entryNames(v))

	doc, err := datastore.Parse([]byte(readEntry(t, v, "Settings.json")))
	require.NoError(t, err)
	assert.Equal(t, datastore.Table{"speed": int64(2), "name": "x"}, doc)

	cmds, err := datastore.Parse([]byte(readEntry(t, v, "Commands.json")))
	require.NoError(t, err)
	assert.Len(t, cmds, 2)

	be, ok := base.Lookup("Other.json")
	require.True(t, ok)
	ve, ok := v.Lookup("Other.json")
	require.True(t, ok)
	braw, err := base.ReadRaw(be)
	require.NoError(t, err)
	vraw, err := v.ReadRaw(ve)
	require.NoError(t, err)
	assert.Equal(t, braw, vraw)
	assert.Equal(t, be.CRC32Post, ve.CRC32Post)
}

func TestCookVariationErrors(t *testing.T) {
	t.Parallel()
	c := newContext(t)
	dir := configDir(c)
	testutil.WriteFile(t, filepath.Join(dir, "Settings.json"), `{"speed": 1}`)
	testutil.WriteFile(t, filepath.Join(dir, "bad.txt"), "@@append_to \"Settings.json\"\n{\"not\": \"commands\"}\n")
	err := cook(t, c, `{
		"Platform": "PC",
		"Packages": [{
			"Name": "Base",
			"GameDirectoryType": "Config",
			"Extensions": [".json"],
			"NonDependencySearchPatterns": ["*.json"],
			"Variations": ["bad.txt"]
		}]
	}`)
	require.ErrorIs(t, err, ErrVariation)
}

func TestCookLocale(t *testing.T) {
	t.Parallel()
	c := newContext(t)
	locale := filepath.Join(configDir(c), "Loc", "en", "locale.json")
	testutil.WriteFile(t, locale, `{"hello": "Hello", "bye": "Bye"}`)
	require.NoError(t, cook(t, c, `{
		"Platform": "PC",
		"Packages": [{
			"Name": "LocBase",
			"GameDirectoryType": "Config",
			"Extensions": [".json"],
			"IncludeFiles": ["Loc/*"],
			"NonDependencySearchPatterns": ["*.json"]
		}]
	}`))

	testutil.WriteFile(t, locale, `{"hello": "Hi", "bye": "Bye"}`)
	testutil.WriteFile(t, filepath.Join(configDir(c), "Loc", "en", "locale_patch.json"), `{}`)
	require.NoError(t, cook(t, c, `{
		"Platform": "PC",
		"Packages": [{
			"Name": "LocPatch",
			"GameDirectoryType": "Config",
			"Extensions": [".json"],
			"IncludeFiles": ["Loc/*"],
			"NonDependencySearchPatterns": ["*.json"],
			"LocaleBaseArchive": "LocBase.sar",
			"LocaleBaseFilename": "locale.json",
			"LocalePatchFilename": "locale_patch.json",
			"MinifyJson": true
		}]
	}`))

	r := openArchive(t, c, "LocPatch.sar")
	assert.JSONEq(t, `{"hello": "Hello", "bye": "Bye"}`, readEntry(t, r, "Loc/en/locale.json"))
	assert.JSONEq(t, `{"hello": "Hi"}`, readEntry(t, r, "Loc/en/locale_patch.json"))
}

func TestCookDictionary(t *testing.T) {
	t.Parallel()
	c := newContext(t)
	writeContentFiles(t, c)
	dict := strings.Repeat("alpha bytecode mip0 ", 16)
	testutil.WriteFile(t, filepath.Join(c.Layout().Dir(assetpath.DirContent), "pkgcdict_PC.dat"), dict)

	require.NoError(t, cook(t, c, `{
		"Platform": "PC",
		"Packages": [{
			"Name": "Dict",
			"Extensions": [".txt", ".lbc"],
			"IncludeFiles": ["Authored/*"],
			"NonDependencySearchPatterns": ["*.*"],
			"CompressFiles": true,
			"UseCompressionDictionary": true,
			"CompressionDictionarySize": 4096
		}]
	}`))
	r := openArchive(t, c, "Dict.sar")
	assert.Equal(t, []string{"pkgcdict_PC.dat", "Authored\\a.txt", "Authored\\b.lbc"}, entryNames(r))
	assert.Equal(t, strings.Repeat("alpha ", 64), readEntry(t, r, "Authored/a.txt"))
	assert.Equal(t, dict, readEntry(t, r, "pkgcdict_PC.dat"))

	de, ok := r.DictionaryEntry()
	require.True(t, ok)
	raw, err := r.ReadRaw(de)
	require.NoError(t, err)
	manifest, err := os.ReadFile(filepath.Join(configDir(c), "Dict.sar_manifest"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(manifest), string(raw)))
}

func TestCookOverflowSkipsDictionary(t *testing.T) {
	t.Parallel()
	c := newContext(t)
	writeCooked(t, c, assetpath.DirContent, "Art/big.sif0", strings.Repeat("mip0 ", 1000), true)
	writeCooked(t, c, assetpath.DirContent, "Art/big.sif1", strings.Repeat("1", 1000), false)
	writeCooked(t, c, assetpath.DirContent, "Art/small.txt", strings.Repeat("s", 100), true)
	dict := strings.Repeat("mip0 small ", 32)
	testutil.WriteFile(t, filepath.Join(c.Layout().Dir(assetpath.DirContent), "pkgcdict_PC.dat"), dict)

	require.NoError(t, cook(t, c, `{
		"Platform": "PC",
		"Packages": [{
			"Name": "Base",
			"Extensions": [".sif0", ".sif1", ".txt"],
			"NonDependencySearchPatterns": ["*.*"],
			"CompressFiles": true,
			"UseCompressionDictionary": true,
			"CompressionDictionarySize": 4096,
			"Overflow": "Extra",
			"OverflowTargetBytes": 2500
		}]
	}`))

	base := openArchive(t, c, "Base.sar")
	assert.ElementsMatch(t, []string{"pkgcdict_PC.dat", "Art\\small.txt", "Art\\big.sif1"}, entryNames(base))
	_, ok := base.DictionaryEntry()
	assert.True(t, ok)
	assert.Equal(t, strings.Repeat("s", 100), readEntry(t, base, "Art/small.txt"))

	// The dictionary stays in the base archive, so the overflow archive
	// must be readable without it.
	extra := openArchive(t, c, "Extra.sar")
	assert.Equal(t, []string{"Art\\big.sif0"}, entryNames(extra))
	_, ok = extra.DictionaryEntry()
	assert.False(t, ok)
	assert.Equal(t, strings.Repeat("mip0 ", 1000), readEntry(t, extra, "Art/big.sif0"))
	e, ok := extra.Lookup("Art/big.sif0")
	require.True(t, ok)
	assert.Less(t, e.CompressedSize, e.UncompressedSize)
	require.NoError(t, extra.Verify())
}

func TestCookZip(t *testing.T) {
	t.Parallel()
	c := newContext(t)
	writeContentFiles(t, c)
	a := c.Layout().Abs(assetpath.MustNew(assetpath.DirContent, "Authored/a.txt"))
	require.NoError(t, assetpath.SetModTime(a, 1_600_000_000))

	require.NoError(t, cook(t, c, `{
		"Platform": "PC",
		"Packages": [{
			"Name": "Loose",
			"Root": "Authored",
			"Extensions": [".txt", ".lbc"],
			"NonDependencySearchPatterns": ["*.*"],
			"ZipArchive": true,
			"CompressFiles": true
		}]
	}`))

	zr, err := zip.OpenReader(filepath.Join(configDir(c), "Loose.zip"))
	require.NoError(t, err)
	defer zr.Close()

	got := map[string]string{}
	for _, f := range zr.File {
		assert.Equal(t, zip.Deflate, f.Method)
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		got[f.Name] = string(data)
		if f.Name == "Authored/a.txt" {
			assert.Equal(t, int64(1_600_000_000), f.Modified.Unix())
		}
	}
	assert.Equal(t, map[string]string{
		"Authored/a.txt": strings.Repeat("alpha ", 64),
		"Authored/b.lbc": "bytecode",
	}, got)
}

func TestExcludeFromLocal(t *testing.T) {
	t.Parallel()
	c := newContext(t, task.WithLocal(true))
	writeContentFiles(t, c)
	cfg, err := pkgconfig.Parse([]byte(`{
		"Platform": "PC",
		"Packages": [{"Name": "Skip", "Extensions": [".txt"], "NonDependencySearchPatterns": ["*.txt"], "Root": "Authored", "ExcludeFromLocal": true}]
	}`), true)
	require.NoError(t, err)
	require.NoError(t, New(cfg).CookAllOutOfDate(context.Background(), c))
	assert.NoFileExists(t, filepath.Join(configDir(c), "Skip.sar"))
}

func TestValidateEnvironment(t *testing.T) {
	t.Parallel()
	c := newContext(t)

	require.NoError(t, New(nil).ValidateEnvironment(context.Background(), c))
	require.NoError(t, New(nil).CookAllOutOfDate(context.Background(), c))

	cfg, err := pkgconfig.Parse([]byte(`{"Platform": "IOS", "Packages": []}`), false)
	require.NoError(t, err)
	err = New(cfg).ValidateEnvironment(context.Background(), c)
	require.ErrorIs(t, err, ErrPlatformMismatch)

	tk := New(cfg)
	assert.Equal(t, task.PriorityPackage, tk.Priority())
	assert.False(t, tk.CanCook(assetpath.MustNew(assetpath.DirContent, "a.txt")))
	require.ErrorIs(t, tk.Cook(context.Background(), c, assetpath.MustNew(assetpath.DirContent, "a.txt")), task.ErrNoTask)
}
