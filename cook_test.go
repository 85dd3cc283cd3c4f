package cook

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/cooktasks"
	"github.com/meigma/cook/internal/lockfile"
	"github.com/meigma/cook/internal/sar"
	"github.com/meigma/cook/internal/scc"
	"github.com/meigma/cook/internal/testutil"
)

const scriptPackage = `{
	// Scripts only.
	"Platform": "PC",
	"Packages": [{
		"Name": "Scripts",
		"Root": "Authored",
		"Extensions": [".lbc"],
		"NonDependencySearchPatterns": ["*.*"],
		"CompressFiles": true,
	}],
}`

// newProject returns a project root with one script source.
func newProject(t *testing.T) string {
	t.Helper()
	return testutil.NewProject(t, map[string]string{"Authored/Scripts/Main.lua": "return 42\n"})
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()
	c, err := New(t.TempDir(), PC)
	require.NoError(t, err)

	assert.Equal(t, PC, c.Platform())
	assert.Equal(t, []string{"Script", "Animation2D", "FxBank", "Package"}, c.Tasks())
	assert.Equal(t, lockfile.DefaultTimeout, c.lockTimeout)
	assert.Equal(t, scc.Null{}, c.scc)
}

func TestNewOptionErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero changelist", WithBuild(1, 0)},
		{"zero version", WithBuild(0, 1)},
		{"negative workers", WithWorkers(-1)},
		{"negative lock timeout", WithLockTimeout(-time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(t.TempDir(), PC, tt.opt)
			require.Error(t, err)
		})
	}
}

func TestNewPackageFile(t *testing.T) {
	t.Parallel()
	base := t.TempDir()

	_, err := New(base, PC, WithPackageFile("Packages.json"))
	require.Error(t, err)

	testutil.WriteConfig(t, base, "Packages.json", `{"Platform": "Nowhere"}`)
	_, err = New(base, PC, WithPackageFile("Packages.json"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewJournal(t *testing.T) {
	t.Parallel()
	c, err := New(t.TempDir(), PC, WithJournal(filepath.Join(t.TempDir(), "journal")))
	require.NoError(t, err)
	assert.IsType(t, &scc.Journal{}, c.scc)
}

func TestCookAll(t *testing.T) {
	t.Parallel()
	base := newProject(t)
	testutil.WriteConfig(t, base, "Packages.json", scriptPackage)

	var (
		mu       sync.Mutex
		progress []string
	)
	c, err := New(base, PC,
		WithPackageFile("Packages.json"),
		WithBuild(2, 77),
		WithProgress(func(task string, _, _ int) {
			mu.Lock()
			defer mu.Unlock()
			progress = append(progress, task)
		}),
		WithWorkers(1),
	)
	require.NoError(t, err)
	require.NoError(t, c.CookAll(context.Background()))

	fp := assetpath.MustNew(assetpath.DirContent, "Authored/Scripts/Main.lbc")
	cooked, err := os.ReadFile(c.layout.Abs(fp))
	require.NoError(t, err)
	body, err := cooktasks.DecodeScript(fp, cooked)
	require.NoError(t, err)
	assert.Equal(t, "return 42\n", string(body))

	r, err := sar.Open(filepath.Join(c.layout.Dir(assetpath.DirConfig), "Scripts.sar"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	assert.Equal(t, uint32(77), r.Header().Changelist)
	data, err := r.ReadFile("Scripts/Main.lbc")
	require.NoError(t, err)
	assert.Equal(t, cooked, data)

	assert.Contains(t, progress, "Script")
	assert.Contains(t, progress, "Package")
}

func TestCookAllPlatformMismatch(t *testing.T) {
	t.Parallel()
	base := newProject(t)
	testutil.WriteConfig(t, base, "Packages.json", `{"Platform": "IOS", "Packages": []}`)

	c, err := New(base, PC, WithPackageFile("Packages.json"))
	require.NoError(t, err)
	require.ErrorIs(t, c.CookAll(context.Background()), ErrPlatformMismatch)

	// Nothing is cooked when an environment check fails.
	fp := assetpath.MustNew(assetpath.DirContent, "Authored/Scripts/Main.lbc")
	assert.NoFileExists(t, c.layout.Abs(fp))
}

func TestCookAllCanceled(t *testing.T) {
	t.Parallel()
	c, err := New(newProject(t), PC)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, c.CookAll(ctx), context.Canceled)
}

func TestCookSingle(t *testing.T) {
	t.Parallel()
	base := newProject(t)
	c, err := New(base, PC)
	require.NoError(t, err)

	require.NoError(t, c.CookSingle(context.Background(), "content://Authored/Scripts/Main.lbc"))
	fp := assetpath.MustNew(assetpath.DirContent, "Authored/Scripts/Main.lbc")
	assert.FileExists(t, c.layout.Abs(fp))

	abs := filepath.Join(base, "Source", "Authored", "Scripts", "Main.lua")
	require.NoError(t, c.CookSingle(context.Background(), abs))

	require.ErrorIs(t, c.CookSingle(context.Background(), "Scripts/Main.lua"), ErrInvalidPath)
	require.ErrorIs(t, c.CookSingle(context.Background(), "config://Game.json"), ErrNoTask)
}
