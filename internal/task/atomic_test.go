package task

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFinalOutput(t *testing.T) {
	t.Parallel()
	name := filepath.Join(t.TempDir(), "nested", "out.bin")

	require.NoError(t, WriteFinalOutput(name, []byte("first")))
	require.NoError(t, WriteFinalOutput(name, []byte("second")))

	got, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	entries, err := os.ReadDir(filepath.Dir(name))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no staging files left behind")
}

func TestOutputModes(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	dir := t.TempDir()

	// A plain file created with the same mode shows what the umask allows.
	ref := filepath.Join(dir, "ref.bin")
	require.NoError(t, os.WriteFile(ref, nil, 0o644))
	refInfo, err := os.Stat(ref)
	require.NoError(t, err)

	fresh := filepath.Join(dir, "fresh.bin")
	require.NoError(t, WriteFinalOutput(fresh, []byte("x")))
	info, err := os.Stat(fresh)
	require.NoError(t, err)
	assert.Equal(t, refInfo.Mode().Perm(), info.Mode().Perm())

	staged, err := CreateTempFile(dir)
	require.NoError(t, err)
	require.NoError(t, staged.Close())
	archive := filepath.Join(dir, "archive.sar")
	require.NoError(t, CommitTempFile(staged.Name(), archive))
	info, err = os.Stat(archive)
	require.NoError(t, err)
	assert.Equal(t, refInfo.Mode().Perm(), info.Mode().Perm())

	kept := filepath.Join(dir, "kept.bin")
	require.NoError(t, os.WriteFile(kept, []byte("old"), 0o600))
	require.NoError(t, os.Chmod(kept, 0o640))
	require.NoError(t, WriteFinalOutput(kept, []byte("new")))
	info, err = os.Stat(kept)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestCommitRestoresOldOutputOnFailure(t *testing.T) {
	t.Parallel()
	name := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(name, []byte("old"), 0o600))

	err := commit(name, func(root *os.Root, rel string) error {
		f, err := root.Create(rel)
		require.NoError(t, err)
		_, _ = f.WriteString("partial")
		require.NoError(t, f.Close())
		return errors.New("disk full")
	})
	require.Error(t, err)

	got, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	entries, err := os.ReadDir(filepath.Dir(name))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCommitFailureWithoutOldOutput(t *testing.T) {
	t.Parallel()
	name := filepath.Join(t.TempDir(), "out.bin")

	err := commit(name, func(*os.Root, string) error { return errors.New("nope") })
	require.Error(t, err)
	assert.NoFileExists(t, name)
}

func TestCommitTempFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	name := filepath.Join(dir, "archive.sar")
	require.NoError(t, os.WriteFile(name, []byte("old"), 0o600))

	f, err := CreateTempFile(dir)
	require.NoError(t, err)
	_, err = f.WriteString("new")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, CommitTempFile(f.Name(), name))
	got, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	assert.NoFileExists(t, f.Name())
}

func TestCommitTempFileMissingTemp(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	name := filepath.Join(dir, "archive.sar")
	require.NoError(t, os.WriteFile(name, []byte("old"), 0o600))

	err := CommitTempFile(filepath.Join(dir, "missing"), name)
	require.Error(t, err)
	got, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
}
