// Package testutil builds throwaway project trees and cook contexts for
// tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/cookdb"
	"github.com/meigma/cook/internal/task"
)

// WriteFile writes body to name, creating parent directories.
func WriteFile(tb testing.TB, name, body string) {
	tb.Helper()
	require.NoError(tb, os.MkdirAll(filepath.Dir(name), 0o750))
	require.NoError(tb, os.WriteFile(name, []byte(body), 0o600))
}

// NewProject returns a temporary project root holding sources, keyed by
// slash-separated paths relative to the Source directory.
func NewProject(tb testing.TB, sources map[string]string) string {
	tb.Helper()
	base := tb.TempDir()
	for rel, body := range sources {
		WriteFile(tb, filepath.Join(base, "Source", filepath.FromSlash(rel)), body)
	}
	return base
}

// WriteConfig writes body to the config directory of the project at base.
func WriteConfig(tb testing.TB, base, rel, body string) string {
	tb.Helper()
	name := filepath.Join(assetpath.NewLayout(base, assetpath.PC).Dir(assetpath.DirConfig), filepath.FromSlash(rel))
	WriteFile(tb, name, body)
	return name
}

// NewContext returns a cook context for a PC build of an empty project.
func NewContext(tb testing.TB, opts ...task.ContextOption) *task.Context {
	tb.Helper()
	layout := assetpath.NewLayout(tb.TempDir(), assetpath.PC)
	return task.NewContext(cookdb.New(layout), opts...)
}

// WriteSource writes a source file of c's project. rel is relative to
// the Source directory.
func WriteSource(tb testing.TB, c *task.Context, rel, body string) string {
	tb.Helper()
	name := filepath.Join(c.Layout().SourceDir(), filepath.FromSlash(rel))
	WriteFile(tb, name, body)
	return name
}
