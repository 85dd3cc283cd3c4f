// Package cooktasks holds the self-contained converters: 2D animations and
// scripts.
package cooktasks

import (
	"context"
	"fmt"
	"os"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/compress"
	"github.com/meigma/cook/internal/obfuscate"
	"github.com/meigma/cook/internal/task"
)

// Script cooks script sources into LZ4 compressed, scrambled payloads.
type Script struct{}

var _ task.Task = Script{}

// Name implements task.Task.
func (Script) Name() string { return "Script" }

// Priority implements task.Task.
func (Script) Priority() int { return task.PriorityScript }

// CanCook implements task.Task.
func (Script) CanCook(fp assetpath.FilePath) bool {
	return fp.Type == assetpath.Script
}

// CookAllOutOfDate implements task.Task.
func (s Script) CookAllOutOfDate(ctx context.Context, c *task.Context) error {
	return task.CookOutOfDate(ctx, c, s, assetpath.Script, true)
}

// Cook implements task.Task.
func (Script) Cook(_ context.Context, c *task.Context, fp assetpath.FilePath) error {
	src, err := os.ReadFile(c.Layout().AbsSource(fp))
	if err != nil {
		return fmt.Errorf("cooktasks: %s: %w", fp, err)
	}
	out, err := EncodeScript(fp, src)
	if err != nil {
		return err
	}
	return task.WriteFinalOutput(c.Layout().Abs(fp), out)
}

// EncodeScript returns the cooked form of a script body.
func EncodeScript(fp assetpath.FilePath, body []byte) ([]byte, error) {
	out, err := compress.LZ4Compress(body)
	if err != nil {
		return nil, fmt.Errorf("cooktasks: %s: %w", fp, err)
	}
	obfuscate.Apply(out, scriptKey(fp), 0)
	return out, nil
}

// DecodeScript reverses [EncodeScript]. data is not modified.
func DecodeScript(fp assetpath.FilePath, data []byte) ([]byte, error) {
	b := append([]byte(nil), data...)
	obfuscate.Apply(b, scriptKey(fp), 0)
	out, err := compress.LZ4Decompress(b)
	if err != nil {
		return nil, fmt.Errorf("cooktasks: %s: %w", fp, err)
	}
	return out, nil
}

func scriptKey(fp assetpath.FilePath) uint32 {
	return obfuscate.FileKey(obfuscate.ScriptSeed, fp.Rel)
}
