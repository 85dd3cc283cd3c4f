// Package fxbank cooks FX Studio effect documents into runtime effect
// banks.
//
// Effects are XML documents that instance component classes from a
// shared component definition (see [SchemaFilename]). A cooked bank holds
// the component definitions, deduplicated data tables and the single
// effect, and is stored zstd compressed.
package fxbank

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/compress"
	"github.com/meigma/cook/internal/task"
)

// Sentinel errors.
var (
	// ErrSchema is returned when the component definition is missing or
	// invalid.
	ErrSchema = errors.New("fxbank: invalid component definition")

	// ErrDuplicateClass is returned when two components share a class.
	ErrDuplicateClass = errors.New("fxbank: duplicate component class")

	// ErrDuplicateProperty is returned when two properties share an id.
	ErrDuplicateProperty = errors.New("fxbank: duplicate property id")

	// ErrEffect is returned for effect documents that cannot be cooked.
	ErrEffect = errors.New("fxbank: invalid effect")

	// ErrBankOverflow is returned when a data table outgrows the 24-bit
	// offsets that reference it.
	ErrBankOverflow = errors.New("fxbank: data table too large")

	// ErrBank is returned when decoding a malformed bank.
	ErrBank = errors.New("fxbank: invalid bank")
)

// Task cooks .xfx effects into .fxb banks. The component definition is
// loaded on first use and shared by every cook of the same platform.
type Task struct {
	mu     sync.Mutex
	schema *Schema
}

var (
	_ task.Task                 = (*Task)(nil)
	_ task.EnvironmentValidator = (*Task)(nil)
)

// New returns an FxBank task.
func New() *Task { return &Task{} }

// Name implements task.Task.
func (*Task) Name() string { return "FxBank" }

// Priority implements task.Task.
func (*Task) Priority() int { return task.PriorityFxBank }

// CanCook implements task.Task.
func (*Task) CanCook(fp assetpath.FilePath) bool {
	return fp.Type == assetpath.FxBank
}

// ValidateEnvironment implements task.EnvironmentValidator. The
// component definition is only required once there are effects to cook.
func (*Task) ValidateEnvironment(_ context.Context, c *task.Context) error {
	if len(c.SourcesOfType(assetpath.FxBank)) == 0 {
		return nil
	}
	name := filepath.Join(c.Layout().SourceDir(), SchemaFilename)
	if _, err := os.Stat(name); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return nil
}

// loadSchema returns the cached component definition, loading it for the
// context's platform if needed. Failed loads are not cached.
func (t *Task) loadSchema(c *task.Context) (*Schema, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.schema != nil && t.schema.Platform == c.Platform() {
		return t.schema, nil
	}
	s, err := LoadSchemaFile(c.Layout())
	if err != nil {
		return nil, err
	}
	c.Log().Debug("loaded component definition",
		"platform", c.Platform().String(),
		"components", len(s.Components),
		"phases", len(s.Phases))
	t.schema = s
	return s, nil
}

// CookAllOutOfDate implements task.Task.
func (t *Task) CookAllOutOfDate(ctx context.Context, c *task.Context) error {
	if len(task.GatherOutOfDate(c, assetpath.FxBank)) == 0 {
		return nil
	}
	if _, err := t.loadSchema(c); err != nil {
		return err
	}
	return task.CookOutOfDate(ctx, c, t, assetpath.FxBank, true)
}

// Cook implements task.Task.
func (t *Task) Cook(_ context.Context, c *task.Context, fp assetpath.FilePath) error {
	schema, err := t.loadSchema(c)
	if err != nil {
		return err
	}
	layout := c.Layout()
	f, err := os.Open(layout.AbsSource(fp))
	if err != nil {
		return fmt.Errorf("fxbank: %s: %w", fp, err)
	}
	defer f.Close()

	effect, err := LoadEffect(schema, fp.Rel, f)
	if err != nil {
		return fmt.Errorf("fxbank: %s: %w", fp, err)
	}
	out, err := Encode(schema, effect)
	if err != nil {
		return fmt.Errorf("fxbank: %s: %w", fp, err)
	}
	packed, err := compress.ZstdCompress(out, compress.LevelBest)
	if err != nil {
		return fmt.Errorf("fxbank: %s: %w", fp, err)
	}
	return task.WriteFinalOutput(layout.Abs(fp), packed)
}
