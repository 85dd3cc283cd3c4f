// Package pkgcook bundles cooked files into package archives.
//
// The package task runs after every other cook task. It traces the
// dependency graph from the config documents once, then builds each
// package defined in the package configuration: it assembles the file
// list, splits it between the base and overflow archives, and writes the
// archives along with their delta, variation and dictionary outputs.
package pkgcook

import (
	"context"
	"errors"
	"fmt"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/deps"
	"github.com/meigma/cook/internal/pkgconfig"
	"github.com/meigma/cook/internal/task"
)

// Sentinel errors.
var (
	// ErrPlatformMismatch is returned when the package configuration was
	// written for another platform than the one being cooked.
	ErrPlatformMismatch = errors.New("pkgcook: package configuration platform mismatch")

	// ErrMissingFile is returned when a file that must be packaged does
	// not exist.
	ErrMissingFile = errors.New("pkgcook: missing file")

	// ErrOverflow is returned for overflow settings that cannot be met.
	ErrOverflow = errors.New("pkgcook: overflow")

	// ErrVariation is returned for malformed variation files.
	ErrVariation = errors.New("pkgcook: invalid variation")

	// ErrDelta is returned when a delta archive cannot be used.
	ErrDelta = errors.New("pkgcook: invalid delta archive")

	// ErrLocale is returned when locale content cannot be resolved.
	ErrLocale = errors.New("pkgcook: locale")

	// ErrZip is returned for settings the zip writer cannot honour.
	ErrZip = errors.New("pkgcook: unsupported zip setting")
)

// Task builds every package of a configuration. It implements [task.Task]
// and [task.EnvironmentValidator].
type Task struct {
	config *pkgconfig.Config
}

var (
	_ task.Task                 = (*Task)(nil)
	_ task.EnvironmentValidator = (*Task)(nil)
)

// New returns the package task for config. A nil config yields a task
// that does nothing.
func New(config *pkgconfig.Config) *Task {
	return &Task{config: config}
}

// Name implements [task.Task].
func (t *Task) Name() string { return "Package" }

// Priority implements [task.Task].
func (t *Task) Priority() int { return task.PriorityPackage }

// CanCook implements [task.Task]. Packages are never cooked one file at
// a time.
func (t *Task) CanCook(assetpath.FilePath) bool { return false }

// Cook implements [task.Task].
func (t *Task) Cook(_ context.Context, _ *task.Context, fp assetpath.FilePath) error {
	return fmt.Errorf("%w: %s", task.ErrNoTask, fp)
}

// ValidateEnvironment checks that the configuration targets the platform
// being cooked.
func (t *Task) ValidateEnvironment(_ context.Context, c *task.Context) error {
	if t.config == nil {
		return nil
	}
	if got := t.config.PlatformValue(); got != c.Platform() {
		return fmt.Errorf("%w: configuration is for %s, cooking %s", ErrPlatformMismatch, got, c.Platform())
	}
	return nil
}

// CookAllOutOfDate traces the dependency graph and writes every package.
// Packages are always rebuilt; writing an unchanged archive leaves its
// source control state untouched.
func (t *Task) CookAllOutOfDate(ctx context.Context, c *task.Context) error {
	if t.config == nil {
		return nil
	}
	walker, err := t.Dependencies(ctx, c)
	if err != nil {
		return err
	}

	total := len(t.config.Packages)
	for i, pkg := range t.config.Packages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.cookPackage(ctx, c, walker, pkg); err != nil {
			return err
		}
		c.Report(t.Name(), i+1, total)
	}
	return nil
}

// Dependencies loads the config roots the configuration does not exclude
// and walks them.
func (t *Task) Dependencies(ctx context.Context, c *task.Context) (*deps.Walker, error) {
	opts := []deps.Option{deps.WithLogger(c.Log())}
	if t.config != nil {
		opts = append(opts, deps.WithExclude(t.config.IsExcludedFromConfigs))
	}
	walker := deps.New(c.Layout(), opts...)
	if err := walker.LoadRoots(ctx); err != nil {
		return nil, fmt.Errorf("pkgcook: %w", err)
	}
	if err := walker.Walk(ctx); err != nil {
		return nil, fmt.Errorf("pkgcook: %w", err)
	}
	return walker, nil
}

func (t *Task) cookPackage(ctx context.Context, c *task.Context, walker *deps.Walker, pkg *pkgconfig.Package) error {
	if pkg.ExcludeFromLocal {
		c.Log().Info("package skipped for local build", "package", pkg.Name)
		return nil
	}
	b := newBuilder(c, t.config, walker, pkg)
	defer b.close()

	c.Log().Info("cooking package", "package", pkg.Name)
	var err error
	if pkg.ZipArchive {
		err = b.writeZip(ctx)
	} else {
		err = b.writeSar(ctx)
	}
	if err != nil {
		return fmt.Errorf("pkgcook: %s: %w", pkg.Name, err)
	}
	return nil
}
