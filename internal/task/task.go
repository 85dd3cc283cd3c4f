// Package task is the cook-task framework shared by every converter.
//
// A [Task] owns one or more file types. The framework finds out-of-date
// source files, runs the task over them sequentially or on a worker pool,
// commits outputs atomically and refreshes the cook database afterwards.
package task

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/meigma/cook/internal/assetpath"
)

// Sentinel errors.
var (
	// ErrCookerBug marks an inconsistency that only a defect in a task can
	// produce, such as a declared sibling output that was never written.
	ErrCookerBug = errors.New("task: cooker bug")

	// ErrNoTask is returned when no registered task can cook a file.
	ErrNoTask = errors.New("task: no task can cook file")

	// ErrBatchFailed is returned when one or more files of a batch failed.
	ErrBatchFailed = errors.New("task: batch failed")

	// ErrInvalidSourcePath is returned for source filenames that cannot
	// be represented as a file path.
	ErrInvalidSourcePath = errors.New("task: invalid source path")
)

// Priorities order tasks within a cook. Lower runs first; packaging runs
// last so it sees every other task's output.
const (
	PriorityScript      = 10
	PriorityAnimation2D = 20
	PriorityFxBank      = 30
	PriorityPackage     = 1000
)

// Task converts source files of one or more types into cooked output.
type Task interface {
	// Name identifies the task in logs and progress reports.
	Name() string
	// Priority orders tasks in a registry. Lower runs first.
	Priority() int
	// CanCook reports whether the task handles fp.
	CanCook(fp assetpath.FilePath) bool
	// CookAllOutOfDate cooks every out-of-date file the task owns.
	CookAllOutOfDate(ctx context.Context, c *Context) error
	// Cook cooks a single file without touching the database.
	Cook(ctx context.Context, c *Context, fp assetpath.FilePath) error
}

// MultiCooker is implemented by tasks that produce several outputs of
// different types from one source in a single pass.
type MultiCooker interface {
	CookMulti(ctx context.Context, c *Context, fps []assetpath.FilePath) error
}

// MultiTask is a [Task] that also implements [MultiCooker].
type MultiTask interface {
	Task
	MultiCooker
}

// SourceLister is implemented by tasks whose outputs depend on more than
// their own source file.
type SourceLister interface {
	Sources(c *Context, fp assetpath.FilePath) ([]assetpath.Source, error)
}

// EnvironmentValidator is implemented by tasks that need to check for
// external prerequisites before a full cook.
type EnvironmentValidator interface {
	ValidateEnvironment(ctx context.Context, c *Context) error
}

// Registry is an ordered set of tasks.
type Registry struct {
	tasks []Task
}

// NewRegistry returns a registry holding tasks ordered by priority.
// Tasks with equal priority keep their argument order.
func NewRegistry(tasks ...Task) *Registry {
	sorted := slices.Clone(tasks)
	slices.SortStableFunc(sorted, func(a, b Task) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})
	return &Registry{tasks: sorted}
}

// Tasks returns the tasks in run order.
func (r *Registry) Tasks() []Task {
	return slices.Clone(r.tasks)
}

// For returns the first task that can cook fp.
func (r *Registry) For(fp assetpath.FilePath) (Task, bool) {
	for _, t := range r.tasks {
		if t.CanCook(fp) {
			return t, true
		}
	}
	return nil, false
}

// Sources returns the sources t records for fp. Tasks that do not
// implement [SourceLister] depend on fp alone.
func Sources(c *Context, t Task, fp assetpath.FilePath) ([]assetpath.Source, error) {
	if l, ok := t.(SourceLister); ok {
		return l.Sources(c, fp)
	}
	return []assetpath.Source{{Path: fp}}, nil
}
