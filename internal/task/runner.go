package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/cook/internal/assetpath"
)

// RunSequential cooks fps one at a time, reporting progress after each.
// The batch stops at the first failure.
func RunSequential(ctx context.Context, c *Context, t Task, fps []assetpath.FilePath) error {
	for i, fp := range fps {
		if err := t.Cook(ctx, c, fp); err != nil {
			return fmt.Errorf("task: %s: %s: %w", t.Name(), fp, err)
		}
		c.Report(t.Name(), i+1, len(fps))
	}
	return nil
}

// RunParallel cooks fps on the worker pool. Every file is attempted;
// the batch fails if any file failed.
func RunParallel(ctx context.Context, c *Context, t Task, fps []assetpath.FilePath) error {
	if err := createOutputDirs(c, fps); err != nil {
		return err
	}
	errs := runPool(c, t.Name(), len(fps), func(i int) error {
		return t.Cook(ctx, c, fps[i])
	})
	return batchError(t.Name(), errs, func(i int) string { return fps[i].String() })
}

// RunParallelMulti cooks groups on the worker pool. Groups of one use
// Cook; larger groups use CookMulti.
func RunParallelMulti(ctx context.Context, c *Context, t MultiTask, groups [][]assetpath.FilePath) error {
	var all []assetpath.FilePath
	for _, g := range groups {
		all = append(all, g...)
	}
	if err := createOutputDirs(c, all); err != nil {
		return err
	}
	errs := runPool(c, t.Name(), len(groups), func(i int) error {
		g := groups[i]
		if len(g) == 1 {
			return t.Cook(ctx, c, g[0])
		}
		return t.CookMulti(ctx, c, g)
	})
	return batchError(t.Name(), errs, func(i int) string { return groups[i][0].String() })
}

func createOutputDirs(c *Context, fps []assetpath.FilePath) error {
	seen := make(map[string]struct{})
	for _, fp := range fps {
		dir := filepath.Dir(c.Layout().Abs(fp))
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("task: create output directory: %w", err)
		}
	}
	return nil
}

// runPool runs work for indices [0, n) on Workers() goroutines plus the
// calling goroutine. Each claims the next index from a shared counter,
// so a slow item never holds up the rest of the queue. The returned
// slice holds each index's result.
func runPool(c *Context, name string, n int, work func(i int) error) []error {
	errs := make([]error, n)
	var next, done atomic.Int64

	claim := func() {
		for {
			i := int(next.Add(1) - 1)
			if i >= n {
				return
			}
			errs[i] = work(i)
			c.Report(name, int(done.Add(1)), n)
		}
	}

	workers := min(c.Workers(), n-1)
	var eg errgroup.Group
	for range workers {
		eg.Go(func() error {
			claim()
			return nil
		})
	}
	claim()
	_ = eg.Wait() //nolint:errcheck // workers record errors per index
	return errs
}

func batchError(name string, errs []error, label func(i int) string) error {
	var failed []error
	for i, err := range errs {
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", label(i), err))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s: %d of %d failed: %w", ErrBatchFailed, name, len(failed), len(errs), errors.Join(failed...))
}
