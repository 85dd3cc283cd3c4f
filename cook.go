package cook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/cookdb"
	"github.com/meigma/cook/internal/cooktasks"
	"github.com/meigma/cook/internal/fxbank"
	"github.com/meigma/cook/internal/lockfile"
	"github.com/meigma/cook/internal/pkgconfig"
	"github.com/meigma/cook/internal/pkgcook"
	"github.com/meigma/cook/internal/scc"
	"github.com/meigma/cook/internal/task"
)

// LockFilename is the lock file in the project root that serializes
// cooker processes.
const LockFilename = ".cooker.lock"

// Cooker cooks one project tree for one platform.
type Cooker struct {
	layout assetpath.Layout

	logger          *slog.Logger
	progress        ProgressFunc
	build           task.Build
	local           bool
	forceDictionary bool
	workers         int
	packageFile     string
	scc             SourceControl
	journal         string
	lockTimeout     time.Duration

	packages *pkgconfig.Config
	registry *task.Registry
}

// New returns a Cooker for the project rooted at baseDir. The package
// configuration, if any, is loaded and validated here.
func New(baseDir string, platform Platform, opts ...Option) (*Cooker, error) {
	c := &Cooker{
		layout:      assetpath.NewLayout(baseDir, platform),
		build:       task.Build{VersionMajor: 1, Changelist: 1},
		lockTimeout: lockfile.DefaultTimeout,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.scc == nil {
		c.scc = scc.Null{}
		if c.journal != "" {
			c.scc = scc.NewJournal(c.journal, scc.WithJournalLogger(c.log()))
		}
	}
	if c.packageFile != "" {
		name := c.packageFile
		if !filepath.IsAbs(name) {
			name = filepath.Join(c.layout.Dir(assetpath.DirConfig), name)
		}
		cfg, err := pkgconfig.Load(name, c.local)
		if err != nil {
			return nil, fmt.Errorf("cook: %w", err)
		}
		c.packages = cfg
	}
	c.registry = task.NewRegistry(
		cooktasks.Script{},
		cooktasks.Animation2D{},
		fxbank.New(),
		pkgcook.New(c.packages),
	)
	return c, nil
}

func (c *Cooker) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(slog.DiscardHandler)
}

// Platform returns the target platform.
func (c *Cooker) Platform() Platform { return c.layout.Platform() }

// BaseDir returns the project root.
func (c *Cooker) BaseDir() string { return c.layout.Base() }

// Tasks returns the names of the registered tasks in run order.
func (c *Cooker) Tasks() []string {
	tasks := c.registry.Tasks()
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name()
	}
	return names
}

func (c *Cooker) newContext() *task.Context {
	db := cookdb.New(c.layout, cookdb.WithLogger(c.log()))
	return task.NewContext(db,
		task.WithLogger(c.log()),
		task.WithSourceControl(c.scc),
		task.WithProgress(c.progress),
		task.WithBuild(c.build),
		task.WithLocal(c.local),
		task.WithForceDictionary(c.forceDictionary),
		task.WithWorkers(c.workers),
	)
}

// lock takes the cooker lock and returns its release function.
func (c *Cooker) lock(ctx context.Context) (func(), error) {
	name := filepath.Join(c.layout.Base(), LockFilename)
	l, err := lockfile.Acquire(ctx, name,
		lockfile.WithTimeout(c.lockTimeout),
		lockfile.WithLogger(c.log()),
	)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := l.Release(); err != nil {
			c.log().Warn("failed to release cooker lock", "error", err)
		}
	}, nil
}

// CookAll cooks every out-of-date file of every task, then builds the
// packages. Environment checks of all tasks run before any cooking.
func (c *Cooker) CookAll(ctx context.Context) error {
	unlock, err := c.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	tc := c.newContext()
	if err := tc.ScanSources(ctx); err != nil {
		return err
	}
	tasks := c.registry.Tasks()
	var errs []error
	for _, t := range tasks {
		v, ok := t.(task.EnvironmentValidator)
		if !ok {
			continue
		}
		if err := v.ValidateEnvironment(ctx, tc); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	start := time.Now()
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		taskStart := time.Now()
		if err := t.CookAllOutOfDate(ctx, tc); err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
		c.log().Debug("task complete", "task", t.Name(), "elapsed", time.Since(taskStart))
	}
	c.log().Info("cook complete",
		"platform", c.Platform().String(),
		"local", c.local,
		"elapsed", time.Since(start))
	return nil
}

// CookSingle cooks one file regardless of its up-to-date state and
// refreshes its metadata. name is either a URI such as
// "content://Authored/a.fxb" or an absolute source filename.
func (c *Cooker) CookSingle(ctx context.Context, name string) error {
	fp, err := c.resolve(name)
	if err != nil {
		return err
	}
	t, ok := c.registry.For(fp)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoTask, fp)
	}

	unlock, err := c.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	tc := c.newContext()
	if v, ok := t.(task.EnvironmentValidator); ok {
		if err := v.ValidateEnvironment(ctx, tc); err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
	}
	if err := task.CookSingle(ctx, tc, t, fp); err != nil {
		return fmt.Errorf("%s: %s: %w", t.Name(), fp, err)
	}
	c.log().Info("cooked file", "task", t.Name(), "path", fp.String())
	return nil
}

func (c *Cooker) resolve(name string) (assetpath.FilePath, error) {
	if assetpath.IsURI(name) {
		return assetpath.ParseURI(name)
	}
	if !filepath.IsAbs(name) {
		return assetpath.FilePath{}, fmt.Errorf("%w: %q is neither a URI nor an absolute path", ErrInvalidPath, name)
	}
	return c.layout.FromAbsSource(name)
}
