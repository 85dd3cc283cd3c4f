// cooker cooks a project tree for one platform.
//
// Settings come from an optional YAML file (--settings); any flag given
// on the command line overrides the file. With --single-file only that
// source is cooked, otherwise every out-of-date file is cooked and the
// packages are rebuilt.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/meigma/cook"
	"github.com/meigma/cook/internal/settings"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// flags holds command-line values. Only flags the user set override the
// settings file.
type flags struct {
	settingsFile string

	baseDir       string
	platform      string
	packageFile   string
	local         bool
	forceGenCdict bool
	changelist    uint32
	versionMajor  uint16
	singleFile    string
	journal       string
	lockTimeout   string
	workers       int
	verbose       bool
}

func newFlagSet(f *flags) *pflag.FlagSet {
	fs := pflag.NewFlagSet("cooker", pflag.ContinueOnError)
	fs.StringVarP(&f.settingsFile, "settings", "c", "", "YAML settings file")
	fs.StringVarP(&f.baseDir, "base-dir", "d", "", "project root holding Data/ and Source/")
	fs.StringVarP(&f.platform, "platform", "p", "", "target platform (PC, IOS, Android, Linux)")
	fs.StringVar(&f.packageFile, "package-file", "", "package configuration, relative to Data/Config")
	fs.BoolVar(&f.local, "local", false, "fast developer build")
	fs.BoolVar(&f.forceGenCdict, "force-gen-cdict", false, "regenerate compression dictionaries")
	fs.Uint32Var(&f.changelist, "changelist", 0, "build changelist written to archives")
	fs.Uint16Var(&f.versionMajor, "version-major", 0, "build major version written to archives")
	fs.StringVarP(&f.singleFile, "single-file", "f", "", "cook one file, given as a URI or absolute source path")
	fs.StringVar(&f.journal, "scc-journal", "", "record source control actions in this file")
	fs.StringVar(&f.lockTimeout, "lock-timeout", "", "wait this long for another cooker, e.g. 30s")
	fs.IntVarP(&f.workers, "workers", "j", 0, "parallel cook workers (0 uses all CPUs)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	return fs
}

// apply overrides s with every flag set on the command line.
func (f *flags) apply(fs *pflag.FlagSet, s *settings.Settings) {
	changed := fs.Changed
	if changed("base-dir") {
		s.BaseDir = f.baseDir
	}
	if changed("platform") {
		s.Platform = f.platform
	}
	if changed("package-file") {
		s.PackageFile = f.packageFile
	}
	if changed("local") {
		s.Local = f.local
	}
	if changed("force-gen-cdict") {
		s.ForceGenCdict = f.forceGenCdict
	}
	if changed("changelist") {
		s.Changelist = f.changelist
	}
	if changed("version-major") {
		s.VersionMajor = f.versionMajor
	}
	if changed("single-file") {
		s.SingleFile = f.singleFile
	}
	if changed("scc-journal") {
		s.Journal = f.journal
	}
	if changed("lock-timeout") {
		s.LockTimeout = f.lockTimeout
	}
	if changed("workers") {
		s.Workers = f.workers
	}
	if changed("verbose") {
		s.Verbose = f.verbose
	}
}

func loadSettings(args []string, stdout io.Writer) (*settings.Settings, error) {
	var f flags
	fs := newFlagSet(&f)
	fs.SetOutput(stdout)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	s := settings.Default()
	if f.settingsFile != "" {
		var err error
		if s, err = settings.LoadFile(f.settingsFile); err != nil {
			return nil, err
		}
	}
	f.apply(fs, s)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// newLogger logs text to terminals and JSON everywhere else.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func options(s *settings.Settings, logger *slog.Logger) ([]cook.Option, error) {
	wait, err := s.LockWait()
	if err != nil {
		return nil, err
	}
	opts := []cook.Option{
		cook.WithLogger(logger),
		cook.WithLocal(s.Local),
		cook.WithForceDictionary(s.ForceGenCdict),
		cook.WithBuild(s.VersionMajor, s.BuildChangelist()),
		cook.WithWorkers(s.Workers),
		cook.WithLockTimeout(wait),
		cook.WithProgress(func(task string, done, total int) {
			if done == total {
				logger.Info("batch complete", "task", task, "files", total)
				return
			}
			logger.Debug("progress", "task", task, "done", done, "total", total)
		}),
	}
	if s.PackageFile != "" {
		opts = append(opts, cook.WithPackageFile(s.PackageFile))
	}
	if s.Journal != "" {
		opts = append(opts, cook.WithJournal(s.Journal))
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	s, err := loadSettings(args, stdout)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	logger := newLogger(stderr, s.Verbose)

	opts, err := options(s, logger)
	if err != nil {
		return err
	}
	c, err := cook.New(s.BaseDir, s.PlatformValue(), opts...)
	if err != nil {
		return err
	}
	if s.SingleFile != "" {
		return c.CookSingle(ctx, s.SingleFile)
	}
	return c.CookAll(ctx)
}
