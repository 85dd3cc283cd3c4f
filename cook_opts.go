package cook

import (
	"errors"
	"log/slog"
	"time"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/scc"
	"github.com/meigma/cook/internal/task"
)

// Option configures a Cooker.
type Option func(*Cooker) error

// Platform is a cook target platform.
type Platform = assetpath.Platform

// Target platforms.
const (
	PC      = assetpath.PC
	IOS     = assetpath.IOS
	Android = assetpath.Android
	Linux   = assetpath.Linux
)

// ParsePlatform parses a platform name case-insensitively.
func ParsePlatform(s string) (Platform, error) { return assetpath.ParsePlatform(s) }

// ProgressFunc receives progress for a running task batch.
type ProgressFunc = task.ProgressFunc

// SourceControl opens cooked outputs for edit or add before they are
// written. The default client does nothing.
type SourceControl = scc.Client

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cooker) error {
		c.logger = logger
		return nil
	}
}

// WithProgress sets a callback for batch progress.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Cooker) error {
		c.progress = fn
		return nil
	}
}

// WithBuild sets the build stamped into archive headers. Both values must
// be at least 1.
func WithBuild(versionMajor uint16, changelist uint32) Option {
	return func(c *Cooker) error {
		if versionMajor == 0 || changelist == 0 {
			return errors.New("cook: build version and changelist must be at least 1")
		}
		c.build = task.Build{VersionMajor: versionMajor, Changelist: changelist}
		return nil
	}
}

// WithLocal selects a local developer build.
func WithLocal(local bool) Option {
	return func(c *Cooker) error {
		c.local = local
		return nil
	}
}

// WithForceDictionary regenerates compression dictionaries even when
// they already exist.
func WithForceDictionary(force bool) Option {
	return func(c *Cooker) error {
		c.forceDictionary = force
		return nil
	}
}

// WithWorkers sets the worker count for parallel batches. Zero uses
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *Cooker) error {
		if n < 0 {
			return errors.New("cook: worker count must not be negative")
		}
		c.workers = n
		return nil
	}
}

// WithPackageFile enables packaging with the package configuration name,
// relative to the config directory unless absolute.
func WithPackageFile(name string) Option {
	return func(c *Cooker) error {
		c.packageFile = name
		return nil
	}
}

// WithSourceControl sets the source control client.
func WithSourceControl(client SourceControl) Option {
	return func(c *Cooker) error {
		c.scc = client
		return nil
	}
}

// WithJournal records source control actions in the journal file name
// instead of talking to a source control server.
func WithJournal(name string) Option {
	return func(c *Cooker) error {
		c.journal = name
		return nil
	}
}

// WithLockTimeout bounds the wait for another cooker working on the same
// tree. Zero tries once.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Cooker) error {
		if d < 0 {
			return errors.New("cook: lock timeout must not be negative")
		}
		c.lockTimeout = d
		return nil
	}
}
