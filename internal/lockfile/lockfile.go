// Package lockfile serializes cooker processes working on the same tree.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ErrTimeout is returned when the lock cannot be acquired in time.
var ErrTimeout = errors.New("lockfile: timed out waiting for lock")

// errBusy reports that another holder owns the lock.
var errBusy = errors.New("lockfile: busy")

// Default wait parameters.
const (
	DefaultTimeout       = 5 * time.Minute
	DefaultRetryInterval = 250 * time.Millisecond
	DefaultLogInterval   = 10 * time.Second
)

// Lock is a held cross-process lock.
type Lock struct {
	name string
	f    *os.File
}

type config struct {
	timeout     time.Duration
	retry       time.Duration
	logInterval time.Duration
	logger      *slog.Logger
}

// Option configures Acquire.
type Option func(*config)

// WithTimeout bounds the wait. Zero tries exactly once.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithRetryInterval sets the delay between attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(c *config) {
		c.retry = d
	}
}

// WithLogInterval sets how often a waiting Acquire logs.
func WithLogInterval(d time.Duration) Option {
	return func(c *config) {
		c.logInterval = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Acquire takes the lock file name, retrying until the timeout elapses or
// ctx is done.
func Acquire(ctx context.Context, name string, opts ...Option) (*Lock, error) {
	cfg := config{
		timeout:     DefaultTimeout,
		retry:       DefaultRetryInterval,
		logInterval: DefaultLogInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return nil, fmt.Errorf("lockfile: %w", err)
	}

	start := time.Now()
	deadline := start.Add(cfg.timeout)
	lastLog := start
	for {
		f, err := tryLock(name)
		if err == nil {
			return &Lock{name: name, f: f}, nil
		}
		if !errors.Is(err, errBusy) {
			return nil, fmt.Errorf("lockfile: %s: %w", name, err)
		}

		now := time.Now()
		if !now.Before(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, name, now.Sub(start).Round(time.Millisecond))
		}
		if now.Sub(lastLog) >= cfg.logInterval {
			log.Info("waiting for cooker lock", "path", name, "waited", now.Sub(start).Round(time.Second))
			lastLog = now
		}

		wait := min(cfg.retry, deadline.Sub(now))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Name returns the lock file path.
func (l *Lock) Name() string { return l.name }

// Release gives up the lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlock(l.name, l.f)
	l.f = nil
	if err != nil {
		return fmt.Errorf("lockfile: release %s: %w", l.name, err)
	}
	return nil
}
