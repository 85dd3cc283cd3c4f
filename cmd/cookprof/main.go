// cookprof profiles the cooker against a generated project.
//
// Modes:
//
//	cook      cook the whole project each iteration (cold unless --warm)
//	read      read random entries from the cooked package archive
//	extract   extract the package archive each iteration
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/felixge/fgprof"
	"github.com/spf13/pflag"

	"github.com/meigma/cook"
	"github.com/meigma/cook/internal/batch"
	"github.com/meigma/cook/internal/sar"
)

const packageName = "Profile"

type config struct {
	mode        string
	files       int
	fileSize    int
	dirCount    int
	compress    bool
	obfuscate   bool
	pattern     string
	warm        bool
	duration    time.Duration
	iterations  int
	workers     int
	fgProfile   string
	pprofAddr   string
	cpuProfile  string
	memProfile  string
	traceFile   string
	readRandom  bool
	tempDir     string
	keepTemp    bool
	randomSeed  int64
	verboseLogs bool
}

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBytes []byte
	sinkCount int
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stdout io.Writer) (config, error) {
	var cfg config
	fs := pflag.NewFlagSet("cookprof", pflag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.StringVar(&cfg.mode, "mode", "cook", "mode: cook, read, extract")
	fs.IntVar(&cfg.files, "files", 512, "number of script sources")
	fs.IntVar(&cfg.fileSize, "file-size", 16<<10, "source size in bytes")
	fs.IntVar(&cfg.dirCount, "dir-count", 16, "number of source directories")
	fs.BoolVar(&cfg.compress, "compress", true, "compress package entries")
	fs.BoolVar(&cfg.obfuscate, "obfuscate", false, "obfuscate package entries")
	fs.StringVar(&cfg.pattern, "pattern", "compressible", "pattern: compressible or random")
	fs.BoolVar(&cfg.warm, "warm", false, "keep cooked output between cook iterations")
	fs.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	fs.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	fs.IntVarP(&cfg.workers, "workers", "j", 0, "cook and extract workers: <0 serial extract, 0 auto, >0 fixed")
	fs.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	fs.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	fs.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	fs.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	fs.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	fs.BoolVar(&cfg.readRandom, "read-random", true, "randomize read entry selection")
	fs.StringVar(&cfg.tempDir, "temp-dir", "", "directory to use for the project")
	fs.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	fs.Int64Var(&cfg.randomSeed, "seed", 1, "random seed")
	fs.BoolVarP(&cfg.verboseLogs, "verbose", "v", false, "log cooker output to stderr")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.files <= 0 {
		return cfg, errors.New("files must be positive")
	}
	return cfg, nil
}

//nolint:gocognit // profiler setup is a flat sequence of optional steps
func run(args []string, stdout, stderr io.Writer) (err error) {
	cfg, err := parseFlags(args, stdout)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	if cfg.pprofAddr != "" {
		go func() {
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				fmt.Fprintf(stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	base, cleanup, err := setupTempDir(cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer func() {
			if cerr := cleanup(); cerr != nil && err == nil {
				err = cerr
			}
		}()
	}
	if err := makeProject(base, cfg); err != nil {
		return err
	}

	logger := slog.New(slog.DiscardHandler)
	if cfg.verboseLogs {
		logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	c, err := cook.New(base, cook.PC,
		cook.WithLogger(logger),
		cook.WithPackageFile(packageName+".json"),
		cook.WithWorkers(max(cfg.workers, 0)),
		cook.WithLocal(false),
		cook.WithBuild(1, 1),
	)
	if err != nil {
		return err
	}

	if cfg.fgProfile != "" {
		fgFile, fgErr := os.Create(cfg.fgProfile)
		if fgErr != nil {
			return fgErr
		}
		stopFG := startWallclock(fgFile)
		defer func() {
			if ferr := stopFG(); ferr != nil && err == nil {
				err = fmt.Errorf("fgprof: %w", ferr)
			}
			if cerr := fgFile.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
	}

	if cfg.cpuProfile != "" {
		cpuFile, cpuErr := os.Create(cfg.cpuProfile)
		if cpuErr != nil {
			return cpuErr
		}
		if cpuErr = pprof.StartCPUProfile(cpuFile); cpuErr != nil {
			return cpuErr
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}

	if cfg.traceFile != "" {
		traceFile, traceErr := os.Create(cfg.traceFile)
		if traceErr != nil {
			return traceErr
		}
		if traceErr = trace.Start(traceFile); traceErr != nil {
			return traceErr
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	stats, err := runProfile(context.Background(), cfg, c)
	if err != nil {
		return err
	}

	if cfg.memProfile != "" {
		runtime.GC()
		f, err := os.Create(cfg.memProfile)
		if err != nil {
			return err
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			_ = f.Close()
			return err
		}
		_ = f.Close()
	}

	_, err = fmt.Fprintf(stdout, "mode=%s ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
		cfg.mode,
		stats.ops,
		stats.bytes,
		stats.elapsed,
		float64(stats.bytes)/(1024*1024)/stats.elapsed.Seconds(),
	)
	return err
}

// minWallclockWindow keeps fgprof running for several of its 99 Hz
// samples. With no sample taken its pprof export divides by zero.
const minWallclockWindow = 100 * time.Millisecond

// startWallclock starts fgprof on w. The returned stop function pads
// short runs up to minWallclockWindow before writing the profile.
func startWallclock(w io.Writer) func() error {
	start := time.Now()
	stop := fgprof.Start(w, fgprof.FormatPprof)
	return func() error {
		if d := time.Since(start); d < minWallclockWindow {
			time.Sleep(minWallclockWindow - d)
		}
		return stop()
	}
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

func archiveName(c *cook.Cooker) string {
	return filepath.Join(c.BaseDir(), "Data", "Config", packageName+".sar")
}

//nolint:gocognit,gocritic // complexity is inherent to multi-mode profiler dispatch; hugeParam acceptable for profiler
func runProfile(ctx context.Context, cfg config, c *cook.Cooker) (profileStats, error) {
	sourceBytes := int64(cfg.files) * int64(cfg.fileSize)
	if cfg.mode != "cook" {
		if err := c.CookAll(ctx); err != nil {
			return profileStats{}, err
		}
	}

	start := time.Now()
	ops := 0
	var byteCount int64
	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}

	switch cfg.mode {
	case "cook":
		for shouldContinue() {
			if !cfg.warm {
				if err := resetOutputs(c.BaseDir(), cfg); err != nil {
					return profileStats{}, err
				}
			}
			if err := c.CookAll(ctx); err != nil {
				return profileStats{}, err
			}
			byteCount += sourceBytes
			ops++
		}

	case "read":
		r, err := sar.Open(archiveName(c))
		if err != nil {
			return profileStats{}, err
		}
		defer r.Close()
		entries := r.Entries()
		rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional for reproducible benchmarks
		start = time.Now()
		for shouldContinue() {
			e := pickEntry(entries, ops, rng, cfg.readRandom)
			data, err := r.Read(e)
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = data
			byteCount += int64(len(data))
			ops++
		}

	case "extract":
		r, err := sar.Open(archiveName(c))
		if err != nil {
			return profileStats{}, err
		}
		defer r.Close()
		var total int64
		for _, e := range r.Entries() {
			total += int64(e.UncompressedSize) //nolint:gosec // sizes are bounded by the archive size
		}
		p := batch.NewProcessor(r, batch.WithWorkers(cfg.workers))
		start = time.Now()
		for shouldContinue() {
			dest := filepath.Join(c.BaseDir(), "extract", fmt.Sprintf("iter-%d", ops))
			n, err := p.Process(ctx, r.Entries(), batch.NewFileSink(dest))
			if err != nil {
				return profileStats{}, err
			}
			if err := os.RemoveAll(dest); err != nil {
				return profileStats{}, err
			}
			sinkCount = n
			byteCount += total
			ops++
		}

	default:
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	return profileStats{
		ops:     ops,
		bytes:   byteCount,
		elapsed: time.Since(start),
	}, nil
}

func pickEntry(entries []sar.Entry, idx int, rng *rand.Rand, random bool) sar.Entry {
	if random {
		return entries[rng.Intn(len(entries))]
	}
	return entries[idx%len(entries)]
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func setupTempDir(cfg config) (string, func() error, error) {
	if cfg.tempDir != "" {
		return cfg.tempDir, nil, os.MkdirAll(cfg.tempDir, 0o755) //nolint:gosec // 0o755 is intentional for profiler temp dirs
	}
	dir, err := os.MkdirTemp("", "cookprof-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() error {
		if cfg.keepTemp {
			return nil
		}
		return os.RemoveAll(dir)
	}
	return dir, cleanup, nil
}

// packageConfig packs every cooked script of the generated project.
func packageConfig(cfg config) string {
	return fmt.Sprintf(`{
	"Platform": "PC",
	"Packages": [{
		"Name": %q,
		"Root": "Profile",
		"Extensions": [".lbc"],
		"NonDependencySearchPatterns": ["*.*"],
		"CompressFiles": %t,
		"Obfuscate": %t
	}]
}`, packageName, cfg.compress, cfg.obfuscate)
}

// resetOutputs removes everything cooked so the next cook starts cold.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func resetOutputs(base string, cfg config) error {
	if err := os.RemoveAll(filepath.Join(base, "Data")); err != nil {
		return err
	}
	return writeConfig(base, cfg)
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func writeConfig(base string, cfg config) error {
	dir := filepath.Join(base, "Data", "Config")
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // 0o755 is intentional for profiler
		return err
	}
	return os.WriteFile(filepath.Join(dir, packageName+".json"), []byte(packageConfig(cfg)), 0o644) //nolint:gosec // 0o644 is intentional for profiler test files
}

// makeProject writes cfg.files script sources and the package config.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func makeProject(base string, cfg config) error {
	dirCount := max(cfg.dirCount, 1)
	rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional use for reproducible benchmarks
	for i := range cfg.files {
		rel := fmt.Sprintf("Profile/dir%02d/file%05d.lua", i%dirCount, i)
		full := filepath.Join(base, "Source", filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil { //nolint:gosec // 0o755 is intentional for profiler
			return err
		}

		content := make([]byte, cfg.fileSize)
		switch cfg.pattern {
		case "random":
			if _, err := rng.Read(content); err != nil {
				return err
			}
		default:
			fillByte := byte('a' + (i % 26))
			for j := range content {
				content[j] = fillByte
			}
			if len(content) > 0 {
				content[0] = byte(i)
			}
		}
		if err := os.WriteFile(full, content, 0o644); err != nil { //nolint:gosec // 0o644 is intentional for profiler test files
			return err
		}
	}
	return writeConfig(base, cfg)
}
