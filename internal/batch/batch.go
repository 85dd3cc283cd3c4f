// Package batch extracts archive entries into a sink, in parallel when the
// entries are large enough to make it worthwhile.
package batch

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/meigma/cook/internal/sar"
	"github.com/meigma/cook/internal/sizing"
)

// parallelMinAvgBytes is the average entry size below which automatic
// worker selection stays serial.
const parallelMinAvgBytes = 64 << 10

// Source returns the verified content of an entry. [sar.Reader]
// implements it.
type Source interface {
	Read(e sar.Entry) ([]byte, error)
}

// Sink receives extracted entries.
type Sink interface {
	// ShouldProcess reports whether e should be extracted at all.
	ShouldProcess(e sar.Entry) bool
	// Writer returns the destination for e's content.
	Writer(e sar.Entry) (Committer, error)
}

// Committer is a destination that becomes visible only on Commit.
type Committer interface {
	io.Writer
	Commit() error
	Discard() error
}

// Processor reads entries from a source and writes them to a sink.
type Processor struct {
	source  Source
	workers int // 0 = auto, <0 = serial, >0 = fixed count
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithWorkers sets the worker count. Negative forces serial extraction
// and zero picks automatically.
func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		p.workers = n
	}
}

// NewProcessor creates a processor reading from source.
func NewProcessor(source Source, opts ...ProcessorOption) *Processor {
	p := &Processor{source: source}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process extracts entries into sink and returns how many were written.
//
// Entries are filtered through sink.ShouldProcess and handled in offset
// order so a serial run reads the archive front to back. Processing stops
// on the first error or when ctx is done.
func (p *Processor) Process(ctx context.Context, entries []sar.Entry, sink Sink) (int, error) {
	todo := make([]sar.Entry, 0, len(entries))
	for _, e := range entries {
		if sink.ShouldProcess(e) {
			todo = append(todo, e)
		}
	}
	if len(todo) == 0 {
		return 0, nil
	}
	slices.SortStableFunc(todo, func(a, b sar.Entry) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	var err error
	if workers := p.workerCount(todo); workers > 1 {
		err = p.processParallel(ctx, todo, sink, workers)
	} else {
		err = p.processSerial(ctx, todo, sink)
	}
	if err != nil {
		return 0, err
	}
	return len(todo), nil
}

func (p *Processor) processSerial(ctx context.Context, entries []sar.Entry, sink Sink) error {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.processEntry(e, sink); err != nil {
			return err
		}
	}
	return nil
}

// processParallel lets workers claim the next unprocessed entry from a
// shared counter, so claims still move through the archive in offset
// order. The first error stops further claims.
func (p *Processor) processParallel(ctx context.Context, entries []sar.Entry, sink Sink, workers int) error {
	var (
		next     atomic.Int64
		stop     atomic.Bool
		firstErr error
		errOnce  sync.Once
		wg       sync.WaitGroup
	)
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
		stop.Store(true)
	}
	for range workers {
		wg.Go(func() {
			for !stop.Load() {
				i := int(next.Add(1) - 1)
				if i >= len(entries) {
					return
				}
				if err := ctx.Err(); err != nil {
					fail(err)
					return
				}
				if err := p.processEntry(entries[i], sink); err != nil {
					fail(err)
					return
				}
			}
		})
	}
	wg.Wait()
	return firstErr
}

func (p *Processor) processEntry(e sar.Entry, sink Sink) error {
	data, err := p.source.Read(e)
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	w, err := sink.Writer(e)
	if err != nil {
		return fmt.Errorf("batch: %s: %w", e.Name, err)
	}
	if err := writeAll(w, data); err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("batch: %s: %w", e.Name, err)
	}
	if err := w.Commit(); err != nil {
		return fmt.Errorf("batch: %s: commit: %w", e.Name, err)
	}
	return nil
}

// workerCount picks the worker count for entries: the configured count,
// or with auto selection GOMAXPROCS when entries average at least
// parallelMinAvgBytes. It never exceeds the entry count.
func (p *Processor) workerCount(entries []sar.Entry) int {
	if len(entries) < 2 || p.workers < 0 {
		return 1
	}

	workers := p.workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers < 2 {
			return 1
		}
		var total uint64
		for _, e := range entries {
			next, ok := sizing.AddUint64(total, e.UncompressedSize)
			if !ok {
				total = ^uint64(0)
				break
			}
			total = next
		}
		if total/uint64(len(entries)) < parallelMinAvgBytes {
			return 1
		}
	}
	return min(workers, len(entries))
}

func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}
