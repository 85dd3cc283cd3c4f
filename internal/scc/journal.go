package scc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/zeebo/blake3"
)

// Action is a journaled change.
type Action string

// Journal actions.
const (
	ActionEdit   Action = "edit"
	ActionAdd    Action = "add"
	ActionRevert Action = "revert"
)

// Record is one journal line.
type Record struct {
	Action Action `json:"action"`
	Path   string `json:"path"`
	Hash   string `json:"hash,omitempty"`
}

// Journal is a Client for trees without a source-control server. It
// appends one JSON line per operation to a journal file, which a CI step
// can turn into a changelist. Content hashes taken at OpenForEdit let
// RevertUnchanged tell which files really changed.
type Journal struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	opened  map[string]string
	pending map[string]Action
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithJournalLogger sets the logger.
func WithJournalLogger(logger *slog.Logger) JournalOption {
	return func(j *Journal) {
		j.logger = logger
	}
}

// NewJournal creates a Journal appending to name.
func NewJournal(name string, opts ...JournalOption) *Journal {
	j := &Journal{
		name:    name,
		opened:  make(map[string]string),
		pending: make(map[string]Action),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

var _ Client = (*Journal)(nil)

func (j *Journal) log() *slog.Logger {
	if j.logger != nil {
		return j.logger
	}
	return slog.New(slog.DiscardHandler)
}

// hashFile returns the hex blake3 digest of name, or "" if it does not exist.
func hashFile(name string) (string, error) {
	f, err := os.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// OpenForEdit records the current content of each existing path.
func (j *Journal) OpenForEdit(ctx context.Context, paths ...string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var recs []Record
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		p = filepath.Clean(p)
		sum, err := hashFile(p)
		if err != nil {
			return fmt.Errorf("scc: hash %s: %w", p, err)
		}
		if sum == "" {
			continue
		}
		j.opened[p] = sum
		j.pending[p] = ActionEdit
		recs = append(recs, Record{Action: ActionEdit, Path: p, Hash: sum})
	}
	return j.appendLocked(recs)
}

// OpenForAdd records paths that were not opened for edit.
func (j *Journal) OpenForAdd(ctx context.Context, paths ...string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var recs []Record
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		p = filepath.Clean(p)
		if _, ok := j.opened[p]; ok {
			continue
		}
		sum, err := hashFile(p)
		if err != nil {
			return fmt.Errorf("scc: hash %s: %w", p, err)
		}
		if sum == "" {
			return fmt.Errorf("scc: add %s: %w", p, fs.ErrNotExist)
		}
		j.pending[p] = ActionAdd
		recs = append(recs, Record{Action: ActionAdd, Path: p, Hash: sum})
	}
	return j.appendLocked(recs)
}

// RevertUnchanged journals a revert for every opened path whose content
// hash is unchanged.
func (j *Journal) RevertUnchanged(ctx context.Context, paths ...string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var recs []Record
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		p = filepath.Clean(p)
		before, ok := j.opened[p]
		if !ok {
			continue
		}
		sum, err := hashFile(p)
		if err != nil {
			return fmt.Errorf("scc: hash %s: %w", p, err)
		}
		if sum != before {
			continue
		}
		delete(j.opened, p)
		delete(j.pending, p)
		recs = append(recs, Record{Action: ActionRevert, Path: p, Hash: sum})
	}
	if len(recs) > 0 {
		j.log().Debug("reverted unchanged files", "count", len(recs))
	}
	return j.appendLocked(recs)
}

// PendingPaths returns the paths currently open for edit or add, sorted.
func (j *Journal) PendingPaths() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.pending))
	for k := range j.pending {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (j *Journal) appendLocked(recs []Record) (err error) {
	if len(recs) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(j.name), 0o755); err != nil {
		return fmt.Errorf("scc: %w", err)
	}
	f, err := os.OpenFile(j.name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // journal path comes from settings
	if err != nil {
		return fmt.Errorf("scc: open journal: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("scc: close journal: %w", cerr)
		}
	}()
	enc := json.NewEncoder(f)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("scc: write journal: %w", err)
		}
	}
	return nil
}

// ReadJournal parses a journal file.
func ReadJournal(name string) ([]Record, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("scc: %w", err)
	}
	defer f.Close()

	var out []Record
	dec := json.NewDecoder(f)
	for {
		var r Record
		if err := dec.Decode(&r); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("scc: read journal %s: %w", name, err)
		}
		out = append(out, r)
	}
}
