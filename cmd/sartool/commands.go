package main

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/disiqueira/gotree/v3"
	"github.com/opencontainers/go-digest"
	"github.com/spf13/pflag"

	"github.com/meigma/cook/internal/batch"
	"github.com/meigma/cook/internal/datastore"
	"github.com/meigma/cook/internal/pathutil"
	"github.com/meigma/cook/internal/remote"
	"github.com/meigma/cook/internal/sar"
)

// openArchive opens a local archive, or a published one when the
// argument is an http(s) URL.
func openArchive(fs *pflag.FlagSet) (*sar.Reader, error) {
	name := fs.Arg(0)
	if remote.IsURL(name) {
		return remote.Open(context.Background(), name)
	}
	return sar.Open(name)
}

// listDir prints the files and subdirectories directly under dir, the
// way a directory query against the archive sees them.
func listDir(w io.Writer, entries []sar.Entry, dir string) error {
	prefix := pathutil.DirPrefix(strings.ReplaceAll(dir, "/", pathutil.Separator))
	seen := make(map[string]bool)
	var lines []string
	for _, e := range entries {
		if !pathutil.HasPrefix(e.Name, prefix) {
			continue
		}
		child, isDir := pathutil.Child(e.Name, prefix)
		if isDir {
			child += pathutil.Separator
		}
		if key := strings.ToLower(child); !seen[key] {
			seen[key] = true
			lines = append(lines, child)
		}
	}
	if len(lines) == 0 {
		return fmt.Errorf("%w: no entries under %s", sar.ErrNotFound, dir)
	}
	slices.Sort(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

var listCommand = command{
	summary: "list entries",
	nargs:   1,
	flags: func(fs *pflag.FlagSet) {
		fs.Bool("tree", false, "print entries as a directory tree")
		fs.Bool("digest", false, "print the sha256 digest of each entry's content")
		fs.String("dir", "", "only list the immediate children of this directory")
	},
	run: func(fs *pflag.FlagSet, w io.Writer) error {
		asTree, _ := fs.GetBool("tree")
		withDigest, _ := fs.GetBool("digest")
		dir, _ := fs.GetString("dir")
		r, err := openArchive(fs)
		if err != nil {
			return err
		}
		defer r.Close()
		if dir != "" {
			return listDir(w, r.Entries(), dir)
		}

		digests := make(map[string]digest.Digest)
		if withDigest {
			for _, e := range r.Entries() {
				data, err := r.Read(e)
				if err != nil {
					return err
				}
				digests[e.Name] = digest.FromBytes(data)
			}
		}
		if asTree {
			t := newEntryTree(filepath.Base(fs.Arg(0)))
			for _, e := range r.Entries() {
				label := pathutil.Base(e.Name)
				if d, ok := digests[e.Name]; ok {
					label += " " + d.String()
				}
				t.insert(pathutil.ToSlash(e.Name), label)
			}
			_, err := io.WriteString(w, t.root.Print())
			return err
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
		for _, e := range r.Entries() {
			fmt.Fprintf(tw, "%d\t%d\t%s\t", e.UncompressedSize, e.CompressedSize,
				time.Unix(int64(e.ModTime), 0).UTC().Format(time.DateTime)) //nolint:gosec // archive timestamps are unix seconds
			if d, ok := digests[e.Name]; ok {
				fmt.Fprintf(tw, "%s\t", d.Encoded()[:12])
			}
			fmt.Fprintf(tw, "%s\n", e.Name)
		}
		return tw.Flush()
	},
}

// entryTree renders entry names as a directory tree.
type entryTree struct {
	root gotree.Tree
	dirs map[string]gotree.Tree
}

func newEntryTree(label string) *entryTree {
	return &entryTree{root: gotree.New(label), dirs: make(map[string]gotree.Tree)}
}

func (t *entryTree) dir(name string) gotree.Tree {
	if name == "." || name == "" {
		return t.root
	}
	d, ok := t.dirs[name]
	if !ok {
		d = t.dir(path.Dir(name)).Add(path.Base(name))
		t.dirs[name] = d
	}
	return d
}

func (t *entryTree) insert(name, label string) {
	t.dir(path.Dir(name)).Add(label)
}

var extractCommand = command{
	summary: "extract entries into a directory",
	nargs:   2,
	flags: func(fs *pflag.FlagSet) {
		fs.Bool("verify", false, "check stored checksums before extracting")
		fs.Bool("overwrite", false, "replace existing files")
		fs.Bool("keep-times", true, "set file times from the archive")
		fs.String("dir", "", "only extract entries under this directory")
		fs.IntP("workers", "j", 0, "parallel workers (0 decides by entry size, -1 is serial)")
	},
	run: func(fs *pflag.FlagSet, w io.Writer) error {
		verify, _ := fs.GetBool("verify")
		overwrite, _ := fs.GetBool("overwrite")
		keepTimes, _ := fs.GetBool("keep-times")
		dir, _ := fs.GetString("dir")
		workers, _ := fs.GetInt("workers")
		r, err := openArchive(fs)
		if err != nil {
			return err
		}
		defer r.Close()
		if verify {
			if err := r.Verify(); err != nil {
				return err
			}
		}

		dest := fs.Arg(1)
		sink := batch.NewFileSink(dest,
			batch.WithOverwrite(overwrite),
			batch.WithPreserveTimes(keepTimes),
			batch.WithPrefix(dir),
		)
		n, err := batch.NewProcessor(r, batch.WithWorkers(workers)).
			Process(context.Background(), r.Entries(), sink)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "extracted %d entries to %s\n", n, dest)
		return err
	},
}

var statsCommand = command{
	summary: "print entry counts and compression ratios",
	nargs:   1,
	run: func(fs *pflag.FlagSet, w io.Writer) error {
		r, err := openArchive(fs)
		if err != nil {
			return err
		}
		defer r.Close()

		var stored, content uint64
		compressed := 0
		for _, e := range r.Entries() {
			stored += e.CompressedSize
			content += e.UncompressedSize
			if e.Compressed() {
				compressed++
			}
		}
		h := r.Header()
		ratio := 1.0
		if content > 0 {
			ratio = float64(stored) / float64(content)
		}
		_, dict := r.DictionaryEntry()
		fmt.Fprintf(w, "entries:      %d (%d compressed)\n", h.EntryCount, compressed)
		fmt.Fprintf(w, "content:      %d bytes\n", content)
		fmt.Fprintf(w, "stored:       %d bytes (%.1f%%)\n", stored, ratio*100)
		fmt.Fprintf(w, "archive:      %d bytes\n", h.TotalSize)
		fmt.Fprintf(w, "table:        %d bytes\n", h.TableSize)
		fmt.Fprintf(w, "dictionary:   %t\n", dict)
		fmt.Fprintf(w, "obfuscated:   %t\n", h.Obfuscated)
		return nil
	},
}

var versionCommand = command{
	summary: "print format and build versions",
	nargs:   1,
	run: func(fs *pflag.FlagSet, w io.Writer) error {
		r, err := openArchive(fs)
		if err != nil {
			return err
		}
		defer r.Close()
		h := r.Header()
		fmt.Fprintf(w, "format:       %d\n", sar.Version)
		fmt.Fprintf(w, "build:        %d.%d\n", h.VersionMajor, h.Changelist)
		fmt.Fprintf(w, "platform:     %s\n", h.Platform)
		fmt.Fprintf(w, "directory:    %s\n", h.GameDirectory)
		fmt.Fprintf(w, "variation:    %d\n", h.Variation)
		fmt.Fprintf(w, "dir queries:  %t\n", h.DirectoryQueries)
		return nil
	},
}

var changelistCommand = command{
	summary: "print the build changelist",
	nargs:   1,
	run: func(fs *pflag.FlagSet, w io.Writer) error {
		r, err := openArchive(fs)
		if err != nil {
			return err
		}
		defer r.Close()
		_, err = fmt.Fprintln(w, r.Header().Changelist)
		return err
	},
}

var dumpJSONCommand = command{
	summary: "print a JSON or cooked data entry as indented JSON",
	nargs:   2,
	run: func(fs *pflag.FlagSet, w io.Writer) error {
		r, err := openArchive(fs)
		if err != nil {
			return err
		}
		defer r.Close()
		data, err := r.ReadFile(fs.Arg(1))
		if err != nil {
			return err
		}
		v, err := datastore.Parse(data)
		if err != nil {
			if v, err = datastore.LoadCooked(data); err != nil {
				return fmt.Errorf("%s: neither JSON nor cooked data: %w", fs.Arg(1), err)
			}
		}
		out, err := datastore.Pretty(v)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	},
}
