package pkgcook

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/sar"
)

type deltaKey struct {
	path assetpath.Key
	size uint64
	crc  uint32
}

// deltaSet holds the entries of the archives a patch archive is built
// against. An entry matching on path, stored size and content checksum
// is already available to the reader and is left out of the patch.
type deltaSet map[deltaKey]struct{}

func (s deltaSet) contains(fp assetpath.FilePath, e sar.Entry) bool {
	_, ok := s[deltaKey{path: fp.Key(), size: e.CompressedSize, crc: e.CRC32Pre}]
	return ok
}

// deltaSet reads the file tables of the package's delta archives.
func (b *builder) deltaSet() (deltaSet, error) {
	set := deltaSet{}
	for _, name := range b.pkg.DeltaArchives {
		if err := b.addDeltaArchive(set, name); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (b *builder) addDeltaArchive(set deltaSet, name string) error {
	r, err := sar.Open(b.configArchive(strings.TrimSuffix(name, filepath.Ext(name)), ".sar"))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelta, err)
	}
	defer r.Close()

	for _, e := range r.Entries() {
		fp, err := b.pkg.PathFromEntry(e.Name)
		if err != nil {
			return fmt.Errorf("%w: %s: entry %s: %w", ErrDelta, name, e.Name, err)
		}
		k := deltaKey{path: fp.Key(), size: e.CompressedSize, crc: e.CRC32Pre}
		if _, dup := set[k]; dup {
			return fmt.Errorf("%w: %s: duplicate entry %s", ErrDelta, name, e.Name)
		}
		set[k] = struct{}{}
	}
	return nil
}
