package pkgcook

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/meigma/cook/internal/task"
)

// writeZip writes the package as a standard zip archive. Entries are
// named by their full relative filename.
func (b *builder) writeZip(ctx context.Context) (err error) {
	if b.pkg.Overflow != "" {
		return fmt.Errorf("%w: overflow archive %q", ErrZip, b.pkg.Overflow)
	}
	list, err := b.fileList()
	if err != nil {
		return err
	}

	out := b.configArchive(b.pkg.Name, b.pkg.SarExtension())
	f, err := task.CreateTempFile(filepath.Dir(out))
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()      //nolint:errcheck // best-effort cleanup
			_ = os.Remove(tmp) //nolint:errcheck // best-effort cleanup
		}
	}()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})
	method := zip.Store
	if b.pkg.CompressFiles {
		method = zip.Deflate
	}

	for _, e := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := b.readFileData(e)
		if err != nil {
			return err
		}
		hdr := &zip.FileHeader{
			Name:     e.Path.RelativeFilename(),
			Method:   method,
			Modified: time.Unix(int64(e.ModTime), 0).UTC(), //nolint:gosec // seconds since epoch
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("pkgcook: zip %s: %w", hdr.Name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("pkgcook: zip %s: %w", hdr.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("pkgcook: finish zip: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("pkgcook: close %s: %w", tmp, err)
	}
	if err := b.finalize(ctx, tmp, out); err != nil {
		return err
	}
	b.c.Log().Info("zip archive written", "package", b.pkg.Name, "archive", filepath.Base(out), "entries", len(list))
	return nil
}
