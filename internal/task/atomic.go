package task

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const tempPrefix = ".cook-"

// outputMode is the permission of new outputs before the umask. A
// replaced output keeps its previous mode instead.
const outputMode fs.FileMode = 0o644

// WriteFinalOutput replaces name with data. An existing file is moved
// aside first and restored if the write fails, so name always holds
// either the old or the new content.
func WriteFinalOutput(name string, data []byte) error {
	return commit(name, func(root *os.Root, rel string) error {
		f, err := createTempFile(root, tempPrefix)
		if err != nil {
			return err
		}
		tmp := f.Name()
		tmpRel := filepath.Base(tmp)
		if _, err := f.Write(data); err != nil {
			_ = f.Close()           //nolint:errcheck // best-effort cleanup
			_ = root.Remove(tmpRel) //nolint:errcheck // best-effort cleanup
			return err
		}
		if err := f.Close(); err != nil {
			_ = root.Remove(tmpRel) //nolint:errcheck // best-effort cleanup
			return err
		}
		if err := root.Rename(tmpRel, rel); err != nil {
			_ = root.Remove(tmpRel) //nolint:errcheck // best-effort cleanup
			return err
		}
		return nil
	})
}

// CommitTempFile moves the finished file temp to name with the same
// guarantees as [WriteFinalOutput]. temp is removed on failure.
func CommitTempFile(temp, name string) error {
	err := commit(name, func(*os.Root, string) error {
		return os.Rename(temp, name)
	})
	if err != nil {
		_ = os.Remove(temp) //nolint:errcheck // best-effort cleanup
	}
	return err
}

// CreateTempFile creates an empty file in dir for staging output that
// is later passed to [CommitTempFile]. dir is created if needed.
func CreateTempFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("task: create directory %s: %w", dir, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("task: open %s: %w", dir, err)
	}
	defer root.Close()
	f, err := createTempFile(root, tempPrefix)
	if err != nil {
		return nil, fmt.Errorf("task: create temp file in %s: %w", dir, err)
	}
	return f, nil
}

// commit moves any existing name aside, runs place to produce the new
// file, then drops the old copy. If place fails the old copy is put back.
func commit(name string, place func(root *os.Root, rel string) error) error {
	dir := filepath.Dir(name)
	rel := filepath.Base(name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("task: %s: create directory: %w", name, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return fmt.Errorf("task: %s: %w", name, err)
	}
	defer root.Close()

	suffix, err := randomSuffix()
	if err != nil {
		return fmt.Errorf("task: %s: %w", name, err)
	}
	backup := tempPrefix + suffix + ".old"
	mode := fs.FileMode(0)
	if info, err := root.Lstat(rel); err == nil && info.Mode().IsRegular() {
		mode = info.Mode().Perm()
	}
	hadOld := true
	if err := root.Rename(rel, backup); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("task: %s: move existing output aside: %w", name, err)
		}
		hadOld = false
	}

	err = place(root, rel)
	if err == nil && mode != 0 {
		err = root.Chmod(rel, mode)
	}
	if err != nil {
		_ = root.Remove(rel) //nolint:errcheck // best-effort cleanup
		if hadOld {
			_ = root.Rename(backup, rel) //nolint:errcheck // best-effort restore
		}
		return fmt.Errorf("task: %s: write final output: %w", name, err)
	}
	if hadOld {
		_ = root.Remove(backup) //nolint:errcheck // best-effort cleanup
	}
	return nil
}

func createTempFile(root *os.Root, prefix string) (*os.File, error) {
	const attempts = 10
	for range attempts {
		suffix, err := randomSuffix()
		if err != nil {
			return nil, err
		}
		f, err := root.OpenFile(prefix+suffix, os.O_CREATE|os.O_EXCL|os.O_WRONLY, outputMode)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
	}
	return nil, errors.New("create temp file: exhausted retries")
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
