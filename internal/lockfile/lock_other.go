//go:build !unix

package lockfile

import (
	"errors"
	"io/fs"
	"os"
)

func tryLock(name string) (*os.File, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644) //nolint:gosec // lock path comes from the project layout
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, errBusy
		}
		return nil, err
	}
	return f, nil
}

func unlock(name string, f *os.File) error {
	cerr := f.Close()
	if err := os.Remove(name); err != nil {
		return err
	}
	return cerr
}
