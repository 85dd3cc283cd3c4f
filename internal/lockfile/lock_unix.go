//go:build unix

package lockfile

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func tryLock(name string) (*os.File, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec // lock path comes from the project layout
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil { //nolint:gosec // fd fits in int
		f.Close() //nolint:errcheck // best-effort cleanup
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errBusy
		}
		return nil, err
	}
	return f, nil
}

// unlock leaves the file in place; removing it would race a waiter that
// already opened it.
func unlock(_ string, f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil { //nolint:gosec // fd fits in int
		f.Close() //nolint:errcheck // best-effort cleanup
		return err
	}
	return f.Close()
}
