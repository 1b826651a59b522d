package syncer

import (
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Flock wraps an open file with non-blocking flock semantics. The sync run
// holds an exclusive lock so two concurrent invocations cannot interleave
// aptly state.
type Flock struct {
	*os.File
}

// Lock acquires an exclusive lock without blocking.
func (f Flock) Lock() error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		return errors.Wrap(err, "flock "+f.Name())
	}
	return nil
}

// Unlock releases the lock.
func (f Flock) Unlock() error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	if err != nil {
		return errors.Wrap(err, "funlock "+f.Name())
	}
	return nil
}
