// Package ioready implements the readiness poller: a single dedicated
// goroutine that blocks in unix.Poll across every bound socket and
// delivers ready keys back to the orchestrator's event-dispatch loop.
//
// Grounded on original_source/src/dhcp.rs's io_poller (the `polling` crate
// wrapping epoll), which registers one readiness event per socket indexed
// by position and re-registers every socket on each wait cycle
// (`enlist_sockets_for_events` / `re_enlist_sockets_for_events`). Go's
// unix.Poll is level-triggered classic poll(2): the same []unix.PollFd
// slice is simply reused across calls, so no re-registration step is
// needed — the Rust source's two-phase enlist/re-enlist collapses here
// into "build the slice once, call unix.Poll in a loop".
package ioready

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/poxide/dhcp/poxerr"
)

// Role distinguishes the server (:67) socket from the client (:68)
// broadcast socket of a given interface.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// Key identifies one polled socket by interface index and role, mirroring
// the original's flat per-socket index but keeping the (interface, role)
// pair legible instead of a bare integer.
type Key struct {
	IfIndex int
	Role    Role
}

// Poller waits on a fixed set of file descriptors and reports which keys
// became readable on each wait cycle.
type Poller struct {
	fds  []unix.PollFd
	keys []Key

	wakeR, wakeW int // self-pipe fds used to interrupt a blocked Poll from Close
}

// Register describes one file descriptor to add to the poll set.
type Register struct {
	Key Key
	FD  int
}

// New builds a Poller over the given registrations plus an internal
// self-pipe used to unblock a pending unix.Poll call on Close.
func New(regs []Register) (*Poller, error) {
	fdPair := make([]int, 2)
	if err := unix.Pipe(fdPair); err != nil {
		return nil, fmt.Errorf("%w: creating wake pipe: %v", poxerr.ErrBind, err)
	}

	p := &Poller{
		wakeR: fdPair[0],
		wakeW: fdPair[1],
	}
	for _, r := range regs {
		p.fds = append(p.fds, unix.PollFd{Fd: int32(r.FD), Events: unix.POLLIN})
		p.keys = append(p.keys, r.Key)
	}
	p.fds = append(p.fds, unix.PollFd{Fd: int32(p.wakeR), Events: unix.POLLIN})

	return p, nil
}

// Close unblocks any goroutine waiting in Wait and closes the wake pipe's
// write end. The read end stays open, so every later Wait also returns at
// once.
func (p *Poller) Close() error {
	_, err := unix.Write(p.wakeW, []byte{0})
	unix.Close(p.wakeW)
	return err
}

// Wait blocks until at least one registered socket is readable or Close is
// called, returning the keys that became ready. Canceling ctx alone does not
// unblock Wait; ctx is only consulted after a Close wake-up, which returns a
// nil slice and the context's error, if any.
func (p *Poller) Wait(ctx context.Context) ([]Key, error) {
	for i := range p.fds {
		p.fds[i].Revents = 0
	}

	n, err := unix.Poll(p.fds, -1)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: poll: %v", poxerr.ErrIO, err)
	}
	if n == 0 {
		return nil, nil
	}

	wakeIdx := len(p.fds) - 1
	if p.fds[wakeIdx].Revents&unix.POLLIN != 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			return nil, nil
		}
	}

	var ready []Key
	for i, pfd := range p.fds[:wakeIdx] {
		if pfd.Revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) != 0 {
			ready = append(ready, p.keys[i])
		}
	}
	return ready, nil
}
