// Package poxerr defines the error taxonomy shared across the DHCP
// co-server: a handful of sentinel errors that callers compare against with
// errors.Is, plus thin wrappers that attach context without losing the
// sentinel.
package poxerr

import "errors"

var (
	// ErrConfig covers invalid or missing configuration at load or
	// validation time. Fatal at startup.
	ErrConfig = errors.New("config error")

	// ErrBind covers OS-level socket/bind/device-binding failures. Fatal
	// at startup.
	ErrBind = errors.New("bind error")

	// ErrParse covers malformed DHCP wire bytes. The message is dropped.
	ErrParse = errors.New("parse error")

	// ErrQuota is returned when the session table is full.
	ErrQuota = errors.New("quota exceeded")

	// ErrLockTimeout is returned when a session-table lock could not be
	// acquired within the bounded timeout.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrMatchMiss is returned when no configuration rule matched and no
	// default configuration entry exists. The DHCP state machine also
	// returns it for a message it has nothing to do with: a DISCOVER that
	// does not request a boot file, or an OFFER/REQUEST with no session.
	ErrMatchMiss = errors.New("no matching configuration")

	// ErrClientDecline marks a DECLINE received for a tracked XID. Not
	// fatal; logged at warn by the caller.
	ErrClientDecline = errors.New("client declined")

	// ErrIO covers transient send/receive failures.
	ErrIO = errors.New("io error")
)

// Wrap attaches extra context to a sentinel error while keeping it
// unwrappable via errors.Is.
func Wrap(sentinel error, context string) error {
	return &wrapped{sentinel: sentinel, context: context}
}

type wrapped struct {
	sentinel error
	context  string
}

func (w *wrapped) Error() string { return w.context + ": " + w.sentinel.Error() }

func (w *wrapped) Unwrap() error { return w.sentinel }
