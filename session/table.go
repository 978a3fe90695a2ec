package session

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"golang.org/x/sync/semaphore"

	"github.com/poxide/dhcp/poxerr"
)

// DefaultMaxSessions is the hard upper bound on the number of in-flight
// sessions when the operator configures none.
const DefaultMaxSessions = 500

// DefaultLockTimeout is the bounded wait for acquiring the table's
// exclusive or shared section before the caller gives up and drops the
// current message.
const DefaultLockTimeout = 500 * time.Millisecond

// Table is the bounded, quota-enforced XID -> Session mapping. All mutating
// access goes through Mutate (exclusive); read-only access goes through
// View (shared). Both bound their wait on the table's semaphore to
// LockTimeout.
type Table struct {
	sem             *semaphore.Weighted
	sessions        map[dhcpv4.TransactionID]*Session
	maxSessions     int
	lockTimeout     time.Duration
	log             logr.Logger
	onLockTimeout   func()
}

// Option configures a Table at construction time.
type Option func(*Table)

// WithMaxSessions overrides DefaultMaxSessions.
func WithMaxSessions(n int) Option {
	return func(t *Table) {
		if n > 0 {
			t.maxSessions = n
		}
	}
}

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(t *Table) {
		if d > 0 {
			t.lockTimeout = d
		}
	}
}

// WithLogger attaches a logger used for lock-timeout diagnostics.
func WithLogger(log logr.Logger) Option {
	return func(t *Table) { t.log = log }
}

// WithLockTimeoutHook registers fn to be called every time a lock
// acquisition times out, in addition to the diagnostic log line. Intended
// for metrics.Registry.ObserveLockTimeout.
func WithLockTimeoutHook(fn func()) Option {
	return func(t *Table) { t.onLockTimeout = fn }
}

// NewTable constructs an empty session table.
func NewTable(opts ...Option) *Table {
	t := &Table{
		sem:         semaphore.NewWeighted(Capacity),
		sessions:    make(map[dhcpv4.TransactionID]*Session),
		maxSessions: DefaultMaxSessions,
		lockTimeout: DefaultLockTimeout,
		log:         logr.Discard(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Table) acquire(ctx context.Context, weight int64) error {
	ctx, cancel := context.WithTimeout(ctx, t.lockTimeout)
	defer cancel()
	if err := t.sem.Acquire(ctx, weight); err != nil {
		t.log.V(2).Info("session table lock timed out", "weight", weight)
		if t.onLockTimeout != nil {
			t.onLockTimeout()
		}
		return poxerr.ErrLockTimeout
	}
	return nil
}

// Mutate runs fn with exclusive access to the session map. If the
// exclusive section cannot be acquired within LockTimeout, it returns
// ErrLockTimeout without invoking fn and without mutating anything.
func (t *Table) Mutate(ctx context.Context, fn func(map[dhcpv4.TransactionID]*Session) error) error {
	if err := t.acquire(ctx, Capacity); err != nil {
		return err
	}
	defer t.sem.Release(Capacity)
	return fn(t.sessions)
}

// View runs fn with shared (read-only by convention) access to the session
// map. Multiple Views may run concurrently; a View excludes any concurrent
// Mutate.
func (t *Table) View(ctx context.Context, fn func(map[dhcpv4.TransactionID]*Session) error) error {
	if err := t.acquire(ctx, 1); err != nil {
		return err
	}
	defer t.sem.Release(1)
	return fn(t.sessions)
}

// Insert stores s under xid, overwriting any existing session for that XID.
// A brand-new XID is rejected with ErrQuota once the table already holds
// maxSessions entries; the table is left unchanged on rejection.
func (t *Table) Insert(ctx context.Context, xid dhcpv4.TransactionID, s *Session) error {
	return t.Mutate(ctx, func(m map[dhcpv4.TransactionID]*Session) error {
		if _, exists := m[xid]; !exists && len(m) >= t.maxSessions {
			return poxerr.ErrQuota
		}
		m[xid] = s
		return nil
	})
}

// Remove deletes the session for xid, if any. Removing an absent XID is a
// no-op.
func (t *Table) Remove(ctx context.Context, xid dhcpv4.TransactionID) error {
	return t.Mutate(ctx, func(m map[dhcpv4.TransactionID]*Session) error {
		delete(m, xid)
		return nil
	})
}

// Len reports the current number of tracked sessions.
func (t *Table) Len(ctx context.Context) (int, error) {
	var n int
	err := t.View(ctx, func(m map[dhcpv4.TransactionID]*Session) error {
		n = len(m)
		return nil
	})
	return n, err
}
