// Package session implements the XID-keyed session table that correlates a
// client's DISCOVER with the authoritative DHCP server's OFFER, and the
// reaper that evicts stale entries.
//
// The locking discipline is grounded on original_source/src/dhcp.rs's
// QuotaMap<u32, Session> guarded by a tokio RwLock with a 500ms
// timeout(...) wrapper around every acquisition; golang.org/x/sync/
// semaphore.Weighted reproduces that exact shape in Go. A weighted
// semaphore of capacity Capacity acquires 1 for a shared (reader) section
// and the full capacity for an exclusive (writer) section, and
// Acquire(ctx, n) already supports context-bounded waits, so the 500ms
// LOCK_TIMEOUT from the Rust source becomes a context.WithTimeout here.
package session

import (
	"net"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
)

// Capacity is the weight representing full exclusive ownership of the
// table's semaphore.
const Capacity = 1 << 30

// Session is the per-XID record tracked between a DISCOVER and its
// resolution (ACK/DECLINE/reap).
type Session struct {
	// StartTime is set once, at creation, and is the only field
	// guaranteed to be populated — a Session is never observably empty.
	StartTime time.Time

	// DiscoverMessage is a private copy of the DISCOVER that created this
	// session, stored so the OFFER handler can render it through the
	// config matcher once the authoritative server's OFFER arrives.
	DiscoverMessage *dhcpv4.DHCPv4

	ClientIP   net.IP
	GatewayIP  net.IP
	CIAddr     net.IP
	SubnetMask net.IPMask
	LeaseTime  *uint32 // seconds; nil if the OFFER didn't carry option 51
}

// New creates a Session with only StartTime populated.
func New() *Session {
	return &Session{StartTime: time.Now()}
}

// Age reports how long ago the session was created.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.StartTime)
}
