package session

import (
	"context"
	"testing"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
)

func xid(b byte) dhcpv4.TransactionID {
	return dhcpv4.TransactionID{0, 0, 0, b}
}

func TestTableInsertGetRemove(t *testing.T) {
	tbl := NewTable()
	ctx := context.Background()
	id := xid(42)

	s := New()
	if err := tbl.Insert(ctx, id, s); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	var got *Session
	err := tbl.View(ctx, func(m map[dhcpv4.TransactionID]*Session) error {
		got = m[id]
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if got != s {
		t.Fatalf("View returned %v, want %v", got, s)
	}

	if err := tbl.Remove(ctx, id); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	n, err := tbl.Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 0 {
		t.Fatalf("Len after Remove = %d, want 0", n)
	}
}

func TestTableInsertOverwriteDoesNotConsumeQuota(t *testing.T) {
	tbl := NewTable(WithMaxSessions(1))
	ctx := context.Background()

	if err := tbl.Insert(ctx, xid(1), New()); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	// Overwriting the same XID must not be rejected even though the table
	// is already at capacity.
	if err := tbl.Insert(ctx, xid(1), New()); err != nil {
		t.Fatalf("overwrite Insert: %v", err)
	}
	// A genuinely new XID must be rejected once at capacity.
	if err := tbl.Insert(ctx, xid(2), New()); err == nil {
		t.Fatal("Insert of new XID at capacity succeeded, want ErrQuota")
	}
}

func TestReaperEvictsStaleSessions(t *testing.T) {
	tbl := NewTable()
	ctx := context.Background()

	fresh := New()
	stale := New()
	stale.StartTime = time.Now().Add(-time.Hour)

	if err := tbl.Insert(ctx, xid(1), fresh); err != nil {
		t.Fatalf("Insert fresh: %v", err)
	}
	if err := tbl.Insert(ctx, xid(2), stale); err != nil {
		t.Fatalf("Insert stale: %v", err)
	}

	r := NewReaper(tbl, WithSessionTTL(time.Minute))
	if err := r.sweep(ctx, time.Now()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	n, err := tbl.Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 1 {
		t.Fatalf("Len after sweep = %d, want 1", n)
	}
	if err := tbl.View(ctx, func(m map[dhcpv4.TransactionID]*Session) error {
		if _, ok := m[xid(1)]; !ok {
			t.Fatal("fresh session was reaped")
		}
		if _, ok := m[xid(2)]; ok {
			t.Fatal("stale session survived reap")
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestReaperEvictionHookFiresOncePerStaleSession(t *testing.T) {
	tbl := NewTable()
	ctx := context.Background()

	stale1 := New()
	stale1.StartTime = time.Now().Add(-time.Hour)
	stale2 := New()
	stale2.StartTime = time.Now().Add(-time.Hour)

	if err := tbl.Insert(ctx, xid(1), stale1); err != nil {
		t.Fatalf("Insert stale1: %v", err)
	}
	if err := tbl.Insert(ctx, xid(2), stale2); err != nil {
		t.Fatalf("Insert stale2: %v", err)
	}

	var reasons []string
	r := NewReaper(tbl, WithSessionTTL(time.Minute), WithEvictionHook(func(reason string) {
		reasons = append(reasons, reason)
	}))
	if err := r.sweep(ctx, time.Now()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(reasons) != 2 {
		t.Fatalf("eviction hook fired %d times, want 2", len(reasons))
	}
	for _, r := range reasons {
		if r != "ttl_expired" {
			t.Fatalf("eviction reason = %q, want ttl_expired", r)
		}
	}
}

func TestTableLockTimeoutHookFiresOnTimeout(t *testing.T) {
	tbl := NewTable(WithLockTimeout(10 * time.Millisecond))
	called := make(chan struct{}, 1)
	tbl.onLockTimeout = func() { called <- struct{}{} }

	ctx := context.Background()
	// Hold the exclusive section open so a concurrent acquisition times out.
	release := make(chan struct{})
	go tbl.Mutate(ctx, func(m map[dhcpv4.TransactionID]*Session) error {
		<-release
		return nil
	})
	time.Sleep(5 * time.Millisecond)

	_, err := tbl.Len(ctx)
	close(release)

	if err == nil {
		t.Fatal("Len during held exclusive section = nil error, want ErrLockTimeout")
	}
	select {
	case <-called:
	default:
		t.Fatal("onLockTimeout hook was not invoked")
	}
}
