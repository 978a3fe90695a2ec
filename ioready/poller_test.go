package ioready

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestPollerReportsReadySocket(t *testing.T) {
	fds := make([]int, 2)
	if err := unix.Pipe(fds); err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	p, err := New([]Register{{Key: Key{IfIndex: 1, Role: RoleServer}, FD: fds[0]}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := unix.Write(fds[1], []byte{7}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ready, err := p.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(ready) != 1 || ready[0].IfIndex != 1 || ready[0].Role != RoleServer {
		t.Fatalf("Wait returned %v, want [{1 RoleServer}]", ready)
	}
}

func TestPollerCloseUnblocksWait(t *testing.T) {
	fds := make([]int, 2)
	if err := unix.Pipe(fds); err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	p, err := New([]Register{{Key: Key{IfIndex: 1, Role: RoleServer}, FD: fds[0]}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		p.Wait(ctx)
		close(done)
	}()

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not unblock after Close")
	}
}
