package orchestrator

import (
	"net"
	"testing"

	"github.com/poxide/dhcp/ioready"
	"github.com/poxide/dhcp/netif"
)

func ephemeralBinding(t *testing.T, ifIndex int) *netif.Binding {
	t.Helper()
	server, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP server: %v", err)
	}
	client, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP client: %v", err)
	}
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return &netif.Binding{
		IfName:  "lo",
		IfIndex: ifIndex,
		IPv4:    net.IPv4(127, 0, 0, 1),
		Server:  server,
		Client:  client,
	}
}

func TestBindingByIfIndexFindsMatch(t *testing.T) {
	o := &Orchestrator{bindings: []*netif.Binding{ephemeralBinding(t, 3), ephemeralBinding(t, 7)}}

	if got := o.bindingByIfIndex(7); got == nil || got.IfIndex != 7 {
		t.Fatalf("bindingByIfIndex(7) = %v, want IfIndex 7", got)
	}
	if got := o.bindingByIfIndex(99); got != nil {
		t.Fatalf("bindingByIfIndex(99) = %v, want nil", got)
	}
}

func TestPollerRegistrationsCoversBothSockets(t *testing.T) {
	bindings := []*netif.Binding{ephemeralBinding(t, 1)}
	regs, err := pollerRegistrations(bindings)
	if err != nil {
		t.Fatalf("pollerRegistrations: %v", err)
	}
	if len(regs) != 2 {
		t.Fatalf("len(regs) = %d, want 2", len(regs))
	}

	var sawServer, sawClient bool
	for _, r := range regs {
		if r.Key.IfIndex != 1 {
			t.Fatalf("unexpected IfIndex %d", r.Key.IfIndex)
		}
		if r.FD <= 0 {
			t.Fatalf("FD = %d, want a positive descriptor", r.FD)
		}
		switch r.Key.Role {
		case ioready.RoleServer:
			sawServer = true
		case ioready.RoleClient:
			sawClient = true
		}
	}
	if !sawServer || !sawClient {
		t.Fatalf("expected both RoleServer and RoleClient registrations, got %+v", regs)
	}
}
