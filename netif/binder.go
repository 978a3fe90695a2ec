// Package netif binds the two UDP/IPv4 sockets (server, on :67, and
// client, on :68 broadcast) each configured interface needs.
//
// The socket-option set this package applies (SO_BROADCAST, SO_REUSEADDR,
// SO_REUSEPORT, SO_BINDTODEVICE) is the same set original_source/src/dhcp.rs's
// socket_from_iface_ip and the pack's ngcxy-dranet/pkg/dhcp/dhcp.go apply
// with raw syscall.Socket/Setsockopt calls; this package reaches the same
// flags through net.ListenConfig's Control hook over golang.org/x/sys/unix,
// the idiomatic way to touch a stdlib-managed socket's low-level options
// before it binds.
package netif

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/poxide/dhcp/poxerr"
)

// Binding is the pair of sockets and the primary IPv4 address of one
// network device.
type Binding struct {
	IfName  string
	IfIndex int
	IPv4    net.IP

	// Server is bound to 0.0.0.0:67; it receives client broadcasts and is
	// the socket this co-server's replies are sent from.
	Server *net.UDPConn
	// Client is bound to 255.255.255.255:68 and receives broadcasts
	// addressed to clients, such as the authoritative server's OFFER.
	Client *net.UDPConn
}

const (
	serverPort = 67
	clientPort = 68
)

// Bind creates a Binding for the named interface. Binding fails with
// ErrConfig if the interface has no usable IPv4 address, ErrBind on any
// socket-level failure.
func Bind(ifName string) (*Binding, error) {
	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("%w: interface %q: %v", poxerr.ErrConfig, ifName, err)
	}
	ip, err := primaryIPv4(iface)
	if err != nil {
		return nil, fmt.Errorf("%w: interface %q: %v", poxerr.ErrConfig, ifName, err)
	}

	lc := listenConfig(ifName)

	server, err := listenUDP(lc, fmt.Sprintf("0.0.0.0:%d", serverPort))
	if err != nil {
		return nil, fmt.Errorf("%w: server socket on %q: %v", poxerr.ErrBind, ifName, err)
	}
	client, err := listenUDP(lc, fmt.Sprintf("255.255.255.255:%d", clientPort))
	if err != nil {
		server.Close()
		return nil, fmt.Errorf("%w: client socket on %q: %v", poxerr.ErrBind, ifName, err)
	}

	return &Binding{
		IfName:  ifName,
		IfIndex: iface.Index,
		IPv4:    ip,
		Server:  server,
		Client:  client,
	}, nil
}

// BindAll binds every interface named, or (if names is empty) every
// non-loopback interface that is up and carries an IPv4 address. It returns ErrConfig if
// no suitable interface exists.
func BindAll(names []string) ([]*Binding, error) {
	if len(names) == 0 {
		ifaces, err := net.Interfaces()
		if err != nil {
			return nil, fmt.Errorf("%w: enumerating interfaces: %v", poxerr.ErrConfig, err)
		}
		for _, iface := range ifaces {
			if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
				continue
			}
			if _, err := primaryIPv4(&iface); err != nil {
				continue
			}
			names = append(names, iface.Name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no interface with an IPv4 address to bind", poxerr.ErrConfig)
	}

	var bindings []*Binding
	for _, name := range names {
		b, err := Bind(name)
		if err != nil {
			for _, prior := range bindings {
				prior.Close()
			}
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}

// Close releases both of the binding's sockets.
func (b *Binding) Close() error {
	var err error
	if b.Server != nil {
		if cerr := b.Server.Close(); cerr != nil {
			err = cerr
		}
	}
	if b.Client != nil {
		if cerr := b.Client.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}

func primaryIPv4(iface *net.Interface) (net.IP, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("no IPv4 address assigned")
}

func listenConfig(ifName string) net.ListenConfig {
	return net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var setErr error
			ctrlErr := c.Control(func(fd uintptr) {
				setErr = applySockopts(int(fd), ifName)
			})
			if ctrlErr != nil {
				return ctrlErr
			}
			return setErr
		},
	}
}

func applySockopts(fd int, ifName string) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		return fmt.Errorf("SO_REUSEPORT: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
		return fmt.Errorf("SO_BROADCAST: %w", err)
	}
	if ifName != "" {
		if err := unix.SetsockoptString(fd, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, ifName); err != nil {
			return fmt.Errorf("SO_BINDTODEVICE(%s): %w", ifName, err)
		}
	}
	return nil
}

func listenUDP(lc net.ListenConfig, addr string) (*net.UDPConn, error) {
	pc, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		return nil, err
	}
	udpConn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("unexpected packet conn type %T", pc)
	}
	return udpConn, nil
}
