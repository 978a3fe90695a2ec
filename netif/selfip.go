package netif

import (
	"net"
	"os"
)

// SelfIPv4 resolves this host's own globally-routable IPv4 address. The
// DHCP state machine does not call it: its boot_server_ipv4 fallback is the
// receiving interface's Binding.IPv4. Adapted from the teacher's
// cmd/main.go publicIPv4: an operator-set PO_PUBLIC_IP environment variable
// takes priority (an unparsable value yields ""), then the first
// global-unicast IPv4 address found on any interface.
func SelfIPv4() string {
	if s, ok := os.LookupEnv("PO_PUBLIC_IP"); ok {
		if a := net.ParseIP(s).To4(); a != nil {
			return a.String()
		}
		return ""
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		v4 := ipNet.IP.To4()
		if v4 == nil || !v4.IsGlobalUnicast() {
			continue
		}
		return v4.String()
	}
	return ""
}
