// Package wire adapts the DHCPv4 wire format to the rest of the
// co-server. Decoding and encoding is delegated to
// github.com/insomniacslk/dhcp/dhcpv4, which already implements RFC
// 2131/2132 and preserves unknown option codes opaquely; this package
// only adds the truncation and error-taxonomy behavior this spec expects.
package wire

import (
	"fmt"

	"github.com/insomniacslk/dhcp/dhcpv4"

	"github.com/poxide/dhcp/poxerr"
)

// MaxDatagram is the inbound buffer size per RFC 1122 §3.3.3: hosts must be
// able to receive a 576-byte IP datagram without fragmentation.
const MaxDatagram = 576

// Decode parses a received UDP datagram into a DHCPv4 message. Input longer
// than MaxDatagram is truncated before decoding, matching the wire
// assumptions the rest of the co-server makes.
func Decode(buf []byte) (*dhcpv4.DHCPv4, error) {
	if len(buf) > MaxDatagram {
		buf = buf[:MaxDatagram]
	}
	m, err := dhcpv4.FromBytes(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", poxerr.ErrParse, err)
	}
	return m, nil
}

// Encode serializes a DHCPv4 message back to wire bytes.
func Encode(m *dhcpv4.DHCPv4) []byte {
	return m.ToBytes()
}

// Clone returns a deep copy of m by round-tripping it through the wire
// codec. Used anywhere a session needs to retain its own copy of a message
// independent of the caller's buffer, and doubles as the implementation of
// the "decode(encode(m)) == m" round-trip property this spec requires of
// the codec.
func Clone(m *dhcpv4.DHCPv4) (*dhcpv4.DHCPv4, error) {
	return Decode(Encode(m))
}
