// Package match turns an inbound DHCPv4 message into a matchable document
// and evaluates configured rules against it to select a ConfigEntry.
//
// The document-encoding shape is grounded on the teacher's otel/otel.go
// Encoder pattern (one small function per header/option, composed by a
// driver) and data/data.go's struct-to-map mirroring, generalized here from
// "encode to opentelemetry attributes" to "encode to a map[string]any a
// config rule's selector can be evaluated against".
package match

import (
	"encoding/hex"
	"net"
	"strconv"
	"strings"

	"github.com/insomniacslk/dhcp/dhcpv4"
)

// BuildDocument renders pkt's header fields and options into a document a
// MatchRule's selector can be evaluated against. Header fields are
// top-level; options are nested under "opts" keyed by their DHCP option
// name (see fields.go's fieldAliases).
func BuildDocument(pkt *dhcpv4.DHCPv4) map[string]any {
	doc := map[string]any{
		"op":      strconv.Itoa(int(pkt.OpCode)),
		"htype":   strconv.Itoa(int(pkt.HWType)),
		"xid":     pkt.TransactionID.String(),
		"chaddr":  formatMAC(pkt.ClientHWAddr),
		"ciaddr":  formatIP(pkt.ClientIPAddr),
		"yiaddr":  formatIP(pkt.YourIPAddr),
		"siaddr":  formatIP(pkt.ServerIPAddr),
		"giaddr":  formatIP(pkt.GatewayIPAddr),
		"file":    pkt.BootFileName,
		"sname":   pkt.ServerHostName,
	}

	opts := map[string]any{}
	if pkt.MessageType() != dhcpv4.MessageTypeNone {
		opts["MessageType"] = pkt.MessageType().String()
	}
	if ci := pkt.ClassIdentifier(); ci != "" {
		opts["ClassIdentifier"] = ci
	}
	if sm := pkt.SubnetMask(); sm != nil {
		opts["SubnetMask"] = formatIP(net.IP(sm))
	}
	if raw := pkt.GetOneOption(dhcpv4.OptionBootfileName); raw != nil {
		opts["BootfileName"] = string(raw)
	}
	if sid := pkt.ServerIdentifier(); sid != nil {
		opts["ServerIdentifier"] = formatIP(sid)
	}
	if lt := pkt.IPAddressLeaseTime(0); lt != 0 {
		opts["AddressLeaseTime"] = strconv.FormatFloat(lt.Seconds(), 'f', 0, 64)
	}
	if prl := pkt.ParameterRequestList(); len(prl) > 0 {
		codes := make([]string, 0, len(prl))
		for _, c := range prl {
			codes = append(codes, strconv.Itoa(int(c)))
		}
		opts["ParameterRequestList"] = strings.Join(codes, ",")
	}
	if raw := pkt.GetOneOption(dhcpv4.OptionTFTPServerAddress); len(raw) >= net.IPv4len {
		opts["TFTPServerAddress"] = formatIP(net.IP(raw[:net.IPv4len]))
	}
	if raw := pkt.GetOneOption(dhcpv4.OptionVendorSpecificInformation); raw != nil {
		opts["VendorSpecificInformation"] = hex.EncodeToString(raw)
	}
	doc["opts"] = opts
	return doc
}

func formatMAC(hw net.HardwareAddr) string {
	if len(hw) == 0 {
		return ""
	}
	parts := make([]string, len(hw))
	for i, b := range hw {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}
	return strings.Join(parts, ":")
}

func formatIP(ip net.IP) string {
	if len(ip) == 0 {
		return ""
	}
	return ip.String()
}
