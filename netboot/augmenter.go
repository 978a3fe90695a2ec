// Package netboot supplements the DHCP State Machine's OFFER/ACK replies
// with PXE netboot enrichments: Raspberry Pi option 43 suboptions and
// PXE/HTTP client discrimination mirrored back on option 60.
//
// Grounded on the teacher's netboot/netboot.go (Conf.SetNetworkBootOpts,
// setOpt43, SetOpt60) and rpi/rpi.go (IsRPI, AddVendorOpts), stripped of the
// otel-init-go traceparent suboption and the backend-resolved bootfile/
// next-server decision tree — those are both superseded here by the Config
// Matcher's ConfigEntry, which the DHCP State Machine already applies before
// handing the reply to this Augmenter.
package netboot

import (
	"github.com/go-logr/logr"
	"github.com/insomniacslk/dhcp/dhcpv4"
)

// ClientType is DHCP option 60's client-type prefix.
type ClientType string

const (
	PXEClient  ClientType = "PXEClient"
	HTTPClient ClientType = "HTTPClient"
)

// GetClientType classifies a raw option 60 value.
func GetClientType(opt60 string) ClientType {
	if len(opt60) >= len(HTTPClient) && opt60[:len(HTTPClient)] == string(HTTPClient) {
		return HTTPClient
	}
	return PXEClient
}

// Augmenter implements dhcpstate.Augmenter: it adds the Raspberry Pi and
// option-60 enrichments on top of whatever BootfileName/siaddr the config
// matcher already set on reply, plus the architecture boot-file fallback.
// Each enrichment is individually feature-flagged so an operator can
// disable any one without losing the others.
type Augmenter struct {
	EnableRPiOpts     bool
	EnableOpt60Mirror bool
	// EnableArchFallback fills BootFileName from ArchToBootFile, keyed by
	// GetArch(request), whenever the config matcher left reply.BootFileName
	// empty. It never overrides a BootFileName the matcher already set.
	EnableArchFallback bool
	Log                logr.Logger
}

// Augment mirrors option 60 back to the client (distinguishing PXEClient
// from HTTPClient), falls back to an architecture-appropriate boot file
// when the config matcher named none, and, for a recognized Raspberry Pi
// MAC prefix, appends the suboptions Raspberry Pi UEFI firmware requires
// inside option 43.
func (a Augmenter) Augment(reply, request *dhcpv4.DHCPv4) {
	if a.EnableOpt60Mirror && request.Options.Has(dhcpv4.OptionClassIdentifier) {
		ct := GetClientType(request.ClassIdentifier())
		reply.UpdateOption(dhcpv4.OptClassIdentifier(string(ct)))
	}

	if a.EnableArchFallback && reply.BootFileName == "" {
		if bf, ok := ArchToBootFile[GetArch(request)]; ok {
			reply.BootFileName = bf
			reply.UpdateOption(dhcpv4.OptGeneric(dhcpv4.OptionBootfileName, []byte(bf)))
		}
	}

	if !a.EnableRPiOpts || !isRPI(request.ClientHWAddr) {
		return
	}
	a.Log.V(1).Info("raspberry pi client, adding vendor options", "mac", request.ClientHWAddr.String())

	opt43 := dhcpv4.Options{
		6: []byte{8}, // PXE Boot Server Discovery Control: skip discovery, boot from filename directly
	}
	addVendorOpts(opt43)
	reply.UpdateOption(dhcpv4.OptGeneric(dhcpv4.OptionVendorSpecificInformation, opt43.ToBytes()))
}
