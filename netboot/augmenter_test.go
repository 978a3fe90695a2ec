package netboot

import (
	"net"
	"testing"

	"github.com/go-logr/logr"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/iana"
)

func discoverFrom(t *testing.T, mac string, classID string) *dhcpv4.DHCPv4 {
	t.Helper()
	hw, err := net.ParseMAC(mac)
	if err != nil {
		t.Fatalf("ParseMAC: %v", err)
	}
	pkt, err := dhcpv4.NewDiscovery(hw)
	if err != nil {
		t.Fatalf("NewDiscovery: %v", err)
	}
	if classID != "" {
		pkt.UpdateOption(dhcpv4.OptClassIdentifier(classID))
	}
	return pkt
}

func TestGetClientTypeClassifiesHTTPAndPXE(t *testing.T) {
	if got := GetClientType("HTTPClient:Arch:00016:UNDI:003000"); got != HTTPClient {
		t.Fatalf("GetClientType = %q, want HTTPClient", got)
	}
	if got := GetClientType("PXEClient:Arch:00000:UNDI:002001"); got != PXEClient {
		t.Fatalf("GetClientType = %q, want PXEClient", got)
	}
	if got := GetClientType(""); got != PXEClient {
		t.Fatalf("GetClientType(empty) = %q, want PXEClient default", got)
	}
}

func TestAugmentMirrorsOpt60(t *testing.T) {
	request := discoverFrom(t, "aa:bb:cc:dd:ee:ff", "HTTPClient:Arch:00016:UNDI:003000")
	reply, err := dhcpv4.NewReplyFromRequest(request)
	if err != nil {
		t.Fatalf("NewReplyFromRequest: %v", err)
	}

	a := Augmenter{EnableOpt60Mirror: true, Log: logr.Discard()}
	a.Augment(reply, request)

	if got := reply.ClassIdentifier(); got != string(HTTPClient) {
		t.Fatalf("reply option 60 = %q, want %q", got, HTTPClient)
	}
}

func TestAugmentAddsRaspberryPiVendorOpts(t *testing.T) {
	request := discoverFrom(t, "b8:27:eb:11:22:33", "PXEClient:Arch:00000:UNDI:002001")
	reply, err := dhcpv4.NewReplyFromRequest(request)
	if err != nil {
		t.Fatalf("NewReplyFromRequest: %v", err)
	}

	a := Augmenter{EnableRPiOpts: true, Log: logr.Discard()}
	a.Augment(reply, request)

	raw := reply.GetOneOption(dhcpv4.OptionVendorSpecificInformation)
	if raw == nil {
		t.Fatal("expected option 43 to be set for a Raspberry Pi client")
	}
}

func TestAugmentSkipsRaspberryPiOptsWhenDisabled(t *testing.T) {
	request := discoverFrom(t, "b8:27:eb:11:22:33", "PXEClient:Arch:00000:UNDI:002001")
	reply, err := dhcpv4.NewReplyFromRequest(request)
	if err != nil {
		t.Fatalf("NewReplyFromRequest: %v", err)
	}

	a := Augmenter{EnableRPiOpts: false, Log: logr.Discard()}
	a.Augment(reply, request)

	if raw := reply.GetOneOption(dhcpv4.OptionVendorSpecificInformation); raw != nil {
		t.Fatal("option 43 must stay unset when the Raspberry Pi enrichment is disabled")
	}
}

func TestAugmentFillsArchFallbackWhenBootFileNameEmpty(t *testing.T) {
	request := discoverFrom(t, "b8:27:eb:11:22:33", "PXEClient:Arch:00000:UNDI:002001")
	reply, err := dhcpv4.NewReplyFromRequest(request)
	if err != nil {
		t.Fatalf("NewReplyFromRequest: %v", err)
	}

	a := Augmenter{EnableArchFallback: true, Log: logr.Discard()}
	a.Augment(reply, request)

	if reply.BootFileName != ArchToBootFile[iana.Arch(41)] {
		t.Fatalf("BootFileName = %q, want the rpi entry %q", reply.BootFileName, ArchToBootFile[iana.Arch(41)])
	}
}

func TestAugmentArchFallbackNeverOverridesAnExistingBootFileName(t *testing.T) {
	request := discoverFrom(t, "b8:27:eb:11:22:33", "PXEClient:Arch:00000:UNDI:002001")
	reply, err := dhcpv4.NewReplyFromRequest(request)
	if err != nil {
		t.Fatalf("NewReplyFromRequest: %v", err)
	}
	reply.BootFileName = "from-config.efi"

	a := Augmenter{EnableArchFallback: true, Log: logr.Discard()}
	a.Augment(reply, request)

	if reply.BootFileName != "from-config.efi" {
		t.Fatalf("BootFileName = %q, want the config-set value left untouched", reply.BootFileName)
	}
}

func TestGetArchPrefersRaspberryPiOverOption93(t *testing.T) {
	hw, _ := net.ParseMAC("dc:a6:32:00:00:01")
	pkt, err := dhcpv4.NewDiscovery(hw)
	if err != nil {
		t.Fatalf("NewDiscovery: %v", err)
	}
	pkt.UpdateOption(dhcpv4.OptClientArch(iana.EFI_X86_64))
	if got := GetArch(pkt); got != 41 {
		t.Fatalf("GetArch = %v, want 41 (rpi)", got)
	}
}
