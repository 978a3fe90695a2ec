package netboot

import (
	"strings"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/iana"
)

// ArchToBootFile maps a client's PXE architecture (option 93) to the iPXE
// binary this server hands out for it.
var ArchToBootFile = map[iana.Arch]string{
	iana.INTEL_X86PC:       "undionly.kpxe",
	iana.NEC_PC98:          "undionly.kpxe",
	iana.EFI_ITANIUM:       "undionly.kpxe",
	iana.DEC_ALPHA:         "undionly.kpxe",
	iana.ARC_X86:           "undionly.kpxe",
	iana.INTEL_LEAN_CLIENT: "undionly.kpxe",
	iana.EFI_IA32:          "ipxe.efi",
	iana.EFI_X86_64:        "ipxe.efi",
	iana.EFI_XSCALE:        "ipxe.efi",
	iana.EFI_BC:            "ipxe.efi",
	iana.EFI_ARM32:         "snp.efi",
	iana.EFI_ARM64:         "snp.efi",
	iana.EFI_X86_HTTP:      "ipxe.efi",
	iana.EFI_X86_64_HTTP:   "ipxe.efi",
	iana.EFI_ARM32_HTTP:    "snp.efi",
	iana.EFI_ARM64_HTTP:    "snp.efi",
	iana.Arch(41):          "snp.efi", // rpiboot
}

// unknownArch is returned when option 93 is missing or carries only
// architectures this table has no binary for.
const unknownArch = iana.Arch(255)

// GetArch returns the client's PXE architecture, pulled from option 93,
// special-cased for Raspberry Pi boards that never send a usable option 93.
func GetArch(pkt *dhcpv4.DHCPv4) iana.Arch {
	if isRPI(pkt.ClientHWAddr) {
		return iana.Arch(41)
	}
	fwt := pkt.ClientArch()
	if len(fwt) == 0 {
		return unknownArch
	}
	for _, elem := range fwt {
		if !strings.Contains(elem.String(), "unknown") {
			return elem
		}
	}
	return unknownArch
}
