package match

import (
	"net"
	"testing"

	"github.com/insomniacslk/dhcp/dhcpv4"
)

func strp(s string) *string { return &s }

func testDiscover(t *testing.T, mac string) *dhcpv4.DHCPv4 {
	t.Helper()
	hw, err := net.ParseMAC(mac)
	if err != nil {
		t.Fatalf("ParseMAC: %v", err)
	}
	pkt, err := dhcpv4.NewDiscovery(hw)
	if err != nil {
		t.Fatalf("NewDiscovery: %v", err)
	}
	return pkt
}

func TestMatcherLiteralRule(t *testing.T) {
	cfg := Config{
		Rules: []MatchRule{
			{
				Name:      "pi-fleet",
				MatchType: "all",
				Selector:  Selector{"ClientMacAddress": "AA:BB:CC:DD:EE:FF"},
				Conf:      ConfigEntry{BootFile: strp("pi-boot.bin")},
			},
		},
		Default: ConfigEntry{BootFile: strp("default.bin")},
	}
	m, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	pkt := testDiscover(t, "aa:bb:cc:dd:ee:ff")
	entry, err := Match(m, pkt)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if entry.BootFile == nil || *entry.BootFile != "pi-boot.bin" {
		t.Fatalf("BootFile = %v, want pi-boot.bin", entry.BootFile)
	}
	if entry.BootServerIPv4 != nil {
		t.Fatalf("BootServerIPv4 = %v, want nil (no fallback configured)", entry.BootServerIPv4)
	}
}

func TestMatcherFallsBackToDefault(t *testing.T) {
	cfg := Config{
		Default: ConfigEntry{BootFile: strp("default.bin")},
	}
	m, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	pkt := testDiscover(t, "11:22:33:44:55:66")
	entry, err := Match(m, pkt)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if entry.BootFile == nil || *entry.BootFile != "default.bin" {
		t.Fatalf("BootFile = %v, want default.bin", entry.BootFile)
	}
}

func TestMatcherNoRuleNoDefaultIsMatchMiss(t *testing.T) {
	m, err := Load(Config{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pkt := testDiscover(t, "11:22:33:44:55:66")
	if _, err := Match(m, pkt); err == nil {
		t.Fatal("Match succeeded with no rules and no default, want ErrMatchMiss")
	}
}

func TestMatcherRegexRule(t *testing.T) {
	cfg := Config{
		Rules: []MatchRule{
			{
				Name:      "vendor-prefix",
				MatchType: "all",
				Regex:     true,
				Selector:  Selector{"ClientMacAddress": "^AA:BB:.*"},
				Conf:      ConfigEntry{BootFile: strp("vendor.bin")},
			},
		},
	}
	m, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pkt := testDiscover(t, "aa:bb:00:00:00:01")
	entry, err := Match(m, pkt)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if entry.BootFile == nil || *entry.BootFile != "vendor.bin" {
		t.Fatalf("BootFile = %v, want vendor.bin", entry.BootFile)
	}
}

func TestMatcherInvalidRegexRejectedAtLoad(t *testing.T) {
	cfg := Config{
		Rules: []MatchRule{
			{Name: "bad", Regex: true, Selector: Selector{"ClientMacAddress": "("}},
		},
	}
	if _, err := Load(cfg); err == nil {
		t.Fatal("Load succeeded with invalid regex, want ConfigError")
	}
}

func TestMatcherFirstDeclaredRuleWins(t *testing.T) {
	cfg := Config{
		Rules: []MatchRule{
			{
				Name:     "first",
				Selector: Selector{"ClientMacAddress": "AA:BB:CC:DD:EE:FF"},
				Conf:     ConfigEntry{BootFile: strp("first.bin")},
			},
			{
				Name:     "second",
				Selector: Selector{"ClientMacAddress": "AA:BB:CC:DD:EE:FF"},
				Conf:     ConfigEntry{BootFile: strp("second.bin")},
			},
		},
	}
	m, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pkt := testDiscover(t, "aa:bb:cc:dd:ee:ff")
	entry, err := Match(m, pkt)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if entry.BootFile == nil || *entry.BootFile != "first.bin" {
		t.Fatalf("BootFile = %v, want first.bin (declaration order)", entry.BootFile)
	}
}
