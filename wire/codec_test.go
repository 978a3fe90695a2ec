package wire

import (
	"errors"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/insomniacslk/dhcp/dhcpv4"

	"github.com/poxide/dhcp/poxerr"
)

func testMessage(t *testing.T) *dhcpv4.DHCPv4 {
	t.Helper()
	hw, err := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("ParseMAC: %v", err)
	}
	m, err := dhcpv4.NewDiscovery(hw)
	if err != nil {
		t.Fatalf("NewDiscovery: %v", err)
	}
	m.TransactionID = dhcpv4.TransactionID{1, 2, 3, 4}
	m.ServerHostName = "boot-server"
	return m
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	want := testMessage(t)

	got, err := Decode(Encode(want))
	if err != nil {
		t.Fatalf("Decode(Encode(m)): %v", err)
	}
	if diff := cmp.Diff(want.Summary(), got.Summary()); diff != "" {
		t.Fatal(diff)
	}
}

func TestClonePreservesMessage(t *testing.T) {
	want := testMessage(t)

	got, err := Clone(want)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if diff := cmp.Diff(want.Summary(), got.Summary()); diff != "" {
		t.Fatal(diff)
	}
	if got == want {
		t.Fatal("Clone returned the same pointer, want an independent copy")
	}
}

func TestDecodeTruncatesOversizedDatagram(t *testing.T) {
	want := testMessage(t)
	buf := Encode(want)
	padded := append(buf, make([]byte, MaxDatagram)...)

	got, err := Decode(padded)
	if err != nil {
		t.Fatalf("Decode(oversized): %v", err)
	}
	if diff := cmp.Diff(want.Summary(), got.Summary()); diff != "" {
		t.Fatal(diff)
	}
}

func TestDecodeMalformedReturnsErrParse(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x02, 0x03})
	if err == nil {
		t.Fatal("Decode(malformed) succeeded, want ErrParse")
	}
	if !errors.Is(err, poxerr.ErrParse) {
		t.Fatalf("Decode(malformed) error = %v, want wrapping poxerr.ErrParse", err)
	}
}

func TestDecodeEmptyReturnsErrParse(t *testing.T) {
	_, err := Decode(nil)
	if !errors.Is(err, poxerr.ErrParse) {
		t.Fatalf("Decode(nil) error = %v, want wrapping poxerr.ErrParse", err)
	}
}
