// Package dhcpstate implements the per-message DHCP state machine: the
// admission filter and the DISCOVER/OFFER/REQUEST/DECLINE/ACK handling
// that correlates a client's session across messages, augments the
// authoritative server's OFFER with netboot information, and answers a
// tracked REQUEST with an ACK of its own carrying the same information.
//
// Generalized from the teacher's handler/proxy.Handler.Handle state
// switch ("switch on pkt.MessageType(), build a reply via
// dhcpv4.Modifiers, write with conn.WriteTo") onto an XID-keyed session
// table and config-matcher lookup instead of a per-MAC backend record.
package dhcpstate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-logr/logr"
	"github.com/insomniacslk/dhcp/dhcpv4"

	"github.com/poxide/dhcp/match"
	"github.com/poxide/dhcp/poxerr"
	"github.com/poxide/dhcp/session"
	"github.com/poxide/dhcp/wire"
)

const defaultLeaseSeconds = 60

// Sender abstracts the receiving interface's server socket so the
// machine never needs to know about netif.Binding directly; dhcpstate
// only requires "send this reply back out the socket it arrived on".
type Sender interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// MatcherSource returns the currently live Matcher, indirected so a
// config hot-reload can swap matchers without the machine holding a stale
// pointer.
type MatcherSource func() *match.Matcher

// Augmenter supplements an OFFER/ACK reply with vendor-specific netboot
// options (Raspberry Pi option 43 suboptions, PXE/HTTP client option 60
// discrimination). Left nil, no supplemental augmentation is applied.
type Augmenter interface {
	Augment(reply *dhcpv4.DHCPv4, request *dhcpv4.DHCPv4)
}

// Recorder receives machine-observable events for the metrics registry.
// All methods must be safe to call with no subscriber attached.
type Recorder interface {
	ObserveMessage(msgType string)
	ObserveReply(msgType string)
	ObserveMatch(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveMessage(string) {}
func (noopRecorder) ObserveReply(string)   {}
func (noopRecorder) ObserveMatch(string)   {}

// Machine is the DHCP state machine. One Machine serves every bound
// interface; interface-specific state is passed into Handle per call.
type Machine struct {
	Table     *session.Table
	Matcher   MatcherSource
	Augmenter Augmenter
	Recorder  Recorder
	Log       logr.Logger
}

// New constructs a Machine. A nil recorder is replaced with a no-op.
func New(table *session.Table, matcher MatcherSource, opts ...Option) *Machine {
	m := &Machine{
		Table:    table,
		Matcher:  matcher,
		Recorder: noopRecorder{},
		Log:      logr.Discard(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.Recorder == nil {
		m.Recorder = noopRecorder{}
	}
	return m
}

// Option configures a Machine at construction time.
type Option func(*Machine)

// WithAugmenter attaches a netboot option augmenter.
func WithAugmenter(a Augmenter) Option {
	return func(m *Machine) { m.Augmenter = a }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Machine) { m.Recorder = r }
}

// WithLogger attaches a logger.
func WithLogger(l logr.Logger) Option {
	return func(m *Machine) { m.Log = l }
}

// replyAddr is always 255.255.255.255:68 — the state machine never
// unicasts to the client's claimed address and never fans a reply out
// across interfaces.
var replyAddr = &net.UDPAddr{IP: net.IPv4bcast, Port: 68}

// Handle admits, processes, and (if a reply is produced) sends pkt's
// response back out sender, which MUST be the server socket of the
// interface pkt arrived on. selfIPv4 is that interface's own IPv4
// address, used as ServerIdentifier/siaddr and as the TFTPServerAddress
// fallback when no ConfigEntry names one.
func (m *Machine) Handle(ctx context.Context, sender Sender, selfIPv4 net.IP, pkt *dhcpv4.DHCPv4) error {
	if pkt == nil {
		return nil
	}
	m.Recorder.ObserveMessage(pkt.MessageType().String())

	if !admitted(pkt) {
		return nil
	}

	var (
		reply *dhcpv4.DHCPv4
		err   error
	)
	switch pkt.MessageType() {
	case dhcpv4.MessageTypeDiscover:
		err = m.handleDiscover(ctx, pkt)
	case dhcpv4.MessageTypeOffer:
		reply, err = m.handleOffer(ctx, pkt, selfIPv4)
	case dhcpv4.MessageTypeRequest:
		reply, err = m.handleRequest(ctx, pkt, selfIPv4)
	case dhcpv4.MessageTypeDecline:
		err = m.handleTerminal(ctx, pkt, true)
	case dhcpv4.MessageTypeAck:
		err = m.handleTerminal(ctx, pkt, false)
	default:
		return nil
	}
	if err != nil {
		logDropped(m.Log, pkt.MessageType().String(), err)
		return nil
	}
	if reply == nil {
		return nil
	}

	if _, err := sender.WriteTo(wire.Encode(reply), replyAddr); err != nil {
		return fmt.Errorf("%w: sending %s: %v", poxerr.ErrIO, reply.MessageType(), err)
	}
	m.Recorder.ObserveReply(reply.MessageType().String())
	return nil
}

// logDropped logs a handler error at the verbosity its sentinel calls for:
// a match miss is routine and expected (info), a client DECLINE is worth a
// human's attention without being fatal (warn, via Error per this logr
// binding's convention), and everything else is a lower-level detail (debug).
func logDropped(log logr.Logger, msgType string, err error) {
	switch {
	case errors.Is(err, poxerr.ErrMatchMiss):
		log.Info("dropping message", "type", msgType, "error", err.Error())
	case errors.Is(err, poxerr.ErrClientDecline):
		log.Error(err, "client declined", "type", msgType)
	default:
		log.V(2).Info("dropping message", "type", msgType, "error", err.Error())
	}
}

// admitted applies the admission filter: only an OFFER without a
// BootfileName option, a REQUEST, an ACK, or a DISCOVER proceed past this
// point. Everything else (DECLINE is handled explicitly above, so it must
// also be admitted) is dropped before any state transition.
func admitted(pkt *dhcpv4.DHCPv4) bool {
	switch pkt.MessageType() {
	case dhcpv4.MessageTypeDiscover, dhcpv4.MessageTypeRequest, dhcpv4.MessageTypeAck, dhcpv4.MessageTypeDecline:
		return true
	case dhcpv4.MessageTypeOffer:
		return pkt.GetOneOption(dhcpv4.OptionBootfileName) == nil
	default:
		return false
	}
}

func (m *Machine) handleDiscover(ctx context.Context, pkt *dhcpv4.DHCPv4) error {
	if !pkt.ParameterRequestList().Has(dhcpv4.OptionBootfileName) {
		return fmt.Errorf("%w: discover without BootfileName in PRL", poxerr.ErrMatchMiss)
	}
	discoverCopy, err := wire.Clone(pkt)
	if err != nil {
		return err
	}

	s := session.New()
	s.DiscoverMessage = discoverCopy
	return m.Table.Insert(ctx, pkt.TransactionID, s)
}

func (m *Machine) handleOffer(ctx context.Context, pkt *dhcpv4.DHCPv4, selfIPv4 net.IP) (*dhcpv4.DHCPv4, error) {
	xid := pkt.TransactionID
	var stored *dhcpv4.DHCPv4

	err := m.Table.Mutate(ctx, func(sessions map[dhcpv4.TransactionID]*session.Session) error {
		s, ok := sessions[xid]
		if !ok {
			return poxerr.ErrMatchMiss
		}
		s.ClientIP = pkt.YourIPAddr
		s.SubnetMask = pkt.SubnetMask()
		s.GatewayIP = pkt.GatewayIPAddr
		s.CIAddr = pkt.ClientIPAddr
		if lt := pkt.IPAddressLeaseTime(0); lt != 0 {
			secs := uint32(lt.Seconds())
			s.LeaseTime = &secs
		}
		stored = s.DiscoverMessage
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: session has no stored discover", poxerr.ErrMatchMiss)
	}

	entry, err := m.match(stored)
	if err != nil {
		return nil, err
	}

	reply, err := wire.Clone(pkt)
	if err != nil {
		return nil, err
	}
	m.augmentBootInfo(reply, stored, entry, selfIPv4)
	return reply, nil
}

func (m *Machine) handleRequest(ctx context.Context, pkt *dhcpv4.DHCPv4, selfIPv4 net.IP) (*dhcpv4.DHCPv4, error) {
	xid := pkt.TransactionID
	var s *session.Session

	err := m.Table.View(ctx, func(sessions map[dhcpv4.TransactionID]*session.Session) error {
		found, ok := sessions[xid]
		if !ok {
			return poxerr.ErrMatchMiss
		}
		s = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	ack := buildAck(pkt, s)

	entry, err := m.match(pkt)
	if err != nil {
		return nil, err
	}
	m.augmentBootInfo(ack, pkt, entry, selfIPv4)
	return ack, nil
}

func buildAck(pkt *dhcpv4.DHCPv4, s *session.Session) *dhcpv4.DHCPv4 {
	ack := &dhcpv4.DHCPv4{
		OpCode:         dhcpv4.OpcodeBootReply,
		HWType:         pkt.HWType,
		ClientHWAddr:   pkt.ClientHWAddr,
		TransactionID:  pkt.TransactionID,
		YourIPAddr:     orZero(s.ClientIP),
		GatewayIPAddr:  orZero(s.GatewayIP),
		ClientIPAddr:   orZero(s.CIAddr),
		Flags:          dhcpv4.FlagBroadcast,
		ServerHostName: pkt.ServerHostName,
	}

	mask := s.SubnetMask
	if mask == nil {
		mask = net.CIDRMask(24, 32)
	}
	lease := uint32(defaultLeaseSeconds)
	if s.LeaseTime != nil {
		lease = *s.LeaseTime
	}

	ack.UpdateOption(dhcpv4.OptMessageType(dhcpv4.MessageTypeAck))
	ack.UpdateOption(dhcpv4.OptSubnetMask(mask))
	ack.UpdateOption(dhcpv4.OptIPAddressLeaseTime(time.Duration(lease) * time.Second))
	return ack
}

func orZero(ip net.IP) net.IP {
	if ip == nil {
		return net.IPv4zero
	}
	return ip
}

func (m *Machine) handleTerminal(ctx context.Context, pkt *dhcpv4.DHCPv4, isDecline bool) error {
	xid := pkt.TransactionID
	err := m.Table.Mutate(ctx, func(sessions map[dhcpv4.TransactionID]*session.Session) error {
		delete(sessions, xid)
		return nil
	})
	if err != nil {
		return err
	}
	if isDecline {
		return fmt.Errorf("%w: xid %s", poxerr.ErrClientDecline, pkt.TransactionID.String())
	}
	return nil
}

func (m *Machine) match(pkt *dhcpv4.DHCPv4) (*match.ConfigEntry, error) {
	matcher := m.Matcher()
	if matcher == nil {
		m.Recorder.ObserveMatch("miss")
		return nil, poxerr.ErrMatchMiss
	}
	entry, err := match.Match(matcher, pkt)
	if err != nil {
		m.Recorder.ObserveMatch("miss")
		return nil, err
	}
	m.Recorder.ObserveMatch("hit")
	return entry, nil
}

// augmentBootInfo sets siaddr, ServerIdentifier and the TFTPServerAddress
// option to entry's boot server (selfIPv4 when entry names none or it does
// not parse) and inserts the BootfileName from entry. request is the original
// client message (used by the Augmenter to discriminate PXE/HTTP clients
// and Raspberry Pi vendor options); it is never itself mutated.
func (m *Machine) augmentBootInfo(reply, request *dhcpv4.DHCPv4, entry *match.ConfigEntry, selfIPv4 net.IP) {
	serverIP := selfIPv4
	if entry.BootServerIPv4 != nil {
		if parsed := net.ParseIP(*entry.BootServerIPv4); parsed != nil {
			serverIP = parsed
		}
	}

	reply.ServerIPAddr = serverIP
	reply.UpdateOption(dhcpv4.OptServerIdentifier(serverIP))

	if entry.BootFile != nil {
		reply.BootFileName = *entry.BootFile
		reply.UpdateOption(dhcpv4.OptGeneric(dhcpv4.OptionBootfileName, []byte(*entry.BootFile)))
	}
	reply.UpdateOption(dhcpv4.Option{Code: dhcpv4.OptionTFTPServerAddress, Value: dhcpv4.IPs{serverIP}})

	if m.Augmenter != nil {
		m.Augmenter.Augment(reply, request)
	}
}
