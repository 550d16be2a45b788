package codec

import (
	"net"
	"net/netip"
	"time"

	"github.com/btcsuite/btcd/wire"
)

// Message is one decoded wire message: the network magic it was framed with and
// its payload variant.
type Message struct {
	Net     wire.BitcoinNet
	Payload Payload
}

// Payload is the closed set of message variants the handshake understands.
// New message kinds are added as new variants.
type Payload interface {
	Command() string
	isPayload()
}

// Version is the version handshake payload.
type Version struct {
	ProtocolVersion int32
	Services        uint64
	Timestamp       int64
	AddrYou         netip.AddrPort
	AddrMe          netip.AddrPort
	Nonce           uint64
	UserAgent       string
	StartHeight     int32
	Relay           bool
}

// Verack acknowledges a received Version. It has no payload.
type Verack struct{}

// Other carries any command the handshake does not interpret.
type Other struct {
	Name    string
	Payload []byte
}

func (Version) Command() string { return wire.CmdVersion }
func (Verack) Command() string  { return wire.CmdVerAck }
func (o Other) Command() string { return o.Name }

func (Version) isPayload() {}
func (Verack) isPayload()  {}
func (Other) isPayload()   {}

// Command returns the command tag of the payload, or "" for an empty message.
func (m Message) Command() string {
	if m.Payload == nil {
		return ""
	}
	return m.Payload.Command()
}

// NewVersion builds the opening Version for an outbound handshake with remote.
// The local address is left unspecified and the nonce is supplied by the caller.
func NewVersion(network wire.BitcoinNet, remote netip.AddrPort, userAgent string, now time.Time, nonce uint64) Message {
	return Message{
		Net: network,
		Payload: Version{
			ProtocolVersion: int32(wire.ProtocolVersion),
			Timestamp:       now.Unix(),
			AddrYou:         remote,
			AddrMe:          netip.AddrPortFrom(netip.IPv4Unspecified(), 0),
			Nonce:           nonce,
			UserAgent:       userAgent,
			StartHeight:     0,
			Relay:           true,
		},
	}
}

// NewVerack builds the reply to a received Version.
func NewVerack(network wire.BitcoinNet) Message {
	return Message{Net: network, Payload: Verack{}}
}

func (v Version) toWire() *wire.MsgVersion {
	return &wire.MsgVersion{
		ProtocolVersion: v.ProtocolVersion,
		Services:        wire.ServiceFlag(v.Services),
		Timestamp:       time.Unix(v.Timestamp, 0),
		AddrYou:         *toNetAddress(v.AddrYou),
		AddrMe:          *toNetAddress(v.AddrMe),
		Nonce:           v.Nonce,
		UserAgent:       v.UserAgent,
		LastBlock:       v.StartHeight,
		DisableRelayTx:  !v.Relay,
	}
}

func versionFromWire(m *wire.MsgVersion) Version {
	return Version{
		ProtocolVersion: m.ProtocolVersion,
		Services:        uint64(m.Services),
		Timestamp:       m.Timestamp.Unix(),
		AddrYou:         fromNetAddress(&m.AddrYou),
		AddrMe:          fromNetAddress(&m.AddrMe),
		Nonce:           m.Nonce,
		UserAgent:       m.UserAgent,
		StartHeight:     m.LastBlock,
		Relay:           !m.DisableRelayTx,
	}
}

func toNetAddress(ap netip.AddrPort) *wire.NetAddress {
	var ip net.IP
	if ap.Addr().IsValid() {
		ip = net.IP(ap.Addr().AsSlice())
	}
	return wire.NewNetAddressIPPort(ip, ap.Port(), 0)
}

func fromNetAddress(na *wire.NetAddress) netip.AddrPort {
	addr, ok := netip.AddrFromSlice(na.IP)
	if !ok {
		return netip.AddrPort{}
	}
	return netip.AddrPortFrom(addr.Unmap(), na.Port)
}
