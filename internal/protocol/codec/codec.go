package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var (
	ErrInsufficientData = errors.New("codec: insufficient data")
	ErrWrongNetwork     = errors.New("codec: message from other network")
	ErrPayloadTooLarge  = errors.New("codec: payload too large")
	ErrChecksum         = errors.New("codec: payload checksum mismatch")
	ErrMalformed        = errors.New("codec: malformed message")
	ErrUnknownPayload   = errors.New("codec: unknown payload variant")
	ErrUnknownNetwork   = errors.New("codec: unknown network")
	ErrCommandTooLong   = errors.New("codec: command too long")
)

const checksumLen = 4

var networks = map[string]wire.BitcoinNet{
	"mainnet":  wire.MainNet,
	"testnet3": wire.TestNet3,
	"regtest":  wire.TestNet,
	"signet":   wire.SigNet,
	"simnet":   wire.SimNet,
}

// ParseNetwork maps a network name to its magic. Empty selects mainnet.
func ParseNetwork(name string) (wire.BitcoinNet, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return wire.MainNet, nil
	}
	n, ok := networks[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
	return n, nil
}

// Encode serializes one message, header included.
func Encode(msg Message, pver uint32) ([]byte, error) {
	var buf bytes.Buffer
	switch p := msg.Payload.(type) {
	case Version:
		if _, err := wire.WriteMessageN(&buf, p.toWire(), pver, msg.Net); err != nil {
			return nil, err
		}
	case Verack:
		if _, err := wire.WriteMessageN(&buf, wire.NewMsgVerAck(), pver, msg.Net); err != nil {
			return nil, err
		}
	case Other:
		if err := writeRaw(&buf, msg.Net, p.Name, p.Payload); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownPayload, msg.Payload)
	}
	return buf.Bytes(), nil
}

// TryDecode parses one message from the front of buf. It returns the message and
// the number of bytes it occupied, or ErrInsufficientData when buf does not yet
// hold a complete message. buf is never retained.
func TryDecode(buf []byte, network wire.BitcoinNet, pver uint32) (Message, int, error) {
	if len(buf) < wire.MessageHeaderSize {
		return Message{}, 0, ErrInsufficientData
	}
	h := parseHeader(buf[:wire.MessageHeaderSize])
	if h.magic != network {
		return Message{}, 0, fmt.Errorf("%w: %v", ErrWrongNetwork, h.magic)
	}
	if h.length > wire.MaxMessagePayload {
		return Message{}, 0, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, h.length)
	}
	total := wire.MessageHeaderSize + int(h.length)
	if len(buf) < total {
		return Message{}, 0, ErrInsufficientData
	}

	switch h.command {
	case wire.CmdVersion, wire.CmdVerAck:
		n, m, _, err := wire.ReadMessageWithEncodingN(bytes.NewReader(buf[:total]), pver, network, wire.BaseEncoding)
		if err != nil {
			return Message{}, 0, fmt.Errorf("%w: %s: %v", ErrMalformed, h.command, err)
		}
		switch wm := m.(type) {
		case *wire.MsgVersion:
			return Message{Net: network, Payload: versionFromWire(wm)}, n, nil
		case *wire.MsgVerAck:
			return Message{Net: network, Payload: Verack{}}, n, nil
		default:
			return Message{}, 0, fmt.Errorf("%w: unexpected %T for %s", ErrMalformed, m, h.command)
		}
	default:
		payload := buf[wire.MessageHeaderSize:total]
		if !bytes.Equal(chainhash.DoubleHashB(payload)[:checksumLen], h.checksum[:]) {
			return Message{}, 0, fmt.Errorf("%w: %s", ErrChecksum, h.command)
		}
		return Message{
			Net:     network,
			Payload: Other{Name: h.command, Payload: bytes.Clone(payload)},
		}, total, nil
	}
}

type header struct {
	magic    wire.BitcoinNet
	command  string
	length   uint32
	checksum [checksumLen]byte
}

func parseHeader(b []byte) header {
	var h header
	h.magic = wire.BitcoinNet(binary.LittleEndian.Uint32(b[0:4]))
	cmd := b[4 : 4+wire.CommandSize]
	if i := bytes.IndexByte(cmd, 0); i >= 0 {
		cmd = cmd[:i]
	}
	h.command = string(cmd)
	h.length = binary.LittleEndian.Uint32(b[16:20])
	copy(h.checksum[:], b[20:24])
	return h
}

func writeRaw(buf *bytes.Buffer, network wire.BitcoinNet, command string, payload []byte) error {
	if len(command) > wire.CommandSize {
		return fmt.Errorf("%w: %q", ErrCommandTooLong, command)
	}
	if len(payload) > wire.MaxMessagePayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	var hdr [wire.MessageHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(network))
	copy(hdr[4:4+wire.CommandSize], command)
	binary.LittleEndian.PutUint32(hdr[16:20], uint32(len(payload)))
	copy(hdr[20:24], chainhash.DoubleHashB(payload)[:checksumLen])
	buf.Write(hdr[:])
	buf.Write(payload)
	return nil
}
