package handshake

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/danmuck/peerprobe/internal/protocol/frame"
)

// ExpectedHandshakeMessages is the event count of a finished exchange:
// version out, version in, verack out, verack in.
const ExpectedHandshakeMessages = 4

// Target names the remote node and the user agent we advertise to it.
type Target struct {
	Address   string
	UserAgent string
}

func (t Target) Validate() error {
	host, port, err := net.SplitHostPort(strings.TrimSpace(t.Address))
	if err != nil {
		return fmt.Errorf("%w: address %q: %v", ErrInvalidTarget, t.Address, err)
	}
	if host == "" {
		return fmt.Errorf("%w: address %q missing host", ErrInvalidTarget, t.Address)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil || p == 0 {
		return fmt.Errorf("%w: address %q invalid port", ErrInvalidTarget, t.Address)
	}
	if len(t.UserAgent) > wire.MaxUserAgentLen {
		return fmt.Errorf("%w: user agent longer than %d bytes", ErrInvalidTarget, wire.MaxUserAgentLen)
	}
	return nil
}

// Config defines handshake transport and protocol settings.
type Config struct {
	Network          wire.BitcoinNet
	ProtocolVersion  uint32
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadBufferSize   int
}

func DefaultConfig() Config {
	return Config{
		Network:          wire.MainNet,
		ProtocolVersion:  wire.ProtocolVersion,
		ConnectTimeout:   1000 * time.Millisecond,
		HandshakeTimeout: 1000 * time.Millisecond,
		WriteTimeout:     1000 * time.Millisecond,
		ReadBufferSize:   frame.DefaultBufferSize,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Network == 0 {
		c.Network = d.Network
	}
	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = d.ProtocolVersion
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	return c
}
