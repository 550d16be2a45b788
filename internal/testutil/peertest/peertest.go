// Package peertest runs a scripted remote node on loopback for handshake tests.
package peertest

import (
	"errors"
	"io"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/danmuck/peerprobe/internal/protocol/codec"
	"github.com/danmuck/peerprobe/internal/protocol/frame"
)

const DefaultUserAgent = "/peertest:0.1.0/"

// Script describes how the fake node answers the first message it receives.
type Script struct {
	Network wire.BitcoinNet
	// Before is sent ahead of any version/verack reply.
	Before      []codec.Message
	SendVersion bool
	SendVerack  bool
	UserAgent   string
	// Raw bytes are written after the scripted messages.
	Raw []byte
	// CloseAfter closes the connection once the reply is written.
	CloseAfter bool
}

// Peer is a single-connection fake node.
type Peer struct {
	ln     net.Listener
	script Script

	mu       sync.Mutex
	conn     net.Conn
	received []string
	err      error
	done     chan struct{}
}

func Start(t testing.TB, script Script) *Peer {
	t.Helper()
	if script.Network == 0 {
		script.Network = wire.MainNet
	}
	if script.UserAgent == "" {
		script.UserAgent = DefaultUserAgent
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("peertest listen: %v", err)
	}
	p := &Peer{
		ln:     ln,
		script: script,
		done:   make(chan struct{}),
	}
	go p.serve()
	t.Cleanup(p.Close)
	return p
}

func (p *Peer) Addr() string {
	return p.ln.Addr().String()
}

// Received lists the commands the peer decoded from the client so far.
func (p *Peer) Received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.received))
	copy(out, p.received)
	return out
}

// Wait blocks until the connection handler returns or the timeout passes.
func (p *Peer) Wait(timeout time.Duration) bool {
	select {
	case <-p.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Err returns the first read or encode failure the peer hit, if any.
func (p *Peer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close stops the listener, drops the connection, and waits for the handler.
func (p *Peer) Close() {
	_ = p.ln.Close()
	p.mu.Lock()
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.mu.Unlock()
	<-p.done
}

func (p *Peer) serve() {
	defer close(p.done)
	conn, err := p.ln.Accept()
	if err != nil {
		return
	}
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	defer conn.Close()

	fr := frame.NewReader(conn, p.script.Network, wire.ProtocolVersion, 0)
	first, err := fr.Next()
	if err != nil {
		return
	}
	p.record(first)

	if err := p.reply(conn); err != nil {
		return
	}
	if p.script.CloseAfter {
		return
	}
	for {
		msg, err := fr.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.setErr(err)
			}
			return
		}
		p.record(msg)
	}
}

func (p *Peer) reply(conn net.Conn) error {
	msgs := append([]codec.Message{}, p.script.Before...)
	if p.script.SendVersion {
		remote := netip.MustParseAddrPort(conn.RemoteAddr().String())
		msgs = append(msgs, codec.NewVersion(p.script.Network, remote, p.script.UserAgent, time.Now(), 99))
	}
	if p.script.SendVerack {
		msgs = append(msgs, codec.NewVerack(p.script.Network))
	}
	for _, msg := range msgs {
		b, err := codec.Encode(msg, wire.ProtocolVersion)
		if err != nil {
			p.setErr(err)
			return err
		}
		if _, err := conn.Write(b); err != nil {
			return err
		}
	}
	if len(p.script.Raw) > 0 {
		if _, err := conn.Write(p.script.Raw); err != nil {
			return err
		}
	}
	return nil
}

func (p *Peer) setErr(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
}

func (p *Peer) record(msg codec.Message) {
	p.mu.Lock()
	p.received = append(p.received, msg.Command())
	p.mu.Unlock()
}
