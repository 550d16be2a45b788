package handshake

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/danmuck/peerprobe/internal/protocol/codec"
	"github.com/danmuck/peerprobe/internal/testutil/peertest"
	"github.com/danmuck/peerprobe/internal/testutil/testlog"
)

const testUserAgent = "/peerprobe:test/"

func testConfig(timeout time.Duration) Config {
	cfg := DefaultConfig()
	cfg.HandshakeTimeout = timeout
	return cfg
}

func unusedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func assertCounts(t *testing.T, chain *EventChain, want map[string]int) {
	t.Helper()
	for key, n := range want {
		var got int
		switch key {
		case "version>":
			got = chain.Count(wire.CmdVersion, Out)
		case "version<":
			got = chain.Count(wire.CmdVersion, In)
		case "verack>":
			got = chain.Count(wire.CmdVerAck, Out)
		case "verack<":
			got = chain.Count(wire.CmdVerAck, In)
		}
		if got != n {
			t.Fatalf("event %s: got %d want %d (chain=%v)", key, got, n, chain.Events)
		}
	}
}

func TestRunUnreachableAddressFails(t *testing.T) {
	testlog.Start(t)
	res := Run(context.Background(), Target{Address: unusedAddr(t), UserAgent: testUserAgent}, testConfig(time.Second))
	if res.OK() {
		t.Fatalf("expected failure for unreachable address")
	}
	if !errors.Is(res.Err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", res.Err)
	}
	if res.Outcome() != "failed" {
		t.Fatalf("unexpected outcome: %s", res.Outcome())
	}
	if res.Chain == nil || res.Chain.Len() != 0 {
		t.Fatalf("no events expected before connect")
	}
}

func TestRunInvalidTarget(t *testing.T) {
	testlog.Start(t)
	res := Run(context.Background(), Target{Address: "no-port", UserAgent: testUserAgent}, Config{})
	if !errors.Is(res.Err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", res.Err)
	}
}

func TestRunCompletesHandshake(t *testing.T) {
	testlog.Start(t)
	peer := peertest.Start(t, peertest.Script{SendVersion: true, SendVerack: true})

	res := Run(context.Background(), Target{Address: peer.Addr(), UserAgent: testUserAgent}, testConfig(2*time.Second))
	if !res.OK() {
		t.Fatalf("handshake failed: %v", res.Err)
	}
	if !res.Chain.Complete || res.Chain.Len() != ExpectedHandshakeMessages {
		t.Fatalf("expected complete chain of 4, got complete=%v events=%v", res.Chain.Complete, res.Chain.Events)
	}
	if res.Cause != CauseComplete {
		t.Fatalf("unexpected cause: %s", res.Cause)
	}
	assertCounts(t, res.Chain, map[string]int{"version>": 1, "version<": 1, "verack>": 1, "verack<": 1})
	if res.Chain.Index(wire.CmdVersion, In) > res.Chain.Index(wire.CmdVerAck, Out) {
		t.Fatalf("verack reply recorded before the version that triggered it: %v", res.Chain.Events)
	}
	if res.Elapsed >= 2*time.Second {
		t.Fatalf("completed handshake should not wait for the deadline: %v", res.Elapsed)
	}
	in := res.Chain.Events[res.Chain.Index(wire.CmdVersion, In)]
	if len(in.Attributes) != 2 || in.Attributes[1].Value != peertest.DefaultUserAgent {
		t.Fatalf("unexpected version attributes: %+v", in.Attributes)
	}

	if !peer.Wait(time.Second) {
		t.Fatalf("peer did not observe the close")
	}
	got := peer.Received()
	if len(got) != 2 || got[0] != wire.CmdVersion || got[1] != wire.CmdVerAck {
		t.Fatalf("peer received %v", got)
	}
}

func TestRunVersionWithoutVerackTimesOut(t *testing.T) {
	testlog.Start(t)
	peer := peertest.Start(t, peertest.Script{SendVersion: true})
	timeout := 300 * time.Millisecond

	res := Run(context.Background(), Target{Address: peer.Addr(), UserAgent: testUserAgent}, testConfig(timeout))
	if !res.OK() {
		t.Fatalf("timed-out handshake must not fail: %v", res.Err)
	}
	if res.Chain.Complete {
		t.Fatalf("chain must not be complete")
	}
	if n := res.Chain.Len(); n < 2 || n > 3 {
		t.Fatalf("expected 2 or 3 events, got %v", res.Chain.Events)
	}
	assertCounts(t, res.Chain, map[string]int{"version>": 1, "version<": 1, "verack<": 0})
	if res.Cause != CauseTimeout {
		t.Fatalf("unexpected cause: %s", res.Cause)
	}
	if res.Chain.Elapsed() < timeout {
		t.Fatalf("chain elapsed %v shorter than timeout %v", res.Chain.Elapsed(), timeout)
	}
}

func TestRunSilentPeerTimesOut(t *testing.T) {
	testlog.Start(t)
	peer := peertest.Start(t, peertest.Script{})
	timeout := 200 * time.Millisecond

	res := Run(context.Background(), Target{Address: peer.Addr(), UserAgent: testUserAgent}, testConfig(timeout))
	if !res.OK() || res.Chain.Complete {
		t.Fatalf("expected incomplete success, got ok=%v complete=%v err=%v", res.OK(), res.Chain.Complete, res.Err)
	}
	if res.Chain.Elapsed() < timeout || res.Elapsed < timeout {
		t.Fatalf("elapsed shorter than timeout: chain=%v run=%v", res.Chain.Elapsed(), res.Elapsed)
	}
	if res.Outcome() != "incomplete" {
		t.Fatalf("unexpected outcome: %s", res.Outcome())
	}
}

func TestRunIgnoresUnrelatedMessages(t *testing.T) {
	testlog.Start(t)
	peer := peertest.Start(t, peertest.Script{
		Before: []codec.Message{
			{Net: wire.MainNet, Payload: codec.Other{Name: "sendheaders"}},
			{Net: wire.MainNet, Payload: codec.Other{Name: "feefilter", Payload: make([]byte, 8)}},
		},
		SendVersion: true,
		SendVerack:  true,
	})

	res := Run(context.Background(), Target{Address: peer.Addr(), UserAgent: testUserAgent}, testConfig(2*time.Second))
	if !res.OK() || !res.Chain.Complete {
		t.Fatalf("expected complete handshake, ok=%v err=%v events=%v", res.OK(), res.Err, res.Chain.Events)
	}
	for _, ev := range res.Chain.Events {
		if ev.Name == "sendheaders" || ev.Name == "feefilter" {
			t.Fatalf("unrelated message recorded: %s", ev)
		}
	}
}

func TestRunInterrupt(t *testing.T) {
	testlog.Start(t)
	peer := peertest.Start(t, peertest.Script{})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	res := Run(ctx, Target{Address: peer.Addr(), UserAgent: testUserAgent}, testConfig(5*time.Second))
	if !res.OK() {
		t.Fatalf("interrupted run should report, not fail: %v", res.Err)
	}
	if res.Cause != CauseInterrupt {
		t.Fatalf("unexpected cause: %s", res.Cause)
	}
	if res.Elapsed >= 5*time.Second {
		t.Fatalf("interrupt did not stop the run early: %v", res.Elapsed)
	}
}

func TestRunPeerResetFails(t *testing.T) {
	testlog.Start(t)
	b, err := codec.Encode(remoteVersion("/remote/"), wire.ProtocolVersion)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	peer := peertest.Start(t, peertest.Script{Raw: b[:len(b)/2], CloseAfter: true})

	res := Run(context.Background(), Target{Address: peer.Addr(), UserAgent: testUserAgent}, testConfig(2*time.Second))
	if !errors.Is(res.Err, ErrConnectionReset) {
		t.Fatalf("expected ErrConnectionReset, got %v", res.Err)
	}
	if res.Cause != CauseFailure {
		t.Fatalf("unexpected cause: %s", res.Cause)
	}
}

func TestRunWrongNetworkFails(t *testing.T) {
	testlog.Start(t)
	b, err := codec.Encode(codec.NewVerack(wire.TestNet3), wire.ProtocolVersion)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	peer := peertest.Start(t, peertest.Script{Raw: b})

	res := Run(context.Background(), Target{Address: peer.Addr(), UserAgent: testUserAgent}, testConfig(2*time.Second))
	if !errors.Is(res.Err, codec.ErrWrongNetwork) {
		t.Fatalf("expected ErrWrongNetwork, got %v", res.Err)
	}
}

func TestTargetValidate(t *testing.T) {
	testlog.Start(t)
	valid := []string{"127.0.0.1:8333", "[::1]:18444", "seed.example.org:8333"}
	for _, addr := range valid {
		if err := (Target{Address: addr}).Validate(); err != nil {
			t.Fatalf("%q should be valid: %v", addr, err)
		}
	}
	invalid := []string{"", "127.0.0.1", ":8333", "127.0.0.1:0", "127.0.0.1:port", "127.0.0.1:70000"}
	for _, addr := range invalid {
		if err := (Target{Address: addr}).Validate(); !errors.Is(err, ErrInvalidTarget) {
			t.Fatalf("%q should be invalid, got %v", addr, err)
		}
	}
	long := make([]byte, wire.MaxUserAgentLen+1)
	if err := (Target{Address: "127.0.0.1:8333", UserAgent: string(long)}).Validate(); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("long user agent should be invalid, got %v", err)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{HandshakeTimeout: 250 * time.Millisecond}.WithDefaults()
	if cfg.HandshakeTimeout != 250*time.Millisecond {
		t.Fatalf("explicit timeout overwritten: %v", cfg.HandshakeTimeout)
	}
	if cfg.Network != wire.MainNet || cfg.ProtocolVersion != wire.ProtocolVersion {
		t.Fatalf("unexpected network defaults: %+v", cfg)
	}
	if cfg.ConnectTimeout != time.Second || cfg.ReadBufferSize != 1024 {
		t.Fatalf("unexpected transport defaults: %+v", cfg)
	}
}
