package handshake

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/danmuck/peerprobe/internal/handshake/mailbox"
	"github.com/danmuck/peerprobe/internal/observability"
	"github.com/danmuck/peerprobe/internal/protocol/codec"
	"github.com/danmuck/peerprobe/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// Run performs one outbound handshake against target. Cancelling ctx acts as an
// operator interrupt: the run stops and reports whatever was recorded.
func Run(ctx context.Context, target Target, cfg Config) Result {
	start := time.Now()
	res := run(ctx, target, cfg.WithDefaults())
	res.Elapsed = time.Since(start)
	observability.RecordRun(res.Outcome(), res.Elapsed)
	return res
}

func run(ctx context.Context, target Target, cfg Config) Result {
	res := Result{ID: target.Address}
	if err := target.Validate(); err != nil {
		res.Err = err
		return res
	}

	shutdown := NewShutdown()
	eventBox := mailbox.New[Event]()
	events := eventQueue{mb: eventBox, shutdown: shutdown}

	recorderDone := make(chan *EventChain, 1)
	recorder := NewRecorder(NewEventChain(target.Address), eventBox, shutdown)
	go func() {
		recorderDone <- recorder.Run()
	}()

	conn, err := dial(ctx, target.Address, cfg.ConnectTimeout)
	if err != nil {
		if ctx.Err() != nil {
			shutdown.Fire(CauseInterrupt)
			res.Chain = <-recorderDone
			res.Cause = shutdown.Cause()
			return res
		}
		shutdown.Fire(CauseFailure)
		res.Chain = <-recorderDone
		res.Cause = shutdown.Cause()
		res.Err = fmt.Errorf("%w: %s: %w", ErrConnection, target.Address, err)
		return res
	}
	defer conn.Close()
	log.Debug().Str("remote", conn.RemoteAddr().String()).Str("local", conn.LocalAddr().String()).Msg("handshake.Run connected")

	outbox := mailbox.New[codec.Message]()
	sender := outboundQueue{mb: outbox, shutdown: shutdown}

	writerDone := make(chan error, 1)
	writer := NewWriter(conn, outbox, events, shutdown, cfg)
	go func() {
		writerDone <- writer.Run()
	}()

	frames := frame.NewReader(conn, cfg.Network, cfg.ProtocolVersion, cfg.ReadBufferSize)
	frames.OnMessage = func(_ codec.Message, size int) {
		observability.RecordWireBytes(In.String(), size)
	}
	readerDone := make(chan error, 1)
	pipeline := NewPipeline(conn, frames, sender, events, shutdown)
	go func() {
		readerDone <- pipeline.Run()
	}()

	now := time.Now()
	version := codec.NewVersion(cfg.Network, remoteAddrPort(conn), target.UserAgent, now, uint64(now.UnixNano()))
	sendErr := sender.Send(version)
	if sendErr != nil {
		shutdown.Fire(CauseFailure)
	}

	timer := time.NewTimer(cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		shutdown.Fire(CauseTimeout)
	case <-ctx.Done():
		shutdown.Fire(CauseInterrupt)
	case <-shutdown.Done():
	}

	res.Chain = <-recorderDone
	writerErr := <-writerDone
	readerErr := <-readerDone
	res.Cause = shutdown.Cause()

	// Writer and reader are both checked even when the chain completed.
	res.Err = errors.Join(writerErr, readerErr, sendErr)
	if res.Err == nil && res.Cause == CauseNone {
		res.Err = ErrSignalPropagation
	}
	log.Debug().Str("cause", res.Cause.String()).Int("events", res.Chain.Len()).Bool("complete", res.Chain.Complete).Msg("handshake.Run joined")
	return res
}

func dial(ctx context.Context, address string, timeout time.Duration) (*net.TCPConn, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		_ = conn.Close()
		return nil, errors.New("handshake: dialer returned non-tcp connection")
	}
	return tcp, nil
}

func remoteAddrPort(conn *net.TCPConn) netip.AddrPort {
	addr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return netip.AddrPort{}
	}
	ap := addr.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
