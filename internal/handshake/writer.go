package handshake

import (
	"errors"
	"io"
	"time"

	"github.com/danmuck/peerprobe/internal/handshake/mailbox"
	"github.com/danmuck/peerprobe/internal/observability"
	"github.com/danmuck/peerprobe/internal/protocol/codec"
	"github.com/rs/zerolog/log"
)

// WriteHalf is the outbound side of a connection. *net.TCPConn satisfies it.
type WriteHalf interface {
	io.Writer
	SetWriteDeadline(t time.Time) error
	CloseWrite() error
}

// Writer drains the outbound mailbox onto the write half and publishes one OUT
// event per message written.
type Writer struct {
	w        WriteHalf
	outbox   *mailbox.Mailbox[codec.Message]
	events   EventPublisher
	shutdown *Shutdown
	pver     uint32
	timeout  time.Duration
}

func NewWriter(w WriteHalf, outbox *mailbox.Mailbox[codec.Message], events EventPublisher, shutdown *Shutdown, cfg Config) *Writer {
	return &Writer{
		w:        w,
		outbox:   outbox,
		events:   events,
		shutdown: shutdown,
		pver:     cfg.ProtocolVersion,
		timeout:  cfg.WriteTimeout,
	}
}

// Run writes until shutdown fires or a write fails. It always shuts down the
// write half before returning.
func (w *Writer) Run() error {
	for {
		select {
		case <-w.outbox.Ready():
			for _, msg := range w.outbox.Drain() {
				if err := w.send(msg); err != nil {
					log.Warn().Err(err).Str("command", msg.Command()).Msg("handshake.Writer send failed")
					w.shutdown.Fire(CauseFailure)
					return w.close(err)
				}
			}
		case <-w.shutdown.Done():
			return w.close(nil)
		}
	}
}

func (w *Writer) send(msg codec.Message) error {
	b, err := codec.Encode(msg, w.pver)
	if err != nil {
		return err
	}
	if w.timeout > 0 {
		if err := w.w.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			return err
		}
	}
	n, err := w.w.Write(b)
	observability.RecordWireBytes(Out.String(), n)
	if err != nil {
		return err
	}
	return w.events.Publish(NewEvent(msg.Command(), Out))
}

func (w *Writer) close(prior error) error {
	if left := w.outbox.Close(); len(left) > 0 {
		log.Debug().Int("dropped", len(left)).Msg("handshake.Writer messages left after shutdown")
	}
	err := w.w.CloseWrite()
	if err != nil {
		log.Debug().Err(err).Msg("handshake.Writer close write half")
	}
	return errors.Join(prior, err)
}
