package handshake

import (
	"errors"
	"fmt"

	"github.com/danmuck/peerprobe/internal/handshake/mailbox"
	"github.com/danmuck/peerprobe/internal/protocol/codec"
	"github.com/rs/zerolog/log"
)

// EventPublisher hands an event to the recorder. Safe for concurrent use.
type EventPublisher interface {
	Publish(ev Event) error
}

// MessageSender queues an outbound message for the writer. Safe for concurrent use.
type MessageSender interface {
	Send(msg codec.Message) error
}

type eventQueue struct {
	mb       *mailbox.Mailbox[Event]
	shutdown *Shutdown
}

func (q eventQueue) Publish(ev Event) error {
	return deliver(q.mb, ev, q.shutdown, "event", ev.Name)
}

type outboundQueue struct {
	mb       *mailbox.Mailbox[codec.Message]
	shutdown *Shutdown
}

func (q outboundQueue) Send(msg codec.Message) error {
	return deliver(q.mb, msg, q.shutdown, "outbound", msg.Command())
}

// deliver sends v to mb. A consumer that already went away after shutdown fired
// makes the item late, not failed.
func deliver[T any](mb *mailbox.Mailbox[T], v T, shutdown *Shutdown, queue, name string) error {
	err := mb.Send(v)
	if err == nil {
		return nil
	}
	if errors.Is(err, mailbox.ErrClosed) && shutdown.Fired() {
		log.Debug().Str("queue", queue).Str("item", name).Msg("handshake: dropped item queued after shutdown")
		return nil
	}
	return fmt.Errorf("%w: %s queue item=%s: %w", ErrSendFailed, queue, name, err)
}
