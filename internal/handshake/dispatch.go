package handshake

import (
	"strconv"

	"github.com/danmuck/peerprobe/internal/protocol/codec"
	"github.com/rs/zerolog/log"
)

// Dispatch reacts to one decoded inbound message. It touches no shared state
// besides out and events, so calls may run concurrently.
func Dispatch(msg codec.Message, out MessageSender, events EventPublisher) error {
	switch p := msg.Payload.(type) {
	case codec.Verack:
		return events.Publish(NewEvent(p.Command(), In))
	case codec.Version:
		ev := NewEvent(p.Command(), In,
			Attribute{Key: "vers", Value: strconv.FormatInt(int64(p.ProtocolVersion), 10)},
			Attribute{Key: "user-agent", Value: p.UserAgent},
		)
		if err := events.Publish(ev); err != nil {
			return err
		}
		return out.Send(codec.NewVerack(msg.Net))
	default:
		log.Warn().Str("command", msg.Command()).Msg("handshake: received message type not part of handshake")
		return nil
	}
}
