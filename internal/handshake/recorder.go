package handshake

import (
	"github.com/danmuck/peerprobe/internal/handshake/mailbox"
	"github.com/danmuck/peerprobe/internal/observability"
	"github.com/rs/zerolog/log"
)

// Recorder is the sole owner of an EventChain while a run is in progress.
type Recorder struct {
	chain    *EventChain
	events   *mailbox.Mailbox[Event]
	shutdown *Shutdown
	expected int
}

func NewRecorder(chain *EventChain, events *mailbox.Mailbox[Event], shutdown *Shutdown) *Recorder {
	return &Recorder{
		chain:    chain,
		events:   events,
		shutdown: shutdown,
		expected: ExpectedHandshakeMessages,
	}
}

// Run appends events until the chain completes or shutdown fires, then returns the
// chain. An incomplete chain is a valid result.
func (r *Recorder) Run() *EventChain {
	for {
		select {
		case <-r.events.Ready():
			for _, ev := range r.events.Drain() {
				r.chain.Add(ev)
				observability.RecordEvent(ev.Direction.String(), ev.Name)
				log.Debug().Str("event", ev.String()).Int("count", r.chain.Len()).Msg("handshake.Recorder appended")
				if r.chain.Len() == r.expected {
					r.chain.MarkComplete()
					if !r.shutdown.Fire(CauseComplete) {
						log.Debug().Str("cause", r.shutdown.Cause().String()).Msg("handshake.Recorder completion after shutdown")
					}
					return r.finish()
				}
			}
		case <-r.shutdown.Done():
			return r.finish()
		}
	}
}

func (r *Recorder) finish() *EventChain {
	if left := r.events.Close(); len(left) > 0 {
		log.Debug().Int("dropped", len(left)).Msg("handshake.Recorder events left after shutdown")
	}
	r.chain.close()
	return r.chain
}
