package handshake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/peerprobe/internal/protocol/codec"
	"github.com/danmuck/peerprobe/internal/protocol/frame"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ReadHalf is the inbound side of a connection. *net.TCPConn satisfies it.
type ReadHalf interface {
	io.Reader
	SetReadDeadline(t time.Time) error
	CloseRead() error
}

// Pipeline reads framed messages from the read half and runs one Dispatch per
// message. Every dispatch is awaited before Run returns.
type Pipeline struct {
	r        ReadHalf
	frames   *frame.Reader
	out      MessageSender
	events   EventPublisher
	shutdown *Shutdown
}

func NewPipeline(r ReadHalf, frames *frame.Reader, out MessageSender, events EventPublisher, shutdown *Shutdown) *Pipeline {
	return &Pipeline{
		r:        r,
		frames:   frames,
		out:      out,
		events:   events,
		shutdown: shutdown,
	}
}

func (p *Pipeline) Run() error {
	// A blocked read has no other way to observe shutdown.
	stop := context.AfterFunc(p.shutdown.Context(), func() {
		_ = p.r.SetReadDeadline(time.Now())
	})
	defer stop()

	var group errgroup.Group
	readErr := p.readLoop(&group)
	if readErr != nil {
		log.Warn().Err(readErr).Msg("handshake.Pipeline read failed")
		p.shutdown.Fire(CauseFailure)
	}
	<-p.shutdown.Done()

	dispatchErr := group.Wait()
	if err := p.r.CloseRead(); err != nil {
		log.Debug().Err(err).Msg("handshake.Pipeline close read half")
	}
	if readErr != nil {
		return readErr
	}
	return dispatchErr
}

func (p *Pipeline) readLoop(group *errgroup.Group) error {
	for {
		msg, err := p.frames.Next()
		if err != nil {
			if p.shutdown.Fired() {
				return nil
			}
			if errors.Is(err, io.EOF) {
				log.Debug().Msg("handshake.Pipeline peer closed stream")
				return nil
			}
			return err
		}
		group.Go(func() error {
			return p.dispatch(msg)
		})
	}
}

func (p *Pipeline) dispatch(msg codec.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: dispatch %s panicked: %v", ErrTaskFailed, msg.Command(), r)
		}
		if err != nil {
			p.shutdown.Fire(CauseFailure)
		}
	}()
	if err := Dispatch(msg, p.out, p.events); err != nil {
		return fmt.Errorf("%w: dispatch %s: %w", ErrTaskFailed, msg.Command(), err)
	}
	return nil
}
