package handshake

import (
	"errors"

	"github.com/danmuck/peerprobe/internal/protocol/frame"
)

var (
	ErrInvalidTarget     = errors.New("handshake: invalid target")
	ErrConnection        = errors.New("handshake: connection failed")
	ErrSendFailed        = errors.New("handshake: send failed")
	ErrSignalPropagation = errors.New("handshake: shutdown signal lost")
	ErrTaskFailed        = errors.New("handshake: task failed")

	// ErrConnectionReset is returned when the peer closes mid-message.
	ErrConnectionReset = frame.ErrConnectionReset
)
