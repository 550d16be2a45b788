package frame

import (
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/danmuck/peerprobe/internal/protocol/codec"
)

// DefaultBufferSize covers a full version/verack exchange (~350 bytes) without
// growing the buffer.
const DefaultBufferSize = 1024

const minReadChunk = 512

var ErrConnectionReset = errors.New("frame: connection reset by peer")

// Reader turns a byte stream into decoded messages. It owns its buffer; bytes are
// only dropped once a complete message has been parsed from the front.
type Reader struct {
	r    io.Reader
	net  wire.BitcoinNet
	pver uint32
	buf  []byte
	off  int
	eof  bool

	// OnMessage, when set, observes each decoded message and its wire size.
	OnMessage func(msg codec.Message, size int)
}

func NewReader(r io.Reader, network wire.BitcoinNet, pver uint32, size int) *Reader {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Reader{
		r:    r,
		net:  network,
		pver: pver,
		buf:  make([]byte, 0, size),
	}
}

// Next returns the next message. It returns io.EOF when the stream ended cleanly
// between messages and ErrConnectionReset when it ended inside one.
func (fr *Reader) Next() (codec.Message, error) {
	for {
		msg, n, err := codec.TryDecode(fr.buf[fr.off:], fr.net, fr.pver)
		if err == nil {
			fr.advance(n)
			if fr.OnMessage != nil {
				fr.OnMessage(msg, n)
			}
			return msg, nil
		}
		if !errors.Is(err, codec.ErrInsufficientData) {
			return codec.Message{}, err
		}

		if fr.eof {
			if fr.Buffered() == 0 {
				return codec.Message{}, io.EOF
			}
			return codec.Message{}, fmt.Errorf("%w: %d bytes of partial message", ErrConnectionReset, fr.Buffered())
		}
		if err := fr.fill(); err != nil {
			return codec.Message{}, err
		}
	}
}

// Buffered reports how many unparsed bytes the reader holds.
func (fr *Reader) Buffered() int {
	return len(fr.buf) - fr.off
}

func (fr *Reader) fill() error {
	if fr.off > 0 && fr.off == len(fr.buf) {
		fr.buf = fr.buf[:0]
		fr.off = 0
	}
	if cap(fr.buf)-len(fr.buf) < minReadChunk {
		fr.compact(minReadChunk)
	}
	n, err := fr.r.Read(fr.buf[len(fr.buf):cap(fr.buf)])
	fr.buf = fr.buf[:len(fr.buf)+n]
	if errors.Is(err, io.EOF) {
		fr.eof = true
		return nil
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return io.ErrNoProgress
	}
	return nil
}

// compact moves unread bytes to the front and grows the buffer so at least want
// bytes are free.
func (fr *Reader) compact(want int) {
	unread := fr.buf[fr.off:]
	if fr.off+cap(fr.buf)-len(fr.buf) >= want {
		n := copy(fr.buf[:cap(fr.buf)], unread)
		fr.buf = fr.buf[:n]
		fr.off = 0
		return
	}
	grown := make([]byte, len(unread), 2*cap(fr.buf)+want)
	copy(grown, unread)
	fr.buf = grown
	fr.off = 0
}

func (fr *Reader) advance(n int) {
	fr.off += n
	if fr.off == len(fr.buf) {
		fr.buf = fr.buf[:0]
		fr.off = 0
	}
}
