package mocklink

import (
	"context"
	"io"
	"sync"

	"github.com/carpit680/openbot-go/pkg/openbot/comm"
)

// queueDepth bounds how many messages a direction buffers before Send blocks.
const queueDepth = 16

// Link is one endpoint of an in-memory pair created by Pipe.
type Link struct {
	send chan []byte
	recv chan []byte

	selfDone chan struct{}
	peerDone chan struct{}
	once     sync.Once
}

// Pipe returns a connected pair of in-memory links. Messages sent on one end
// arrive on the other, whole and in order.
func Pipe() (*Link, *Link) {
	ab := make(chan []byte, queueDepth)
	ba := make(chan []byte, queueDepth)
	aDone := make(chan struct{})
	bDone := make(chan struct{})

	a := &Link{send: ab, recv: ba, selfDone: aDone, peerDone: bDone}
	b := &Link{send: ba, recv: ab, selfDone: bDone, peerDone: aDone}
	return a, b
}

// Send delivers a copy of msg to the peer. It blocks while the peer's buffer
// is full, until ctx is cancelled or either end closes.
func (l *Link) Send(ctx context.Context, msg []byte) error {
	out := append([]byte(nil), msg...)
	select {
	case <-l.selfDone:
		return comm.ErrClosed
	case <-l.peerDone:
		return comm.ErrClosed
	default:
	}
	select {
	case l.send <- out:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.selfDone:
		return comm.ErrClosed
	case <-l.peerDone:
		return comm.ErrClosed
	}
}

// Receive returns the next message from the peer. After the peer closes it
// drains buffered messages and then reports io.EOF.
func (l *Link) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-l.recv:
		return msg, nil
	default:
	}
	select {
	case msg := <-l.recv:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.selfDone:
		return nil, comm.ErrClosed
	case <-l.peerDone:
		// The peer may have sent before closing; hand those out first.
		select {
		case msg := <-l.recv:
			return msg, nil
		default:
			return nil, io.EOF
		}
	}
}

// Close shuts down this end of the pair. It is idempotent and always returns
// nil.
func (l *Link) Close() error {
	l.once.Do(func() { close(l.selfDone) })
	return nil
}

var _ comm.Link = (*Link)(nil)
