package comm

import (
	"context"
	"errors"
	"io"
)

// ErrClosed is returned by link operations after Close has been called on
// either end of the link.
var ErrClosed = errors.New("comm: link closed")

// Link captures the messaging contract shared by every comm adapter in the
// SDK. A link carries whole messages between exactly two endpoints.
//
// Concurrency: implementations MUST be safe for concurrent use by multiple
// goroutines. Device loops and the dashboard daemon send and receive from
// different goroutines over the same link.
//
// Semantics: messages are delivered whole and in order per direction. Send
// never blocks past ctx; Receive blocks until a message arrives, ctx is
// cancelled, or the link closes. After the remote end closes, Receive drains
// any in-flight messages and then reports io.EOF; after the local end closes,
// both operations report ErrClosed.
type Link interface {
	Send(ctx context.Context, msg []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Pump receives from link until it closes, invoking handle for each message.
// It returns nil on orderly shutdown (local close or remote EOF) and the
// receive error otherwise. The msg slice is owned by handle.
func Pump(ctx context.Context, link Link, handle func(msg []byte)) error {
	for {
		msg, err := link.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		handle(msg)
	}
}
