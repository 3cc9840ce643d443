package wslink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carpit680/openbot-go/pkg/openbot/comm"
)

// maxMessage bounds incoming WebSocket messages.
const maxMessage = 16 << 20

const handshakeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Robot dashboards connect cross-origin; auth is the deployment's
	// concern, not the link's.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Link implements comm.Link over a WebSocket connection. Messages are sent as
// binary frames; incoming text and binary frames are both delivered.
type Link struct {
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	send chan []byte
	recv chan []byte

	errOnce       sync.Once
	err           error
	closeRecvOnce sync.Once
	closeOnce     sync.Once
}

// Dial connects to a WebSocket endpoint (ws:// or wss:// URL).
func Dial(ctx context.Context, url string) (*Link, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, fmt.Errorf("wslink: dial %s: %w", url, err)
	}
	return newLink(conn), nil
}

// Handler returns an http.Handler that upgrades each request and passes the
// established link to accept. accept runs on the connection's goroutine and
// may block for the life of the link; the link is closed when accept returns.
func Handler(accept func(*Link)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied with an HTTP error.
			return
		}
		link := newLink(conn)
		defer link.Close()
		accept(link)
	})
}

func newLink(conn *websocket.Conn) *Link {
	conn.SetReadLimit(maxMessage)
	ctx, cancel := context.WithCancel(context.Background())
	l := &Link{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, 16),
		recv:   make(chan []byte, 16),
	}
	go l.writer()
	go l.reader()
	return l
}

// Send queues a copy of msg for transmission as one binary frame.
func (l *Link) Send(ctx context.Context, msg []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ctx.Done():
		return comm.ErrClosed
	case l.send <- append([]byte(nil), msg...):
		return nil
	}
}

// Receive returns the next message from the peer. After the remote end closes
// it drains buffered messages and then reports io.EOF.
func (l *Link) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.ctx.Done():
		return nil, comm.ErrClosed
	case msg, ok := <-l.recv:
		if !ok {
			return nil, l.errOr(io.EOF)
		}
		return msg, nil
	}
}

// Close performs the closing handshake and tears down the connection. It is
// idempotent and always returns nil.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
		deadline := time.Now().Add(time.Second)
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		l.setErr(comm.ErrClosed)
		l.closeRecv()
	})
	return nil
}

var _ comm.Link = (*Link)(nil)

func (l *Link) writer() {
	for {
		select {
		case <-l.ctx.Done():
			return
		case msg := <-l.send:
			if err := l.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				l.setErr(err)
				return
			}
		}
	}
}

func (l *Link) reader() {
	for {
		_, msg, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = io.EOF
			}
			l.setErr(err)
			l.closeRecv()
			return
		}
		select {
		case l.recv <- msg:
		case <-l.ctx.Done():
			l.closeRecv()
			return
		}
	}
}

func (l *Link) setErr(err error) {
	l.errOnce.Do(func() {
		if err == nil {
			err = io.EOF
		}
		l.err = err
		_ = l.conn.Close()
	})
}

func (l *Link) closeRecv() {
	l.closeRecvOnce.Do(func() {
		close(l.recv)
	})
}

func (l *Link) errOr(fallback error) error {
	err := l.err
	if err == nil || errors.Is(err, net.ErrClosed) {
		return fallback
	}
	return err
}
