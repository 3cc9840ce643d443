package tcplink

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/carpit680/openbot-go/pkg/openbot/comm"
)

// DefaultMaxFrame bounds accepted frame sizes when Config.MaxFrame is zero.
const DefaultMaxFrame = 16 << 20

// maxIdentity bounds the identity frame read during the handshake, before the
// peer is trusted.
const maxIdentity = 256

const handshakeTimeout = 10 * time.Second

// Config configures one endpoint of a TCP link.
type Config struct {
	// Identity is announced to the peer during the handshake. Required.
	Identity string

	// Certificate and RootCAs enable mutual TLS when set. Listeners require
	// and verify client certificates; dialers verify the listener against
	// ServerName.
	Certificate tls.Certificate
	RootCAs     *x509.CertPool
	ServerName  string

	// MaxFrame bounds the size of accepted frames. Zero selects
	// DefaultMaxFrame.
	MaxFrame uint32
}

func (cfg Config) tlsEnabled() bool { return len(cfg.Certificate.Certificate) > 0 }

func (cfg Config) maxFrame() uint32 {
	if cfg.MaxFrame == 0 {
		return DefaultMaxFrame
	}
	return cfg.MaxFrame
}

func (cfg Config) validate() error {
	if cfg.Identity == "" {
		return errors.New("tcplink: identity required")
	}
	if len(cfg.Identity) > maxIdentity {
		return fmt.Errorf("tcplink: identity longer than %d bytes", maxIdentity)
	}
	if cfg.tlsEnabled() && cfg.RootCAs == nil {
		return errors.New("tcplink: root CA pool required for TLS")
	}
	return nil
}

// Link implements comm.Link over a long-lived TCP connection carrying
// length-prefixed frames.
type Link struct {
	peer     string
	conn     net.Conn
	maxFrame uint32

	ctx    context.Context
	cancel context.CancelFunc

	send chan []byte
	recv chan []byte

	errOnce       sync.Once
	err           error
	closeRecvOnce sync.Once
	closeOnce     sync.Once
}

// Dial connects to a listening endpoint at addr and performs the identity
// handshake. With TLS configured the connection is verified against
// cfg.ServerName before any frame is exchanged.
func Dial(ctx context.Context, addr string, cfg Config) (*Link, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var (
		conn net.Conn
		err  error
	)
	dialer := &net.Dialer{}
	if cfg.tlsEnabled() {
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cfg.Certificate},
			RootCAs:      cfg.RootCAs,
			ServerName:   cfg.ServerName,
			MinVersion:   tls.VersionTLS12,
		}
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("tcplink: dial: %w", err)
	}

	peer, err := exchangeIdentity(conn, cfg.Identity)
	if err != nil {
		return nil, closeWithHandshakeErr(conn, err)
	}
	return newLink(conn, peer, cfg.maxFrame()), nil
}

// Listener accepts incoming links on a TCP address.
type Listener struct {
	ln  net.Listener
	cfg Config
}

// Listen opens a TCP listener at addr. With TLS configured the listener
// requires and verifies client certificates against cfg.RootCAs.
func Listen(addr string, cfg Config) (*Listener, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var (
		ln  net.Listener
		err error
	)
	if cfg.tlsEnabled() {
		serverTLS := &tls.Config{
			Certificates: []tls.Certificate{cfg.Certificate},
			ClientAuth:   tls.RequireAndVerifyClientCert,
			ClientCAs:    cfg.RootCAs,
			MinVersion:   tls.VersionTLS12,
		}
		ln, err = tls.Listen("tcp", addr, serverTLS)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("tcplink: listen: %w", err)
	}
	return &Listener{ln: ln, cfg: cfg}, nil
}

// Accept waits for the next incoming connection, completes the handshake, and
// returns the established link. Close unblocks pending Accept calls.
func (l *Listener) Accept() (*Link, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	if tlsConn, ok := conn.(*tls.Conn); ok {
		if err := tlsConn.Handshake(); err != nil {
			return nil, closeWithHandshakeErr(conn, fmt.Errorf("tcplink: handshake: %w", err))
		}
	}
	peer, err := exchangeIdentity(conn, l.cfg.Identity)
	if err != nil {
		return nil, closeWithHandshakeErr(conn, err)
	}
	return newLink(conn, peer, l.cfg.maxFrame()), nil
}

// Addr returns the listener's network address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops the listener. Established links are unaffected.
func (l *Listener) Close() error { return l.ln.Close() }

func newLink(conn net.Conn, peer string, maxFrame uint32) *Link {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Link{
		peer:     peer,
		conn:     conn,
		maxFrame: maxFrame,
		ctx:      ctx,
		cancel:   cancel,
		send:     make(chan []byte, 16),
		recv:     make(chan []byte, 16),
	}
	go l.writer()
	go l.reader()
	return l
}

// Peer returns the identity the remote endpoint announced during the
// handshake.
func (l *Link) Peer() string { return l.peer }

// Send queues a copy of msg for transmission.
func (l *Link) Send(ctx context.Context, msg []byte) error {
	if uint64(len(msg)) > uint64(l.maxFrame) {
		return fmt.Errorf("tcplink: frame too large (%d bytes)", len(msg))
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ctx.Done():
		return comm.ErrClosed
	case l.send <- append([]byte(nil), msg...):
		return nil
	}
}

// Receive returns the next frame from the peer. After the remote end closes
// it drains buffered frames and then reports io.EOF, or the read error that
// tore the connection down.
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

// Close tears down the connection. It is idempotent and always returns nil.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
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
			if err := writeFrame(l.conn, msg); err != nil {
				l.setErr(err)
				return
			}
		}
	}
}

func (l *Link) reader() {
	for {
		msg, err := readFrame(l.conn, l.maxFrame)
		if err != nil {
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

// exchangeIdentity writes our identity frame and reads the peer's. Both
// directions run under a deadline so a stalled peer cannot hold the
// handshake open.
func exchangeIdentity(conn net.Conn, self string) (string, error) {
	if err := conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return "", fmt.Errorf("tcplink: set handshake deadline: %w", err)
	}
	if err := writeFrame(conn, []byte(self)); err != nil {
		return "", fmt.Errorf("tcplink: write identity: %w", err)
	}
	peer, err := readFrame(conn, maxIdentity)
	if err != nil {
		return "", fmt.Errorf("tcplink: read identity: %w", err)
	}
	if len(peer) == 0 {
		return "", errors.New("tcplink: empty peer identity")
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return "", fmt.Errorf("tcplink: clear handshake deadline: %w", err)
	}
	return string(peer), nil
}

func writeFrame(conn net.Conn, payload []byte) error {
	size := len(payload)
	if size < 0 || size > math.MaxUint32 {
		return fmt.Errorf("tcplink: frame too large (%d bytes)", size)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(size))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := conn.Write(payload); err != nil {
		return err
	}
	return nil
}

func readFrame(conn net.Conn, max uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > max {
		return nil, fmt.Errorf("tcplink: frame of %d bytes exceeds limit %d", n, max)
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func closeWithHandshakeErr(c io.Closer, base error) error {
	if base == nil {
		return c.Close()
	}
	if closeErr := c.Close(); closeErr != nil {
		return fmt.Errorf("%w; close error: %v", base, closeErr)
	}
	return base
}
