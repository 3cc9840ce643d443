package tcplink

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/carpit680/openbot-go/pkg/openbot/comm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func pipePair(t *testing.T, serverCfg, clientCfg Config) (*Link, *Link) {
	t.Helper()

	ln, err := Listen("127.0.0.1:0", serverCfg)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	type acceptResult struct {
		link *Link
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		link, err := ln.Accept()
		accepted <- acceptResult{link, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, ln.Addr().String(), clientCfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	res := <-accepted
	if res.err != nil {
		t.Fatalf("accept: %v", res.err)
	}
	t.Cleanup(func() { _ = res.link.Close() })
	return res.link, client
}

func TestPlainRoundTrip(t *testing.T) {
	server, client := pipePair(t,
		Config{Identity: "robot"},
		Config{Identity: "operator"},
	)

	if got := server.Peer(); got != "operator" {
		t.Fatalf("server peer = %q, want operator", got)
	}
	if got := client.Peer(); got != "robot" {
		t.Fatalf("client peer = %q, want robot", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Send(ctx, []byte("joint state")); err != nil {
		t.Fatalf("client send: %v", err)
	}
	got, err := server.Receive(ctx)
	if err != nil {
		t.Fatalf("server receive: %v", err)
	}
	if string(got) != "joint state" {
		t.Fatalf("server got %q", got)
	}

	if err := server.Send(ctx, []byte("ack")); err != nil {
		t.Fatalf("server send: %v", err)
	}
	got, err = client.Receive(ctx)
	if err != nil {
		t.Fatalf("client receive: %v", err)
	}
	if string(got) != "ack" {
		t.Fatalf("client got %q", got)
	}
}

func TestEmptyFrameDeliveredWhole(t *testing.T) {
	server, client := pipePair(t,
		Config{Identity: "robot"},
		Config{Identity: "operator"},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Send(ctx, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := server.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d bytes, want empty frame", len(got))
	}
}

func TestRemoteCloseReportsEOF(t *testing.T) {
	server, client := pipePair(t,
		Config{Identity: "robot"},
		Config{Identity: "operator"},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Send(ctx, []byte("final")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := server.Receive(ctx)
	if err != nil {
		t.Fatalf("receive buffered: %v", err)
	}
	if string(got) != "final" {
		t.Fatalf("got %q, want final", got)
	}
	if _, err := server.Receive(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("receive after close: err = %v, want io.EOF", err)
	}
}

func TestLocalCloseRejectsOperations(t *testing.T) {
	server, client := pipePair(t,
		Config{Identity: "robot"},
		Config{Identity: "operator"},
	)
	_ = server

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	ctx := context.Background()
	if err := client.Send(ctx, []byte("x")); !errors.Is(err, comm.ErrClosed) {
		t.Fatalf("send after close: err = %v, want ErrClosed", err)
	}
	if _, err := client.Receive(ctx); !errors.Is(err, comm.ErrClosed) {
		t.Fatalf("receive after close: err = %v, want ErrClosed", err)
	}
}

func TestOversizeFrameRejected(t *testing.T) {
	server, client := pipePair(t,
		Config{Identity: "robot", MaxFrame: 64},
		Config{Identity: "operator"},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Send(ctx, make([]byte, 1024)); err != nil {
		t.Fatalf("send: %v", err)
	}
	_, err := server.Receive(ctx)
	if err == nil || !strings.Contains(err.Error(), "exceeds limit") {
		t.Fatalf("receive: err = %v, want frame limit error", err)
	}

	if err := client.Send(ctx, make([]byte, DefaultMaxFrame+1)); err == nil {
		t.Fatal("send above local limit should fail fast")
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := Listen("127.0.0.1:0", Config{}); err == nil {
		t.Fatal("listen without identity should fail")
	}
	ctx := context.Background()
	if _, err := Dial(ctx, "127.0.0.1:1", Config{}); err == nil {
		t.Fatal("dial without identity should fail")
	}
}

func TestMutualTLSRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := GenerateCertificates([]string{"robot", "operator"}, dir); err != nil {
		t.Fatalf("generate certificates: %v", err)
	}

	serverCert, serverPool, err := LoadEndpoint(dir, "robot")
	if err != nil {
		t.Fatalf("load robot endpoint: %v", err)
	}
	clientCert, clientPool, err := LoadEndpoint(dir, "operator")
	if err != nil {
		t.Fatalf("load operator endpoint: %v", err)
	}

	server, client := pipePair(t,
		Config{Identity: "robot", Certificate: serverCert, RootCAs: serverPool},
		Config{Identity: "operator", Certificate: clientCert, RootCAs: clientPool, ServerName: "robot"},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Send(ctx, []byte("secure state")); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := server.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(got) != "secure state" {
		t.Fatalf("got %q", got)
	}
	if server.Peer() != "operator" || client.Peer() != "robot" {
		t.Fatalf("peer identities: server=%q client=%q", server.Peer(), client.Peer())
	}
}
