// Package tcplink implements comm.Link over long-lived TCP connections with
// optional mutual TLS.
//
// Each message travels as one length-prefixed frame (4-byte big-endian
// length, then the payload), so Receive always returns whole messages. After
// the TCP connect (and TLS handshake when configured) both endpoints announce
// an identity string; Peer reports what the remote side announced.
//
// # Plain TCP
//
//	ln, err := tcplink.Listen("0.0.0.0:7000", tcplink.Config{Identity: "giraffe_arm"})
//	...
//	link, err := ln.Accept()
//
//	link, err := tcplink.Dial(ctx, "robot.local:7000", tcplink.Config{Identity: "operator"})
//
// # Mutual TLS
//
// Set Certificate and RootCAs on both sides; dialers additionally set
// ServerName to the listener's certificate name. GenerateCertificates writes
// a demo CA plus per-endpoint certificates suitable for development, and
// LoadEndpoint reads them back.
//
//	cert, pool, err := tcplink.LoadEndpoint(dir, "operator")
//	link, err := tcplink.Dial(ctx, addr, tcplink.Config{
//	    Identity:    "operator",
//	    Certificate: cert,
//	    RootCAs:     pool,
//	    ServerName:  "giraffe_arm",
//	})
//
// Frames above Config.MaxFrame (16 MiB by default) are rejected and tear the
// link down, bounding memory taken by a misbehaving peer.
package tcplink
