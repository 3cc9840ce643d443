// Package mocklink provides an in-memory comm.Link pair for testing and
// examples.
//
// Mocklink implements the comm.Link interface using buffered channels,
// allowing device and daemon tests to exchange messages without actual
// network communication. Delivery is sequenced and reliable.
//
// # Features
//
//   - Ordered, whole-message delivery in both directions
//   - Context-based cancellation support
//   - Thread-safe concurrent operations
//   - No external dependencies (pure Go)
//
// # Usage
//
//	a, b := mocklink.Pipe()
//	defer a.Close()
//	defer b.Close()
//
//	go func() {
//	    msg, _ := b.Receive(ctx)
//	    _ = b.Send(ctx, msg)
//	}()
//
//	_ = a.Send(ctx, []byte("ping"))
//	echo, _ := a.Receive(ctx)
//
// # Shutdown Semantics
//
// Closing one end wakes the peer: its pending Receive calls drain any
// buffered messages and then return io.EOF, and its Send calls return
// comm.ErrClosed. Closing is idempotent.
//
// # Limitations
//
// Mocklink is designed for testing and examples only:
//   - No encryption or authentication
//   - No network latency simulation
//   - No packet loss or reordering
//   - Not suitable for production use
//
// For production deployments use tcplink or wslink.
package mocklink
