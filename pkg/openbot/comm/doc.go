// Package comm defines the message link contract shared by the SDK's
// communication adapters.
//
// A Link carries whole, ordered messages between two endpoints. The interface
// is deliberately small: Send, Receive, Close. Handler-style consumption is
// provided by Pump, which loops Receive and dispatches to a callback until
// the link shuts down.
//
// # Implementations
//
//   - mocklink: in-memory pair for tests and examples
//   - tcplink: length-prefixed frames over TCP, with optional mutual TLS
//   - wslink: WebSocket messages via github.com/gorilla/websocket
//
// # Usage
//
//	a, b := mocklink.Pipe()
//	defer a.Close()
//	defer b.Close()
//
//	go func() {
//	    _ = comm.Pump(ctx, b, func(msg []byte) {
//	        fmt.Printf("got %s\n", msg)
//	    })
//	}()
//
//	_ = a.Send(ctx, []byte("state update"))
//
// All adapters deliver messages whole: a 12-byte Send arrives as one 12-byte
// Receive, never split or merged.
package comm
