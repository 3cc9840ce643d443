// Package wslink implements comm.Link over WebSocket connections using
// github.com/gorilla/websocket.
//
// The adapter suits links that must traverse HTTP infrastructure: browser
// dashboards, reverse proxies, and hosts where only ports 80/443 are open.
// For robot-to-robot links on a trusted network prefer tcplink.
//
// # Client Side
//
//	link, err := wslink.Dial(ctx, "ws://robot.local:8000/link")
//	if err != nil {
//	    return err
//	}
//	defer link.Close()
//	err = link.Send(ctx, payload)
//
// # Server Side
//
// Handler mounts on any mux and hands each upgraded connection to the accept
// callback:
//
//	mux.Handle("/link", wslink.Handler(func(link *wslink.Link) {
//	    _ = comm.Pump(ctx, link, handleMessage)
//	}))
//
// The callback runs on the connection's goroutine; returning closes the link.
//
// # Framing
//
// Send transmits binary frames. Receive delivers both binary and text frames
// as raw bytes, whole and in order. Incoming messages above 16 MiB tear the
// link down.
package wslink
