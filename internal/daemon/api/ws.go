package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsPollInterval is how often queued session output is drained into
// the socket.
const wsPollInterval = 10 * time.Millisecond

// wsCloseSessionNotFound is the close code a motor setup socket gets
// when it names an unknown session.
const wsCloseSessionNotFound = 4004

type wsFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func wsSend(conn *websocket.Conn, typ string, data any) error {
	return conn.WriteJSON(wsFrame{Type: typ, Data: data})
}

func wsFinished(conn *websocket.Conn) error {
	return wsSend(conn, "status", map[string]any{"is_running": false, "status": "finished"})
}

// wsAccept upgrades the request and starts a read pump so a client
// disconnect cancels the returned context.
func (s *Server) wsAccept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, context.Context, context.CancelFunc, error) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithCancel(r.Context())
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return conn, ctx, cancel, nil
}

// streamSession relays output frames for one session until the process
// ends or the client goes away. Queued output is flushed before the
// finished status so trailing lines are not lost.
func (s *Server) streamSession(ctx context.Context, conn *websocket.Conn, id string, withTables bool) {
	ticker := time.NewTicker(wsPollInterval)
	defer ticker.Stop()

	lastTable := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sess, ok := s.c.Runner.Get(id)
		if !ok {
			_ = wsFinished(conn)
			return
		}
		running := sess.Running()

		for _, line := range sess.DrainOutput() {
			if err := wsSend(conn, "output", line); err != nil {
				return
			}
		}
		if withTables {
			if table, ok := sess.LatestTable(); ok && table != lastTable {
				if err := wsSend(conn, "table", table); err != nil {
					return
				}
				lastTable = table
			}
		}
		if !running {
			_ = wsFinished(conn)
			return
		}
	}
}

func (s *Server) handleCalibrationWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conn, ctx, cancel, err := s.wsAccept(w, r)
	if err != nil {
		return
	}
	defer conn.Close()
	defer cancel()

	if err := wsSend(conn, "status", map[string]any{
		"message": "WebSocket connected", "session_id": id,
	}); err != nil {
		return
	}
	s.streamSession(ctx, conn, id, false)
}

func (s *Server) handleTeleopWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conn, ctx, cancel, err := s.wsAccept(w, r)
	if err != nil {
		return
	}
	defer conn.Close()
	defer cancel()

	if err := wsSend(conn, "status", map[string]any{
		"message": "WebSocket connected", "session_id": id,
	}); err != nil {
		return
	}
	s.streamSession(ctx, conn, id, true)
}

// handleMotorSetupWS differs from the other sockets: connecting to an
// unknown or finished session closes with code 4004 instead of
// replaying a finished status.
func (s *Server) handleMotorSetupWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conn, ctx, cancel, err := s.wsAccept(w, r)
	if err != nil {
		return
	}
	defer conn.Close()
	defer cancel()

	sess, ok := s.c.Runner.Get(id)
	if !ok || !sess.Running() {
		msg := websocket.FormatCloseMessage(wsCloseSessionNotFound, "Session not found")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return
	}

	if err := wsSend(conn, "status", map[string]any{
		"message": "WebSocket connected", "session_id": id,
	}); err != nil {
		return
	}
	s.streamSession(ctx, conn, id, false)
}
