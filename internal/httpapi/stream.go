package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"stockinsights/internal/live"
)

// writeTimeout bounds a single frame write to a WebSocket client.
const writeTimeout = 10 * time.Second

// handleSessionStream upgrades to a WebSocket and sends the same frames as
// the gRPC event stream: a snapshot, then one frame per applied action.
// Anything the client sends is ignored.
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Warn("websocket upgrade failed", "session", sess.ID, "error", err)
		return
	}
	defer conn.CloseNow()

	subID, ch := sess.Subscribe(s.streamBuffer)
	defer sess.Unsubscribe(subID)

	ctx := conn.CloseRead(r.Context())

	snap := sess.State()
	if err := writeFrame(ctx, conn, live.Frame{Kind: live.FrameSnapshot, Seq: snap.Seq, Snapshot: &snap}); err != nil {
		return
	}
	s.log.Info("websocket client subscribed", "session", sess.ID, "subID", subID)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("websocket client disconnected", "session", sess.ID, "subID", subID)
			return
		case evt, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			if evt.Seq <= snap.Seq {
				continue
			}
			action := evt.Action
			if err := writeFrame(ctx, conn, live.Frame{Kind: live.FrameEvent, Seq: evt.Seq, Action: &action}); err != nil {
				s.log.Debug("websocket write failed", "session", sess.ID, "error", err)
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f live.Frame) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, f)
}
