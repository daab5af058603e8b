package api

import (
	"net"
	"net/http"
	"time"

	"ChatSync/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgraded = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// stateWS streams engine snapshots as JSON text frames. The client only reads;
// anything it sends is discarded.
func (s *Server) stateWS(c *gin.Context) {
	conn, err := upgraded.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Info("[WS] upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(4 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	states, cancel := s.engine.Watch()
	defer cancel()

	// ---- 读循环：只为感知断开 ----
	gone := make(chan struct{})
	safe.SafeGo("api.state_ws.read", func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					s.log.Info("[WS] state watcher timed out", zap.Error(err))
				}
				return
			}
		}
	})

	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case st, ok := <-states:
			if !ok {
				// engine closed
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "engine closed"),
					time.Now().Add(s.opts.WriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := conn.WriteJSON(st); err != nil {
				s.log.Info("[WS] write state failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(s.opts.WriteWait)); err != nil {
				return
			}
		}
	}
}
