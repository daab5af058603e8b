package feed

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"ChatSync/logger"
	"ChatSync/tools/errs"
	"ChatSync/tools/ids"
	"ChatSync/tools/safe"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ===== 配置 =====

type WSConf struct {
	URL          string
	Credential   string
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	Dialer       *websocket.Dialer
}

func (c *WSConf) norm() {
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = c.PingInterval * 2
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
}

// WSFeed is the live feed over one persistent websocket connection.
// Reconnecting after a drop is not handled here: the feed logs the loss and every
// later Join/Leave fails until a new WSFeed is dialed.
type WSFeed struct {
	*Dispatcher

	conf   WSConf
	connID string
	conn   *websocket.Conn

	writeMu sync.Mutex // gorilla allows a single concurrent writer

	closeOnce sync.Once
	done      chan struct{}
	log       *zap.Logger
}

// DialWS connects and starts the read and ping loops.
func DialWS(ctx context.Context, conf WSConf) (*WSFeed, error) {
	conf.norm()
	header := http.Header{}
	if cred := strings.TrimPrefix(conf.Credential, "Bearer "); cred != "" {
		header.Set("Authorization", "Bearer "+cred)
	}
	conn, resp, err := conf.Dialer.DialContext(ctx, conf.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errs.ErrSubscription.WrapMsg("dial live feed", "url", conf.URL, "err", err)
	}

	f := &WSFeed{
		Dispatcher: NewDispatcher(),
		conf:       conf,
		connID:     ids.GenerateString(),
		conn:       conn,
		done:       make(chan struct{}),
	}
	f.log = logger.Named("feed.ws").With(zap.String("conn_id", f.connID))

	conn.SetReadLimit(1 << 20) // 1MB
	_ = conn.SetReadDeadline(time.Now().Add(conf.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(conf.PongWait))
	})

	safe.SafeGo("feed.ws.read", f.readLoop)
	safe.SafeGo("feed.ws.ping", f.pingLoop)
	f.log.Info("[WS] live feed connected", zap.String("url", conf.URL))
	return f, nil
}

func (f *WSFeed) Join(ctx context.Context, topic, credential string) error {
	if credential == "" {
		credential = f.conf.Credential
	}
	return f.writeFrame(ctx, BuildJoinFrame(topic, credential))
}

func (f *WSFeed) Leave(ctx context.Context) error {
	return f.writeFrame(ctx, BuildLeaveFrame())
}

// Done is closed once the connection is gone.
func (f *WSFeed) Done() <-chan struct{} { return f.done }

func (f *WSFeed) Close() error {
	f.writeMu.Lock()
	_ = f.conn.SetWriteDeadline(time.Now().Add(f.conf.WriteWait))
	_ = f.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	f.writeMu.Unlock()
	f.shutdown()
	return nil
}

func (f *WSFeed) shutdown() {
	f.closeOnce.Do(func() {
		close(f.done)
		_ = f.conn.Close()
	})
}

func (f *WSFeed) writeFrame(ctx context.Context, frame OutFrame) error {
	select {
	case <-f.done:
		return errs.ErrSubscription.WrapMsg("live feed closed", "frame", frame.Type)
	default:
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return errs.ErrSubscription.WrapMsg("encode frame", "err", err)
	}

	deadline := time.Now().Add(f.conf.WriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if err := f.conn.SetWriteDeadline(deadline); err != nil {
		return errs.ErrSubscription.WrapMsg("set write deadline", "err", err)
	}
	if err := f.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return errs.ErrSubscription.WrapMsg("write frame", "frame", frame.Type, "err", err)
	}
	return nil
}

func (f *WSFeed) readLoop() {
	defer f.shutdown()
	for {
		mt, data, rerr := f.conn.ReadMessage()
		if rerr != nil {
			select {
			case <-f.done:
				// closed locally
			default:
				if websocket.IsCloseError(rerr,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseNoStatusReceived,
				) {
					f.log.Info("[WS] peer closed", zap.Error(rerr))
				} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
					f.log.Warn("[WS] read timeout, live feed lost", zap.Error(rerr))
				} else {
					f.log.Warn("[WS] read err, live feed lost", zap.Error(rerr))
				}
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		f.Dispatch(data)
	}
}

func (f *WSFeed) pingLoop() {
	ticker := time.NewTicker(f.conf.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.writeMu.Lock()
			err := f.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(f.conf.WriteWait))
			f.writeMu.Unlock()
			if err != nil {
				f.log.Warn("[WS] ping err", zap.Error(err))
				f.shutdown()
				return
			}
		}
	}
}
