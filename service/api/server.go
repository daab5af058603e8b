package api

import (
	"context"
	"net/http"
	"time"

	"ChatSync/logger"
	"ChatSync/middleware"
	"ChatSync/module/chat/model"
	"ChatSync/module/chat/syncer"
	"ChatSync/service/metrics"
	"ChatSync/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Engine is the part of the sync engine the local API drives.
type Engine interface {
	SelectChannel(ctx context.Context, channelID string) error
	Deselect(ctx context.Context)
	Create(ctx context.Context, draft model.Draft) (*model.Message, error)
	Update(ctx context.Context, uuid string, patch model.Patch) (*model.Message, error)
	Delete(ctx context.Context, uuid string) error
	LoadOlder(ctx context.Context) error
	DismissError()
	State() syncer.State
	Watch() (<-chan syncer.State, func())
}

type Options struct {
	Token        string
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
}

func (o *Options) norm() {
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.PongWait <= o.PingInterval {
		o.PongWait = o.PingInterval * 2
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
}

// Server exposes the engine to a local UI over HTTP and a state websocket.
type Server struct {
	engine Engine
	opts   Options
	router *gin.Engine
	log    *zap.Logger
}

func NewServer(e Engine, opts Options) *Server {
	opts.norm()
	s := &Server{
		engine: e,
		opts:   opts,
		router: gin.New(),
		log:    logger.Named("api"),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	mgr := middleware.NewManager()
	mgr.Add(middleware.RequestID())
	s.router.Use(middleware.Recovery(), mgr.Use(), middleware.AccessLog(s.log))

	auth := middleware.RouteOpt{IsAuth: true, Token: s.opts.Token}
	v1 := s.router.Group("/v1")
	middleware.POST(v1, "/channels/:id/select", s.selectChannel, auth)
	middleware.POST(v1, "/deselect", s.deselect, auth)
	middleware.POST(v1, "/messages", s.createMessage, auth)
	middleware.PATCH(v1, "/messages/:uuid", s.updateMessage, auth)
	middleware.DELETE(v1, "/messages/:uuid", s.deleteMessage, auth)
	middleware.POST(v1, "/older", s.loadOlder, auth)
	middleware.DELETE(v1, "/error", s.dismissError, auth)
	middleware.GET(v1, "/state", s.getState, auth)
	middleware.GET(v1, "/state/ws", s.stateWS, auth)

	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	s.router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
}

// httpStatus maps an error code onto the status the UI sees.
func httpStatus(code int) int {
	switch code {
	case errs.ArgsError:
		return http.StatusBadRequest
	case errs.Unauthorized:
		return http.StatusUnauthorized
	case errs.NoChannelSelected:
		return http.StatusConflict
	case errs.NetworkError, errs.StatusError, errs.DecodeError:
		return http.StatusBadGateway
	case errs.SubscriptionError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	ce, _ := errs.AsCodeError(err)
	status := httpStatus(ce.Code)
	if status >= http.StatusInternalServerError {
		s.log.Warn("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, ce)
}
