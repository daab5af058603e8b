package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ChatSync/config"
	"ChatSync/logger"
	"ChatSync/module/chat/feed"
	"ChatSync/module/chat/store"
	"ChatSync/module/chat/syncer"
	"ChatSync/service/api"
	"ChatSync/service/storage"
	redisx "ChatSync/service/storage/redis"
	"ChatSync/tools/ids"
	"ChatSync/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync engine and the local API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger.SetLevel(cfg.LogLevel)
		defer logger.Sync()
		ids.SetNodeID(cfg.NodeID)
		if !strings.EqualFold(cfg.LogLevel, "debug") {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()
		return a.run(ctx)
	},
}

// app owns everything serve starts.
type app struct {
	cfg      *config.AppConfig
	feed     io.Closer
	feedDone <-chan struct{}
	rdb      *goredis.Client
	pg       *pgxpool.Pool
	engine   *syncer.Engine
	http     *http.Server
	log      *zap.Logger
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a := &app{cfg: cfg, log: logger.Named("serve")}
	credential := strings.TrimPrefix(cfg.Token, "Bearer ")

	client := store.NewClient(cfg.Store.BaseURL, credential, store.WithTimeout(cfg.Store.Timeout))

	var f syncer.Feed
	switch strings.ToLower(cfg.Feed.Transport) {
	case config.FeedTransportNats:
		nf, err := feed.DialNats(feed.NatsConf{
			Servers:       cfg.Feed.Nats.Servers,
			Name:          cfg.Feed.Nats.Name,
			User:          cfg.Feed.Nats.User,
			Password:      cfg.Feed.Nats.Password,
			SubjectPrefix: cfg.Feed.Nats.SubjectPrefix,
			Timeout:       cfg.Feed.Nats.Timeout,
		})
		if err != nil {
			return nil, err
		}
		f, a.feed, a.feedDone = nf, nf, nf.Done()
	default:
		wf, err := feed.DialWS(ctx, feed.WSConf{
			URL:          cfg.Feed.URL,
			Credential:   credential,
			PingInterval: cfg.Feed.PingInterval,
			PongWait:     cfg.Feed.PongWait,
			WriteWait:    cfg.Feed.WriteWait,
		})
		if err != nil {
			return nil, err
		}
		f, a.feed, a.feedDone = wf, wf, wf.Done()
	}

	var selections syncer.SelectionStore
	switch {
	case cfg.Redis.Enabled:
		rdb, err := redisx.Open(ctx, redisx.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		a.rdb = rdb
		selections = storage.NewRedisSelections(rdb, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
	case cfg.Postgres.Enabled:
		pool, err := storage.OpenPg(ctx, cfg.Postgres.DSN)
		if err != nil {
			a.close()
			return nil, err
		}
		a.pg = pool
		pgSel, err := storage.NewPgSelections(ctx, pool, cfg.Postgres.Table, cfg.Postgres.TTL)
		if err != nil {
			a.close()
			return nil, err
		}
		selections = pgSel
	default:
		selections = storage.NewMemorySelections(cfg.Redis.TTL)
	}

	a.engine = syncer.NewEngine(client, f, syncer.Options{
		LocalUserID: cfg.UserID,
		Credential:  credential,
		PageSize:    cfg.Store.PageSize,
		TopicPrefix: cfg.Feed.TopicPrefix,
		Selections:  selections,
	})

	srv := api.NewServer(a.engine, api.Options{
		Token:        cfg.API.Token,
		PingInterval: cfg.Feed.PingInterval,
		PongWait:     cfg.Feed.PongWait,
		WriteWait:    cfg.Feed.WriteWait,
	})
	a.http = &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

func (a *app) run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	safe.SafeGo("api.listen", func() {
		a.log.Info("local api listening", zap.String("addr", a.http.Addr), zap.String("user", a.cfg.UserID))
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	})

	if a.cfg.Resume {
		safe.SafeGo("engine.resume", func() {
			if err := a.engine.Resume(ctx); err != nil {
				a.log.Warn("resume failed", zap.Error(err))
			}
		})
	}

	feedDone := a.feedDone
	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutting down")
			return nil
		case err := <-serveErr:
			return errors.Wrap(err, "local api")
		case <-feedDone:
			// no resubscribe: the window stops receiving live updates until restart
			a.log.Warn("live feed lost, live updates stopped")
			feedDone = nil
		}
	}
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if a.http != nil {
		if err := a.http.Shutdown(ctx); err != nil {
			a.log.Warn("api shutdown", zap.Error(err))
		}
	}
	if a.engine != nil {
		a.engine.Close(ctx)
	}
	if a.feed != nil {
		_ = a.feed.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pg != nil {
		a.pg.Close()
	}
}
