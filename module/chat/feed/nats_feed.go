package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"ChatSync/logger"
	"ChatSync/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NatsConf 客户端配置
type NatsConf struct {
	Servers       []string
	Name          string
	User          string
	Password      string
	SubjectPrefix string
	Timeout       time.Duration
}

// NatsFeed carries the same JSON frames as the websocket feed, one subject per topic.
// Auth happens at connect time, so the join credential is not sent.
type NatsFeed struct {
	*Dispatcher

	conf NatsConf
	nc   *nats.Conn
	done chan struct{}

	mu  sync.Mutex
	sub *nats.Subscription
	log *zap.Logger
}

func DialNats(conf NatsConf) (*NatsFeed, error) {
	if len(conf.Servers) == 0 {
		return nil, errs.ErrSubscription.WrapMsg("nats servers missing")
	}
	if conf.Timeout == 0 {
		conf.Timeout = 3 * time.Second
	}
	log := logger.Named("feed.nats")
	done := make(chan struct{})
	// a drop ends the feed, same as the websocket one
	opts := []nats.Option{
		nats.Name(conf.Name),
		nats.NoReconnect(),
		nats.Timeout(conf.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ClosedHandler(func(*nats.Conn) { close(done) }),
	}
	if conf.User != "" {
		opts = append(opts, nats.UserInfo(conf.User, conf.Password))
	}
	nc, err := nats.Connect(strings.Join(conf.Servers, ","), opts...)
	if err != nil {
		return nil, errs.ErrSubscription.WrapMsg("connect nats", "err", err)
	}
	return &NatsFeed{
		Dispatcher: NewDispatcher(),
		conf:       conf,
		nc:         nc,
		done:       done,
		log:        log,
	}, nil
}

// Subject maps a feed topic onto a NATS subject. Characters NATS treats specially become '_'.
func Subject(prefix, topic string) string {
	t := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '.', '*', '>':
			return '_'
		}
		return r
	}, topic)
	if prefix == "" {
		return t
	}
	return strings.TrimRight(prefix, ".") + "." + t
}

func (f *NatsFeed) Join(_ context.Context, topic, _ string) error {
	subject := Subject(f.conf.SubjectPrefix, topic)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil {
		return errs.ErrSubscription.WrapMsg("already joined", "subject", f.sub.Subject)
	}
	sub, err := f.nc.Subscribe(subject, func(m *nats.Msg) {
		f.Dispatch(m.Data)
	})
	if err != nil {
		return errs.ErrSubscription.WrapMsg("subscribe", "subject", subject, "err", err)
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	f.sub = sub
	f.log.Debug("joined", zap.String("subject", subject))
	return nil
}

func (f *NatsFeed) Leave(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub == nil {
		return nil
	}
	subject := f.sub.Subject
	err := f.sub.Unsubscribe()
	f.sub = nil
	if err != nil {
		return errs.ErrSubscription.WrapMsg("unsubscribe", "subject", subject, "err", err)
	}
	f.log.Debug("left", zap.String("subject", subject))
	return nil
}

// Publish pushes an already encoded frame to a topic. Lets another process relay server
// events onto the bus.
func (f *NatsFeed) Publish(topic string, frame []byte) error {
	return f.nc.Publish(Subject(f.conf.SubjectPrefix, topic), frame)
}

// Done is closed once the connection is gone for good.
func (f *NatsFeed) Done() <-chan struct{} { return f.done }

func (f *NatsFeed) Close() error {
	_ = f.Leave(context.Background())
	return f.nc.Drain()
}
