package syncer

import (
	"context"
	"sync"
	"sync/atomic"

	"ChatSync/logger"
	"ChatSync/service/metrics"
	"ChatSync/tools/errs"

	"go.uber.org/zap"
)

// Transport is the subscribe/unsubscribe half of a live feed.
type Transport interface {
	Join(ctx context.Context, topic, credential string) error
	Leave(ctx context.Context) error
}

type SubState int32

const (
	SubIdle SubState = iota
	SubJoining
	SubSubscribed
	SubLeaving
)

func (s SubState) String() string {
	switch s {
	case SubIdle:
		return "idle"
	case SubJoining:
		return "joining"
	case SubSubscribed:
		return "subscribed"
	case SubLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}

const DefaultTopicPrefix = "channel:"

// Subscriptions keeps at most one live topic subscription on a transport.
// lifeMu is held across transport writes so a leave always lands before the next join.
type Subscriptions struct {
	transport   Transport
	credential  string
	topicPrefix string

	lifeMu  sync.Mutex
	state   atomic.Int32
	channel string

	log *zap.Logger
}

func NewSubscriptions(t Transport, credential, topicPrefix string) *Subscriptions {
	if topicPrefix == "" {
		topicPrefix = DefaultTopicPrefix
	}
	return &Subscriptions{
		transport:   t,
		credential:  credential,
		topicPrefix: topicPrefix,
		log:         logger.Named("subscription"),
	}
}

func (s *Subscriptions) Topic(channelID string) string { return s.topicPrefix + channelID }

func (s *Subscriptions) State() SubState { return SubState(s.state.Load()) }

func (s *Subscriptions) set(st SubState) {
	s.state.Store(int32(st))
	metrics.Subscriptions.WithLabelValues(st.String()).Inc()
}

// Channel returns the channel of the live subscription, "" when idle.
func (s *Subscriptions) Channel() string {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.channel
}

// Join leaves whatever is live and subscribes to channelID. The subscription
// counts as live as soon as the join frame is written; no ack is awaited.
func (s *Subscriptions) Join(ctx context.Context, channelID string) error {
	if channelID == "" {
		return errs.ErrArgs.WrapMsg("join: empty channel")
	}
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.leaveLocked(ctx)

	s.set(SubJoining)
	topic := s.Topic(channelID)
	if err := s.transport.Join(ctx, topic, s.credential); err != nil {
		s.set(SubIdle)
		s.log.Warn("join failed", zap.String("topic", topic), zap.Error(err))
		return errs.ErrSubscription.WrapMsg("join channel", "topic", topic, "err", err)
	}
	s.channel = channelID
	s.set(SubSubscribed)
	s.log.Debug("subscribed", zap.String("topic", topic))
	return nil
}

// Leave drops the live subscription, if any.
func (s *Subscriptions) Leave(ctx context.Context) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.leaveLocked(ctx)
}

// leaveLocked always ends Idle. A failed leave write means the connection is
// already gone, so there is nothing left to hold.
func (s *Subscriptions) leaveLocked(ctx context.Context) {
	if s.State() == SubIdle {
		return
	}
	s.set(SubLeaving)
	if err := s.transport.Leave(ctx); err != nil {
		s.log.Warn("leave failed", zap.String("channel", s.channel), zap.Error(err))
	}
	s.channel = ""
	s.set(SubIdle)
}
