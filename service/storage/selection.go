package storage

import (
	"context"
	"sync"
	"time"

	"ChatSync/tools/errs"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// selection key: <prefix>selection:<user>
// Value: channel id, TTL bounds how long a stale selection is resumed
func selectionKey(prefix, user string) string { return prefix + "selection:" + user }

// ===== Redis =====

// RedisSelections keeps the last selected channel per user in Redis so several
// daemons for the same user resume the same channel.
type RedisSelections struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSelections(rdb *redis.Client, prefix string, ttl time.Duration) *RedisSelections {
	return &RedisSelections{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisSelections) SaveSelection(ctx context.Context, user, channelID string) error {
	if user == "" || channelID == "" {
		return errs.ErrArgs.WrapMsg("save selection", "user", user, "channel", channelID)
	}
	return errs.Wrap(s.rdb.Set(ctx, selectionKey(s.prefix, user), channelID, s.ttl).Err())
}

// LoadSelection returns "" when nothing is remembered.
func (s *RedisSelections) LoadSelection(ctx context.Context, user string) (string, error) {
	val, err := s.rdb.Get(ctx, selectionKey(s.prefix, user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errs.Wrap(err)
	}
	return val, nil
}

func (s *RedisSelections) ClearSelection(ctx context.Context, user string) error {
	return errs.Wrap(s.rdb.Del(ctx, selectionKey(s.prefix, user)).Err())
}

// ===== 内存 =====

type memEntry struct {
	channelID string
	expireAt  time.Time
}

// MemorySelections is the fallback when Redis is disabled. Lost on restart.
type MemorySelections struct {
	mu  sync.Mutex
	m   map[string]memEntry
	ttl time.Duration
	now func() time.Time
}

func NewMemorySelections(ttl time.Duration) *MemorySelections {
	return &MemorySelections{m: make(map[string]memEntry), ttl: ttl, now: time.Now}
}

func (s *MemorySelections) SaveSelection(_ context.Context, user, channelID string) error {
	if user == "" || channelID == "" {
		return errs.ErrArgs.WrapMsg("save selection", "user", user, "channel", channelID)
	}
	e := memEntry{channelID: channelID}
	if s.ttl > 0 {
		e.expireAt = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	s.m[user] = e
	s.mu.Unlock()
	return nil
}

func (s *MemorySelections) LoadSelection(_ context.Context, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[user]
	if !ok {
		return "", nil
	}
	if !e.expireAt.IsZero() && !s.now().Before(e.expireAt) {
		delete(s.m, user)
		return "", nil
	}
	return e.channelID, nil
}

func (s *MemorySelections) ClearSelection(_ context.Context, user string) error {
	s.mu.Lock()
	delete(s.m, user)
	s.mu.Unlock()
	return nil
}
