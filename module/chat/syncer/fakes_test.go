package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ChatSync/module/chat/feed"
	"ChatSync/module/chat/model"
	"ChatSync/tools/errs"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func msgAt(channelID string, n int, author model.Author) model.Message {
	return model.Message{
		UUID:      fmt.Sprintf("%s-%02d", channelID, n),
		ChannelID: channelID,
		Body:      fmt.Sprintf("body %d", n),
		Author:    author,
		CreatedAt: base.Add(time.Duration(n) * time.Minute),
	}
}

func seq(channelID string, from, to int) []model.Message {
	out := make([]model.Message, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, msgAt(channelID, i, model.UserAuthor("bob", "Bob")))
	}
	return out
}

func uuids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.UUID
	}
	return out
}

// fakeStore serves channels from memory. A gate registered for a key blocks the
// matching call until it is closed; started is signalled when the call arrives.
type fakeStore struct {
	mu       sync.Mutex
	channels map[string][]model.Message
	gates    map[string]chan struct{}
	started  map[string]chan struct{}
	fail     map[string]error
	calls    int
	now      time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		channels: make(map[string][]model.Message),
		gates:    make(map[string]chan struct{}),
		started:  make(map[string]chan struct{}),
		fail:     make(map[string]error),
		now:      base.Add(time.Hour),
	}
}

// gate returns the started signal and the release func for key.
func (s *fakeStore) gate(key string) (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := make(chan struct{})
	st := make(chan struct{})
	s.gates[key] = g
	s.started[key] = st
	return st, func() { close(g) }
}

func (s *fakeStore) enter(ctx context.Context, key string) error {
	s.mu.Lock()
	s.calls++
	g := s.gates[key]
	st := s.started[key]
	delete(s.gates, key)
	delete(s.started, key)
	err := s.fail[key]
	s.mu.Unlock()

	if st != nil {
		close(st)
	}
	if g != nil {
		select {
		case <-g:
		case <-ctx.Done():
			return errs.ErrNetwork.WrapMsg("canceled", "err", ctx.Err())
		}
	}
	return err
}

func (s *fakeStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeStore) ListMessages(ctx context.Context, channelID string, page, limit int) (*model.Page, error) {
	if err := s.enter(ctx, fmt.Sprintf("list/%s/%d", channelID, page)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.channels[channelID]
	n := len(all)
	pages := (n + limit - 1) / limit
	if pages < 1 {
		pages = 1
	}
	hi := n - (page-1)*limit
	lo := hi - limit
	if lo < 0 {
		lo = 0
	}
	var data []model.Message
	for i := hi - 1; i >= lo; i-- {
		data = append(data, all[i])
	}
	return &model.Page{Data: data, Pages: pages}, nil
}

func (s *fakeStore) CreateMessage(ctx context.Context, d model.Draft) (*model.Message, error) {
	if err := s.enter(ctx, "create"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(time.Second)
	m := model.Message{
		UUID:      d.UUID,
		ChannelID: d.ChannelID,
		Body:      d.Body,
		Author:    model.UserAuthor("me", "Me"),
		CreatedAt: s.now,
	}
	s.channels[d.ChannelID] = append(s.channels[d.ChannelID], m)
	return &m, nil
}

func (s *fakeStore) UpdateMessage(ctx context.Context, id string, p model.Patch) (*model.Message, error) {
	if err := s.enter(ctx, "update"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch, msgs := range s.channels {
		for i := range msgs {
			if msgs[i].UUID == id {
				msgs[i].Body = p.Body
				s.channels[ch] = msgs
				m := msgs[i]
				return &m, nil
			}
		}
	}
	return nil, errs.ErrStatus.WrapMsg("PATCH", "status", 404)
}

func (s *fakeStore) DeleteMessage(ctx context.Context, id string) error {
	if err := s.enter(ctx, "delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch, msgs := range s.channels {
		for i := range msgs {
			if msgs[i].UUID == id {
				s.channels[ch] = append(msgs[:i], msgs[i+1:]...)
				return nil
			}
		}
	}
	return errs.ErrStatus.WrapMsg("DELETE", "status", 404)
}

// fakeFeed records join/leave calls in order and lets tests push events.
type fakeFeed struct {
	mu      sync.Mutex
	ops     []string
	sink    feed.Sink
	joinErr error
}

func (f *fakeFeed) Join(_ context.Context, topic, credential string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	f.ops = append(f.ops, "join "+topic+" "+credential)
	return nil
}

func (f *fakeFeed) Leave(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "leave")
	return nil
}

func (f *fakeFeed) Attach(s feed.Sink) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = s
	return func() {
		f.mu.Lock()
		f.sink = nil
		f.mu.Unlock()
	}
}

func (f *fakeFeed) push(kind model.EventKind, m model.Message) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	if sink != nil {
		sink(model.Event{Kind: kind, Message: m})
	}
}

func (f *fakeFeed) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// memSelections is an in-memory SelectionStore for engine tests.
type memSelections struct {
	mu sync.Mutex
	m  map[string]string
}

func (s *memSelections) SaveSelection(_ context.Context, user, ch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = map[string]string{}
	}
	s.m[user] = ch
	return nil
}

func (s *memSelections) LoadSelection(_ context.Context, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[user], nil
}

func (s *memSelections) ClearSelection(_ context.Context, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, user)
	return nil
}
