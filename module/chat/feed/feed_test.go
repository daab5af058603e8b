package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ChatSync/module/chat/model"
	"ChatSync/tools/errs"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	f, err := ParseFrameJSON([]byte(`{"type":"chat_message_created","payload":{"uuid":"u"}}`))
	require.NoError(t, err)
	assert.Equal(t, FrameCreated, f.Type)

	f, err = ParseFrameJSON([]byte(`{"error":"channel not found"}`))
	require.NoError(t, err)
	assert.Equal(t, "channel not found", f.Error)

	_, err = ParseFrameJSON([]byte(`{}`))
	assert.Error(t, err)
	_, err = ParseFrameJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestBuildJoinFrame(t *testing.T) {
	b, err := json.Marshal(BuildJoinFrame("channel:c1", "Bearer abc"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"join_channel","channel":"channel:c1","token":"Bearer abc"}`, string(b))

	b, err = json.Marshal(BuildLeaveFrame())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"leave_channel"}`, string(b))
}

func TestDispatcherRoutesEvents(t *testing.T) {
	d := NewDispatcher()
	var got []model.Event
	d.Attach(func(ev model.Event) { got = append(got, ev) })

	for _, kind := range []model.EventKind{model.EventCreated, model.EventUpdated, model.EventDeleted} {
		raw, err := BuildEventFrame(model.Event{Kind: kind, Message: model.Message{UUID: "u1", ChannelID: "c1"}})
		require.NoError(t, err)
		d.Dispatch(raw)
	}
	d.Dispatch([]byte(`{"error":"nope"}`))
	d.Dispatch([]byte(`{"type":"typing","payload":{}}`))
	d.Dispatch([]byte(`{"type":"chat_message_created","payload":"oops"}`))
	d.Dispatch([]byte(`garbage`))

	require.Len(t, got, 3)
	assert.Equal(t, model.EventCreated, got[0].Kind)
	assert.Equal(t, model.EventUpdated, got[1].Kind)
	assert.Equal(t, model.EventDeleted, got[2].Kind)
	assert.Equal(t, "u1", got[2].Message.UUID)
}

func TestStaleDetachKeepsNewerSink(t *testing.T) {
	d := NewDispatcher()
	var first, second int
	detachFirst := d.Attach(func(model.Event) { first++ })
	d.Attach(func(model.Event) { second++ })
	detachFirst()

	raw, _ := BuildEventFrame(model.Event{Kind: model.EventCreated, Message: model.Message{UUID: "x"}})
	d.Dispatch(raw)
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "chat.feed.channel:c_1", Subject("chat.feed.", "channel:c.1"))
	assert.Equal(t, "x_y", Subject("", "x y"))
}

// fakeFeedServer records outbound frames and pushes whatever the test sends on push.
func fakeFeedServer(t *testing.T) (url string, frames <-chan OutFrame, push chan<- []byte, auth <-chan string) {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	frameCh := make(chan OutFrame, 16)
	pushCh := make(chan []byte, 16)
	authCh := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCh <- r.Header.Get("Authorization")
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range pushCh {
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				close(pushCh)
				wg.Wait()
				return
			}
			var f OutFrame
			if json.Unmarshal(data, &f) == nil {
				frameCh <- f
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), frameCh, pushCh, authCh
}

func TestWSFeedJoinLeaveAndEvents(t *testing.T) {
	url, frames, push, auth := fakeFeedServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f, err := DialWS(ctx, WSConf{URL: url, Credential: "cred"})
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "Bearer cred", <-auth)

	events := make(chan model.Event, 4)
	f.Attach(func(ev model.Event) { events <- ev })

	require.NoError(t, f.Join(ctx, "channel:c1", ""))
	join := <-frames
	assert.Equal(t, FrameJoin, join.Type)
	assert.Equal(t, "channel:c1", join.Channel)
	assert.Equal(t, "Bearer cred", join.Token)

	raw, _ := BuildEventFrame(model.Event{Kind: model.EventCreated, Message: model.Message{UUID: "m1", ChannelID: "c1"}})
	push <- raw
	select {
	case ev := <-events:
		assert.Equal(t, "m1", ev.Message.UUID)
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}

	require.NoError(t, f.Leave(ctx))
	assert.Equal(t, FrameLeave, (<-frames).Type)

	require.NoError(t, f.Close())
	<-f.Done()
	assert.Error(t, f.Join(ctx, "channel:c2", ""))
}

func runNatsServer(t *testing.T) *server.Server {
	t.Helper()
	opts := natstest.DefaultTestOptions
	opts.Port = -1
	s := natstest.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s
}

func TestNatsFeedJoinLeaveAndEvents(t *testing.T) {
	s := runNatsServer(t)
	f, err := DialNats(NatsConf{Servers: []string{s.ClientURL()}, SubjectPrefix: "chat.feed"})
	require.NoError(t, err)
	defer f.Close()

	events := make(chan model.Event, 4)
	f.Attach(func(ev model.Event) { events <- ev })

	recv := func(uuid string) {
		t.Helper()
		select {
		case ev := <-events:
			assert.Equal(t, uuid, ev.Message.UUID)
		case <-time.After(3 * time.Second):
			t.Fatalf("event %s not delivered", uuid)
		}
	}
	frame := func(uuid string) []byte {
		raw, err := BuildEventFrame(model.Event{Kind: model.EventCreated, Message: model.Message{UUID: uuid, ChannelID: "c1"}})
		require.NoError(t, err)
		return raw
	}

	ctx := context.Background()
	require.NoError(t, f.Join(ctx, "channel:c1", "ignored"))
	assert.ErrorIs(t, f.Join(ctx, "channel:c2", ""), errs.ErrSubscription)

	require.NoError(t, f.Publish("channel:c1", frame("m1")))
	recv("m1")

	require.NoError(t, f.Leave(ctx))
	require.NoError(t, f.Publish("channel:c1", frame("after-leave")))

	// same connection, so the server handles these in order: m2 arriving first proves
	// the frame sent after leave was never delivered
	require.NoError(t, f.Join(ctx, "channel:c2", ""))
	require.NoError(t, f.Publish("channel:c2", frame("m2")))
	recv("m2")
	assert.Empty(t, events)
}

func TestNatsFeedDoneOnServerLoss(t *testing.T) {
	s := runNatsServer(t)
	f, err := DialNats(NatsConf{Servers: []string{s.ClientURL()}})
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Join(context.Background(), "channel:c1", ""))

	s.Shutdown()
	select {
	case <-f.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("feed kept reconnecting after the server went away")
	}
}

func TestDialNatsNeedsServers(t *testing.T) {
	_, err := DialNats(NatsConf{})
	assert.ErrorIs(t, err, errs.ErrSubscription)
}
