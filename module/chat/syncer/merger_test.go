package syncer

import (
	"testing"

	"ChatSync/module/chat/model"

	"github.com/stretchr/testify/assert"
)

func TestMergerSelfOriginIgnored(t *testing.T) {
	var w Window
	w.ReplaceAll(seq("c1", 1, 2))
	m := NewMerger("me")

	mine := msgAt("c1", 3, model.UserAuthor("me", "Me"))
	for _, kind := range []model.EventKind{model.EventCreated, model.EventUpdated, model.EventDeleted} {
		assert.Equal(t, OutcomeSelfOrigin, m.Apply(&w, "c1", model.Event{Kind: kind, Message: mine}))
	}
	// own message already in the window is not removed by its delete echo
	own := msgAt("c1", 1, model.UserAuthor("me", "Me"))
	assert.Equal(t, OutcomeSelfOrigin, m.Apply(&w, "c1", model.Event{Kind: model.EventDeleted, Message: own}))
	assert.Equal(t, []string{"c1-01", "c1-02"}, uuids(w.Snapshot()))
}

func TestMergerSameIDOtherKindIsNotSelf(t *testing.T) {
	var w Window
	m := NewMerger("me")
	hook := msgAt("c1", 1, model.WebhookAuthor("me", "Hook"))
	assert.Equal(t, OutcomeApplied, m.Apply(&w, "c1", model.Event{Kind: model.EventCreated, Message: hook}))
}

func TestMergerCreatedIdempotent(t *testing.T) {
	var w Window
	m := NewMerger("me")
	ev := model.Event{Kind: model.EventCreated, Message: msgAt("c1", 1, model.UserAuthor("bob", "Bob"))}
	assert.Equal(t, OutcomeApplied, m.Apply(&w, "c1", ev))
	assert.Equal(t, OutcomeDuplicate, m.Apply(&w, "c1", ev))
	assert.Equal(t, 1, w.Len())
}

func TestMergerUpdatedUnknownDropped(t *testing.T) {
	var w Window
	w.ReplaceAll(seq("c1", 1, 2))
	m := NewMerger("me")

	up := msgAt("c1", 7, model.UserAuthor("bob", "Bob"))
	assert.Equal(t, OutcomeUnknown, m.Apply(&w, "c1", model.Event{Kind: model.EventUpdated, Message: up}))
	assert.Equal(t, 2, w.Len())

	up = msgAt("c1", 2, model.UserAuthor("bob", "Bob"))
	up.Body = "new"
	assert.Equal(t, OutcomeApplied, m.Apply(&w, "c1", model.Event{Kind: model.EventUpdated, Message: up}))
	assert.Equal(t, "new", w.Snapshot()[1].Body)
}

func TestMergerDeletedIdempotent(t *testing.T) {
	var w Window
	w.ReplaceAll(seq("c1", 1, 3))
	m := NewMerger("me")
	ev := model.Event{Kind: model.EventDeleted, Message: model.Message{UUID: "c1-02"}}
	assert.Equal(t, OutcomeApplied, m.Apply(&w, "c1", ev))
	assert.Equal(t, OutcomeUnknown, m.Apply(&w, "c1", ev))
	assert.Equal(t, []string{"c1-01", "c1-03"}, uuids(w.Snapshot()))
}

func TestMergerForeignChannelDropped(t *testing.T) {
	var w Window
	m := NewMerger("me")
	ev := model.Event{Kind: model.EventCreated, Message: msgAt("c2", 1, model.UserAuthor("bob", "Bob"))}
	assert.Equal(t, OutcomeForeignChannel, m.Apply(&w, "c1", ev))
	assert.Equal(t, OutcomeForeignChannel, m.Apply(&w, "", ev))
	assert.Zero(t, w.Len())
}

func TestMergerCreatedWithoutTimestampDropped(t *testing.T) {
	var w Window
	w.ReplaceAll(seq("c1", 1, 2))
	m := NewMerger("me")
	bare := model.Message{UUID: "no-ts", ChannelID: "c1", Author: model.UserAuthor("bob", "Bob")}
	assert.Equal(t, OutcomeMalformed, m.Apply(&w, "c1", model.Event{Kind: model.EventCreated, Message: bare}))
	assert.Equal(t, []string{"c1-01", "c1-02"}, uuids(w.Snapshot()))
}
