package syncer

import (
	"testing"

	"ChatSync/module/chat/model"

	"github.com/stretchr/testify/assert"
)

func TestWindowInsertIsIdempotent(t *testing.T) {
	var w Window
	m := msgAt("c1", 1, model.UserAuthor("bob", "Bob"))
	assert.True(t, w.Insert(m))
	assert.False(t, w.Insert(m))
	assert.Equal(t, 1, w.Len())
}

func TestWindowInsertKeepsOrder(t *testing.T) {
	var w Window
	w.ReplaceAll(seq("c1", 1, 3))
	w.Insert(msgAt("c1", 5, model.SystemAuthor("bot")))
	// late arrival older than the tail
	w.Insert(msgAt("c1", 4, model.SystemAuthor("bot")))
	w.Insert(msgAt("c1", 0, model.SystemAuthor("bot")))

	assert.Equal(t, []string{"c1-00", "c1-01", "c1-02", "c1-03", "c1-04", "c1-05"}, uuids(w.Snapshot()))
}

func TestWindowInsertEqualTimestampGoesAfter(t *testing.T) {
	var w Window
	a := msgAt("c1", 1, model.SystemAuthor("bot"))
	b := a
	b.UUID = "same-time"
	w.Insert(a)
	w.Insert(b)
	assert.Equal(t, []string{"c1-01", "same-time"}, uuids(w.Snapshot()))
}

func TestWindowPrependSkipsPresent(t *testing.T) {
	var w Window
	w.ReplaceAll(seq("c1", 5, 8))
	added := w.Prepend(seq("c1", 2, 5))
	assert.Equal(t, 3, added)
	assert.Equal(t, []string{"c1-02", "c1-03", "c1-04", "c1-05", "c1-06", "c1-07", "c1-08"}, uuids(w.Snapshot()))

	assert.Zero(t, w.Prepend(seq("c1", 2, 3)))
}

func TestWindowPrependKeepsExistingCopy(t *testing.T) {
	var w Window
	edited := msgAt("c1", 3, model.UserAuthor("bob", "Bob"))
	edited.Body = "edited"
	w.ReplaceAll([]model.Message{edited})
	w.Prepend(seq("c1", 1, 3))

	got, ok := w.Get("c1-03")
	assert.True(t, ok)
	assert.Equal(t, "edited", got.Body)
}

func TestWindowUpdateAndRemove(t *testing.T) {
	var w Window
	w.ReplaceAll(seq("c1", 1, 3))

	up := msgAt("c1", 2, model.UserAuthor("bob", "Bob"))
	up.Body = "changed"
	assert.True(t, w.Update(up))
	assert.Equal(t, "changed", w.Snapshot()[1].Body)
	assert.Equal(t, "c1-02", w.Snapshot()[1].UUID)

	assert.False(t, w.Update(msgAt("c1", 9, model.SystemAuthor("x"))))
	assert.Equal(t, 3, w.Len())

	assert.True(t, w.Remove("c1-02"))
	assert.False(t, w.Remove("c1-02"))
	assert.Equal(t, []string{"c1-01", "c1-03"}, uuids(w.Snapshot()))
}

func TestWindowReplaceAllDedupsAndSorts(t *testing.T) {
	var w Window
	in := append(seq("c1", 3, 4), seq("c1", 1, 3)...)
	w.ReplaceAll(in)
	assert.Equal(t, []string{"c1-01", "c1-02", "c1-03", "c1-04"}, uuids(w.Snapshot()))
}

func TestWindowSnapshotIsCopy(t *testing.T) {
	var w Window
	w.ReplaceAll(seq("c1", 1, 2))
	s := w.Snapshot()
	s[0].Body = "mutated"
	got, _ := w.Get("c1-01")
	assert.Equal(t, "body 1", got.Body)
}
