package syncer

import (
	"sort"

	"ChatSync/module/chat/model"
)

// Window is the ordered, uuid-unique slice of a channel's messages held in memory.
// Order is non-decreasing by CreatedAt. Not safe for concurrent use; the engine guards it.
type Window struct {
	msgs []model.Message
}

func (w *Window) Len() int { return len(w.msgs) }

func (w *Window) indexOf(uuid string) int {
	// newest entries are touched most, scan from the tail
	for i := len(w.msgs) - 1; i >= 0; i-- {
		if w.msgs[i].UUID == uuid {
			return i
		}
	}
	return -1
}

func (w *Window) Has(uuid string) bool { return w.indexOf(uuid) >= 0 }

// Get returns a copy of the entry with uuid.
func (w *Window) Get(uuid string) (model.Message, bool) {
	if i := w.indexOf(uuid); i >= 0 {
		return w.msgs[i], true
	}
	return model.Message{}, false
}

// Snapshot copies the messages out.
func (w *Window) Snapshot() []model.Message {
	out := make([]model.Message, len(w.msgs))
	copy(out, w.msgs)
	return out
}

func (w *Window) Reset() { w.msgs = nil }

// ReplaceAll swaps the content for msgs (chronological). Duplicate uuids keep the first.
func (w *Window) ReplaceAll(msgs []model.Message) {
	seen := make(map[string]struct{}, len(msgs))
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, dup := seen[m.UUID]; dup {
			continue
		}
		seen[m.UUID] = struct{}{}
		out = append(out, m)
	}
	w.msgs = out
	w.ensureOrder()
}

// Prepend puts older messages in front. Entries already present are left untouched and the
// incoming copy is skipped. Returns how many were added.
func (w *Window) Prepend(older []model.Message) int {
	fresh := make([]model.Message, 0, len(older))
	seen := make(map[string]struct{}, len(older))
	for _, m := range older {
		if _, dup := seen[m.UUID]; dup || w.Has(m.UUID) {
			continue
		}
		seen[m.UUID] = struct{}{}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return 0
	}
	w.msgs = append(fresh, w.msgs...)
	w.ensureOrder()
	return len(fresh)
}

// Insert appends m unless its uuid is present. m normally lands at the tail; a message older
// than the tail is placed right after the last entry not newer than it.
func (w *Window) Insert(m model.Message) bool {
	if w.Has(m.UUID) {
		return false
	}
	i := len(w.msgs)
	for i > 0 && w.msgs[i-1].CreatedAt.After(m.CreatedAt) {
		i--
	}
	w.msgs = append(w.msgs, model.Message{})
	copy(w.msgs[i+1:], w.msgs[i:])
	w.msgs[i] = m
	return true
}

// Update replaces the entry with the same uuid in place. Unknown uuid is a no-op.
func (w *Window) Update(m model.Message) bool {
	i := w.indexOf(m.UUID)
	if i < 0 {
		return false
	}
	w.msgs[i] = m
	return true
}

// Remove drops the entry with uuid. Unknown uuid is a no-op.
func (w *Window) Remove(uuid string) bool {
	i := w.indexOf(uuid)
	if i < 0 {
		return false
	}
	w.msgs = append(w.msgs[:i], w.msgs[i+1:]...)
	return true
}

// ensureOrder only sorts when the invariant is actually broken; the sort is stable so
// entries with equal timestamps keep their relative order.
func (w *Window) ensureOrder() {
	less := func(i, j int) bool { return w.msgs[i].CreatedAt.Before(w.msgs[j].CreatedAt) }
	if sort.SliceIsSorted(w.msgs, less) {
		return
	}
	sort.SliceStable(w.msgs, less)
}
