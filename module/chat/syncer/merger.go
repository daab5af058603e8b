package syncer

import (
	"ChatSync/module/chat/model"
	"ChatSync/service/metrics"
)

// Outcome is what the merger did with one event.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeSelfOrigin     Outcome = "self_origin"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeUnknown        Outcome = "unknown"
	OutcomeForeignChannel Outcome = "foreign_channel"
	OutcomeMalformed      Outcome = "malformed"
)

// Merger folds live feed events into a window.
//
// Events authored by the local user are skipped: the local mutation path already
// applied them. The same user acting from another client is skipped too, which is
// a known limitation of filtering by author.
type Merger struct {
	localUserID string
}

func NewMerger(localUserID string) *Merger {
	return &Merger{localUserID: localUserID}
}

func (m *Merger) isSelf(msg model.Message) bool {
	return msg.Author.IsUser(m.localUserID)
}

// Apply merges ev into w, which holds channelID. Caller must hold the window lock.
func (m *Merger) Apply(w *Window, channelID string, ev model.Event) Outcome {
	out := m.apply(w, channelID, ev)
	metrics.MergeOutcomes.WithLabelValues(ev.Kind.String(), string(out)).Inc()
	return out
}

func (m *Merger) apply(w *Window, channelID string, ev model.Event) Outcome {
	msg := ev.Message
	if channelID == "" || (msg.ChannelID != "" && msg.ChannelID != channelID) {
		return OutcomeForeignChannel
	}
	if m.isSelf(msg) {
		return OutcomeSelfOrigin
	}

	switch ev.Kind {
	case model.EventCreated:
		// without created_at there is no place for it in the window
		if msg.CreatedAt.IsZero() {
			return OutcomeMalformed
		}
		if !w.Insert(msg) {
			return OutcomeDuplicate
		}
	case model.EventUpdated:
		if !w.Update(msg) {
			return OutcomeUnknown
		}
	case model.EventDeleted:
		if !w.Remove(msg.UUID) {
			return OutcomeUnknown
		}
	default:
		return OutcomeUnknown
	}
	return OutcomeApplied
}
