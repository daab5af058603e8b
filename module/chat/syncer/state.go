package syncer

import (
	"ChatSync/module/chat/model"
	"ChatSync/service/metrics"
	"ChatSync/tools/errs"
)

// State is what a UI renders for the selected channel.
type State struct {
	ChannelID    string          `json:"channel_id"`
	Messages     []model.Message `json:"messages"`
	IsLoading    bool            `json:"is_loading"`
	Error        string          `json:"error,omitempty"`
	Page         int             `json:"page"`
	MaxPages     int             `json:"max_pages"`
	Subscription string          `json:"subscription"`
	Generation   uint64          `json:"generation"`
}

// errorText renders err the way the UI shows it.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	if ce, ok := errs.AsCodeError(err); ok {
		return ce.Display()
	}
	return err.Error()
}

func (e *Engine) snapshotLocked() State {
	return State{
		ChannelID:    e.channelID,
		Messages:     e.window.Snapshot(),
		IsLoading:    e.loading,
		Error:        e.errMsg,
		Page:         e.cursor.Page,
		MaxPages:     e.cursor.MaxPages,
		Subscription: e.subs.State().String(),
		Generation:   e.gen,
	}
}

// State returns a copy of the current view.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Watch streams snapshots after every change. The channel keeps only the latest
// snapshot, so a slow reader skips intermediate ones. cancel must be called.
func (e *Engine) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return ch, func() {}
	}
	e.watchSeq++
	id := e.watchSeq
	e.watchers[id] = ch
	ch <- e.snapshotLocked()

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if c, ok := e.watchers[id]; ok {
			delete(e.watchers, id)
			close(c)
		}
	}
}

// publishLocked pushes the current snapshot to every watcher without blocking.
func (e *Engine) publishLocked() {
	metrics.WindowSize.Set(float64(e.window.Len()))
	if len(e.watchers) == 0 {
		return
	}
	s := e.snapshotLocked()
	for _, ch := range e.watchers {
		select {
		case ch <- s:
			continue
		default:
		}
		// drop the stale one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func (e *Engine) closeWatchersLocked() {
	for id, ch := range e.watchers {
		delete(e.watchers, id)
		close(ch)
	}
}
