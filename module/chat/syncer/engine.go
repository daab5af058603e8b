package syncer

import (
	"context"
	"sync"
	"time"

	"ChatSync/logger"
	"ChatSync/module/chat/feed"
	"ChatSync/module/chat/model"
	"ChatSync/service/metrics"
	"ChatSync/tools/errs"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageAPI is the message store as the engine uses it.
type MessageAPI interface {
	Lister
	CreateMessage(ctx context.Context, draft model.Draft) (*model.Message, error)
	UpdateMessage(ctx context.Context, uuid string, patch model.Patch) (*model.Message, error)
	DeleteMessage(ctx context.Context, uuid string) error
}

// Feed is a live feed transport with an event sink slot.
type Feed interface {
	Transport
	Attach(s feed.Sink) (detach func())
}

// SelectionStore remembers the last channel a user had open.
type SelectionStore interface {
	SaveSelection(ctx context.Context, userID, channelID string) error
	LoadSelection(ctx context.Context, userID string) (string, error)
	ClearSelection(ctx context.Context, userID string) error
}

type Options struct {
	LocalUserID string
	Credential  string
	PageSize    int
	TopicPrefix string
	Selections  SelectionStore // optional
}

const selectionTimeout = 2 * time.Second

// Engine keeps the window of the selected channel in sync with the store and the
// live feed. All window and cursor writes happen under mu, which is never held
// across I/O. Every selection bumps gen; results issued under an older gen are
// returned to their caller but never touch the window.
type Engine struct {
	api        MessageAPI
	pager      *Pager
	merger     *Merger
	subs       *Subscriptions
	selections SelectionStore
	userID     string

	selectMu sync.Mutex // orders leave/reset/join of consecutive selections
	detach   func()

	mu        sync.Mutex
	gen       uint64
	channelID string
	window    Window
	cursor    Cursor
	loading   bool
	errMsg    string
	closed    bool
	watchers  map[uint64]chan State
	watchSeq  uint64

	log *zap.Logger
}

func NewEngine(api MessageAPI, f Feed, opts Options) *Engine {
	e := &Engine{
		api:        api,
		pager:      NewPager(api, opts.PageSize),
		merger:     NewMerger(opts.LocalUserID),
		subs:       NewSubscriptions(f, opts.Credential, opts.TopicPrefix),
		selections: opts.Selections,
		userID:     opts.LocalUserID,
		cursor:     NewCursor(),
		watchers:   make(map[uint64]chan State),
		log:        logger.Named("engine"),
	}
	e.detach = f.Attach(e.onEvent)
	return e
}

func (e *Engine) onEvent(ev model.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.merger.Apply(&e.window, e.channelID, ev) == OutcomeApplied {
		e.publishLocked()
	}
}

// SelectChannel switches to channelID: leaves the old topic, resets the window,
// loads page 1 and joins the new topic. It returns once page 1 has been handled.
func (e *Engine) SelectChannel(ctx context.Context, channelID string) error {
	if channelID == "" {
		return errs.ErrArgs.WrapMsg("select channel: empty id")
	}

	e.selectMu.Lock()
	e.subs.Leave(ctx)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.selectMu.Unlock()
		return errs.ErrSubscription.WrapMsg("engine closed")
	}
	e.gen++
	gen := e.gen
	e.channelID = channelID
	e.window.Reset()
	e.cursor = NewCursor()
	e.loading = true
	e.errMsg = ""
	e.publishLocked()
	e.mu.Unlock()

	pageDone := make(chan error, 1)
	go func() {
		pageDone <- e.load(ctx, gen, channelID, 1)
	}()

	joinErr := e.subs.Join(ctx, channelID)
	e.selectMu.Unlock()

	e.mu.Lock()
	if joinErr != nil && gen == e.gen {
		e.errMsg = errorText(joinErr)
	}
	e.publishLocked()
	e.mu.Unlock()

	e.remember(ctx, channelID)

	pageErr := <-pageDone
	if joinErr != nil {
		return joinErr
	}
	return pageErr
}

// Deselect leaves the live topic and clears the view.
func (e *Engine) Deselect(ctx context.Context) {
	e.selectMu.Lock()
	defer e.selectMu.Unlock()
	e.subs.Leave(ctx)

	e.mu.Lock()
	e.gen++
	e.resetLocked()
	e.publishLocked()
	e.mu.Unlock()

	e.forget(ctx)
}

// Close tears the engine down: leaves the live topic and detaches from the feed.
// The remembered selection is kept so a later Resume can pick it up.
func (e *Engine) Close(ctx context.Context) {
	e.selectMu.Lock()
	defer e.selectMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.gen++
	e.mu.Unlock()

	e.subs.Leave(ctx)
	if e.detach != nil {
		e.detach()
	}

	e.mu.Lock()
	e.resetLocked()
	e.closeWatchersLocked()
	e.mu.Unlock()
	e.log.Info("engine closed")
}

// Resume selects the channel remembered for the local user, if there is one.
func (e *Engine) Resume(ctx context.Context) error {
	if e.selections == nil || e.userID == "" {
		return nil
	}
	channelID, err := e.selections.LoadSelection(ctx, e.userID)
	if err != nil {
		return errs.WrapMsg(err, "load selection", "user", e.userID)
	}
	if channelID == "" {
		return nil
	}
	e.log.Info("resuming channel", zap.String("channel", channelID))
	return e.SelectChannel(ctx, channelID)
}

// LoadOlder fetches the page before the oldest one held. No-op when every page is
// loaded or a load is already running.
func (e *Engine) LoadOlder(ctx context.Context) error {
	e.mu.Lock()
	if e.channelID == "" {
		e.mu.Unlock()
		return errs.ErrNoChannelSelected.WrapMsg("load older")
	}
	if e.loading || e.cursor.Exhausted() {
		e.mu.Unlock()
		return nil
	}
	e.loading = true
	gen, channelID, next := e.gen, e.channelID, e.cursor.Page+1
	e.publishLocked()
	e.mu.Unlock()

	return e.load(ctx, gen, channelID, next)
}

// DismissError clears the error shown to the user.
func (e *Engine) DismissError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.errMsg == "" {
		return
	}
	e.errMsg = ""
	e.publishLocked()
}

// Create sends a new message. The returned message goes straight into the window;
// its echo on the feed is filtered as self-origin.
func (e *Engine) Create(ctx context.Context, draft model.Draft) (*model.Message, error) {
	gen, channelID := e.current()
	if draft.ChannelID == "" {
		draft.ChannelID = channelID
	}
	if draft.ChannelID == "" {
		return nil, errs.ErrNoChannelSelected.WrapMsg("create message")
	}
	if draft.UUID == "" {
		draft.UUID = uuid.NewString()
	}

	msg, err := e.api.CreateMessage(ctx, draft)
	if err != nil {
		e.mutationFailed("create", gen, err)
		return nil, err
	}
	if msg.ChannelID == "" {
		msg.ChannelID = draft.ChannelID
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen || msg.ChannelID != e.channelID {
		metrics.Mutations.WithLabelValues("create", "stale").Inc()
		return msg, nil
	}
	e.window.Insert(*msg)
	metrics.Mutations.WithLabelValues("create", "ok").Inc()
	e.publishLocked()
	return msg, nil
}

// Update edits a message body and replaces the window entry in place.
func (e *Engine) Update(ctx context.Context, id string, patch model.Patch) (*model.Message, error) {
	if id == "" {
		return nil, errs.ErrArgs.WrapMsg("update message: empty uuid")
	}
	gen, channelID := e.current()
	if channelID == "" {
		return nil, errs.ErrNoChannelSelected.WrapMsg("update message")
	}

	msg, err := e.api.UpdateMessage(ctx, id, patch)
	if err != nil {
		e.mutationFailed("update", gen, err)
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		metrics.Mutations.WithLabelValues("update", "stale").Inc()
		return msg, nil
	}
	e.window.Update(*msg)
	metrics.Mutations.WithLabelValues("update", "ok").Inc()
	e.publishLocked()
	return msg, nil
}

// Delete removes a message. On failure the window entry stays.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errs.ErrArgs.WrapMsg("delete message: empty uuid")
	}
	gen, channelID := e.current()
	if channelID == "" {
		return errs.ErrNoChannelSelected.WrapMsg("delete message")
	}

	if err := e.api.DeleteMessage(ctx, id); err != nil {
		e.mutationFailed("delete", gen, err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		metrics.Mutations.WithLabelValues("delete", "stale").Inc()
		return nil
	}
	e.window.Remove(id)
	metrics.Mutations.WithLabelValues("delete", "ok").Inc()
	e.publishLocked()
	return nil
}

// load fetches a page and applies it if gen is still the selected one.
func (e *Engine) load(ctx context.Context, gen uint64, channelID string, page int) error {
	res, err := e.pager.Fetch(ctx, channelID, page)

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		metrics.PageLoads.WithLabelValues("stale").Inc()
		e.log.Debug("discard stale page", zap.String("channel", channelID), zap.Int("page", page))
		return nil
	}
	e.loading = false
	if err != nil {
		metrics.PageLoads.WithLabelValues("error").Inc()
		e.log.Warn("load page failed", zap.String("channel", channelID), zap.Int("page", page), zap.Error(err))
		e.errMsg = errorText(err)
		e.publishLocked()
		return err
	}

	var carry []model.Message
	if page == 1 {
		carry = e.window.Snapshot()
	}
	e.pager.Apply(&e.window, &e.cursor, res, carry)
	metrics.PageLoads.WithLabelValues("ok").Inc()
	e.publishLocked()
	return nil
}

func (e *Engine) current() (uint64, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen, e.channelID
}

func (e *Engine) mutationFailed(op string, gen uint64, err error) {
	metrics.Mutations.WithLabelValues(op, "error").Inc()
	e.log.Warn("mutation failed", zap.String("op", op), zap.Error(err))
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return
	}
	e.errMsg = errorText(err)
	e.publishLocked()
}

func (e *Engine) resetLocked() {
	e.channelID = ""
	e.window.Reset()
	e.cursor = NewCursor()
	e.loading = false
	e.errMsg = ""
}

func (e *Engine) remember(ctx context.Context, channelID string) {
	if e.selections == nil || e.userID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), selectionTimeout)
	defer cancel()
	if err := e.selections.SaveSelection(ctx, e.userID, channelID); err != nil {
		e.log.Warn("save selection failed", zap.String("channel", channelID), zap.Error(err))
	}
}

func (e *Engine) forget(ctx context.Context) {
	if e.selections == nil || e.userID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), selectionTimeout)
	defer cancel()
	if err := e.selections.ClearSelection(ctx, e.userID); err != nil {
		e.log.Warn("clear selection failed", zap.Error(err))
	}
}
