package feed

import (
	"encoding/json"
	"sync"

	"ChatSync/logger"
	"ChatSync/module/chat/model"
	"ChatSync/service/metrics"

	"github.com/golang/glog"
	"go.uber.org/zap"
)

// Sink receives decoded events. Only one sink is attached to a feed at a time.
type Sink func(model.Event)

// Handler turns one frame type into an event.
type Handler interface {
	Type() string
	Handle(f *InFrame) (model.Event, error)
}

type messageHandler struct {
	typ  string
	kind model.EventKind
}

func (h messageHandler) Type() string { return h.typ }

func (h messageHandler) Handle(f *InFrame) (model.Event, error) {
	var m model.Message
	if err := json.Unmarshal(f.Payload, &m); err != nil {
		return model.Event{}, err
	}
	return model.Event{Kind: h.kind, Message: m}, nil
}

// Dispatcher decodes raw frames and hands events to the attached sink.
// Both transports share it.
type Dispatcher struct {
	handlers map[string]Handler

	mu   sync.RWMutex
	sink Sink
	gen  uint64
}

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{handlers: make(map[string]Handler)}
	d.register(messageHandler{typ: FrameCreated, kind: model.EventCreated})
	d.register(messageHandler{typ: FrameUpdated, kind: model.EventUpdated})
	d.register(messageHandler{typ: FrameDeleted, kind: model.EventDeleted})
	return d
}

// handlers are fixed once NewDispatcher returns, Dispatch reads them without a lock.
func (d *Dispatcher) register(h Handler) { d.handlers[h.Type()] = h }

func (d *Dispatcher) GetHandler(typ string) Handler {
	h, ok := d.handlers[typ]
	if !ok {
		glog.Infof("no handler for type=%v", typ)
		return nil
	}
	return h
}

// Attach replaces the current sink. The returned detach only clears the slot if
// nobody attached since, so a stale detach cannot drop a newer engine's sink.
func (d *Dispatcher) Attach(s Sink) (detach func()) {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.sink = s
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		if d.gen == gen {
			d.sink = nil
		}
		d.mu.Unlock()
	}
}

// Dispatch handles one raw frame. Malformed frames and server errors are logged and dropped.
func (d *Dispatcher) Dispatch(raw []byte) {
	f, err := ParseFrameJSON(raw)
	if err != nil {
		sample := raw
		if len(sample) > 256 {
			sample = sample[:256]
		}
		logger.Debug("[feed] drop malformed frame", zap.Error(err), zap.ByteString("sample", sample), zap.Int("len", len(raw)))
		metrics.FeedFrames.WithLabelValues("malformed").Inc()
		return
	}
	if f.Error != "" {
		logger.Warn("[feed] server reported error", zap.String("error", f.Error))
		metrics.FeedFrames.WithLabelValues("error").Inc()
		return
	}

	h := d.GetHandler(f.Type)
	if h == nil {
		metrics.FeedFrames.WithLabelValues("unknown").Inc()
		return
	}
	ev, err := h.Handle(f)
	if err != nil {
		logger.Debug("[feed] drop frame with bad payload", zap.String("type", f.Type), zap.Error(err))
		metrics.FeedFrames.WithLabelValues("malformed").Inc()
		return
	}
	metrics.FeedFrames.WithLabelValues("event").Inc()

	d.mu.RLock()
	sink := d.sink
	d.mu.RUnlock()
	if sink == nil {
		return
	}
	sink(ev)
}
