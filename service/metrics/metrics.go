package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatsync"

var (
	// FeedFrames counts inbound live feed frames by outcome: event, malformed, error, unknown.
	FeedFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "frames_total",
		Help:      "Inbound live feed frames by outcome.",
	}, []string{"outcome"})

	// MergeOutcomes counts what the merger did with each event.
	MergeOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "merge",
		Name:      "events_total",
		Help:      "Live events by kind and merge outcome.",
	}, []string{"kind", "outcome"})

	PageLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pager",
		Name:      "loads_total",
		Help:      "Page loads by result: ok, error, stale.",
	}, []string{"result"})

	Mutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "mutations_total",
		Help:      "Create/update/delete calls by result: ok, error, stale.",
	}, []string{"op", "result"})

	Subscriptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "subscription",
		Name:      "transitions_total",
		Help:      "Subscription state transitions by target state.",
	}, []string{"state"})

	WindowSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "window_messages",
		Help:      "Messages currently held in the window.",
	})
)

func init() {
	prometheus.MustRegister(FeedFrames, MergeOutcomes, PageLoads, Mutations, Subscriptions, WindowSize)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
