// Package metrics registers the grid engine's Prometheus counters:
// ug_presence_*, ug_datasource_*.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PresenceReconnects counts reconnect attempts against the presence feed.
	PresenceReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ug_presence_reconnect_attempts_total",
		Help: "Reconnect attempts against the presence feed",
	})

	// PresenceFramesDiscarded counts malformed or unknown-type frames dropped.
	PresenceFramesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ug_presence_frames_discarded_total",
		Help: "Presence frames discarded as malformed or of unknown type",
	})

	// PresenceDeltas counts user_status deltas fanned out to subscribers.
	PresenceDeltas = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ug_presence_deltas_total",
		Help: "Presence deltas delivered to subscribers",
	})

	// Fetches counts collection queries by outcome.
	Fetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ug_datasource_fetches_total",
		Help: "Collection queries issued by the grid data source",
	}, []string{"outcome"})

	// StaleResponsesDropped counts responses discarded because a newer
	// query had already been issued.
	StaleResponsesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ug_datasource_stale_responses_dropped_total",
		Help: "Fetch responses dropped on arrival as superseded",
	})
)
