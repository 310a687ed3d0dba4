// Package metrics registers the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts inbound events by dispatch outcome
	// (processed, duplicate, ignored_type, completed, cooldown,
	// locked, no_flow, dropped).
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapflow",
		Subsystem: "dispatcher",
		Name:      "events_total",
		Help:      "Inbound events by dispatch outcome.",
	}, []string{"outcome"})

	// SessionsStarted counts sessions created at the start node.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "zapflow",
		Subsystem: "engine",
		Name:      "sessions_started_total",
		Help:      "Sessions created.",
	})

	// SessionsEnded counts sessions destroyed at terminal nodes.
	SessionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "zapflow",
		Subsystem: "engine",
		Name:      "sessions_ended_total",
		Help:      "Sessions destroyed after reaching a terminal node.",
	})

	// NodesProcessed counts node executions by node type.
	NodesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapflow",
		Subsystem: "engine",
		Name:      "nodes_processed_total",
		Help:      "Node executions by type.",
	}, []string{"type"})

	// MediaDeliveries counts media pipeline outcomes
	// (sent, compressed, fallback, failed).
	MediaDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapflow",
		Subsystem: "media",
		Name:      "deliveries_total",
		Help:      "Media pipeline outcomes.",
	}, []string{"outcome"})

	// NudgesSent counts re-engagement messages delivered.
	NudgesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "zapflow",
		Subsystem: "remarketing",
		Name:      "nudges_sent_total",
		Help:      "Re-engagement nudges delivered.",
	})
)
