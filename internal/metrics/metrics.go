// Package metrics exposes prometheus collectors for the orchestration core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "peervoice",
		Name:      "active_connections",
		Help:      "Currently open signaling connections.",
	})
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "peervoice",
		Name:      "queue_depth",
		Help:      "Users currently waiting in the matchmaking queue.",
	})
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "peervoice",
		Name:      "active_rooms",
		Help:      "Rooms that have not ended yet.",
	})
	MatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "peervoice",
		Name:      "matches_total",
		Help:      "Rooms created, queue matches and accepted direct calls combined.",
	})
	SessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peervoice",
		Name:      "sessions_ended_total",
		Help:      "Ended rooms by end reason.",
	}, []string{"reason"})
	Invites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peervoice",
		Name:      "direct_call_invites_total",
		Help:      "Direct-call invites by outcome.",
	}, []string{"outcome"})
	Supersessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "peervoice",
		Name:      "supersessions_total",
		Help:      "Stale connections force-closed after the same identity signed in elsewhere.",
	})
)
