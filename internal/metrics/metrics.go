// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VotesTotal counts ledger changes by content kind and outcome
	VotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jukwaa_votes_total",
		Help: "Vote ledger operations by content kind and outcome",
	}, []string{"kind", "outcome"})

	PollVotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jukwaa_poll_votes_total",
		Help: "Poll vote attempts by result",
	}, []string{"result"})

	ContentCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jukwaa_content_created_total",
		Help: "Posts and comments created",
	}, []string{"kind"})

	ReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jukwaa_reports_total",
		Help: "Reports filed by target kind and reason",
	}, []string{"kind", "reason"})

	// ModerationDecisionsTotal counts single and bulk transitions by result
	ModerationDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jukwaa_moderation_decisions_total",
		Help: "Moderation transitions by action and result",
	}, []string{"action", "result"})

	EventsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jukwaa_events_dispatched_total",
		Help: "Events handed to sinks by sink and result",
	}, []string{"sink", "result"})

	// EventsDroppedTotal counts events discarded because the dispatch queue was full
	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jukwaa_events_dropped_total",
		Help: "Events dropped because the dispatch queue was full",
	}, []string{"type"})

	EventDeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jukwaa_event_delivery_duration_seconds",
		Help:    "Sink delivery latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"sink"})

	TreeCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jukwaa_content_tree_cache_total",
		Help: "Content tree cache lookups by result",
	}, []string{"result"})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jukwaa_rate_limited_total",
		Help: "Mutation requests rejected by the per-actor rate limiter",
	})

	RankingQueueDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jukwaa_ranking_queue_dropped_total",
		Help: "Hot score recomputations skipped because the ranking queue was full",
	})
)
