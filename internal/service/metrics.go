package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ronpa_turns_total",
		Help: "Narration turns by result (committed, failed).",
	}, []string{"result"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ronpa_turn_duration_seconds",
		Help:    "Wall time of a narration turn from submit to commit.",
		Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80},
	})

	malformedPayloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ronpa_malformed_payloads_total",
		Help: "Structured cast updates that failed to decode or validate.",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ronpa_active_sessions",
		Help: "Game loops currently held by the session manager.",
	})
)
