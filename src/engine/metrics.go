package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chess_engine_searches_total",
		Help: "Engine searches by outcome",
	}, []string{"outcome"})

	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chess_engine_search_duration_seconds",
		Help:    "Time from dispatch to bestmove",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chess_engine_queue_depth",
		Help: "Requests waiting for the engine",
	})

	parseAnomalies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chess_engine_parse_anomalies_total",
		Help: "Engine output lines dropped because they could not be parsed",
	})
)

const (
	outcomeOK        = "ok"
	outcomeCancelled = "cancelled"
	outcomeAborted   = "aborted"
	outcomeAbandoned = "abandoned"
	outcomeFailed    = "failed"
)
