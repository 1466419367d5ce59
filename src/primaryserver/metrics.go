package primaryserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chess_server_queue_depth",
		Help: "Jobs waiting for a worker.",
	})

	resultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chess_server_results_total",
		Help: "Results submitted by workers, by outcome.",
	}, []string{"outcome"})

	reviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chess_server_reviews_total",
		Help: "Game reviews run, by outcome.",
	}, []string{"outcome"})
)
