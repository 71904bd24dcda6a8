package v1

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "operations_total",
		Help:      "Auth operations by operation and outcome kind.",
	}, []string{"operation", "result"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "auth",
		Name:      "sessions_active",
		Help:      "Sessions held in memory, including expired ones not yet collected.",
	})
)
