package navigation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bridgetalk",
		Subsystem: "navigation",
		Name:      "active_sessions",
		Help:      "Navigation sessions currently open on this instance",
	})

	announcements = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bridgetalk",
		Subsystem: "navigation",
		Name:      "step_announcements_total",
		Help:      "Turn announcements spoken",
	})

	arrivals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bridgetalk",
		Subsystem: "navigation",
		Name:      "arrivals_total",
		Help:      "Sessions that reached their destination",
	})

	failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridgetalk",
		Subsystem: "navigation",
		Name:      "failures_total",
		Help:      "Session failures by error code",
	}, []string{"code"})

	routeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridgetalk",
		Subsystem: "navigation",
		Name:      "route_requests_total",
		Help:      "Directions requests by travel mode",
	}, []string{"mode"})

	agentFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bridgetalk",
		Subsystem: "navigation",
		Name:      "agent_fallbacks_total",
		Help:      "Voice commands resolved by local prefix matching after an agent failure",
	})

	recognitionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bridgetalk",
		Subsystem: "navigation",
		Name:      "recognition_retries_total",
		Help:      "Automatic restarts after a no-speech recognizer error",
	})
)
