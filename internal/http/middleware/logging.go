// README: Access log and per-route request metrics.
package middleware

import (
	"log"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridgetalk",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route template and status",
	}, []string{"method", "route", "status"})

	requestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bridgetalk",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route template",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// quietPaths are scraped or probed constantly and only counted.
var quietPaths = map[string]bool{"/health": true, "/metrics": true}

// Logging records every request. Routes are labelled by template so session
// IDs do not explode the metric cardinality.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		requestSeconds.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

		if quietPaths[c.Request.URL.Path] {
			return
		}
		if id := c.Param("id"); id != "" {
			log.Printf("%s %s %d %s session=%s", c.Request.Method, route, status, elapsed.Round(time.Millisecond), id)
			return
		}
		log.Printf("%s %s %d %s", c.Request.Method, route, status, elapsed.Round(time.Millisecond))
	}
}
