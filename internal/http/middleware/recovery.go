// README: Panic recovery; the failed request gets a JSON 500 and the stack goes to the log.
package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var panics = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "bridgetalk",
	Subsystem: "http",
	Name:      "panics_total",
	Help:      "Handler panics recovered",
})

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			panics.Inc()
			log.Printf("http: panic in %s %s: %v\n%s", c.Request.Method, c.Request.URL.Path, r, debug.Stack())
			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}()
		c.Next()
	}
}
