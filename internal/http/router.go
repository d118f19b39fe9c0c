// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bridgetalk/internal/http/handlers"
	"bridgetalk/internal/http/middleware"
	"bridgetalk/internal/infra"
	"bridgetalk/internal/modules/navigation"
	"bridgetalk/internal/stream"
)

// NewRouter accepts a nil verifier (open API) and a nil allowance.
func NewRouter(nav *navigation.Service, hub *stream.Hub, verifier infra.TokenVerifier, allowance handlers.AgentAllowance) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(), middleware.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/nav", middleware.Auth(verifier))

	navHandler := handlers.NewNavigationHandler(nav, allowance)
	api.POST("/sessions", navHandler.Create)
	api.GET("/sessions/:id", navHandler.Get)
	api.DELETE("/sessions/:id", navHandler.Close)
	api.GET("/sessions/:id/route", navHandler.Route)
	api.POST("/sessions/:id/tap", navHandler.Tap)
	api.POST("/sessions/:id/listen", navHandler.Listen)
	api.POST("/sessions/:id/start", navHandler.Start)
	api.POST("/sessions/:id/cancel", navHandler.Cancel)
	api.POST("/sessions/:id/destination", navHandler.Destination)
	api.GET("/trips", navHandler.Trips)

	deviceHandler := handlers.NewDeviceHandler(nav)
	api.PUT("/sessions/:id/location", deviceHandler.Location)
	api.POST("/sessions/:id/transcript", deviceHandler.Transcript)
	api.POST("/sessions/:id/recognition/error", deviceHandler.RecognitionError)
	api.POST("/sessions/:id/recognition/end", deviceHandler.RecognitionEnd)
	api.POST("/sessions/:id/playback/ended", deviceHandler.PlaybackEnded)

	streamHandler := handlers.NewStreamHandler(nav, hub)
	api.GET("/sessions/:id/stream", streamHandler.Stream)

	return r
}
