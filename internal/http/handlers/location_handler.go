// README: Device report handlers: position fixes, geolocation errors, recognizer and playback events.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bridgetalk/internal/modules/navigation"
	"bridgetalk/internal/stream"
)

// DeviceHandler accepts the device events over plain HTTP for clients that
// do not keep a socket open. The websocket carries the same events.
type DeviceHandler struct {
	nav *navigation.Service
}

func NewDeviceHandler(svc *navigation.Service) *DeviceHandler {
	return &DeviceHandler{nav: svc}
}

// Location handles PUT /api/nav/sessions/:id/location. A body with a code is
// a geolocation error, anything else a fix.
func (h *DeviceHandler) Location(c *gin.Context) {
	h.apply(c, func(ev *stream.Event) {
		if ev.Code != 0 {
			ev.Type = stream.FrameLocationError
		} else {
			ev.Type = stream.FrameFix
		}
	})
}

func (h *DeviceHandler) Transcript(c *gin.Context)       { h.applyType(c, stream.FrameTranscript) }
func (h *DeviceHandler) RecognitionError(c *gin.Context) { h.applyType(c, stream.FrameRecognitionError) }
func (h *DeviceHandler) RecognitionEnd(c *gin.Context)   { h.applyType(c, stream.FrameRecognitionEnd) }
func (h *DeviceHandler) PlaybackEnded(c *gin.Context)    { h.applyType(c, stream.FramePlaybackEnded) }

func (h *DeviceHandler) applyType(c *gin.Context, t stream.FrameType) {
	h.apply(c, func(ev *stream.Event) { ev.Type = t })
}

func (h *DeviceHandler) apply(c *gin.Context, typed func(*stream.Event)) {
	id, ok := sessionID(c, h.nav)
	if !ok {
		return
	}
	var ev stream.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	typed(&ev)
	if err := stream.Apply(c.Request.Context(), h.nav, id, ev); err != nil {
		writeNavError(c, err)
		return
	}
	snap, err := h.nav.Snapshot(c.Request.Context(), id)
	if err != nil {
		writeNavError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snap)
}
