// README: Websocket handler carrying server frames to the device and device events back.
package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bridgetalk/internal/modules/navigation"
	"bridgetalk/internal/stream"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxFrame   = 64 << 10
)

type StreamHandler struct {
	nav *navigation.Service
	hub *stream.Hub
	up  websocket.Upgrader
}

func NewStreamHandler(svc *navigation.Service, hub *stream.Hub) *StreamHandler {
	return &StreamHandler{
		nav: svc,
		hub: hub,
		up: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Auth is the bearer token, not the origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Stream handles GET /api/nav/sessions/:id/stream.
func (h *StreamHandler) Stream(c *gin.Context) {
	id, ok := sessionID(c, h.nav)
	if !ok {
		return
	}
	conn, err := h.up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied.
		return
	}
	defer conn.Close()

	client := h.hub.Register(string(id))
	defer h.hub.Unregister(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-client.Send:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Late joiners get the current state.
	if snap, err := h.nav.Snapshot(c.Request.Context(), id); err == nil {
		h.hub.PublishSnapshot(snap)
	}

	conn.SetReadLimit(maxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var ev stream.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("stream: session %s: bad frame: %v", id, err)
			continue
		}
		if err := stream.Apply(c.Request.Context(), h.nav, id, ev); err != nil {
			log.Printf("stream: session %s: %s: %v", id, ev.Type, err)
		}
	}
	h.hub.Unregister(client)
	<-done
}
