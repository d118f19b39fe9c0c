// README: Navigation session handlers: lifecycle, taps, typed destinations and trip history.
package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"bridgetalk/internal/http/middleware"
	"bridgetalk/internal/modules/navigation"
	"bridgetalk/internal/types"
)

// AgentAllowance reports the agent calls a user has left this month.
type AgentAllowance interface {
	Remaining(ctx context.Context, uid string) (int, error)
}

type NavigationHandler struct {
	nav       *navigation.Service
	allowance AgentAllowance
}

// NewNavigationHandler accepts a nil allowance; trip listings then omit the
// agent call count.
func NewNavigationHandler(svc *navigation.Service, allowance AgentAllowance) *NavigationHandler {
	return &NavigationHandler{nav: svc, allowance: allowance}
}

// Create handles POST /api/nav/sessions.
func (h *NavigationHandler) Create(c *gin.Context) {
	snap, err := h.nav.Create(c.Request.Context(), middleware.CallerUID(c))
	if err != nil {
		writeNavError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, snap)
}

func (h *NavigationHandler) Get(c *gin.Context) {
	id, ok := sessionID(c, h.nav)
	if !ok {
		return
	}
	snap, err := h.nav.Snapshot(c.Request.Context(), id)
	if err != nil {
		writeNavError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

func (h *NavigationHandler) Route(c *gin.Context) {
	id, ok := sessionID(c, h.nav)
	if !ok {
		return
	}
	route, err := h.nav.Route(id)
	if err != nil {
		writeNavError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, route)
}

func (h *NavigationHandler) Close(c *gin.Context) {
	id, ok := sessionID(c, h.nav)
	if !ok {
		return
	}
	if err := h.nav.Close(c.Request.Context(), id); err != nil {
		writeNavError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": "closed"})
}

func (h *NavigationHandler) Tap(c *gin.Context)    { h.do(c, h.nav.Tap) }
func (h *NavigationHandler) Listen(c *gin.Context) { h.do(c, h.nav.Listen) }
func (h *NavigationHandler) Start(c *gin.Context)  { h.do(c, h.nav.Start) }
func (h *NavigationHandler) Cancel(c *gin.Context) { h.do(c, h.nav.Cancel) }

type destinationReq struct {
	Destination string `json:"destination"`
}

// Destination handles POST /api/nav/sessions/:id/destination.
func (h *NavigationHandler) Destination(c *gin.Context) {
	id, ok := sessionID(c, h.nav)
	if !ok {
		return
	}
	var req destinationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	req.Destination = strings.TrimSpace(req.Destination)
	if req.Destination == "" {
		writeError(c, http.StatusBadRequest, "missing destination")
		return
	}
	snap, err := h.nav.SetDestination(id, req.Destination)
	if err != nil {
		writeNavError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, snap)
}

// Trips handles GET /api/nav/trips. Without auth the owner comes from the query.
func (h *NavigationHandler) Trips(c *gin.Context) {
	owner := middleware.CallerUID(c)
	if owner == "" {
		owner = c.Query("owner")
	}
	if owner == "" {
		writeError(c, http.StatusBadRequest, "missing owner")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	trips, err := h.nav.RecentTrips(c.Request.Context(), owner, limit)
	if err != nil {
		writeNavError(c, err)
		return
	}
	if trips == nil {
		trips = []navigation.Trip{}
	}
	resp := map[string]any{"trips": trips}
	if h.allowance != nil {
		left, err := h.allowance.Remaining(c.Request.Context(), owner)
		if err != nil {
			log.Printf("handlers: agent allowance for %q: %v", owner, err)
		} else {
			resp["agent_calls_remaining"] = left
		}
	}
	writeJSON(c, http.StatusOK, resp)
}

func (h *NavigationHandler) do(c *gin.Context, op func(types.ID) (navigation.Snapshot, error)) {
	id, ok := sessionID(c, h.nav)
	if !ok {
		return
	}
	snap, err := op(id)
	if err != nil {
		writeNavError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snap)
}
