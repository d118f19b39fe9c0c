// README: Base handler utilities (JSON helpers, error mapping, session lookup).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bridgetalk/internal/http/middleware"
	"bridgetalk/internal/modules/location"
	"bridgetalk/internal/modules/navigation"
	"bridgetalk/internal/stream"
	"bridgetalk/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the UUIDs the navigation service issues.
func isValidID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeNavError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, navigation.ErrSessionNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, navigation.ErrSessionClosed):
		writeError(c, http.StatusGone, err.Error())
	case errors.Is(err, navigation.ErrNoRoute), errors.Is(err, navigation.ErrBusy):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, navigation.ErrEmptyDestination),
		errors.Is(err, location.ErrInvalidFix),
		errors.Is(err, location.ErrBadCode),
		errors.Is(err, stream.ErrBadFrame),
		errors.Is(err, stream.ErrUnknownFrame):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// sessionID reads and validates the :id path parameter and checks that the
// caller owns the session. It writes the error response itself.
func sessionID(c *gin.Context, nav *navigation.Service) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid session id")
		return "", false
	}
	snap, err := nav.Snapshot(c.Request.Context(), types.ID(id))
	if err != nil {
		writeNavError(c, err)
		return "", false
	}
	// Only the authenticated owner may drive a session.
	if uid := middleware.CallerUID(c); uid != "" && snap.Owner != uid {
		writeError(c, http.StatusForbidden, "forbidden: session belongs to another user")
		return "", false
	}
	return types.ID(id), true
}
