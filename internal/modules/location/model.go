// README: Position fixes and geolocation error codes.
package location

import (
	"errors"
	"fmt"
	"time"

	"bridgetalk/internal/types"
)

// Fix is one reported device position.
type Fix struct {
	Position   types.Point `json:"position"`
	AccuracyM  float64     `json:"accuracy_m,omitempty"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// ErrorCode mirrors the geolocation error codes reported by devices.
type ErrorCode int

const (
	CodePermissionDenied    ErrorCode = 1
	CodePositionUnavailable ErrorCode = 2
	CodeTimeout             ErrorCode = 3
)

// LocationError is a geolocation failure reported by the device.
type LocationError struct {
	Code    ErrorCode
	Message string
}

func (e *LocationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("location error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("location error %d", e.Code)
}

// Transient reports whether more fixes may still arrive. Only a permission
// denial is terminal until the user changes device settings.
func (e *LocationError) Transient() bool {
	return e.Code != CodePermissionDenied
}

var (
	ErrNoFix      = errors.New("no position fix available")
	ErrInvalidFix = errors.New("invalid position fix")
	ErrBadCode    = errors.New("unknown geolocation error code")
)

// Update is a fix pushed by the device for a session.
type Update struct {
	SessionID types.ID
	Position  types.Point
	AccuracyM float64
	// RecordedAt defaults to arrival time when zero.
	RecordedAt time.Time
}
