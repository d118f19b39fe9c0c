// README: Navigation session model: phases, routes, snapshots and trip records.
package navigation

import (
	"time"

	"bridgetalk/internal/types"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseListening  Phase = "listening"
	PhaseProcessing Phase = "processing"
	PhaseReady      Phase = "ready"
	PhaseNavigating Phase = "navigating"
	PhaseError      Phase = "error"
)

type TravelMode string

const (
	TravelWalking TravelMode = "WALKING"
	TravelTransit TravelMode = "TRANSIT"
)

// RouteStep is one instruction-bearing segment of the route leg.
type RouteStep struct {
	EndLocation     types.Point `json:"end_location"`
	InstructionHTML string      `json:"instruction_html"`
	DistanceText    string      `json:"distance_text"`
	DistanceMeters  int         `json:"distance_meters"`
	DurationText    string      `json:"duration_text,omitempty"`
	TravelMode      TravelMode  `json:"travel_mode"`
	TransitLine     string      `json:"transit_line,omitempty"`
	VehicleName     string      `json:"vehicle_name,omitempty"`
}

// Route is immutable once handed to a session; a new request replaces it.
type Route struct {
	Steps               []RouteStep `json:"steps"`
	TotalDistanceText   string      `json:"total_distance_text"`
	TotalDurationText   string      `json:"total_duration_text"`
	TotalDistanceMeters int         `json:"total_distance_meters"`
	TravelMode          TravelMode  `json:"travel_mode"`
}

// Place is a geocoded destination.
type Place struct {
	Name     string      `json:"name,omitempty"`
	Address  string      `json:"address"`
	Location types.Point `json:"location"`
}

type RouteRequest struct {
	Origin       types.Point
	Destination  string
	Mode         TravelMode
	Alternatives bool
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	ID                     types.ID     `json:"id"`
	Owner                  string       `json:"owner,omitempty"`
	Phase                  Phase        `json:"phase"`
	Destination            string       `json:"destination"`
	CurrentStepIndex       int          `json:"current_step_index"`
	LastAnnouncedStepIndex int          `json:"last_announced_step_index"`
	StepCount              int          `json:"step_count"`
	CurrentPosition        *types.Point `json:"current_position,omitempty"`
	Instruction            string       `json:"instruction"`
	Error                  ErrorCode    `json:"error,omitempty"`
	ErrorDetail            string       `json:"error_detail,omitempty"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

type TripOutcome string

const (
	OutcomeArrived   TripOutcome = "arrived"
	OutcomeCancelled TripOutcome = "cancelled"
	OutcomeFailed    TripOutcome = "failed"
)

// Trip is the trip-log record of one started navigation.
type Trip struct {
	SessionID   types.ID    `json:"session_id"`
	Owner       string      `json:"owner"`
	Destination string      `json:"destination"`
	TravelMode  TravelMode  `json:"travel_mode"`
	StepCount   int         `json:"step_count"`
	StartedAt   time.Time   `json:"started_at"`
	EndedAt     time.Time   `json:"ended_at"`
	Outcome     TripOutcome `json:"outcome"`
}
