package navigation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is the failure taxonomy stored on a session for the UI.
type ErrorCode string

const (
	CodeLocationUnavailable ErrorCode = "LocationUnavailable"
	CodeMapsNotReady        ErrorCode = "MapsNotReady"
	CodeGeocodeFailed       ErrorCode = "GeocodeFailed"
	CodeRouteNotFound       ErrorCode = "RouteNotFound"
	CodeSpeechRecognition   ErrorCode = "SpeechRecognitionError"
	CodeRemoteAgent         ErrorCode = "RemoteAgentError"
)

var (
	ErrSessionNotFound  = errors.New("navigation session not found")
	ErrSessionClosed    = errors.New("navigation session closed")
	ErrNoRoute          = errors.New("no route to start")
	ErrEmptyDestination = errors.New("destination is empty")
	ErrNoAgent          = errors.New("no voice agent configured")
	ErrBusy             = errors.New("session is busy")
)

// Maps web service statuses the planner distinguishes.
const (
	StatusZeroResults    = "ZERO_RESULTS"
	StatusNotFound       = "NOT_FOUND"
	StatusRequestDenied  = "REQUEST_DENIED"
	StatusOverQueryLimit = "OVER_QUERY_LIMIT"
)

const (
	OpGeocode    = "geocode"
	OpDirections = "directions"
)

// ProviderError is a maps provider failure tagged with its service status.
type ProviderError struct {
	Op     string
	Status string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Status)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StatusOf extracts a known status from a provider error message such as
// "maps: NOT_FOUND - ". Unknown messages yield "".
func StatusOf(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, s := range []string{StatusZeroResults, StatusNotFound, StatusRequestDenied, StatusOverQueryLimit} {
		if strings.Contains(msg, s) {
			return s
		}
	}
	return ""
}

// Failure is a classified error: a taxonomy code, the sentence spoken to the
// user and a short detail for the UI.
type Failure struct {
	Code   ErrorCode
	Spoken string
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Code, f.Err)
	}
	return string(f.Code)
}

func (f *Failure) Unwrap() error { return f.Err }

const (
	msgLocationMissing  = "I still don't have your location. Please enable GPS and try again."
	msgMapsNotReady     = "Maps service not ready. Please wait a moment and try again."
	msgLocationNotFound = "I couldn't find that location. Please try saying the full address or a well-known landmark."
	msgBadDestination   = "I couldn't understand that destination. Please try again with a full address or landmark name."
	msgRouteGeneric     = "I could not find a route to that location. Please try a different destination."
)

func noRouteMessage(mode TravelMode) string {
	if mode == TravelTransit {
		return "No transit route found. The destination might be unreachable from here right now."
	}
	return "No walking route found. The destination might be too far or unreachable on foot."
}

// classifyRouteError maps a geocoding or directions failure onto the taxonomy.
func classifyRouteError(err error, mode TravelMode) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	op := OpDirections
	status := StatusOf(err)
	var pe *ProviderError
	if errors.As(err, &pe) {
		op = pe.Op
		if pe.Status != "" {
			status = pe.Status
		}
	}

	if op == OpGeocode {
		switch status {
		case StatusZeroResults, StatusNotFound:
			return &Failure{Code: CodeGeocodeFailed, Spoken: msgLocationNotFound, Detail: "Location not found", Err: err}
		default:
			return &Failure{Code: CodeGeocodeFailed, Spoken: msgBadDestination, Detail: "Invalid destination", Err: err}
		}
	}

	switch status {
	case StatusZeroResults:
		return &Failure{Code: CodeRouteNotFound, Spoken: noRouteMessage(mode), Detail: "No route available", Err: err}
	case StatusNotFound:
		return &Failure{Code: CodeGeocodeFailed, Spoken: msgLocationNotFound, Detail: "Location not found", Err: err}
	case StatusRequestDenied, StatusOverQueryLimit:
		return &Failure{Code: CodeMapsNotReady, Spoken: msgMapsNotReady, Detail: "Maps not ready", Err: err}
	default:
		return &Failure{Code: CodeRouteNotFound, Spoken: msgRouteGeneric, Detail: "Route not found", Err: err}
	}
}
