// README: Device events arriving over the socket and their dispatch to the navigation service.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bridgetalk/internal/modules/location"
	"bridgetalk/internal/modules/navigation"
	"bridgetalk/internal/speech"
	"bridgetalk/internal/types"
)

var (
	ErrUnknownFrame = errors.New("unknown frame type")
	ErrBadFrame     = errors.New("malformed frame")
)

// Event is a device to server frame.
type Event struct {
	Type FrameType `json:"type"`

	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	AccuracyM float64  `json:"accuracy,omitempty"`
	// Timestamp is unix milliseconds.
	Timestamp int64 `json:"timestamp,omitempty"`

	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	RecognitionID int64  `json:"recognition_id,omitempty"`
	Text          string `json:"text,omitempty"`
	Final         bool   `json:"final,omitempty"`
	Kind          string `json:"error,omitempty"`

	UtteranceID string `json:"utterance_id,omitempty"`
	Failure     string `json:"failure,omitempty"`
}

// Controller is the part of the navigation service device events reach.
type Controller interface {
	Tap(id types.ID) (navigation.Snapshot, error)
	Transcript(id types.ID, recID int64, text string, final bool) (navigation.Snapshot, error)
	RecognitionError(id types.ID, recID int64, kind speech.ErrorKind) (navigation.Snapshot, error)
	RecognitionEnded(id types.ID, recID int64) (navigation.Snapshot, error)
	PlaybackEnded(id types.ID, utteranceID, failure string) error
	UpdateLocation(ctx context.Context, u location.Update) error
	LocationError(id types.ID, code location.ErrorCode, msg string) error
}

// Apply routes one device event to the session.
func Apply(ctx context.Context, c Controller, id types.ID, ev Event) error {
	var err error
	switch ev.Type {
	case FrameFix:
		if ev.Lat == nil || ev.Lng == nil {
			return fmt.Errorf("%w: fix without lat/lng", ErrBadFrame)
		}
		u := location.Update{
			SessionID: id,
			Position:  types.Point{Lat: *ev.Lat, Lng: *ev.Lng},
			AccuracyM: ev.AccuracyM,
		}
		if ev.Timestamp > 0 {
			u.RecordedAt = time.UnixMilli(ev.Timestamp)
		}
		err = c.UpdateLocation(ctx, u)
	case FrameLocationError:
		err = c.LocationError(id, location.ErrorCode(ev.Code), ev.Message)
	case FrameTranscript:
		_, err = c.Transcript(id, ev.RecognitionID, ev.Text, ev.Final)
	case FrameRecognitionError:
		if ev.Kind == "" {
			return fmt.Errorf("%w: recognition_error without error", ErrBadFrame)
		}
		_, err = c.RecognitionError(id, ev.RecognitionID, speech.ErrorKind(ev.Kind))
	case FrameRecognitionEnd:
		_, err = c.RecognitionEnded(id, ev.RecognitionID)
	case FramePlaybackEnded:
		if ev.UtteranceID == "" {
			return fmt.Errorf("%w: playback_ended without utterance_id", ErrBadFrame)
		}
		err = c.PlaybackEnded(id, ev.UtteranceID, ev.Failure)
	case FrameTap:
		_, err = c.Tap(id)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrame, ev.Type)
	}
	return err
}
