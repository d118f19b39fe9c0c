// README: Wire frames between the server and the device socket.
package stream

import (
	"encoding/json"
	"log"

	"bridgetalk/internal/modules/navigation"
	"bridgetalk/internal/speech"
	"bridgetalk/internal/types"
)

type FrameType string

// Server to device.
const (
	FramePhase       FrameType = "phase"
	FrameInstruction FrameType = "instruction"
	FramePlay        FrameType = "play"
	FrameStop        FrameType = "stop"
	FrameListen      FrameType = "listen"
	FrameAbortListen FrameType = "abort_listen"
)

// Device to server.
const (
	FrameFix              FrameType = "fix"
	FrameLocationError    FrameType = "location_error"
	FrameTranscript       FrameType = "transcript"
	FrameRecognitionError FrameType = "recognition_error"
	FrameRecognitionEnd   FrameType = "recognition_end"
	FramePlaybackEnded    FrameType = "playback_ended"
	FrameTap              FrameType = "tap"
)

// Frame is a server to device message. Only the fields of its type are set.
type Frame struct {
	Type      FrameType `json:"type"`
	SessionID types.ID  `json:"session_id"`

	Phase       navigation.Phase     `json:"phase,omitempty"`
	Error       navigation.ErrorCode `json:"error,omitempty"`
	ErrorDetail string               `json:"error_detail,omitempty"`

	Instruction      string `json:"instruction,omitempty"`
	CurrentStepIndex *int   `json:"current_step_index,omitempty"`
	StepCount        *int   `json:"step_count,omitempty"`

	Utterance     *speech.Utterance          `json:"utterance,omitempty"`
	UtteranceID   string                     `json:"utterance_id,omitempty"`
	Recognition   *speech.RecognitionRequest `json:"recognition,omitempty"`
	RecognitionID int64                      `json:"recognition_id,omitempty"`
}

// Publish encodes f and broadcasts it to the session's sockets.
func (h *Hub) Publish(f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	h.Broadcast(string(f.SessionID), b)
	return nil
}

// PublishSnapshot is the navigation service's change hook: it sends the
// phase and the instruction of every new snapshot.
func (h *Hub) PublishSnapshot(s navigation.Snapshot) {
	cur, steps := s.CurrentStepIndex, s.StepCount
	frames := []Frame{
		{Type: FramePhase, SessionID: s.ID, Phase: s.Phase, Error: s.Error, ErrorDetail: s.ErrorDetail},
		{Type: FrameInstruction, SessionID: s.ID, Instruction: s.Instruction, CurrentStepIndex: &cur, StepCount: &steps},
	}
	for _, f := range frames {
		if err := h.Publish(f); err != nil {
			log.Printf("stream: publish %s for %s: %v", f.Type, s.ID, err)
		}
	}
}
