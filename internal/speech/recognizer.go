package speech

import (
	"context"
	"errors"
)

// RecognitionRequest starts one single-utterance recognition on the device.
type RecognitionRequest struct {
	ID         int64  `json:"id"`
	Lang       string `json:"lang"`
	Interim    bool   `json:"interim"`
	Continuous bool   `json:"continuous"`
}

// Recognizer is the device speech-to-text engine. Results come back
// asynchronously tagged with the request ID.
type Recognizer interface {
	Start(ctx context.Context, req RecognitionRequest) error
	Abort(id int64)
}

// ErrorKind is the recognizer's error string as reported by the device.
type ErrorKind string

const (
	ErrNotAllowed   ErrorKind = "not-allowed"
	ErrNoSpeech     ErrorKind = "no-speech"
	ErrNetwork      ErrorKind = "network"
	ErrAborted      ErrorKind = "aborted"
	ErrAudioCapture ErrorKind = "audio-capture"
)

var ErrNoRecognizer = errors.New("speech recognition is not available on this device")
