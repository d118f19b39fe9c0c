// README: Device drives the phone's speaker and recognizer by sending frames over the hub.
package stream

import (
	"context"
	"errors"
	"log"

	"bridgetalk/internal/modules/navigation"
	"bridgetalk/internal/speech"
	"bridgetalk/internal/types"
)

// ErrNoSocket means no device socket can receive the session's frames.
var ErrNoSocket = errors.New("stream: no device socket")

// Device is the navigation.Device of one session. Results come back as
// device frames handled by Apply.
type Device struct {
	hub *Hub
	id  types.ID
}

func NewDevice(hub *Hub, id types.ID) *Device {
	return &Device{hub: hub, id: id}
}

// Devices returns the navigation service's device factory.
func Devices(hub *Hub) navigation.DeviceFactory {
	return func(id types.ID) navigation.Device {
		return NewDevice(hub, id)
	}
}

// Play fails when nothing can receive the frame so the speaker does not wait
// for a playback report that cannot come.
func (d *Device) Play(u speech.Utterance) error {
	if !d.hub.Reachable(string(d.id)) {
		return ErrNoSocket
	}
	return d.hub.Publish(Frame{Type: FramePlay, SessionID: d.id, Utterance: &u})
}

func (d *Device) Stop(id string) {
	d.send(Frame{Type: FrameStop, SessionID: d.id, UtteranceID: id})
}

func (d *Device) Start(ctx context.Context, req speech.RecognitionRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.hub.Publish(Frame{Type: FrameListen, SessionID: d.id, Recognition: &req})
}

func (d *Device) Abort(id int64) {
	d.send(Frame{Type: FrameAbortListen, SessionID: d.id, RecognitionID: id})
}

func (d *Device) send(f Frame) {
	if err := d.hub.Publish(f); err != nil {
		log.Printf("stream: send %s to %s: %v", f.Type, d.id, err)
	}
}
