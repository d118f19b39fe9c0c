// README: Speaker keeps at most one utterance playing on the device and reports how each one ended.
package speech

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
	"unicode/utf8"
)

// Outcome is how an utterance ended.
type Outcome int

const (
	Finished Outcome = iota
	Failed
	Interrupted
)

func (o Outcome) String() string {
	switch o {
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	case Interrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Utterance is one unit of device playback. Empty Audio means the device
// should speak Text with its local voice.
type Utterance struct {
	ID    string `json:"id"`
	Text  string `json:"text,omitempty"`
	Audio *Audio `json:"audio,omitempty"`
}

// Output is the device side of playback.
type Output interface {
	Play(u Utterance) error
	Stop(id string)
}

var ErrSpeakerClosed = errors.New("speaker closed")

// DefaultPlaybackGrace is added to the estimated length of an utterance
// before a missing playback report counts as a failure.
const DefaultPlaybackGrace = 5 * time.Second

const (
	perRune          = 90 * time.Millisecond
	audioBytesPerSec = 2000
)

type pending struct {
	id     string
	done   func(Outcome)
	ctx    context.Context
	cancel context.CancelFunc
}

// Speaker owns the single audio output of a session. Every done callback runs
// exactly once, on its own goroutine.
type Speaker struct {
	synth Synthesizer
	out   Output
	grace time.Duration

	// outMu orders device Play and Stop calls with the ownership check.
	outMu sync.Mutex

	mu     sync.Mutex
	seq    int
	active *pending
	closed bool
}

// NewSpeaker accepts a nil synthesizer; utterances are then sent as text.
// An utterance the device never reports on fails after its estimated length
// plus grace; grace <= 0 uses DefaultPlaybackGrace.
func NewSpeaker(synth Synthesizer, out Output, grace time.Duration) *Speaker {
	if grace <= 0 {
		grace = DefaultPlaybackGrace
	}
	return &Speaker{synth: synth, out: out, grace: grace}
}

// Speak stops whatever is playing and queues text for synthesis and playback.
func (s *Speaker) Speak(ctx context.Context, text string, done func(Outcome)) string {
	p, ok := s.begin(ctx, done)
	if !ok {
		return ""
	}
	go s.render(p, text)
	return p.id
}

// PlayAudio stops whatever is playing and plays pre-rendered audio.
// Failed is reported when the device rejects it.
func (s *Speaker) PlayAudio(ctx context.Context, audio Audio, done func(Outcome)) string {
	p, ok := s.begin(ctx, done)
	if !ok {
		return ""
	}
	go s.play(p, Utterance{ID: p.id, Audio: &audio})
	return p.id
}

// Ended is called when the device reports the end of playback. err non-nil
// means playback failed. Unknown or superseded ids are ignored.
func (s *Speaker) Ended(id string, err error) {
	s.mu.Lock()
	p := s.active
	if p == nil || p.id != id {
		s.mu.Unlock()
		return
	}
	s.active = nil
	s.mu.Unlock()

	p.cancel()
	if err != nil {
		log.Printf("speaker: playback %s failed: %v", id, err)
		notify(p, Failed)
		return
	}
	notify(p, Finished)
}

// Stop interrupts the current utterance, if any.
func (s *Speaker) Stop() {
	s.mu.Lock()
	p := s.active
	s.active = nil
	s.mu.Unlock()
	s.interrupt(p)
}

// Close stops playback; later calls report Interrupted immediately.
func (s *Speaker) Close() {
	s.mu.Lock()
	s.closed = true
	p := s.active
	s.active = nil
	s.mu.Unlock()
	s.interrupt(p)
}

// Active returns the id of the utterance currently owning the output.
func (s *Speaker) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.id
}

func (s *Speaker) begin(ctx context.Context, done func(Outcome)) (*pending, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		notify(&pending{done: done}, Interrupted)
		return nil, false
	}
	prev := s.active
	s.seq++
	uctx, cancel := context.WithCancel(ctx)
	p := &pending{id: fmt.Sprintf("u%d", s.seq), done: done, ctx: uctx, cancel: cancel}
	s.active = p
	s.mu.Unlock()

	s.interrupt(prev)
	return p, true
}

func (s *Speaker) render(p *pending, text string) {
	u := Utterance{ID: p.id, Text: text}
	if s.synth != nil {
		audio, err := s.synth.Synthesize(p.ctx, text)
		if err != nil {
			log.Printf("speaker: synthesize %s: %v", p.id, err)
			s.finish(p, Failed)
			return
		}
		u.Audio = &audio
	}
	s.play(p, u)
}

func (s *Speaker) play(p *pending, u Utterance) {
	s.outMu.Lock()
	s.mu.Lock()
	current := s.active == p
	s.mu.Unlock()
	if !current {
		// Superseded while synthesizing; Interrupted was already reported.
		s.outMu.Unlock()
		return
	}
	err := s.out.Play(u)
	s.outMu.Unlock()
	if err != nil {
		log.Printf("speaker: play %s: %v", p.id, err)
		s.finish(p, Failed)
		return
	}
	go s.expire(p, playbackLimit(u, s.grace))
}

// expire fails p when no playback report arrives within limit.
func (s *Speaker) expire(p *pending, limit time.Duration) {
	t := time.NewTimer(limit)
	defer t.Stop()
	select {
	case <-p.ctx.Done():
		return
	case <-t.C:
	}
	s.mu.Lock()
	current := s.active == p
	s.mu.Unlock()
	if !current {
		return
	}
	log.Printf("speaker: no playback report for %s after %v", p.id, limit)
	s.stopOutput(p.id)
	s.finish(p, Failed)
}

func playbackLimit(u Utterance, grace time.Duration) time.Duration {
	d := grace + time.Duration(utf8.RuneCountInString(u.Text))*perRune
	if u.Audio != nil {
		n := base64.StdEncoding.DecodedLen(len(u.Audio.Base64))
		d += time.Duration(n/audioBytesPerSec) * time.Second
	}
	return d
}

// finish ends p with o if it still owns the output.
func (s *Speaker) finish(p *pending, o Outcome) {
	s.mu.Lock()
	if s.active != p {
		s.mu.Unlock()
		return
	}
	s.active = nil
	s.mu.Unlock()
	p.cancel()
	notify(p, o)
}

func (s *Speaker) interrupt(p *pending) {
	if p == nil {
		return
	}
	p.cancel()
	s.stopOutput(p.id)
	notify(p, Interrupted)
}

func (s *Speaker) stopOutput(id string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	s.out.Stop(id)
}

func notify(p *pending, o Outcome) {
	if p.done != nil {
		go p.done(o)
	}
}
