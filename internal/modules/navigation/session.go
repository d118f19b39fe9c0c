// README: Session runs one navigation session on a single event loop goroutine.
package navigation

import (
	"context"
	"log"
	"reflect"
	"strings"
	"sync"
	"time"

	"bridgetalk/internal/ai"
	"bridgetalk/internal/modules/location"
	"bridgetalk/internal/speech"
	"bridgetalk/internal/types"
)

const (
	eventBuffer     = 64
	persistTimeout  = 2 * time.Second
	textNoRecognize = "Voice recognition is not supported on this device."
	textDenied      = "Please allow location access to use navigation."
	textUnavailable = "Location unavailable. Check your GPS or network."
	textTimedOut    = "Getting your location timed out."
	textRetrying    = "I didn't hear anything. Listening again."
)

// Tracker is the geolocation source of one session.
type Tracker interface {
	Watch(onFix func(location.Fix), onErr func(*location.LocationError)) (cancel func())
	CurrentPosition(ctx context.Context, maxAge time.Duration) (location.Fix, error)
}

type SessionOptions struct {
	Thresholds      Thresholds
	Listener        ListenerOptions
	LocationTimeout time.Duration
	FixMaxAge       time.Duration
	// PlaybackGrace bounds the wait for a playback report beyond the
	// utterance's estimated length.
	PlaybackGrace time.Duration
}

type SessionDeps struct {
	Interpreter *Interpreter
	Planner     *Planner
	Tracker     Tracker
	Speaker     *speech.Speaker
	Recognizer  speech.Recognizer
	Store       *Store
	// OnChange receives every new snapshot. It runs on the loop and must not block.
	OnChange func(Snapshot)
}

// Session serializes every callback of one navigation session through its
// event channel. Only the loop goroutine touches the Machine.
type Session struct {
	id    types.ID
	owner string
	opts  SessionOptions
	deps  SessionDeps

	m        *Machine
	listener *Listener

	events chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	unwatch     func()
	cmdSeq      int
	routeSeq    int
	cancelRoute context.CancelFunc
	trip        *Trip
	published   Snapshot

	mu    sync.RWMutex
	snap  Snapshot
	route *Route
}

func newSession(id types.ID, owner string, opts SessionOptions, deps SessionDeps) *Session {
	if opts.LocationTimeout <= 0 {
		opts.LocationTimeout = 10 * time.Second
	}
	if opts.FixMaxAge <= 0 {
		opts.FixMaxAge = 5 * time.Second
	}
	if deps.Interpreter == nil {
		deps.Interpreter = NewInterpreter(nil, 0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     id,
		owner:  owner,
		opts:   opts,
		deps:   deps,
		events: make(chan func(), eventBuffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.m = NewMachine(opts.Thresholds, voice{s})
	s.listener = NewListener(deps.Recognizer, opts.Listener, s.after, func() {
		if s.m.Phase() == PhaseListening {
			s.listen(false)
		}
	})
	s.publish()

	if deps.Tracker != nil {
		s.unwatch = deps.Tracker.Watch(
			func(f location.Fix) { _ = s.post(func() { s.onFix(f) }) },
			func(e *location.LocationError) { _ = s.post(func() { s.onLocationError(e) }) },
		)
	}
	go s.run()
	return s
}

func (s *Session) ID() types.ID  { return s.id }
func (s *Session) Owner() string { return s.owner }

// Snapshot returns the state as of the last processed event.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Route returns the route the session is holding.
func (s *Session) Route() (Route, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.route == nil {
		return Route{}, false
	}
	return *s.route, true
}

// Done is closed once the loop has released every resource.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close stops the loop and waits for release.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) Tap() error {
	return s.call(func() error {
		res, p := s.m.Tap()
		switch res {
		case TapStarted:
			s.listener.Release()
			s.started(p)
		case TapPrompt:
			s.prompt()
		}
		return nil
	})
}

func (s *Session) Listen() error {
	return s.call(func() error { return s.listen(true) })
}

func (s *Session) Start() error {
	return s.call(func() error {
		if !s.m.Armed() {
			return ErrNoRoute
		}
		s.listener.Release()
		s.cancelPending()
		p, ok := s.m.Start(textStartTap)
		if !ok {
			return ErrNoRoute
		}
		s.started(p)
		return nil
	})
}

// Cancel stops guidance and drops the route; the session stays open.
func (s *Session) Cancel() error {
	return s.call(func() error {
		s.listener.Release()
		s.cancelPending()
		if s.m.Cancel() {
			s.finishTrip(OutcomeCancelled)
		}
		return nil
	})
}

// SetDestination requests a route for a typed destination.
func (s *Session) SetDestination(text string) error {
	dest := strings.TrimSpace(text)
	if dest == "" {
		return ErrEmptyDestination
	}
	return s.call(func() error {
		s.listener.Release()
		if s.m.Phase() == PhaseNavigating {
			s.finishTrip(OutcomeCancelled)
		}
		s.requestRoute(dest)
		return nil
	})
}

func (s *Session) Transcript(recID int64, text string, final bool) error {
	return s.call(func() error {
		s.onTranscript(recID, text, final)
		return nil
	})
}

func (s *Session) RecognitionError(recID int64, kind speech.ErrorKind) error {
	return s.call(func() error {
		s.onRecognitionError(recID, kind)
		return nil
	})
}

func (s *Session) RecognitionEnded(recID int64) error {
	return s.call(func() error {
		if s.listener.Ended(recID) {
			s.m.RecognitionEnded()
		}
		return nil
	})
}

// PlaybackEnded forwards the device's end-of-playback report to the speaker.
func (s *Session) PlaybackEnded(utteranceID string, err error) {
	if s.deps.Speaker != nil {
		s.deps.Speaker.Ended(utteranceID, err)
	}
}

func (s *Session) run() {
	defer close(s.done)
	defer s.release()
	for {
		select {
		case fn := <-s.events:
			fn()
			s.publish()
		case <-s.ctx.Done():
			return
		}
	}
}

// post queues fn on the loop.
func (s *Session) post(fn func()) error {
	select {
	case <-s.ctx.Done():
		return ErrSessionClosed
	default:
	}
	select {
	case s.events <- fn:
		return nil
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

// call runs fn on the loop and waits for its result and the resulting snapshot.
func (s *Session) call(fn func() error) error {
	res := make(chan error, 1)
	if err := s.post(func() {
		err := fn()
		s.publish()
		res <- err
	}); err != nil {
		return err
	}
	select {
	case err := <-res:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

// after schedules fn on the loop.
func (s *Session) after(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() { _ = s.post(fn) })
	return func() { t.Stop() }
}

func (s *Session) listen(fresh bool) error {
	if !s.m.Listen() {
		return ErrBusy
	}
	if _, err := s.listener.Start(s.ctx, fresh); err != nil {
		log.Printf("navigation: session %s: start recognizer: %v", s.id, err)
		s.fail(&Failure{Code: CodeSpeechRecognition, Spoken: textNoRecognize, Detail: "Speech recognition unavailable", Err: err})
	}
	return nil
}

// prompt asks for a destination and listens once the question has been spoken.
func (s *Session) prompt() {
	if s.deps.Speaker == nil {
		s.listen(true)
		return
	}
	s.deps.Speaker.Speak(s.ctx, textPrompt, func(o speech.Outcome) {
		if o == speech.Interrupted {
			return
		}
		_ = s.post(func() {
			if s.m.Phase() == PhaseIdle {
				s.listen(true)
			}
		})
	})
}

func (s *Session) onTranscript(recID int64, text string, final bool) {
	if !s.listener.Accept(recID, final) {
		return
	}
	if !final {
		s.m.Interim(text)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.m.RecognitionEnded()
		return
	}
	phase, ok := s.m.Transcript(text)
	if !ok {
		return
	}

	hints := map[string]string{ai.ContextPhase: string(phase)}
	if pos, ok := s.m.Position(); ok {
		hints[ai.ContextLocation] = pos.String()
	}
	if s.owner != "" {
		hints[ai.ContextUID] = s.owner
	}
	s.cmdSeq++
	seq := s.cmdSeq
	go func() {
		cmd := s.deps.Interpreter.Interpret(s.ctx, phase, text, hints)
		_ = s.post(func() {
			if seq != s.cmdSeq {
				return
			}
			s.applyCommand(cmd)
		})
	}()
}

func (s *Session) applyCommand(cmd Command) {
	s.playReply(cmd)
	if cmd.Err != nil && !cmd.Fallback && cmd.Kind == CommandNone {
		failures.WithLabelValues(string(CodeRemoteAgent)).Inc()
	}
	action, p := s.m.ResolveCommand(cmd)
	switch action {
	case ActionRoute:
		s.requestRoute(cmd.Destination)
	case ActionStart:
		s.started(p)
	}
}

// playReply plays agent audio, falling back to its text when the device
// cannot play it.
func (s *Session) playReply(cmd Command) {
	if s.deps.Speaker == nil {
		return
	}
	text := cmd.Speech
	if cmd.Audio != "" {
		s.deps.Speaker.PlayAudio(s.ctx, speech.Audio{Base64: cmd.Audio, MIME: "audio/mp3"}, func(o speech.Outcome) {
			if o != speech.Failed || text == "" {
				return
			}
			_ = s.post(func() { s.say(text) })
		})
		return
	}
	if text != "" {
		s.say(text)
	}
}

func (s *Session) requestRoute(dest string) {
	s.cancelPending()
	s.m.Processing(dest)

	s.routeSeq++
	seq := s.routeSeq
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelRoute = cancel
	origin, haveOrigin := s.m.Position()

	go func() {
		defer cancel()
		if !haveOrigin {
			fix, err := s.originFix(ctx)
			if err != nil {
				_ = s.post(func() {
					if seq == s.routeSeq && s.m.Phase() == PhaseProcessing {
						s.fail(&Failure{Code: CodeLocationUnavailable, Spoken: msgLocationMissing, Detail: "Location unavailable", Err: err})
					}
				})
				return
			}
			origin = fix.Position
		}

		plan, err := s.deps.Planner.Plan(ctx, origin, dest)
		_ = s.post(func() {
			if seq != s.routeSeq || s.m.Phase() != PhaseProcessing {
				return
			}
			if err != nil {
				s.fail(classifyRouteError(err, TravelWalking))
				return
			}
			s.m.RouteReady(plan.Route, plan.Summary)
		})
	}()
}

func (s *Session) originFix(ctx context.Context) (location.Fix, error) {
	if s.deps.Tracker == nil {
		return location.Fix{}, location.ErrNoFix
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.LocationTimeout)
	defer cancel()
	return s.deps.Tracker.CurrentPosition(ctx, s.opts.FixMaxAge)
}

// cancelPending drops any in-flight route request or command interpretation.
func (s *Session) cancelPending() {
	s.cmdSeq++
	s.routeSeq++
	if s.cancelRoute != nil {
		s.cancelRoute()
		s.cancelRoute = nil
	}
}

func (s *Session) onFix(f location.Fix) {
	s.progress(s.m.Observe(f.Position))
}

func (s *Session) onLocationError(e *location.LocationError) {
	if e.Transient() {
		msg := textUnavailable
		if e.Code == location.CodeTimeout {
			msg = textTimedOut
		}
		s.m.LocationTrouble(msg)
		return
	}
	snap := s.m.Snapshot()
	if snap.Phase == PhaseError && snap.Error == CodeLocationUnavailable {
		return
	}
	s.fail(&Failure{Code: CodeLocationUnavailable, Spoken: textDenied, Detail: "Location permission denied", Err: e})
}

func (s *Session) onRecognitionError(recID int64, kind speech.ErrorKind) {
	switch s.listener.Failed(recID, kind) {
	case VerdictRetry:
		s.say(textRetrying)
	case VerdictSurface:
		spoken, detail := recognitionMessage(kind)
		s.fail(&Failure{Code: CodeSpeechRecognition, Spoken: spoken, Detail: detail})
	}
}

func (s *Session) fail(f *Failure) {
	log.Printf("navigation: session %s: %s: %s", s.id, f.Code, f.Error())
	failures.WithLabelValues(string(f.Code)).Inc()
	if s.m.Phase() == PhaseNavigating {
		s.finishTrip(OutcomeFailed)
	}
	s.listener.Release()
	s.m.Fail(f)
}

func (s *Session) started(p Progress) {
	j := s.m.Journey()
	s.trip = &Trip{
		SessionID:   s.id,
		Owner:       s.owner,
		Destination: j.Destination,
		TravelMode:  j.Mode,
		StepCount:   j.StepCount,
		StartedAt:   time.Now(),
	}
	s.progress(p)
}

func (s *Session) progress(p Progress) {
	if p.Announced {
		announcements.Inc()
	}
	if p.Arrived {
		arrivals.Inc()
		s.finishTrip(OutcomeArrived)
	}
}

func (s *Session) finishTrip(outcome TripOutcome) {
	if s.trip == nil {
		return
	}
	t := *s.trip
	s.trip = nil
	t.EndedAt = time.Now()
	t.Outcome = outcome

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.deps.Store.RecordTrip(ctx, t); err != nil {
		log.Printf("navigation: session %s: record trip: %v", s.id, err)
	}
}

func (s *Session) say(text string) {
	if s.deps.Speaker != nil {
		s.deps.Speaker.Speak(s.ctx, text, nil)
	}
}

// publish stores and broadcasts the snapshot when it changed.
func (s *Session) publish() {
	snap := s.m.Snapshot()
	snap.ID = s.id
	snap.Owner = s.owner
	if reflect.DeepEqual(snap, s.published) {
		return
	}
	s.published = snap
	snap.UpdatedAt = time.Now()

	var route *Route
	if r, ok := s.m.Route(); ok {
		route = &r
	}
	s.mu.Lock()
	s.snap = snap
	s.route = route
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.deps.Store.SaveSnapshot(ctx, snap); err != nil {
		log.Printf("navigation: session %s: save snapshot: %v", s.id, err)
	}
	if s.deps.OnChange != nil {
		s.deps.OnChange(snap)
	}
}

// release runs on every exit path of the loop.
func (s *Session) release() {
	if s.unwatch != nil {
		s.unwatch()
	}
	s.listener.Release()
	s.cancelPending()
	if s.deps.Speaker != nil {
		s.deps.Speaker.Close()
	}
	s.finishTrip(OutcomeCancelled)
	s.publish()
}

// voice adapts the session speaker to the machine's Announcer.
type voice struct{ s *Session }

func (v voice) Say(text string) { v.s.say(text) }
