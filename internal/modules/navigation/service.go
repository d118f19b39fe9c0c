// README: Navigation service keeps live sessions by ID and routes device events to them.
package navigation

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"bridgetalk/internal/modules/location"
	"bridgetalk/internal/speech"
	"bridgetalk/internal/types"
)

// Device is the per-session phone or browser: audio output plus recognizer.
type Device interface {
	speech.Output
	speech.Recognizer
}

// DeviceFactory returns the device channel for a session.
type DeviceFactory func(id types.ID) Device

type ServiceDeps struct {
	Interpreter *Interpreter
	Planner     *Planner
	Locations   *location.Service
	Synth       speech.Synthesizer
	Devices     DeviceFactory
	Store       *Store
	OnChange    func(Snapshot)
}

type Service struct {
	opts SessionOptions
	deps ServiceDeps

	mu       sync.RWMutex
	sessions map[types.ID]*Session
}

func NewService(opts SessionOptions, deps ServiceDeps) *Service {
	if deps.Locations == nil {
		deps.Locations = location.NewService(location.NewStore(nil))
	}
	return &Service{opts: opts, deps: deps, sessions: map[types.ID]*Session{}}
}

// Create opens a session for owner and starts its loop.
func (s *Service) Create(ctx context.Context, owner string) (Snapshot, error) {
	id := types.ID(uuid.NewString())

	var dev Device
	if s.deps.Devices != nil {
		dev = s.deps.Devices(id)
	}
	var speaker *speech.Speaker
	var rec speech.Recognizer
	if dev != nil {
		speaker = speech.NewSpeaker(s.deps.Synth, dev, s.opts.PlaybackGrace)
		rec = dev
	}

	sess := newSession(id, owner, s.opts, SessionDeps{
		Interpreter: s.deps.Interpreter,
		Planner:     s.deps.Planner,
		Tracker:     s.deps.Locations.Tracker(id),
		Speaker:     speaker,
		Recognizer:  rec,
		Store:       s.deps.Store,
		OnChange:    s.deps.OnChange,
	})

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	activeSessions.Inc()
	log.Printf("navigation: session %s created for %q", id, owner)
	return sess.Snapshot(), nil
}

// Get returns a live session on this instance.
func (s *Service) Get(id types.ID) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Snapshot returns live state, or the last stored state when the session is
// owned by another instance or already closed.
func (s *Service) Snapshot(ctx context.Context, id types.ID) (Snapshot, error) {
	if sess, err := s.Get(id); err == nil {
		return sess.Snapshot(), nil
	}
	snap, ok, err := s.deps.Store.LoadSnapshot(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	return snap, nil
}

func (s *Service) Route(id types.ID) (Route, error) {
	sess, err := s.Get(id)
	if err != nil {
		return Route{}, err
	}
	r, ok := sess.Route()
	if !ok {
		return Route{}, ErrNoRoute
	}
	return r, nil
}

func (s *Service) Tap(id types.ID) (Snapshot, error) {
	return s.apply(id, (*Session).Tap)
}

func (s *Service) Listen(id types.ID) (Snapshot, error) {
	return s.apply(id, (*Session).Listen)
}

func (s *Service) Start(id types.ID) (Snapshot, error) {
	return s.apply(id, (*Session).Start)
}

func (s *Service) Cancel(id types.ID) (Snapshot, error) {
	return s.apply(id, (*Session).Cancel)
}

func (s *Service) SetDestination(id types.ID, text string) (Snapshot, error) {
	return s.apply(id, func(sess *Session) error { return sess.SetDestination(text) })
}

func (s *Service) Transcript(id types.ID, recID int64, text string, final bool) (Snapshot, error) {
	return s.apply(id, func(sess *Session) error { return sess.Transcript(recID, text, final) })
}

func (s *Service) RecognitionError(id types.ID, recID int64, kind speech.ErrorKind) (Snapshot, error) {
	return s.apply(id, func(sess *Session) error { return sess.RecognitionError(recID, kind) })
}

func (s *Service) RecognitionEnded(id types.ID, recID int64) (Snapshot, error) {
	return s.apply(id, func(sess *Session) error { return sess.RecognitionEnded(recID) })
}

// PlaybackEnded reports that the device finished (or failed) an utterance.
func (s *Service) PlaybackEnded(id types.ID, utteranceID, failure string) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	var perr error
	if failure != "" {
		perr = errors.New(failure)
	}
	sess.PlaybackEnded(utteranceID, perr)
	return nil
}

// UpdateLocation feeds a device fix to the session's tracker. A fix that
// races a Close is released again so no tracker outlives its session.
func (s *Service) UpdateLocation(ctx context.Context, u location.Update) error {
	if _, err := s.Get(u.SessionID); err != nil {
		return err
	}
	if err := s.deps.Locations.Update(ctx, u); err != nil {
		return err
	}
	if _, err := s.Get(u.SessionID); err != nil {
		s.deps.Locations.Release(ctx, u.SessionID)
		return err
	}
	return nil
}

// LocationError feeds a device geolocation error to the session's tracker.
func (s *Service) LocationError(id types.ID, code location.ErrorCode, msg string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	return s.deps.Locations.ReportError(id, code, msg)
}

// Close releases a session and keeps its final snapshot in the store.
func (s *Service) Close(ctx context.Context, id types.ID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.Close()
	s.deps.Locations.Release(ctx, id)
	activeSessions.Dec()
	log.Printf("navigation: session %s closed", id)
	return nil
}

// Shutdown closes every session.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.RLock()
	ids := make([]types.ID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	for _, id := range ids {
		_ = s.Close(ctx, id)
	}
}

func (s *Service) RecentTrips(ctx context.Context, owner string, limit int) ([]Trip, error) {
	return s.deps.Store.RecentTrips(ctx, owner, limit)
}

func (s *Service) apply(id types.ID, fn func(*Session) error) (Snapshot, error) {
	sess, err := s.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	if err := fn(sess); err != nil {
		return sess.Snapshot(), err
	}
	return sess.Snapshot(), nil
}
