// README: Location service routes device fixes to per-session trackers and the last-fix store.
package location

import (
	"context"
	"log"
	"sync"
	"time"

	"bridgetalk/internal/types"
)

type Service struct {
	store *Store

	mu       sync.Mutex
	trackers map[types.ID]*Tracker
}

func NewService(store *Store) *Service {
	return &Service{store: store, trackers: map[types.ID]*Tracker{}}
}

// Tracker returns the tracker for a session, creating it on first use.
func (s *Service) Tracker(id types.ID) *Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[id]
	if !ok {
		t = newTracker(id, s.store)
		s.trackers[id] = t
	}
	return t
}

// Update validates a fix, stores it as last-known and hands it to watchers.
func (s *Service) Update(ctx context.Context, u Update) error {
	if u.SessionID == "" || !u.Position.Valid() {
		return ErrInvalidFix
	}
	if u.RecordedAt.IsZero() {
		u.RecordedAt = time.Now()
	}
	fix := Fix{Position: u.Position, AccuracyM: u.AccuracyM, RecordedAt: u.RecordedAt}

	if err := s.store.SetGeo(ctx, u.SessionID, fix); err != nil {
		// The in-memory fan-out matters more than the replica cache.
		log.Printf("location: store last fix for %s: %v", u.SessionID, err)
	}
	s.Tracker(u.SessionID).Report(fix)
	return nil
}

// ReportError forwards a device geolocation error to the session's watchers.
func (s *Service) ReportError(id types.ID, code ErrorCode, msg string) error {
	switch code {
	case CodePermissionDenied, CodePositionUnavailable, CodeTimeout:
	default:
		return ErrBadCode
	}
	s.Tracker(id).ReportError(&LocationError{Code: code, Message: msg})
	return nil
}

// Release drops the tracker and the stored last fix.
func (s *Service) Release(ctx context.Context, id types.ID) {
	s.mu.Lock()
	delete(s.trackers, id)
	s.mu.Unlock()
	if err := s.store.Remove(ctx, id); err != nil {
		log.Printf("location: remove last fix for %s: %v", id, err)
	}
}
