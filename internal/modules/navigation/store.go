// README: Session snapshots in Redis and the trip log in PostgreSQL; either half may be disabled.
package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bridgetalk/internal/infra"
	"bridgetalk/internal/types"
)

const DefaultSnapshotTTL = 24 * time.Hour

type Store struct {
	db    infra.Querier
	redis *redis.Client
	ttl   time.Duration
}

// NewStore accepts nil for either backend.
func NewStore(db infra.Querier, redis *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &Store{db: db, redis: redis, ttl: ttl}
}

func snapshotKey(id types.ID) string {
	return "navigation:session:" + string(id)
}

// SaveSnapshot stores the latest session state for other replicas.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if s == nil || s.redis == nil {
		return nil
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.redis.Set(ctx, snapshotKey(snap.ID), b, s.ttl).Err()
}

// LoadSnapshot returns the stored state of a session, if any.
func (s *Store) LoadSnapshot(ctx context.Context, id types.ID) (Snapshot, bool, error) {
	if s == nil || s.redis == nil {
		return Snapshot{}, false, nil
	}
	b, err := s.redis.Get(ctx, snapshotKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}

// RecordTrip appends a finished trip to the trip log.
func (s *Store) RecordTrip(ctx context.Context, t Trip) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO navigation_trips (
			session_id, owner_uid, destination, travel_mode,
			step_count, started_at, ended_at, outcome
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(t.SessionID),
		t.Owner,
		t.Destination,
		string(t.TravelMode),
		t.StepCount,
		t.StartedAt,
		t.EndedAt,
		string(t.Outcome),
	)
	return err
}

// RecentTrips lists an owner's trips, newest first.
func (s *Store) RecentTrips(ctx context.Context, owner string, limit int) ([]Trip, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT session_id, owner_uid, destination, travel_mode,
		       step_count, started_at, ended_at, outcome
		FROM navigation_trips
		WHERE owner_uid = $1
		ORDER BY ended_at DESC
		LIMIT $2`, owner, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []Trip
	for rows.Next() {
		var t Trip
		var sessionID, mode, outcome string
		if err := rows.Scan(&sessionID, &t.Owner, &t.Destination, &mode,
			&t.StepCount, &t.StartedAt, &t.EndedAt, &outcome); err != nil {
			return nil, err
		}
		t.SessionID = types.ID(sessionID)
		t.TravelMode = TravelMode(mode)
		t.Outcome = TripOutcome(outcome)
		trips = append(trips, t)
	}
	return trips, rows.Err()
}
