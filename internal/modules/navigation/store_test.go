package navigation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"

	"bridgetalk/internal/types"
)

func newRedisStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(nil, rdb, time.Hour), mr
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	pos := types.Point{Lat: 40.1, Lng: -73.2}
	snap := Snapshot{
		ID:                     "sess-1",
		Owner:                  "user-1",
		Phase:                  PhaseNavigating,
		Destination:            "central park",
		CurrentStepIndex:       2,
		LastAnnouncedStepIndex: 1,
		StepCount:              5,
		CurrentPosition:        &pos,
		Instruction:            "Turn left",
		UpdatedAt:              time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if ttl := mr.TTL("navigation:session:sess-1"); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}

	got, ok, err := store.LoadSnapshot(ctx, "sess-1")
	if err != nil || !ok {
		t.Fatalf("LoadSnapshot = %v, %v", ok, err)
	}
	if got.Phase != snap.Phase || got.CurrentStepIndex != 2 || got.CurrentPosition == nil || *got.CurrentPosition != pos {
		t.Errorf("loaded = %+v", got)
	}
	if !got.UpdatedAt.Equal(snap.UpdatedAt) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, snap.UpdatedAt)
	}
}

func TestSnapshotCorrupt(t *testing.T) {
	store, mr := newRedisStore(t)
	if err := mr.Set("navigation:session:bad", "{"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.LoadSnapshot(context.Background(), "bad"); err == nil {
		t.Error("expected unmarshal error")
	}
}

func TestNilStoreIsNoop(t *testing.T) {
	var store *Store
	ctx := context.Background()
	if err := store.SaveSnapshot(ctx, Snapshot{ID: "x"}); err != nil {
		t.Errorf("SaveSnapshot: %v", err)
	}
	if _, ok, err := store.LoadSnapshot(ctx, "x"); ok || err != nil {
		t.Errorf("LoadSnapshot = %v, %v", ok, err)
	}
	if err := store.RecordTrip(ctx, Trip{}); err != nil {
		t.Errorf("RecordTrip: %v", err)
	}
	trips, err := NewStore(nil, nil, 0).RecentTrips(ctx, "u", 5)
	if trips != nil || err != nil {
		t.Errorf("RecentTrips = %v, %v", trips, err)
	}
}

func TestRecordTrip(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()
	store := NewStore(mock, nil, 0)

	started := time.Now().Add(-10 * time.Minute)
	ended := time.Now()
	mock.ExpectExec(`INSERT INTO navigation_trips`).
		WithArgs("sess-1", "user-1", "central park", "WALKING", 4, started, ended, "arrived").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.RecordTrip(context.Background(), Trip{
		SessionID:   "sess-1",
		Owner:       "user-1",
		Destination: "central park",
		TravelMode:  TravelWalking,
		StepCount:   4,
		StartedAt:   started,
		EndedAt:     ended,
		Outcome:     OutcomeArrived,
	})
	if err != nil {
		t.Fatalf("RecordTrip: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecentTrips(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()
	store := NewStore(mock, nil, 0)

	now := time.Now()
	cols := []string{"session_id", "owner_uid", "destination", "travel_mode", "step_count", "started_at", "ended_at", "outcome"}
	mock.ExpectQuery(`SELECT session_id, owner_uid`).
		WithArgs("user-1", 20).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("sess-2", "user-1", "harlem", "TRANSIT", 6, now.Add(-time.Hour), now, "cancelled").
			AddRow("sess-1", "user-1", "central park", "WALKING", 4, now.Add(-2*time.Hour), now.Add(-90*time.Minute), "arrived"))

	trips, err := store.RecentTrips(context.Background(), "user-1", 500)
	if err != nil {
		t.Fatalf("RecentTrips: %v", err)
	}
	if len(trips) != 2 {
		t.Fatalf("len = %d, want 2", len(trips))
	}
	if trips[0].SessionID != "sess-2" || trips[0].TravelMode != TravelTransit || trips[0].Outcome != OutcomeCancelled {
		t.Errorf("trips[0] = %+v", trips[0])
	}
	if trips[1].StepCount != 4 || trips[1].Destination != "central park" {
		t.Errorf("trips[1] = %+v", trips[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
